package db

import (
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.DB) error
}

// migrations is the list of all migrations in order. Fresh installs get
// the full SchemaSQL; migrations exist for databases created by older
// builds.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_allocator_schema",
		Up:      migrationV1,
	},
}

// InitSchema applies the authoritative schema and records all known
// migrations as applied.
func InitSchema(conn *sql.DB) error {
	if _, err := conn.Exec(SchemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	for _, m := range migrations {
		if err := markApplied(conn, m); err != nil {
			return err
		}
	}
	return nil
}

// RunMigrations applies any pending migrations in order.
func RunMigrations(conn *sql.DB) error {
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := isApplied(conn, m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := m.Up(conn); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		if err := markApplied(conn, m); err != nil {
			return err
		}
	}
	return nil
}

func isApplied(conn *sql.DB, version int) (bool, error) {
	var count int
	err := conn.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %d: %w", version, err)
	}
	return count > 0, nil
}

func markApplied(conn *sql.DB, m Migration) error {
	_, err := conn.Exec(
		"INSERT OR IGNORE INTO schema_migrations (version, name) VALUES (?, ?)",
		m.Version, m.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	return nil
}

func migrationV1(conn *sql.DB) error {
	_, err := conn.Exec(SchemaSQL)
	return err
}
