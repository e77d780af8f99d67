package db

// SchemaSQL is the complete schema for fresh automaton installs.
//
// This is the single source of truth for the database schema. All tests
// use it via GetSchemaSQL(); repository code referencing a column that
// does not exist here fails immediately in tests with "no such column".
// Keep it in sync with the migrations in migrations.go.
const SchemaSQL = `
-- Allocator aggregate (single row): budget envelope, epsilon, counters.
CREATE TABLE IF NOT EXISTS allocator_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	schema_version INTEGER NOT NULL,
	total_budget_usd REAL NOT NULL,
	spent_usd REAL NOT NULL DEFAULT 0,
	realized_usd REAL NOT NULL DEFAULT 0,
	unrealized_usd REAL NOT NULL DEFAULT 0,
	horizon_days INTEGER NOT NULL,
	started_at DATETIME NOT NULL,
	epsilon REAL NOT NULL,
	cycle_count INTEGER NOT NULL DEFAULT 0,
	tier TEXT NOT NULL DEFAULT 'normal' CHECK(tier IN ('thriving', 'normal', 'conserving', 'critical', 'dead')),
	last_reward_fetch DATETIME,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Discovered strategies and their bandit statistics. Statistics are
-- append-only; retired strategies stay with managed = 0.
CREATE TABLE IF NOT EXISTS strategies (
	id TEXT PRIMARY KEY,
	source_tag TEXT NOT NULL,
	entrypoint TEXT NOT NULL,
	dir TEXT NOT NULL DEFAULT '',
	managed INTEGER NOT NULL DEFAULT 1,
	play_count INTEGER NOT NULL DEFAULT 0,
	reward_usd REAL NOT NULL DEFAULT 0,
	win_count INTEGER NOT NULL DEFAULT 0,
	last_invoked DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Append-only cycle audit trail.
CREATE TABLE IF NOT EXISTS cycle_records (
	id TEXT PRIMARY KEY,
	at DATETIME NOT NULL,
	tier TEXT NOT NULL,
	epsilon REAL NOT NULL,
	selected TEXT NOT NULL,
	outcomes TEXT NOT NULL DEFAULT '[]',
	remaining_usd REAL NOT NULL,
	dry_run INTEGER NOT NULL DEFAULT 0,
	note TEXT
);

-- Tier transition history for audit and status display.
CREATE TABLE IF NOT EXISTS tier_transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_tier TEXT NOT NULL,
	to_tier TEXT NOT NULL,
	at DATETIME NOT NULL
);

-- Advisory single-writer lease over the state record. A cycle that
-- cannot take the row exits without side effects.
CREATE TABLE IF NOT EXISTS cycle_lock (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	holder TEXT NOT NULL,
	expires_at DATETIME NOT NULL
);

-- Migration bookkeeping.
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// GetSchemaSQL returns the authoritative schema for tests and InitSchema.
func GetSchemaSQL() string {
	return SchemaSQL
}
