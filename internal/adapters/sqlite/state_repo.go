// Package sqlite contains the SQLite implementation of the state store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/automaton/internal/models"
	"github.com/example/automaton/internal/ports/secondary"
)

// tierHistoryLimit bounds how many transitions Load pulls into the
// snapshot; the full history stays queryable in the table.
const tierHistoryLimit = 20

// StateRepository implements secondary.StateRepository with SQLite.
type StateRepository struct {
	db *sql.DB
}

// NewStateRepository creates a new SQLite state repository.
func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Load reads the full allocator state snapshot. Returns (nil, nil) when
// the allocator was never initialized. Interpretation failures wrap
// secondary.ErrStateCorrupt so the orchestrator halts instead of
// reinitializing.
func (r *StateRepository) Load(ctx context.Context) (*models.AllocatorState, error) {
	st := &models.AllocatorState{Strategies: make(map[string]*models.Strategy)}

	var startedAt time.Time
	var lastFetch sql.NullTime
	var tierStr string
	err := r.db.QueryRowContext(ctx,
		`SELECT schema_version, total_budget_usd, spent_usd, realized_usd, unrealized_usd,
		        horizon_days, started_at, epsilon, cycle_count, tier, last_reward_fetch
		 FROM allocator_meta WHERE id = 1`,
	).Scan(
		&st.SchemaVersion,
		&st.Budget.TotalUSD,
		&st.Budget.SpentUSD,
		&st.Budget.RealizedUSD,
		&st.Budget.UnrealizedUSD,
		&st.Budget.HorizonDays,
		&startedAt,
		&st.Epsilon,
		&st.CycleCount,
		&tierStr,
		&lastFetch,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read allocator meta: %v", secondary.ErrStateCorrupt, err)
	}
	if st.SchemaVersion > models.SchemaVersion {
		return nil, fmt.Errorf("%w: state schema version %d is newer than this build supports (%d)",
			secondary.ErrStateCorrupt, st.SchemaVersion, models.SchemaVersion)
	}
	st.Budget.StartedAt = startedAt.UTC()
	st.Tier = models.Tier(tierStr)
	if lastFetch.Valid {
		st.LastRewardFetch = lastFetch.Time.UTC()
	}

	if err := r.loadStrategies(ctx, st); err != nil {
		return nil, err
	}
	if err := r.loadTierHistory(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (r *StateRepository) loadStrategies(ctx context.Context, st *models.AllocatorState) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, source_tag, entrypoint, dir, managed, play_count, reward_usd, win_count, last_invoked
		 FROM strategies ORDER BY id`,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to read strategies: %v", secondary.ErrStateCorrupt, err)
	}
	defer rows.Close()

	rank := 0
	for rows.Next() {
		s := &models.Strategy{}
		var lastInvoked sql.NullTime
		if err := rows.Scan(&s.ID, &s.SourceTag, &s.Entrypoint, &s.Dir, &s.Managed,
			&s.PlayCount, &s.RewardUSD, &s.WinCount, &lastInvoked); err != nil {
			return fmt.Errorf("%w: failed to scan strategy: %v", secondary.ErrStateCorrupt, err)
		}
		if lastInvoked.Valid {
			s.LastInvoked = lastInvoked.Time.UTC()
		}
		s.Rank = rank
		rank++
		st.Strategies[s.ID] = s
	}
	return rows.Err()
}

func (r *StateRepository) loadTierHistory(ctx context.Context, st *models.AllocatorState) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT from_tier, to_tier, at FROM tier_transitions ORDER BY id DESC LIMIT ?`,
		tierHistoryLimit,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to read tier history: %v", secondary.ErrStateCorrupt, err)
	}
	defer rows.Close()

	var history []models.TierTransition
	for rows.Next() {
		var tr models.TierTransition
		var from, to string
		var at time.Time
		if err := rows.Scan(&from, &to, &at); err != nil {
			return fmt.Errorf("%w: failed to scan tier transition: %v", secondary.ErrStateCorrupt, err)
		}
		tr.From, tr.To, tr.At = models.Tier(from), models.Tier(to), at.UTC()
		history = append(history, tr)
	}
	// Reverse into chronological order.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	st.TierHistory = history
	return rows.Err()
}

// Init persists a fresh allocator state on first deployment.
func (r *StateRepository) Init(ctx context.Context, st *models.AllocatorState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO allocator_meta
		 (id, schema_version, total_budget_usd, spent_usd, realized_usd, unrealized_usd,
		  horizon_days, started_at, epsilon, cycle_count, tier)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.SchemaVersion,
		st.Budget.TotalUSD,
		st.Budget.SpentUSD,
		st.Budget.RealizedUSD,
		st.Budget.UnrealizedUSD,
		st.Budget.HorizonDays,
		st.Budget.StartedAt.UTC(),
		st.Epsilon,
		st.CycleCount,
		string(st.Tier),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize allocator state: %w", err)
	}
	return nil
}

// Commit writes the cycle's full mutation set in one transaction: meta,
// strategy statistics, the cycle record, and any tier transition. No
// component outside the orchestrator may call this.
func (r *StateRepository) Commit(ctx context.Context, set secondary.CommitSet) error {
	st := set.State
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer tx.Rollback()

	var lastFetch interface{}
	if !st.LastRewardFetch.IsZero() {
		lastFetch = st.LastRewardFetch.UTC()
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE allocator_meta SET
		   schema_version = ?, total_budget_usd = ?, spent_usd = ?, realized_usd = ?,
		   unrealized_usd = ?, horizon_days = ?, started_at = ?, epsilon = ?,
		   cycle_count = ?, tier = ?, last_reward_fetch = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = 1`,
		st.SchemaVersion,
		st.Budget.TotalUSD,
		st.Budget.SpentUSD,
		st.Budget.RealizedUSD,
		st.Budget.UnrealizedUSD,
		st.Budget.HorizonDays,
		st.Budget.StartedAt.UTC(),
		st.Epsilon,
		st.CycleCount,
		string(st.Tier),
		lastFetch,
	)
	if err != nil {
		return fmt.Errorf("failed to update allocator meta: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cannot commit: allocator state not initialized")
	}

	for _, s := range st.Strategies {
		var lastInvoked interface{}
		if !s.LastInvoked.IsZero() {
			lastInvoked = s.LastInvoked.UTC()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO strategies (id, source_tag, entrypoint, dir, managed, play_count, reward_usd, win_count, last_invoked)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   source_tag = excluded.source_tag,
			   entrypoint = excluded.entrypoint,
			   dir = excluded.dir,
			   managed = excluded.managed,
			   play_count = excluded.play_count,
			   reward_usd = excluded.reward_usd,
			   win_count = excluded.win_count,
			   last_invoked = excluded.last_invoked,
			   updated_at = CURRENT_TIMESTAMP`,
			s.ID, s.SourceTag, s.Entrypoint, s.Dir, s.Managed,
			s.PlayCount, s.RewardUSD, s.WinCount, lastInvoked,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert strategy %s: %w", s.ID, err)
		}
	}

	if set.Record != nil {
		if err := insertCycleRecord(ctx, tx, set.Record); err != nil {
			return err
		}
	}

	if set.Transition != nil {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tier_transitions (from_tier, to_tier, at) VALUES (?, ?, ?)`,
			string(set.Transition.From), string(set.Transition.To), set.Transition.At.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to record tier transition: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cycle: %w", err)
	}
	return nil
}

func insertCycleRecord(ctx context.Context, tx *sql.Tx, rec *models.CycleRecord) error {
	selected, err := json.Marshal(rec.Selected)
	if err != nil {
		return fmt.Errorf("failed to marshal selection: %w", err)
	}
	outcomes, err := json.Marshal(rec.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO cycle_records (id, at, tier, epsilon, selected, outcomes, remaining_usd, dry_run, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.At.UTC(), string(rec.Tier), rec.Epsilon,
		string(selected), string(outcomes), rec.RemainingUSD, rec.DryRun, rec.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to append cycle record: %w", err)
	}
	return nil
}

// ListCycleRecords retrieves the most recent cycle records, newest first.
func (r *StateRepository) ListCycleRecords(ctx context.Context, limit int) ([]models.CycleRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, at, tier, epsilon, selected, outcomes, remaining_usd, dry_run, note
		 FROM cycle_records ORDER BY at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle records: %w", err)
	}
	defer rows.Close()

	var records []models.CycleRecord
	for rows.Next() {
		var rec models.CycleRecord
		var at time.Time
		var tierStr, selected, outcomes string
		var note sql.NullString
		if err := rows.Scan(&rec.ID, &at, &tierStr, &rec.Epsilon, &selected, &outcomes,
			&rec.RemainingUSD, &rec.DryRun, &note); err != nil {
			return nil, fmt.Errorf("failed to scan cycle record: %w", err)
		}
		rec.At = at.UTC()
		rec.Tier = models.Tier(tierStr)
		rec.Note = note.String
		if err := json.Unmarshal([]byte(selected), &rec.Selected); err != nil {
			return nil, fmt.Errorf("failed to parse selection for record %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(outcomes), &rec.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to parse outcomes for record %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Reset clears all persisted allocator state in one transaction.
func (r *StateRepository) Reset(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"allocator_meta", "strategies", "cycle_records", "tier_transitions", "cycle_lock"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}

// AcquireCycleLock takes the advisory single-writer lease. The upsert
// succeeds only when the lock row is absent, expired, or already ours,
// so overlapping scheduler invocations exit without side effects.
func (r *StateRepository) AcquireCycleLock(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO cycle_lock (id, holder, expires_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		 WHERE cycle_lock.holder = excluded.holder OR datetime(cycle_lock.expires_at) <= datetime(?)`,
		holder, now.Add(ttl), now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check cycle lock: %w", err)
	}
	return n > 0, nil
}

// ReleaseCycleLock releases the lease if held by holder.
func (r *StateRepository) ReleaseCycleLock(ctx context.Context, holder string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM cycle_lock WHERE holder = ?", holder); err != nil {
		return fmt.Errorf("failed to release cycle lock: %w", err)
	}
	return nil
}

// Ensure StateRepository implements the interface
var _ secondary.StateRepository = (*StateRepository)(nil)
