// Package secondary defines the secondary ports (driven adapters) for the
// application. These are the interfaces through which the application
// drives external systems.
package secondary

import (
	"context"
	"errors"
	"time"

	"github.com/example/automaton/internal/models"
)

// ErrStateCorrupt marks persisted state that loaded but could not be
// interpreted. The orchestrator halts on it rather than reinitializing,
// since a silent reinit could resurrect a dead allocator with fresh
// budget.
var ErrStateCorrupt = errors.New("allocator state corrupt")

// CommitSet is the full mutation set for one cycle, persisted atomically.
type CommitSet struct {
	State      *models.AllocatorState
	Record     *models.CycleRecord
	Transition *models.TierTransition // nil when the tier did not change
}

// StateRepository defines the secondary port for allocator state
// persistence. Only the cycle orchestrator calls Commit; everything else
// works on the snapshot returned by Load.
type StateRepository interface {
	// Load returns the current state snapshot, or (nil, nil) when the
	// allocator has never been initialized. Unreadable state returns an
	// error wrapping ErrStateCorrupt.
	Load(ctx context.Context) (*models.AllocatorState, error)

	// Init persists a fresh state on first deployment.
	Init(ctx context.Context, st *models.AllocatorState) error

	// Commit writes the cycle's mutation set in a single transaction.
	Commit(ctx context.Context, set CommitSet) error

	// ListCycleRecords returns the most recent cycle records.
	ListCycleRecords(ctx context.Context, limit int) ([]models.CycleRecord, error)

	// Reset clears all persisted state. The next cycle reinitializes
	// from fresh budget/horizon configuration.
	Reset(ctx context.Context) error

	// AcquireCycleLock takes the advisory single-writer lease. It
	// returns false when another holder owns an unexpired lease.
	AcquireCycleLock(ctx context.Context, holder string, ttl time.Duration) (bool, error)

	// ReleaseCycleLock releases the lease if held by holder.
	ReleaseCycleLock(ctx context.Context, holder string) error
}
