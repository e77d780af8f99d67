// Package primary defines the primary ports (driving interfaces) for the
// application, plus their request/response types.
package primary

import (
	"context"

	"github.com/example/automaton/internal/models"
)

// RunCycleRequest contains parameters for running one allocator cycle.
type RunCycleRequest struct {
	Live  bool // false = dry run: strategies invoked in non-effecting mode
	Quiet bool

	// Optional overrides applied to existing state (and used for first
	// deployment initialization when state is absent).
	BudgetUSD   *float64
	HorizonDays *int
}

// RunCycleResponse describes what one cycle did.
type RunCycleResponse struct {
	Initialized  bool // state was created fresh this cycle
	Tier         models.Tier
	Transition   *models.TierTransition // non-nil when the tier changed
	Epsilon      float64                // the applied (tier-adjusted) epsilon
	Selected     []string
	Outcomes     []models.StrategyOutcome
	RemainingUSD float64
	CycleCount   int
	Halted       bool   // tier is dead: terminal until reset
	Note         string // human-readable summary for terminal states
	Warnings     []string
}

// AllocatorService defines the primary port for the cycle orchestrator.
// One call runs at most one cycle; the loop never self-reschedules.
type AllocatorService interface {
	RunCycle(ctx context.Context, req RunCycleRequest) (*RunCycleResponse, error)
}
