package primary

import (
	"context"
	"time"

	"github.com/example/automaton/internal/models"
)

// StatusReport is the operator-facing survival summary.
type StatusReport struct {
	Initialized   bool
	Tier          models.Tier
	BudgetUSD     float64
	SpentUSD      float64
	RealizedUSD   float64
	UnrealizedUSD float64
	RemainingUSD  float64
	RemainingPct  float64
	HorizonDays   int
	DaysLeft      float64
	CycleCount    int
	Epsilon       float64
	ActiveCount   int
	TotalCount    int
	TierHistory   []models.TierTransition
}

// StrategyReport is one row of per-strategy statistics.
type StrategyReport struct {
	ID          string
	SourceTag   string
	RewardUSD   float64
	PlayCount   int
	WinCount    int
	WinPct      float64
	AvgReward   float64
	Played      bool
	Active      bool
	LastInvoked time.Time
}

// ControlService defines the operational surface: inspect state, mutate
// configuration parameters, and force a full reset. It never runs cycles.
type ControlService interface {
	// Status reports current tier, budget, and horizon.
	Status(ctx context.Context) (*StatusReport, error)

	// Strategies reports per-strategy bandit statistics.
	Strategies(ctx context.Context) ([]StrategyReport, error)

	// RecentCycles returns the latest cycle audit records.
	RecentCycles(ctx context.Context, limit int) ([]models.CycleRecord, error)

	// SetParam mutates a named configuration parameter (epsilon, decay
	// rate, min epsilon, max concurrent, budget, horizon, ...).
	SetParam(ctx context.Context, key, value string) error

	// Reset clears all allocator state. The next run initializes from
	// fresh budget/horizon configuration.
	Reset(ctx context.Context) error
}
