package models

import "time"

// SchemaVersion is the current AllocatorState schema version. Older
// persisted versions are migrated forward by internal/db.
const SchemaVersion = 1

// Tier is the discrete survival state derived from remaining budget
// fraction and profitability. It is always recomputed, never trusted as
// ground truth; the persisted value exists for audit and display only.
type Tier string

const (
	TierThriving   Tier = "thriving"
	TierNormal     Tier = "normal"
	TierConserving Tier = "conserving"
	TierCritical   Tier = "critical"
	TierDead       Tier = "dead"
)

// Budget is the process-wide resource envelope for one deployment.
type Budget struct {
	TotalUSD      float64
	SpentUSD      float64
	RealizedUSD   float64 // net realized P&L merged from the ledger
	UnrealizedUSD float64 // informational exposure, never drives the tier
	StartedAt     time.Time
	HorizonDays   int
}

// RemainingUSD is total minus spend plus realized reward credits,
// clamped at zero.
func (b Budget) RemainingUSD() float64 {
	r := b.TotalUSD - b.SpentUSD + b.RealizedUSD
	if r < 0 {
		return 0
	}
	return r
}

// RemainingFraction is remaining budget over total budget.
func (b Budget) RemainingFraction() float64 {
	if b.TotalUSD <= 0 {
		return 0
	}
	return b.RemainingUSD() / b.TotalUSD
}

// ExpiresAt is the horizon expiry timestamp.
func (b Budget) ExpiresAt() time.Time {
	return b.StartedAt.Add(time.Duration(b.HorizonDays) * 24 * time.Hour)
}

// Charge deducts an invocation cost, clamping so remaining never goes
// negative.
func (b *Budget) Charge(costUSD float64) {
	if costUSD <= 0 {
		return
	}
	b.SpentUSD += costUSD
	if b.RemainingUSD() == 0 {
		// Clamp spend at the point of exhaustion so remaining stays zero
		// instead of drifting further negative.
		b.SpentUSD = b.TotalUSD + b.RealizedUSD
	}
}

// TierTransition is one entry in the audit history of tier changes.
type TierTransition struct {
	From Tier
	To   Tier
	At   time.Time
}

// StrategyOutcome is the per-strategy result of one cycle's invocation.
type StrategyOutcome struct {
	StrategyID string  `json:"strategy_id"`
	CostUSD    float64 `json:"cost_usd"`
	Succeeded  bool    `json:"succeeded"`
	Detail     string  `json:"detail,omitempty"`
}

// CycleRecord is an append-only audit entry for one cycle. It is used
// for diagnostics, never for control decisions.
type CycleRecord struct {
	ID           string            `json:"id"`
	At           time.Time         `json:"at"`
	Tier         Tier              `json:"tier"`
	Epsilon      float64           `json:"epsilon"` // the applied (tier-adjusted) value
	Selected     []string          `json:"selected"`
	Outcomes     []StrategyOutcome `json:"outcomes,omitempty"`
	RemainingUSD float64           `json:"remaining_usd"`
	DryRun       bool              `json:"dry_run,omitempty"`
	Note         string            `json:"note,omitempty"`
}

// AllocatorState is the aggregate persisted by the state store. All
// components receive it as a snapshot taken at cycle start; only the
// cycle orchestrator commits mutations, as a single atomic write.
type AllocatorState struct {
	SchemaVersion   int
	Budget          Budget
	Epsilon         float64 // current post-decay value
	CycleCount      int
	Tier            Tier
	LastRewardFetch time.Time // zero = never fetched
	Strategies      map[string]*Strategy
	TierHistory     []TierTransition // most recent transitions
}

// PoolSize is the number of strategies eligible for selection this cycle.
func (st *AllocatorState) PoolSize() int {
	n := 0
	for _, s := range st.Strategies {
		if s.Managed {
			n++
		}
	}
	return n
}
