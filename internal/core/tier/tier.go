// Package tier contains the pure survival tier logic. Tier computation
// has no side effects and no I/O; the orchestrator feeds it a snapshot
// and acts on the result.
package tier

import (
	"time"

	"github.com/example/automaton/internal/models"
)

// Params are the allocator parameters a tier maps to.
type Params struct {
	// MaxArms is the most strategies the bandit may select this cycle.
	MaxArms int
	// EpsilonMultiplier scales the applied exploration rate for this
	// cycle only; it never alters the stored decayed epsilon.
	EpsilonMultiplier float64
}

// Compute derives the survival tier from the budget snapshot.
// Rules, first match wins:
//   - now at or past expiry, or remaining <= 0  -> dead (checked first)
//   - remaining fraction > 0.70 and realized profit > 0 -> thriving
//   - remaining fraction >= 0.30 -> normal
//   - remaining fraction >= 0.10 -> conserving
//   - otherwise -> critical
func Compute(b models.Budget, now time.Time) models.Tier {
	frac := b.RemainingFraction()
	if frac <= 0 || !now.Before(b.ExpiresAt()) {
		return models.TierDead
	}
	switch {
	case frac > 0.70 && b.RealizedUSD > 0:
		return models.TierThriving
	case frac >= 0.30:
		return models.TierNormal
	case frac >= 0.10:
		return models.TierConserving
	default:
		return models.TierCritical
	}
}

// ParamsFor maps a tier to its allocator parameters. Thriving and normal
// are unbounded (the full pool); conserving and critical allow a single
// strategy, with exploration halved and disabled respectively. Dead
// selects nothing.
func ParamsFor(t models.Tier, poolSize int) Params {
	switch t {
	case models.TierThriving, models.TierNormal:
		return Params{MaxArms: poolSize, EpsilonMultiplier: 1.0}
	case models.TierConserving:
		return Params{MaxArms: 1, EpsilonMultiplier: 0.5}
	case models.TierCritical:
		return Params{MaxArms: 1, EpsilonMultiplier: 0.0}
	default: // dead
		return Params{MaxArms: 0, EpsilonMultiplier: 0.0}
	}
}
