// Package bandit implements the epsilon-greedy selection policy with
// forced exploration of unplayed arms. Selection is deterministic given
// a supplied random source, so cycles can be replayed in tests.
package bandit

import (
	"math/rand"
	"sort"
)

// Arm is the per-strategy view the policy selects over.
type Arm struct {
	ID        string
	PlayCount int
	AvgReward float64 // meaningful only when PlayCount > 0
	Rank      int     // discovery order, stable tie-break for unplayed arms
}

// Select returns up to maxCount arm IDs, in selection order.
//
// Unplayed arms always take priority, chosen in discovery order; they
// outrank any played arm by definition rather than by an infinite
// reward sentinel. Remaining slots are filled one draw at a time:
// a uniform draw below epsilon explores uniformly at random among the
// eligible played arms, otherwise the policy exploits the played arm
// with the highest average reward (ties: lowest play count, then ID).
// An arm selected once is ineligible for later slots in the same cycle.
func Select(arms []Arm, epsilon float64, maxCount int, rng *rand.Rand) []string {
	if maxCount <= 0 || len(arms) == 0 {
		return nil
	}

	ordered := make([]Arm, len(arms))
	copy(ordered, arms)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	var selected []string
	chosen := make(map[string]bool)

	for _, a := range ordered {
		if len(selected) == maxCount {
			return selected
		}
		if a.PlayCount == 0 {
			selected = append(selected, a.ID)
			chosen[a.ID] = true
		}
	}

	eligible := make([]Arm, 0, len(ordered))
	for _, a := range ordered {
		if a.PlayCount > 0 && !chosen[a.ID] {
			eligible = append(eligible, a)
		}
	}

	for len(selected) < maxCount && len(eligible) > 0 {
		var pick int
		if rng.Float64() < epsilon {
			pick = rng.Intn(len(eligible))
		} else {
			pick = exploitIndex(eligible)
		}
		selected = append(selected, eligible[pick].ID)
		eligible = append(eligible[:pick], eligible[pick+1:]...)
	}

	return selected
}

// exploitIndex returns the index of the arm with the strictly highest
// average reward, breaking ties by lowest play count then by ID.
func exploitIndex(eligible []Arm) int {
	best := 0
	for i := 1; i < len(eligible); i++ {
		if better(eligible[i], eligible[best]) {
			best = i
		}
	}
	return best
}

func better(a, b Arm) bool {
	if a.AvgReward != b.AvgReward {
		return a.AvgReward > b.AvgReward
	}
	if a.PlayCount != b.PlayCount {
		return a.PlayCount < b.PlayCount
	}
	return a.ID < b.ID
}

// Decay returns the next stored epsilon: max(min, current*rate).
// Applied once per cycle regardless of tier; tier multipliers scale the
// applied value only.
func Decay(current, rate, min float64) float64 {
	next := current * rate
	if next < min {
		return min
	}
	return next
}
