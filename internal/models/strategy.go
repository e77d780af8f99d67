// Package models contains the domain entities shared across layers.
package models

import "time"

// Strategy is a selectable trading strategy tracked by the allocator.
// The ID is the strategy's directory name and is the stable state key;
// statistics are only ever appended to, never reset, except by a full reset.
type Strategy struct {
	ID          string
	SourceTag   string
	Entrypoint  string
	Dir         string
	Managed     bool // discovered in the current scan; retired strategies keep stats but leave the pool
	PlayCount   int
	RewardUSD   float64 // cumulative net reward attributed to the source tag
	WinCount    int     // cycles where the merged reward delta was positive
	LastInvoked time.Time
	Rank        int // position in the current discovery order, stable tie-break
}

// AverageReward returns the per-play average reward. The second return is
// false when the strategy has never been played; callers must treat an
// unplayed strategy as outranking any played one rather than using a
// numeric sentinel.
func (s *Strategy) AverageReward() (float64, bool) {
	if s.PlayCount == 0 {
		return 0, false
	}
	return s.RewardUSD / float64(s.PlayCount), true
}
