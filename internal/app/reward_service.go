package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/automaton/internal/ports/secondary"
)

// defaultVenues are the integrated venues rewards aggregate across.
var defaultVenues = []string{"polymarket", "kalshi"}

// ledgerQueryLimit bounds one venue query.
const ledgerQueryLimit = 200

// RewardFetcher is the orchestrator's view of reward aggregation.
type RewardFetcher interface {
	// FetchRewards returns net realized P&L per source tag inside the
	// half-open window [since, until). No activity for a tag means no
	// entry, not an error.
	FetchRewards(ctx context.Context, since, until time.Time) (map[string]float64, error)

	// Exposure returns current total open exposure in USD.
	Exposure(ctx context.Context) (float64, error)
}

// RewardService aggregates the external trade ledger into per-tag reward
// signals. It is the only reward source: the allocator never infers P&L
// from local bookkeeping, so an arm's self-reported outcome can never
// double-count against the authoritative ledger.
type RewardService struct {
	ledger secondary.TradeLedger
	venues []string
	log    *logrus.Logger
}

// NewRewardService creates a reward aggregator over the given ledger.
func NewRewardService(ledger secondary.TradeLedger, log *logrus.Logger) *RewardService {
	if log == nil {
		log = logrus.New()
	}
	return &RewardService{ledger: ledger, venues: defaultVenues, log: log}
}

// FetchRewards queries every venue and computes, per source tag,
// (sum of sell proceeds) - (sum of buy cost) over [since, until). The
// upper bound is the caller's next watermark; a trade settling after it
// waits for the next window, so consecutive merges never overlap. Any
// venue failure fails the whole fetch so the caller's watermark does not
// advance past unseen trades; the caller skips this cycle's merge and
// retries next cycle with prior statistics intact.
func (s *RewardService) FetchRewards(ctx context.Context, since, until time.Time) (map[string]float64, error) {
	rewards := make(map[string]float64)
	for _, venue := range s.venues {
		activity, err := s.ledger.ListActivity(ctx, venue, since, until, ledgerQueryLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s activity: %w", venue, err)
		}
		for _, a := range activity {
			// The adapter already windows; enforce again here so a loose
			// ledger implementation cannot double-count across cycles.
			if !since.IsZero() && a.At.Before(since) {
				continue
			}
			if !until.IsZero() && !a.At.Before(until) {
				continue
			}
			switch a.Side {
			case secondary.SideSell:
				rewards[a.SourceTag] += a.AmountUSD
			case secondary.SideBuy:
				rewards[a.SourceTag] -= a.AmountUSD
			}
		}
		s.log.WithFields(logrus.Fields{"venue": venue, "entries": len(activity)}).Debug("ledger activity fetched")
	}
	return rewards, nil
}

// Exposure returns the portfolio's total open exposure.
func (s *RewardService) Exposure(ctx context.Context) (float64, error) {
	return s.ledger.PortfolioExposure(ctx)
}

// Ensure RewardService implements the interface
var _ RewardFetcher = (*RewardService)(nil)
