package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/example/automaton/internal/config"
	"github.com/example/automaton/internal/core/tier"
	"github.com/example/automaton/internal/models"
	"github.com/example/automaton/internal/ports/primary"
	"github.com/example/automaton/internal/ports/secondary"
)

// ControlServiceImpl serves the operational surface from state snapshots.
// It never takes the cycle lock and never mutates allocator state, so
// inspection is always safe while a cycle runs.
type ControlServiceImpl struct {
	stateRepo secondary.StateRepository
	cfgDir    string
	now       func() time.Time
}

// NewControlService creates the control service. cfgDir is where SetParam
// persists configuration changes.
func NewControlService(stateRepo secondary.StateRepository, cfgDir string) *ControlServiceImpl {
	return &ControlServiceImpl{stateRepo: stateRepo, cfgDir: cfgDir, now: time.Now}
}

// SetClock replaces the time source.
func (s *ControlServiceImpl) SetClock(now func() time.Time) { s.now = now }

// Status reports the current survival summary. The tier is recomputed
// from the budget snapshot rather than read back, so status reflects
// expiry even between cycles.
func (s *ControlServiceImpl) Status(ctx context.Context) (*primary.StatusReport, error) {
	st, err := s.stateRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocator state: %w", err)
	}
	if st == nil {
		return &primary.StatusReport{}, nil
	}

	now := s.now().UTC()
	daysLeft := st.Budget.ExpiresAt().Sub(now).Hours() / 24
	if daysLeft < 0 {
		daysLeft = 0
	}

	return &primary.StatusReport{
		Initialized:   true,
		Tier:          tier.Compute(st.Budget, now),
		BudgetUSD:     st.Budget.TotalUSD,
		SpentUSD:      st.Budget.SpentUSD,
		RealizedUSD:   st.Budget.RealizedUSD,
		UnrealizedUSD: st.Budget.UnrealizedUSD,
		RemainingUSD:  st.Budget.RemainingUSD(),
		RemainingPct:  st.Budget.RemainingFraction() * 100,
		HorizonDays:   st.Budget.HorizonDays,
		DaysLeft:      daysLeft,
		CycleCount:    st.CycleCount,
		Epsilon:       st.Epsilon,
		ActiveCount:   st.PoolSize(),
		TotalCount:    len(st.Strategies),
		TierHistory:   st.TierHistory,
	}, nil
}

// Strategies reports per-strategy statistics sorted by cumulative reward
// descending, then ID.
func (s *ControlServiceImpl) Strategies(ctx context.Context) ([]primary.StrategyReport, error) {
	st, err := s.stateRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocator state: %w", err)
	}
	if st == nil {
		return nil, nil
	}

	reports := make([]primary.StrategyReport, 0, len(st.Strategies))
	for _, strat := range st.Strategies {
		avg, played := strat.AverageReward()
		var winPct float64
		if strat.PlayCount > 0 {
			winPct = float64(strat.WinCount) / float64(strat.PlayCount) * 100
		}
		reports = append(reports, primary.StrategyReport{
			ID:          strat.ID,
			SourceTag:   strat.SourceTag,
			RewardUSD:   strat.RewardUSD,
			PlayCount:   strat.PlayCount,
			WinCount:    strat.WinCount,
			WinPct:      winPct,
			AvgReward:   avg,
			Played:      played,
			Active:      strat.Managed,
			LastInvoked: strat.LastInvoked,
		})
	}
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].RewardUSD != reports[j].RewardUSD {
			return reports[i].RewardUSD > reports[j].RewardUSD
		}
		return reports[i].ID < reports[j].ID
	})
	return reports, nil
}

// RecentCycles returns the latest cycle records, newest first.
func (s *ControlServiceImpl) RecentCycles(ctx context.Context, limit int) ([]models.CycleRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	records, err := s.stateRepo.ListCycleRecords(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle records: %w", err)
	}
	return records, nil
}

// SetParam validates and persists one configuration parameter. Budget
// and horizon changes affect the live envelope only through the next
// cycle's overrides; everything else takes effect immediately.
func (s *ControlServiceImpl) SetParam(ctx context.Context, key, value string) error {
	cfg, err := config.LoadFrom(s.cfgDir)
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	return config.Save(s.cfgDir, cfg)
}

// Reset clears all allocator state. Irreversible; the caller is
// responsible for confirmation.
func (s *ControlServiceImpl) Reset(ctx context.Context) error {
	if err := s.stateRepo.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset allocator state: %w", err)
	}
	return nil
}

// Ensure ControlServiceImpl implements the interface
var _ primary.ControlService = (*ControlServiceImpl)(nil)
