package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/example/automaton/internal/config"
	"github.com/example/automaton/internal/core/bandit"
	"github.com/example/automaton/internal/core/tier"
	"github.com/example/automaton/internal/models"
	"github.com/example/automaton/internal/ports/primary"
	"github.com/example/automaton/internal/ports/secondary"
)

// ErrCycleInProgress means another holder owns the cycle lease. The
// caller exits without side effects and retries on its next tick.
var ErrCycleInProgress = errors.New("another cycle is already in progress")

// lockMargin pads the cycle lease beyond the invocation timeout so a
// slow but live cycle is not reclaimed out from under its holder.
const lockMargin = time.Minute

// AllocatorServiceImpl is the cycle orchestrator. One RunCycle call runs
// at most one cycle end to end: lock, load, tier, rewards, select,
// invoke, merge, commit.
type AllocatorServiceImpl struct {
	stateRepo secondary.StateRepository
	registry  secondary.StrategyRegistry
	invoker   secondary.StrategyInvoker
	rewards   RewardFetcher // nil when no ledger credential is configured
	audit     secondary.CycleAuditWriter
	cfg       *config.Config
	log       *logrus.Logger

	holder string
	rng    *rand.Rand
	now    func() time.Time
}

// NewAllocatorService creates the cycle orchestrator. A nil rewards
// fetcher disables live cycles until a ledger credential is configured.
func NewAllocatorService(
	stateRepo secondary.StateRepository,
	registry secondary.StrategyRegistry,
	invoker secondary.StrategyInvoker,
	rewards RewardFetcher,
	audit secondary.CycleAuditWriter,
	cfg *config.Config,
	log *logrus.Logger,
) *AllocatorServiceImpl {
	if log == nil {
		log = logrus.New()
	}
	host, _ := os.Hostname()
	return &AllocatorServiceImpl{
		stateRepo: stateRepo,
		registry:  registry,
		invoker:   invoker,
		rewards:   rewards,
		audit:     audit,
		cfg:       cfg,
		log:       log,
		holder:    fmt.Sprintf("%s-%s", host, uuid.New().String()[:8]),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// SetRand replaces the selection random source. Tests use this to make
// cycles replayable.
func (s *AllocatorServiceImpl) SetRand(rng *rand.Rand) { s.rng = rng }

// SetClock replaces the time source.
func (s *AllocatorServiceImpl) SetClock(now func() time.Time) { s.now = now }

// RunCycle runs one allocation cycle. Dry runs invoke strategies in
// non-effecting mode and skip the ledger, but otherwise mutate state
// exactly like live cycles so rehearsals exercise the real path.
func (s *AllocatorServiceImpl) RunCycle(ctx context.Context, req primary.RunCycleRequest) (*primary.RunCycleResponse, error) {
	if req.Live && s.rewards == nil {
		return nil, fmt.Errorf("configuration error: %s is not set; live cycles need ledger access", config.EnvAPIKey)
	}

	ttl := time.Duration(s.cfg.InvokeTimeoutSec)*time.Second + lockMargin
	ok, err := s.stateRepo.AcquireCycleLock(ctx, s.holder, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !ok {
		return nil, ErrCycleInProgress
	}
	defer func() {
		if err := s.stateRepo.ReleaseCycleLock(ctx, s.holder); err != nil {
			s.log.WithError(err).Warn("failed to release cycle lock")
		}
	}()

	now := s.now().UTC()
	resp := &primary.RunCycleResponse{}

	st, err := s.stateRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocator state: %w", err)
	}
	if st == nil {
		st, err = s.initialize(ctx, req, now)
		if err != nil {
			return nil, err
		}
		resp.Initialized = true
		s.log.WithFields(logrus.Fields{
			"budget_usd":   st.Budget.TotalUSD,
			"horizon_days": st.Budget.HorizonDays,
		}).Info("allocator initialized")
	} else {
		// Operator overrides apply to the live envelope, not just new
		// deployments.
		if req.BudgetUSD != nil {
			st.Budget.TotalUSD = *req.BudgetUSD
		}
		if req.HorizonDays != nil {
			st.Budget.HorizonDays = *req.HorizonDays
		}
	}

	currentTier := tier.Compute(st.Budget, now)
	var transition *models.TierTransition
	if currentTier != st.Tier {
		transition = &models.TierTransition{From: st.Tier, To: currentTier, At: now}
		st.TierHistory = append(st.TierHistory, *transition)
		s.log.WithFields(logrus.Fields{"from": st.Tier, "to": currentTier}).Info("tier transition")
	}
	st.Tier = currentTier
	resp.Tier = currentTier
	resp.Transition = transition

	if currentTier == models.TierDead {
		return s.haltDead(ctx, st, transition, now, resp)
	}

	warnings := s.syncStrategies(ctx, st)
	resp.Warnings = warnings

	if req.Live {
		if warn := s.mergeRewards(ctx, st, now); warn != "" {
			resp.Warnings = append(resp.Warnings, warn)
		}
	}

	params := tier.ParamsFor(currentTier, st.PoolSize())
	maxArms := params.MaxArms
	if s.cfg.MaxConcurrent > 0 && maxArms > s.cfg.MaxConcurrent {
		maxArms = s.cfg.MaxConcurrent
	}
	applied := st.Epsilon * params.EpsilonMultiplier

	selected := bandit.Select(s.armsOf(st), applied, maxArms, s.rng)
	outcomes := s.invokeAll(ctx, st, selected, req)

	var totalCost float64
	for _, out := range outcomes {
		strat := st.Strategies[out.StrategyID]
		strat.PlayCount++
		strat.LastInvoked = now
		totalCost += out.CostUSD
	}
	st.Budget.Charge(totalCost)

	st.Epsilon = bandit.Decay(st.Epsilon, s.cfg.EpsilonDecay, s.cfg.MinEpsilon)
	st.CycleCount++

	rec := &models.CycleRecord{
		ID:           uuid.New().String(),
		At:           now,
		Tier:         currentTier,
		Epsilon:      applied,
		Selected:     append([]string{}, selected...),
		Outcomes:     outcomes,
		RemainingUSD: st.Budget.RemainingUSD(),
		DryRun:       !req.Live,
	}
	if err := s.stateRepo.Commit(ctx, secondary.CommitSet{State: st, Record: rec, Transition: transition}); err != nil {
		return nil, fmt.Errorf("failed to commit cycle: %w", err)
	}
	s.appendAudit(*rec)

	resp.Epsilon = applied
	resp.Selected = selected
	resp.Outcomes = outcomes
	resp.RemainingUSD = st.Budget.RemainingUSD()
	resp.CycleCount = st.CycleCount

	s.log.WithFields(logrus.Fields{
		"cycle":         st.CycleCount,
		"tier":          currentTier,
		"selected":      len(selected),
		"cost_usd":      totalCost,
		"remaining_usd": resp.RemainingUSD,
		"dry_run":       !req.Live,
	}).Info("cycle complete")

	return resp, nil
}

// initialize creates fresh state on first deployment, from CLI overrides
// when given, else from configuration.
func (s *AllocatorServiceImpl) initialize(ctx context.Context, req primary.RunCycleRequest, now time.Time) (*models.AllocatorState, error) {
	budget := s.cfg.BudgetUSD
	if req.BudgetUSD != nil {
		budget = *req.BudgetUSD
	}
	horizon := s.cfg.HorizonDays
	if req.HorizonDays != nil {
		horizon = *req.HorizonDays
	}
	if budget <= 0 || horizon <= 0 {
		return nil, fmt.Errorf("configuration error: budget (%v) and horizon (%d) must be positive for first deployment", budget, horizon)
	}

	st := &models.AllocatorState{
		SchemaVersion: models.SchemaVersion,
		Budget: models.Budget{
			TotalUSD:    budget,
			StartedAt:   now,
			HorizonDays: horizon,
		},
		Epsilon:    s.cfg.Epsilon,
		Tier:       models.TierNormal,
		Strategies: make(map[string]*models.Strategy),
	}
	if err := s.stateRepo.Init(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to initialize allocator state: %w", err)
	}
	return st, nil
}

// haltDead records a terminal no-op cycle. Statistics stay frozen; only
// the tier note and transition are written.
func (s *AllocatorServiceImpl) haltDead(ctx context.Context, st *models.AllocatorState, transition *models.TierTransition, now time.Time, resp *primary.RunCycleResponse) (*primary.RunCycleResponse, error) {
	note := "budget exhausted"
	if !now.Before(st.Budget.ExpiresAt()) {
		note = "horizon expired"
	}
	rec := &models.CycleRecord{
		ID:           uuid.New().String(),
		At:           now,
		Tier:         models.TierDead,
		Selected:     []string{},
		RemainingUSD: st.Budget.RemainingUSD(),
		Note:         note,
	}
	if err := s.stateRepo.Commit(ctx, secondary.CommitSet{State: st, Record: rec, Transition: transition}); err != nil {
		return nil, fmt.Errorf("failed to commit terminal cycle: %w", err)
	}
	s.appendAudit(*rec)

	resp.Halted = true
	resp.Note = note
	resp.RemainingUSD = st.Budget.RemainingUSD()
	resp.CycleCount = st.CycleCount
	s.log.WithField("note", note).Warn("allocator is dead; reset required to resume")
	return resp, nil
}

// syncStrategies reconciles persisted strategies with the current scan.
// New strategies join with zero statistics; strategies missing from the
// scan keep their statistics but leave the selection pool.
func (s *AllocatorServiceImpl) syncStrategies(ctx context.Context, st *models.AllocatorState) []string {
	manifests, warnings, err := s.registry.Discover(ctx)
	if err != nil {
		// A transient scan failure must not retire the whole pool.
		s.log.WithError(err).Warn("strategy discovery failed; pool unchanged this cycle")
		return append(warnings, fmt.Sprintf("discovery failed: %v", err))
	}

	for _, strat := range st.Strategies {
		strat.Managed = false
	}
	for i, m := range manifests {
		strat, exists := st.Strategies[m.ID]
		if !exists {
			strat = &models.Strategy{ID: m.ID}
			st.Strategies[m.ID] = strat
			s.log.WithField("strategy", m.ID).Info("new strategy discovered")
		}
		strat.SourceTag = m.SourceTag
		strat.Entrypoint = m.Entrypoint
		strat.Dir = m.Dir
		strat.Managed = true
		strat.Rank = i
	}
	for _, w := range warnings {
		s.log.Warn(w)
	}
	return warnings
}

// mergeRewards folds ledger activity in [watermark, now) into strategy
// and budget statistics, then advances the watermark to now. The upper
// bound matters: a trade settling between cycle start and the fetch
// stays out of this window and is merged exactly once, next cycle.
// Failures are soft: the merge is skipped whole, the watermark does not
// move, and the trades surface next cycle.
func (s *AllocatorServiceImpl) mergeRewards(ctx context.Context, st *models.AllocatorState, now time.Time) string {
	rewards, err := s.rewards.FetchRewards(ctx, st.LastRewardFetch, now)
	if err != nil {
		s.log.WithError(err).Warn("ledger unreachable; skipping reward merge")
		return fmt.Sprintf("reward merge skipped: %v", err)
	}

	byTag := make(map[string]*models.Strategy, len(st.Strategies))
	for _, strat := range st.Strategies {
		byTag[strat.SourceTag] = strat
	}

	var total float64
	for tag, delta := range rewards {
		total += delta
		strat := byTag[tag]
		if strat == nil {
			// Unattributed activity still moves the budget; it just earns
			// no strategy credit.
			s.log.WithFields(logrus.Fields{"tag": tag, "delta_usd": delta}).Debug("reward for unknown source tag")
			continue
		}
		strat.RewardUSD += delta
		if delta > 0 {
			strat.WinCount++
		}
	}
	st.Budget.RealizedUSD += total
	st.LastRewardFetch = now

	if exposure, err := s.rewards.Exposure(ctx); err == nil {
		st.Budget.UnrealizedUSD = exposure
	} else {
		s.log.WithError(err).Debug("portfolio exposure unavailable")
	}

	if total != 0 {
		s.log.WithField("realized_usd", total).Info("rewards merged")
	}
	return ""
}

// armsOf projects the managed strategies into bandit arms.
func (s *AllocatorServiceImpl) armsOf(st *models.AllocatorState) []bandit.Arm {
	arms := make([]bandit.Arm, 0, len(st.Strategies))
	for _, strat := range st.Strategies {
		if !strat.Managed {
			continue
		}
		avg, _ := strat.AverageReward()
		arms = append(arms, bandit.Arm{
			ID:        strat.ID,
			PlayCount: strat.PlayCount,
			AvgReward: avg,
			Rank:      strat.Rank,
		})
	}
	sort.Slice(arms, func(i, j int) bool { return arms[i].Rank < arms[j].Rank })
	return arms
}

// invokeAll runs the selected strategies concurrently and collects their
// outcomes in selection order. Individual failures never abort siblings.
func (s *AllocatorServiceImpl) invokeAll(ctx context.Context, st *models.AllocatorState, selected []string, req primary.RunCycleRequest) []models.StrategyOutcome {
	if len(selected) == 0 {
		return nil
	}
	mode := secondary.ModeDryRun
	if req.Live {
		mode = secondary.ModeLive
	}

	outcomes := make([]models.StrategyOutcome, len(selected))
	var wg sync.WaitGroup
	for i, id := range selected {
		strat := st.Strategies[id]
		m := secondary.StrategyManifest{
			ID:         strat.ID,
			SourceTag:  strat.SourceTag,
			Entrypoint: strat.Entrypoint,
			Dir:        strat.Dir,
		}
		wg.Add(1)
		go func(i int, m secondary.StrategyManifest) {
			defer wg.Done()
			res := s.invoker.Invoke(ctx, m, mode, req.Quiet)
			outcomes[i] = models.StrategyOutcome{
				StrategyID: m.ID,
				CostUSD:    res.CostUSD,
				Succeeded:  res.Succeeded,
				Detail:     res.Detail,
			}
		}(i, m)
	}
	wg.Wait()
	return outcomes
}

func (s *AllocatorServiceImpl) appendAudit(rec models.CycleRecord) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(rec); err != nil {
		s.log.WithError(err).Warn("failed to append cycle audit record")
	}
}

// Ensure AllocatorServiceImpl implements the interface
var _ primary.AllocatorService = (*AllocatorServiceImpl)(nil)
