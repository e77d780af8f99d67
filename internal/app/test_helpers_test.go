package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/automaton/internal/config"
	"github.com/example/automaton/internal/models"
	"github.com/example/automaton/internal/ports/secondary"
)

// mockStateRepo is an in-memory StateRepository for service tests.
type mockStateRepo struct {
	st          *models.AllocatorState
	records     []models.CycleRecord
	transitions []models.TierTransition
	commits     int
	resets      int

	loadErr   error
	commitErr error
	lockBusy  bool
	lockedBy  string
}

func (m *mockStateRepo) Load(ctx context.Context) (*models.AllocatorState, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.st, nil
}

func (m *mockStateRepo) Init(ctx context.Context, st *models.AllocatorState) error {
	m.st = st
	return nil
}

func (m *mockStateRepo) Commit(ctx context.Context, set secondary.CommitSet) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.commits++
	m.st = set.State
	if set.Record != nil {
		m.records = append([]models.CycleRecord{*set.Record}, m.records...)
	}
	if set.Transition != nil {
		m.transitions = append(m.transitions, *set.Transition)
	}
	return nil
}

func (m *mockStateRepo) ListCycleRecords(ctx context.Context, limit int) ([]models.CycleRecord, error) {
	if limit > len(m.records) {
		limit = len(m.records)
	}
	return m.records[:limit], nil
}

func (m *mockStateRepo) Reset(ctx context.Context) error {
	m.resets++
	m.st = nil
	m.records = nil
	m.transitions = nil
	return nil
}

func (m *mockStateRepo) AcquireCycleLock(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	if m.lockBusy {
		return false, nil
	}
	m.lockedBy = holder
	return true, nil
}

func (m *mockStateRepo) ReleaseCycleLock(ctx context.Context, holder string) error {
	if m.lockedBy == holder {
		m.lockedBy = ""
	}
	return nil
}

// mockRegistry returns a fixed discovery result.
type mockRegistry struct {
	manifests []secondary.StrategyManifest
	warnings  []string
	err       error
}

func (m *mockRegistry) Discover(ctx context.Context) ([]secondary.StrategyManifest, []string, error) {
	return m.manifests, m.warnings, m.err
}

// mockInvoker returns scripted results per strategy and records calls.
type mockInvoker struct {
	mu      sync.Mutex
	results map[string]secondary.InvocationResult
	invoked []string
	modes   []secondary.InvokeMode
}

func (m *mockInvoker) Invoke(ctx context.Context, man secondary.StrategyManifest, mode secondary.InvokeMode, quiet bool) secondary.InvocationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoked = append(m.invoked, man.ID)
	m.modes = append(m.modes, mode)
	if res, ok := m.results[man.ID]; ok {
		return res
	}
	return secondary.InvocationResult{Succeeded: true}
}

// mockRewards is a scripted RewardFetcher recording fetch windows.
type mockRewards struct {
	rewards  map[string]float64
	exposure float64
	err      error
	fetches  []time.Time
	untils   []time.Time
}

func (m *mockRewards) FetchRewards(ctx context.Context, since, until time.Time) (map[string]float64, error) {
	m.fetches = append(m.fetches, since)
	m.untils = append(m.untils, until)
	if m.err != nil {
		return nil, m.err
	}
	return m.rewards, nil
}

func (m *mockRewards) Exposure(ctx context.Context) (float64, error) {
	return m.exposure, nil
}

// mockLedger is a scripted TradeLedger for reward aggregation tests.
type mockLedger struct {
	activity map[string][]secondary.TradeActivity // per venue
	errs     map[string]error
	exposure float64
}

func (m *mockLedger) ListActivity(ctx context.Context, venue string, since, until time.Time, limit int) ([]secondary.TradeActivity, error) {
	if err := m.errs[venue]; err != nil {
		return nil, err
	}
	// Honor the window contract the way the real client does.
	var out []secondary.TradeActivity
	for _, a := range m.activity[venue] {
		if !since.IsZero() && a.At.Before(since) {
			continue
		}
		if !until.IsZero() && !a.At.Before(until) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *mockLedger) PortfolioExposure(ctx context.Context) (float64, error) {
	return m.exposure, nil
}

func testLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.BudgetUSD = 50
	cfg.HorizonDays = 30
	cfg.MaxConcurrent = 2
	return cfg
}

// newTestService wires an orchestrator over mocks with a fixed clock and
// a seeded random source.
func newTestService(repo *mockStateRepo, reg *mockRegistry, inv *mockInvoker, rw RewardFetcher, cfg *config.Config) *AllocatorServiceImpl {
	svc := NewAllocatorService(repo, reg, inv, rw, nil, cfg, testLog())
	svc.SetRand(rand.New(rand.NewSource(1)))
	svc.SetClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	return svc
}

func manifest(id string) secondary.StrategyManifest {
	return secondary.StrategyManifest{
		ID:         id,
		SourceTag:  "sdk:" + id,
		Entrypoint: "main.py",
		Dir:        "/skills/" + id,
	}
}

// activeState returns an initialized state mid-deployment with the given
// strategies already synced.
func activeState(strategies ...*models.Strategy) *models.AllocatorState {
	st := &models.AllocatorState{
		SchemaVersion: models.SchemaVersion,
		Budget: models.Budget{
			TotalUSD:    50,
			StartedAt:   time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
			HorizonDays: 30,
		},
		Epsilon:    0.2,
		CycleCount: 5,
		Tier:       models.TierNormal,
		Strategies: make(map[string]*models.Strategy),
	}
	for _, s := range strategies {
		st.Strategies[s.ID] = s
	}
	return st
}
