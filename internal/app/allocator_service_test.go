package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/example/automaton/internal/models"
	"github.com/example/automaton/internal/ports/primary"
	"github.com/example/automaton/internal/ports/secondary"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestFirstDeploymentInitializesAndPlaysEveryone(t *testing.T) {
	repo := &mockStateRepo{}
	reg := &mockRegistry{manifests: []secondary.StrategyManifest{manifest("alpha"), manifest("bravo")}}
	inv := &mockInvoker{results: map[string]secondary.InvocationResult{
		"alpha": {CostUSD: 1.5, Succeeded: true},
		"bravo": {CostUSD: 2.0, Succeeded: true},
	}}
	rw := &mockRewards{rewards: map[string]float64{}}
	svc := newTestService(repo, reg, inv, rw, testConfig())

	resp, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if !resp.Initialized {
		t.Error("expected fresh initialization")
	}
	// Both arms are unplayed, so selection is discovery order regardless
	// of epsilon.
	if len(resp.Selected) != 2 || resp.Selected[0] != "alpha" || resp.Selected[1] != "bravo" {
		t.Errorf("expected [alpha bravo], got %v", resp.Selected)
	}
	if resp.CycleCount != 1 {
		t.Errorf("expected cycle count 1, got %d", resp.CycleCount)
	}
	if got := repo.st.Budget.SpentUSD; got != 3.5 {
		t.Errorf("expected spent 3.5, got %v", got)
	}
	if got := repo.st.Epsilon; got != 0.2*0.995 {
		t.Errorf("expected decayed epsilon %v, got %v", 0.2*0.995, got)
	}
	if repo.commits != 1 {
		t.Errorf("expected exactly one commit, got %d", repo.commits)
	}
	if len(rw.fetches) != 1 || !rw.fetches[0].IsZero() {
		t.Errorf("first fetch should use the zero watermark, got %v", rw.fetches)
	}
}

func TestFirstDeploymentWithoutBudgetFails(t *testing.T) {
	cfg := testConfig()
	cfg.BudgetUSD = 0
	repo := &mockStateRepo{}
	svc := newTestService(repo, &mockRegistry{}, &mockInvoker{}, &mockRewards{}, cfg)

	_, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if err == nil || !strings.Contains(err.Error(), "configuration error") {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if repo.commits != 0 {
		t.Errorf("no commit on config error, got %d", repo.commits)
	}
}

func TestLiveCycleWithoutCredentialFails(t *testing.T) {
	repo := &mockStateRepo{}
	svc := newTestService(repo, &mockRegistry{}, &mockInvoker{}, nil, testConfig())

	_, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if err == nil || !strings.Contains(err.Error(), "SIMMER_API_KEY") {
		t.Fatalf("expected credential error, got %v", err)
	}
}

func TestBusyLockIsNoOp(t *testing.T) {
	repo := &mockStateRepo{lockBusy: true, st: activeState()}
	inv := &mockInvoker{}
	svc := newTestService(repo, &mockRegistry{}, inv, &mockRewards{}, testConfig())

	_, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", err)
	}
	if repo.commits != 0 || len(inv.invoked) != 0 {
		t.Error("busy lock must produce no side effects")
	}
}

func TestCorruptStateHaltsWithoutReinit(t *testing.T) {
	repo := &mockStateRepo{loadErr: fmt.Errorf("schema version 9: %w", secondary.ErrStateCorrupt)}
	svc := newTestService(repo, &mockRegistry{}, &mockInvoker{}, &mockRewards{}, testConfig())

	_, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if !errors.Is(err, secondary.ErrStateCorrupt) {
		t.Fatalf("expected corrupt state error, got %v", err)
	}
	if repo.commits != 0 {
		t.Error("corrupt state must never be overwritten")
	}
}

func TestExhaustedBudgetIsDead(t *testing.T) {
	st := activeState(&models.Strategy{ID: "alpha", Managed: true, PlayCount: 3})
	st.Budget.SpentUSD = 50
	repo := &mockStateRepo{st: st}
	inv := &mockInvoker{}
	svc := newTestService(repo, &mockRegistry{}, inv, &mockRewards{}, testConfig())

	resp, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if !resp.Halted || resp.Tier != models.TierDead {
		t.Fatalf("expected halted dead cycle, got %+v", resp)
	}
	if resp.Note != "budget exhausted" {
		t.Errorf("unexpected note %q", resp.Note)
	}
	if len(inv.invoked) != 0 {
		t.Error("dead allocator must not invoke strategies")
	}
	if repo.st.CycleCount != 5 {
		t.Errorf("dead cycle must not advance the counter, got %d", repo.st.CycleCount)
	}
	if len(repo.transitions) != 1 || repo.transitions[0].To != models.TierDead {
		t.Errorf("expected a transition to dead, got %v", repo.transitions)
	}
	if len(repo.records) != 1 || repo.records[0].Tier != models.TierDead {
		t.Errorf("expected a terminal cycle record, got %v", repo.records)
	}
}

func TestExpiredHorizonIsDead(t *testing.T) {
	st := activeState()
	st.Budget.StartedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockStateRepo{st: st}
	svc := newTestService(repo, &mockRegistry{}, &mockInvoker{}, &mockRewards{}, testConfig())

	resp, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if !resp.Halted || resp.Note != "horizon expired" {
		t.Fatalf("expected horizon expiry halt, got %+v", resp)
	}
}

func TestDeadStaysDeadAcrossCycles(t *testing.T) {
	st := activeState(&models.Strategy{ID: "alpha", Managed: true, PlayCount: 2, RewardUSD: 4})
	st.Budget.SpentUSD = 50
	repo := &mockStateRepo{st: st}
	svc := newTestService(repo, &mockRegistry{}, &mockInvoker{}, &mockRewards{}, testConfig())

	for i := 0; i < 3; i++ {
		resp, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
		if err != nil {
			t.Fatalf("cycle %d failed: %v", i, err)
		}
		if !resp.Halted {
			t.Fatalf("cycle %d should have halted", i)
		}
	}
	if got := repo.st.Strategies["alpha"].PlayCount; got != 2 {
		t.Errorf("dead cycles must freeze statistics, play count %d", got)
	}
	// Only the first dead cycle transitions; later ones are already dead.
	if len(repo.transitions) != 1 {
		t.Errorf("expected one transition, got %d", len(repo.transitions))
	}
}

func TestFailedArmStillCountsPlayAtZeroCost(t *testing.T) {
	st := activeState(
		&models.Strategy{ID: "alpha", SourceTag: "sdk:alpha", Managed: true, PlayCount: 3, RewardUSD: 6, Rank: 0},
		&models.Strategy{ID: "bravo", SourceTag: "sdk:bravo", Managed: true, PlayCount: 3, RewardUSD: 3, Rank: 1},
	)
	st.Epsilon = 0 // pure exploitation, deterministic
	repo := &mockStateRepo{st: st}
	reg := &mockRegistry{manifests: []secondary.StrategyManifest{manifest("alpha"), manifest("bravo")}}
	inv := &mockInvoker{results: map[string]secondary.InvocationResult{
		"alpha": {Succeeded: false, Detail: "exploded"},
		"bravo": {CostUSD: 1.0, Succeeded: true},
	}}
	svc := newTestService(repo, reg, inv, &mockRewards{}, testConfig())

	resp, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if len(resp.Selected) != 2 {
		t.Fatalf("expected both arms selected, got %v", resp.Selected)
	}
	if got := repo.st.Strategies["alpha"].PlayCount; got != 4 {
		t.Errorf("failed arm still counts a play, got %d", got)
	}
	if got := repo.st.Strategies["bravo"].PlayCount; got != 4 {
		t.Errorf("sibling play must persist, got %d", got)
	}
	if got := repo.st.Budget.SpentUSD; got != 1.0 {
		t.Errorf("failed arm must cost zero, spent %v", got)
	}
	var failed *models.StrategyOutcome
	for i := range resp.Outcomes {
		if resp.Outcomes[i].StrategyID == "alpha" {
			failed = &resp.Outcomes[i]
		}
	}
	if failed == nil || failed.Succeeded || failed.CostUSD != 0 {
		t.Errorf("expected recorded zero-cost failure for alpha, got %+v", failed)
	}
}

func TestDryRunSkipsLedgerButExercisesState(t *testing.T) {
	st := activeState(&models.Strategy{ID: "alpha", SourceTag: "sdk:alpha", Managed: true, Rank: 0})
	repo := &mockStateRepo{st: st}
	reg := &mockRegistry{manifests: []secondary.StrategyManifest{manifest("alpha")}}
	inv := &mockInvoker{}
	rw := &mockRewards{rewards: map[string]float64{"sdk:alpha": 99}}
	svc := newTestService(repo, reg, inv, rw, testConfig())

	resp, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: false})
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	if len(rw.fetches) != 0 {
		t.Error("dry run must not touch the ledger")
	}
	for _, mode := range inv.modes {
		if mode != secondary.ModeDryRun {
			t.Errorf("expected dry-run invocation mode, got %v", mode)
		}
	}
	if resp.CycleCount != 6 {
		t.Errorf("dry run still advances the cycle, got %d", resp.CycleCount)
	}
	if repo.st.Epsilon >= 0.2 {
		t.Errorf("dry run still decays epsilon, got %v", repo.st.Epsilon)
	}
	if len(repo.records) != 1 || !repo.records[0].DryRun {
		t.Errorf("expected a dry-run cycle record, got %v", repo.records)
	}
}

func TestRewardMergeAttributesByTag(t *testing.T) {
	st := activeState(
		&models.Strategy{ID: "alpha", SourceTag: "sdk:alpha", Managed: true, PlayCount: 2, Rank: 0},
		&models.Strategy{ID: "bravo", SourceTag: "sdk:bravo", Managed: true, PlayCount: 2, Rank: 1},
	)
	st.LastRewardFetch = time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	repo := &mockStateRepo{st: st}
	reg := &mockRegistry{manifests: []secondary.StrategyManifest{manifest("alpha"), manifest("bravo")}}
	rw := &mockRewards{
		rewards:  map[string]float64{"sdk:alpha": 5.0, "sdk:bravo": -2.0, "sdk:ghost": -1.0},
		exposure: 7.5,
	}
	svc := newTestService(repo, reg, &mockInvoker{}, rw, testConfig())

	if _, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true}); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if got := rw.fetches[0]; !got.Equal(time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("fetch must start at the prior watermark, got %v", got)
	}
	// The window is capped at cycle start so trades settling mid-fetch
	// fall into the next window instead of being counted twice.
	if got := rw.untils[0]; !got.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("fetch must be bounded at cycle start, got %v", got)
	}
	alpha := repo.st.Strategies["alpha"]
	if alpha.RewardUSD != 5.0 || alpha.WinCount != 1 {
		t.Errorf("expected alpha reward 5 with one win, got %v/%d", alpha.RewardUSD, alpha.WinCount)
	}
	bravo := repo.st.Strategies["bravo"]
	if bravo.RewardUSD != -2.0 || bravo.WinCount != 0 {
		t.Errorf("expected bravo reward -2 with no wins, got %v/%d", bravo.RewardUSD, bravo.WinCount)
	}
	// Unattributed activity moves the budget without any strategy credit.
	if got := repo.st.Budget.RealizedUSD; got != 2.0 {
		t.Errorf("expected realized 2.0, got %v", got)
	}
	if got := repo.st.Budget.UnrealizedUSD; got != 7.5 {
		t.Errorf("expected exposure 7.5, got %v", got)
	}
	if !repo.st.LastRewardFetch.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("watermark should advance to cycle time, got %v", repo.st.LastRewardFetch)
	}
}

func TestTradeSettlingMidCycleIsMergedExactlyOnce(t *testing.T) {
	cycle1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := activeState(&models.Strategy{ID: "alpha", SourceTag: "sdk:alpha", Managed: true, PlayCount: 2, Rank: 0})
	repo := &mockStateRepo{st: st}
	reg := &mockRegistry{manifests: []secondary.StrategyManifest{manifest("alpha")}}
	// One trade lands a second after the cycle starts, while the fetch is
	// still in flight.
	ledger := &mockLedger{activity: map[string][]secondary.TradeActivity{
		"polymarket": {{SourceTag: "sdk:alpha", Side: secondary.SideSell, AmountUSD: 5.0, At: cycle1.Add(time.Second)}},
	}}
	svc := newTestService(repo, reg, &mockInvoker{}, NewRewardService(ledger, testLog()), testConfig())

	now := cycle1
	svc.SetClock(func() time.Time { return now })

	if _, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true}); err != nil {
		t.Fatalf("cycle 1 failed: %v", err)
	}
	if got := repo.st.Strategies["alpha"].RewardUSD; got != 0 {
		t.Fatalf("trade after the window bound must wait, got reward %v", got)
	}

	now = cycle1.Add(5 * time.Minute)
	if _, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true}); err != nil {
		t.Fatalf("cycle 2 failed: %v", err)
	}
	if got := repo.st.Strategies["alpha"].RewardUSD; got != 5.0 {
		t.Errorf("expected the trade merged exactly once, got reward %v", got)
	}
	if got := repo.st.Budget.RealizedUSD; got != 5.0 {
		t.Errorf("expected realized 5.0, got %v", got)
	}

	// A third cycle must not recount it.
	now = now.Add(5 * time.Minute)
	if _, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true}); err != nil {
		t.Fatalf("cycle 3 failed: %v", err)
	}
	if got := repo.st.Budget.RealizedUSD; got != 5.0 {
		t.Errorf("merge must be idempotent across cycles, got realized %v", got)
	}
}

func TestLedgerFailureSkipsMergeKeepsWatermark(t *testing.T) {
	prior := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	st := activeState(&models.Strategy{ID: "alpha", SourceTag: "sdk:alpha", Managed: true, PlayCount: 2, RewardUSD: 3, Rank: 0})
	st.LastRewardFetch = prior
	repo := &mockStateRepo{st: st}
	reg := &mockRegistry{manifests: []secondary.StrategyManifest{manifest("alpha")}}
	rw := &mockRewards{err: errors.New("ledger down")}
	svc := newTestService(repo, reg, &mockInvoker{}, rw, testConfig())

	resp, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if err != nil {
		t.Fatalf("ledger failure must not abort the cycle: %v", err)
	}

	if len(resp.Warnings) == 0 {
		t.Error("expected a reward merge warning")
	}
	if !repo.st.LastRewardFetch.Equal(prior) {
		t.Errorf("watermark must not advance past unseen trades, got %v", repo.st.LastRewardFetch)
	}
	if got := repo.st.Strategies["alpha"].RewardUSD; got != 3 {
		t.Errorf("rewards must be untouched on merge failure, got %v", got)
	}
	if resp.CycleCount != 6 {
		t.Errorf("cycle should still complete, got count %d", resp.CycleCount)
	}
}

func TestRetiredStrategyKeepsStatsLeavesPool(t *testing.T) {
	st := activeState(
		&models.Strategy{ID: "alpha", SourceTag: "sdk:alpha", Managed: true, PlayCount: 4, RewardUSD: 8, Rank: 0},
		&models.Strategy{ID: "bravo", SourceTag: "sdk:bravo", Managed: true, PlayCount: 4, RewardUSD: 2, Rank: 1},
	)
	st.Epsilon = 0
	repo := &mockStateRepo{st: st}
	// bravo vanished from the scan.
	reg := &mockRegistry{manifests: []secondary.StrategyManifest{manifest("alpha")}}
	svc := newTestService(repo, reg, &mockInvoker{}, &mockRewards{}, testConfig())

	resp, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if len(resp.Selected) != 1 || resp.Selected[0] != "alpha" {
		t.Errorf("retired strategy must not be selected, got %v", resp.Selected)
	}
	bravo := repo.st.Strategies["bravo"]
	if bravo.Managed {
		t.Error("bravo should have left the pool")
	}
	if bravo.PlayCount != 4 || bravo.RewardUSD != 2 {
		t.Errorf("retired stats must survive, got %+v", bravo)
	}
}

func TestDiscoveryFailureKeepsPoolUnchanged(t *testing.T) {
	st := activeState(&models.Strategy{ID: "alpha", SourceTag: "sdk:alpha", Managed: true, PlayCount: 1, Rank: 0})
	repo := &mockStateRepo{st: st}
	reg := &mockRegistry{err: errors.New("skills dir unreadable")}
	svc := newTestService(repo, reg, &mockInvoker{}, &mockRewards{}, testConfig())

	resp, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if err != nil {
		t.Fatalf("discovery failure must not abort the cycle: %v", err)
	}
	if len(resp.Warnings) == 0 {
		t.Error("expected a discovery warning")
	}
	if !repo.st.Strategies["alpha"].Managed {
		t.Error("a transient scan failure must not retire the pool")
	}
}

func TestConservingTierLimitsPoolAndHalvesEpsilon(t *testing.T) {
	st := activeState(
		&models.Strategy{ID: "alpha", SourceTag: "sdk:alpha", Managed: true, PlayCount: 4, RewardUSD: 8, Rank: 0},
		&models.Strategy{ID: "bravo", SourceTag: "sdk:bravo", Managed: true, PlayCount: 4, RewardUSD: 2, Rank: 1},
	)
	st.Budget.SpentUSD = 40 // remaining 10 of 50 = conserving
	repo := &mockStateRepo{st: st}
	reg := &mockRegistry{manifests: []secondary.StrategyManifest{manifest("alpha"), manifest("bravo")}}
	svc := newTestService(repo, reg, &mockInvoker{}, &mockRewards{}, testConfig())

	resp, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if resp.Tier != models.TierConserving {
		t.Fatalf("expected conserving, got %v", resp.Tier)
	}
	if len(resp.Selected) != 1 {
		t.Errorf("conserving allows one arm, got %v", resp.Selected)
	}
	if resp.Epsilon != 0.2*0.5 {
		t.Errorf("expected halved applied epsilon 0.1, got %v", resp.Epsilon)
	}
	if resp.Transition == nil || resp.Transition.To != models.TierConserving {
		t.Errorf("expected recorded transition, got %v", resp.Transition)
	}
	// The tier multiplier scales the applied value only; stored decay is
	// tier-independent.
	if got := repo.st.Epsilon; got != 0.2*0.995 {
		t.Errorf("expected stored epsilon %v, got %v", 0.2*0.995, got)
	}
}

func TestCriticalTierIsPureExploitation(t *testing.T) {
	st := activeState(
		&models.Strategy{ID: "alpha", SourceTag: "sdk:alpha", Managed: true, PlayCount: 4, RewardUSD: 8, Rank: 0},
		&models.Strategy{ID: "bravo", SourceTag: "sdk:bravo", Managed: true, PlayCount: 4, RewardUSD: 2, Rank: 1},
	)
	st.Budget.SpentUSD = 47 // remaining 3 of 50 = critical
	repo := &mockStateRepo{st: st}
	reg := &mockRegistry{manifests: []secondary.StrategyManifest{manifest("alpha"), manifest("bravo")}}
	svc := newTestService(repo, reg, &mockInvoker{}, &mockRewards{}, testConfig())

	resp, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if resp.Tier != models.TierCritical {
		t.Fatalf("expected critical, got %v", resp.Tier)
	}
	if resp.Epsilon != 0 {
		t.Errorf("critical disables exploration, applied epsilon %v", resp.Epsilon)
	}
	// With exploration off the best average must win for any seed.
	if len(resp.Selected) != 1 || resp.Selected[0] != "alpha" {
		t.Errorf("expected pure exploitation of alpha, got %v", resp.Selected)
	}
}

func TestSpendClampsAtExhaustion(t *testing.T) {
	st := activeState(&models.Strategy{ID: "alpha", SourceTag: "sdk:alpha", Managed: true, PlayCount: 4, RewardUSD: 8, Rank: 0})
	st.Budget.SpentUSD = 49 // remaining 1
	repo := &mockStateRepo{st: st}
	reg := &mockRegistry{manifests: []secondary.StrategyManifest{manifest("alpha")}}
	inv := &mockInvoker{results: map[string]secondary.InvocationResult{
		"alpha": {CostUSD: 5.0, Succeeded: true},
	}}
	svc := newTestService(repo, reg, inv, &mockRewards{}, testConfig())

	resp, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if resp.RemainingUSD != 0 {
		t.Errorf("remaining must clamp at zero, got %v", resp.RemainingUSD)
	}
	if got := repo.st.Budget.SpentUSD; got != 50 {
		t.Errorf("spend clamps at exhaustion, got %v", got)
	}
}

func TestOperatorOverridesApplyToLiveEnvelope(t *testing.T) {
	st := activeState(&models.Strategy{ID: "alpha", SourceTag: "sdk:alpha", Managed: true, Rank: 0})
	repo := &mockStateRepo{st: st}
	reg := &mockRegistry{manifests: []secondary.StrategyManifest{manifest("alpha")}}
	svc := newTestService(repo, reg, &mockInvoker{}, &mockRewards{}, testConfig())

	req := primary.RunCycleRequest{Live: true, BudgetUSD: floatPtr(100), HorizonDays: intPtr(60)}
	if _, err := svc.RunCycle(context.Background(), req); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if repo.st.Budget.TotalUSD != 100 || repo.st.Budget.HorizonDays != 60 {
		t.Errorf("expected overrides applied, got %+v", repo.st.Budget)
	}
}

func TestEpsilonDecayRespectsFloor(t *testing.T) {
	st := activeState(&models.Strategy{ID: "alpha", SourceTag: "sdk:alpha", Managed: true, Rank: 0})
	st.Epsilon = 0.0501
	repo := &mockStateRepo{st: st}
	reg := &mockRegistry{manifests: []secondary.StrategyManifest{manifest("alpha")}}
	svc := newTestService(repo, reg, &mockInvoker{}, &mockRewards{}, testConfig())

	if _, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true}); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if got := repo.st.Epsilon; got != 0.05 {
		t.Errorf("epsilon must floor at min, got %v", got)
	}
}

func TestMaxConcurrentCapsSelection(t *testing.T) {
	st := activeState(
		&models.Strategy{ID: "alpha", SourceTag: "sdk:alpha", Managed: true, Rank: 0},
		&models.Strategy{ID: "bravo", SourceTag: "sdk:bravo", Managed: true, Rank: 1},
		&models.Strategy{ID: "charlie", SourceTag: "sdk:charlie", Managed: true, Rank: 2},
	)
	repo := &mockStateRepo{st: st}
	reg := &mockRegistry{manifests: []secondary.StrategyManifest{
		manifest("alpha"), manifest("bravo"), manifest("charlie"),
	}}
	svc := newTestService(repo, reg, &mockInvoker{}, &mockRewards{}, testConfig())

	resp, err := svc.RunCycle(context.Background(), primary.RunCycleRequest{Live: true})
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	// Normal tier allows the full pool, but max_concurrent is 2.
	if len(resp.Selected) != 2 {
		t.Errorf("expected selection capped at 2, got %v", resp.Selected)
	}
}
