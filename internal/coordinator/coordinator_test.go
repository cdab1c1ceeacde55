package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TradingApplication/catalyst-trading-system/internal/cache"
	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/news"
	"github.com/TradingApplication/catalyst-trading-system/internal/persistence/memory"
	"github.com/TradingApplication/catalyst-trading-system/internal/scanner"
)

// fakePorts implements every collaborator port with canned responses.
type fakePorts struct {
	report     models.CollectionReport
	collectErr error
	collectDur time.Duration

	result  *models.ScanResult
	scanErr error

	patterns   int
	analyzeErr error
	signals    int
	signalErr  error
	execution  ExecutionReport
	executeErr error

	collectCalls int32
	analyzeCalls int32
	signalCalls  int32
	executeCalls int32
}

func (f *fakePorts) Collect(ctx context.Context, _ models.CycleMode) (models.CollectionReport, error) {
	atomic.AddInt32(&f.collectCalls, 1)
	if f.collectDur > 0 {
		select {
		case <-ctx.Done():
			return models.CollectionReport{}, ctx.Err()
		case <-time.After(f.collectDur):
		}
	}
	return f.report, f.collectErr
}

func (f *fakePorts) Scan(context.Context, models.CycleMode) (*models.ScanResult, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	if f.result == nil {
		return &models.ScanResult{ScanID: uuid.NewString()}, nil
	}
	return f.result, nil
}

func (f *fakePorts) Analyze(context.Context, string, []string) (int, error) {
	atomic.AddInt32(&f.analyzeCalls, 1)
	return f.patterns, f.analyzeErr
}

func (f *fakePorts) Signal(context.Context, string) (int, error) {
	atomic.AddInt32(&f.signalCalls, 1)
	return f.signals, f.signalErr
}

func (f *fakePorts) Execute(context.Context, string, string) (ExecutionReport, error) {
	atomic.AddInt32(&f.executeCalls, 1)
	return f.execution, f.executeErr
}

func newTestCoordinator(t *testing.T, ports *fakePorts) (*Coordinator, *memory.Store) {
	t.Helper()
	mem := memory.New()
	store := mem.Port()
	runtime := config.NewRuntimeStore(store.Config, cache.NewMemory())
	c := New(store, runtime, testSchedule(t), Deps{
		News:      ports,
		Scanner:   ports,
		Pattern:   ports,
		Technical: ports,
		Trading:   ports,
	})
	return c, mem
}

func waitForCycle(t *testing.T, mem *memory.Store, cycleID string) *models.TradingCycle {
	t.Helper()
	var cycle *models.TradingCycle
	require.Eventually(t, func() bool {
		got, err := mem.Get(context.Background(), cycleID)
		if err != nil {
			return false
		}
		cycle = got
		return got.Status != models.CycleRunning
	}, 5*time.Second, 10*time.Millisecond, "cycle never reached a terminal state")
	return cycle
}

func twoCandidates(scanID string) *models.ScanResult {
	return &models.ScanResult{
		ScanID: scanID,
		Candidates: []models.TradingCandidate{
			{ScanID: scanID, Symbol: "ACME", SelectionRank: 1},
			{ScanID: scanID, Symbol: "SYMB", SelectionRank: 2},
		},
	}
}

func TestCycleHappyPath(t *testing.T) {
	ports := &fakePorts{
		report:    models.CollectionReport{Articles: 12, New: 9},
		result:    twoCandidates(uuid.NewString()),
		patterns:  2,
		signals:   1,
		execution: ExecutionReport{TradesExecuted: 1, CyclePnL: 55.5},
	}
	c, mem := newTestCoordinator(t, ports)

	view, err := c.StartCycle(context.Background(), models.ModeNormal)
	require.NoError(t, err)
	assert.Equal(t, models.ModeNormal, view.Mode)

	cycle := waitForCycle(t, mem, view.CycleID)
	assert.Equal(t, models.CycleCompleted, cycle.Status)
	assert.Equal(t, 12, cycle.Counters.NewsCollected)
	assert.Equal(t, 2, cycle.Counters.CandidatesSelected)
	assert.Equal(t, 2, cycle.Counters.PatternsAnalyzed)
	assert.Equal(t, 1, cycle.Counters.SignalsGenerated)
	assert.Equal(t, 1, cycle.Counters.TradesExecuted)
	assert.Equal(t, 55.5, cycle.CyclePnL)
	assert.Equal(t, 0.5, cycle.SuccessRate)
	assert.NotNil(t, cycle.CompletedAt)

	// Every stage left a started/completed pair in the workflow log.
	byStage := make(map[models.Stage][]string)
	for _, entry := range mem.Log() {
		require.Equal(t, view.CycleID, entry.CycleID)
		byStage[entry.Stage] = append(byStage[entry.Stage], entry.Status)
	}
	for _, stage := range []models.Stage{models.StageCollect, models.StageScan, models.StageAnalyze} {
		assert.Contains(t, byStage[stage], "completed", "stage %s", stage)
	}
}

func TestStartCycleRejectsConcurrent(t *testing.T) {
	ports := &fakePorts{collectDur: 300 * time.Millisecond}
	c, mem := newTestCoordinator(t, ports)

	view, err := c.StartCycle(context.Background(), models.ModeNormal)
	require.NoError(t, err)

	_, err = c.StartCycle(context.Background(), models.ModeNormal)
	assert.ErrorIs(t, err, errs.ErrBusy)

	live := c.GetCurrentCycle(context.Background())
	require.NotNil(t, live)
	assert.Equal(t, view.CycleID, live.CycleID)

	waitForCycle(t, mem, view.CycleID)
	assert.Nil(t, c.GetCurrentCycle(context.Background()), "idle coordinators report no cycle")

	// Idle again: the next start succeeds.
	_, err = c.StartCycle(context.Background(), models.ModeNormal)
	require.NoError(t, err)
}

func TestCollectFailureFailsCycle(t *testing.T) {
	ports := &fakePorts{collectErr: errs.Validationf("bad mode")}
	c, mem := newTestCoordinator(t, ports)

	view, err := c.StartCycle(context.Background(), models.ModeNormal)
	require.NoError(t, err)

	cycle := waitForCycle(t, mem, view.CycleID)
	assert.Equal(t, models.CycleFailed, cycle.Status)
	assert.Contains(t, cycle.FailReason, "collect")
	assert.Equal(t, int32(1), atomic.LoadInt32(&ports.collectCalls))
	assert.Zero(t, atomic.LoadInt32(&ports.analyzeCalls), "downstream stages never ran")
}

func TestScanFailureFailsCycle(t *testing.T) {
	ports := &fakePorts{scanErr: errs.DependencyDown(errors.New("scanner offline"))}
	c, mem := newTestCoordinator(t, ports)

	view, err := c.StartCycle(context.Background(), models.ModeNormal)
	require.NoError(t, err)

	cycle := waitForCycle(t, mem, view.CycleID)
	assert.Equal(t, models.CycleFailed, cycle.Status)
	assert.Contains(t, cycle.FailReason, "scan")
}

func TestOptionalStageDegradesToPartial(t *testing.T) {
	ports := &fakePorts{
		report:     models.CollectionReport{Articles: 3},
		result:     twoCandidates(uuid.NewString()),
		analyzeErr: errs.Validationf("pattern service rejected payload"),
		signals:    2,
		execution:  ExecutionReport{TradesExecuted: 1, CyclePnL: -5},
	}
	c, mem := newTestCoordinator(t, ports)

	view, err := c.StartCycle(context.Background(), models.ModeNormal)
	require.NoError(t, err)

	cycle := waitForCycle(t, mem, view.CycleID)
	assert.Equal(t, models.CycleCompleted, cycle.Status, "one dead collaborator does not fail the cycle")
	assert.Zero(t, cycle.Counters.PatternsAnalyzed)
	assert.Equal(t, 2, cycle.Counters.SignalsGenerated)
	assert.Equal(t, 1, cycle.Counters.TradesExecuted)

	partial := false
	for _, entry := range mem.Log() {
		if entry.Stage == models.StageAnalyze && entry.Status == "partial" {
			partial = true
		}
	}
	assert.True(t, partial, "degradation is visible in the workflow log")
}

func TestNoCandidatesSkipsDownstream(t *testing.T) {
	ports := &fakePorts{
		report: models.CollectionReport{Articles: 5},
		result: &models.ScanResult{ScanID: uuid.NewString()},
	}
	c, mem := newTestCoordinator(t, ports)

	view, err := c.StartCycle(context.Background(), models.ModeNormal)
	require.NoError(t, err)

	cycle := waitForCycle(t, mem, view.CycleID)
	assert.Equal(t, models.CycleCompleted, cycle.Status)
	assert.Zero(t, atomic.LoadInt32(&ports.analyzeCalls))
	assert.Zero(t, atomic.LoadInt32(&ports.executeCalls))
}

func TestCancelStopsCycleQuickly(t *testing.T) {
	ports := &fakePorts{collectDur: 10 * time.Second}
	c, mem := newTestCoordinator(t, ports)

	view, err := c.StartCycle(context.Background(), models.ModeNormal)
	require.NoError(t, err)

	started := time.Now()
	require.NoError(t, c.Cancel(context.Background()))
	assert.Less(t, time.Since(started), 2*time.Second)

	cycle := waitForCycle(t, mem, view.CycleID)
	assert.Equal(t, models.CycleFailed, cycle.Status)
	assert.Equal(t, "cancelled", cycle.FailReason,
		"operator stops are recorded as cancellations, not collaborator failures")
}

func TestStageWindowsCoverCollaboratorBudgets(t *testing.T) {
	// Collect and scan windows must exceed the collaborator's own budget so
	// the coordinator never gives up before the collaborator does.
	for _, mode := range []models.CycleMode{
		models.ModeAggressive, models.ModeNormal, models.ModeLight, models.ModeMinimal,
	} {
		window := news.CollectionBudget(mode) + stageGrace
		assert.GreaterOrEqual(t, window, 130*time.Second, "mode %s", mode)
		assert.Greater(t, window, news.CollectionBudget(mode), "mode %s", mode)
	}
	assert.GreaterOrEqual(t, scanner.ScanBudget+stageGrace, 40*time.Second)

	assert.Equal(t, 30*time.Second, analysisTimeout, "patterns and technical get the analysis window")
	assert.Equal(t, 10*time.Second, tradingTimeout, "only execution runs on the short window")
}

func TestCancelWithoutActiveCycle(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakePorts{})
	assert.ErrorIs(t, c.Cancel(context.Background()), errs.ErrNotFound)
}

func TestUpdateConfigValidation(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakePorts{})
	ctx := context.Background()

	require.NoError(t, c.UpdateConfig(ctx, "min_catalyst_score", "40", "ops"))
	value, err := c.GetConfig(ctx, "min_catalyst_score")
	require.NoError(t, err)
	assert.Equal(t, "40", value)

	assert.ErrorIs(t, c.UpdateConfig(ctx, "no_such_knob", "1", "ops"), errs.ErrValidation)
	_, err = c.GetConfig(ctx, "no_such_knob")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestWithRetryPolicy(t *testing.T) {
	ctx := context.Background()

	attempts := 0
	err := withRetry(ctx, "op", 2, func(context.Context) error {
		attempts++
		return errs.DependencyDown(errors.New("down"))
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts, "two retries after the initial attempt")

	attempts = 0
	err = withRetry(ctx, "op", 2, func(context.Context) error {
		attempts++
		return errs.Validationf("malformed")
	})
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, 1, attempts, "validation errors are never retried")

	attempts = 0
	err = withRetry(ctx, "op", 2, func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errs.DependencyDown(errors.New("flaky"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestSweepOutcomesAppliesOnce(t *testing.T) {
	c, mem := newTestCoordinator(t, &fakePorts{})
	ctx := context.Background()

	fingerprint := uuid.NewString()
	sym := "ACME"
	delay := 45
	item := models.NewsItem{
		Fingerprint:       fingerprint,
		Symbol:            &sym,
		Headline:          "ACME wins FDA approval",
		Source:            "stockblog",
		PublishedAt:       time.Now().Add(-3 * time.Hour),
		CollectedAt:       time.Now().Add(-3 * time.Hour),
		LastSeen:          time.Now(),
		Confirmation:      models.ConfirmationConfirmed,
		ConfirmationDelay: &delay,
	}
	_, err := mem.Upsert(ctx, item)
	require.NoError(t, err)
	require.NoError(t, mem.Seed(ctx, "stockblog", 3))

	mem.AddTrade(models.TradeRecord{
		TradeID:         uuid.NewString(),
		CycleID:         uuid.NewString(),
		Symbol:          sym,
		NewsFingerprint: fingerprint,
		Source:          "stockblog",
		OpenedAt:        time.Now().Add(-2 * time.Hour),
		ClosedAt:        time.Now().Add(-time.Hour),
		PnL:             120.0,
		PriceMove1h:     4.2,
		PriceMove24h:    9.1,
	})

	applied, err := c.SweepOutcomes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	// The article carries its realized outcome.
	stored, err := mem.GetByFingerprint(ctx, fingerprint)
	require.NoError(t, err)
	require.NotNil(t, stored.WasAccurate)
	assert.True(t, *stored.WasAccurate)
	require.NotNil(t, stored.PriceMove1h)
	assert.Equal(t, 4.2, *stored.PriceMove1h)

	// The source's reliability moved, including the early-lead average.
	sources, err := mem.List(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, int64(1), sources[0].Confirmed)
	assert.Equal(t, int64(1), sources[0].Accurate)
	assert.Equal(t, 1.0, sources[0].AccuracyRate)
	assert.Equal(t, 45.0, sources[0].AvgEarlyMinutes)
	assert.Contains(t, sources[0].Beneficiaries, sym)

	// Re-running the sweep is a no-op.
	applied, err = c.SweepOutcomes(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)
}
