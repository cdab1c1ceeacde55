package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/metrics"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/news"
	"github.com/TradingApplication/catalyst-trading-system/internal/persistence"
	"github.com/TradingApplication/catalyst-trading-system/internal/scanner"
)

const (
	// Headroom on top of a collaborator's own wall-clock budget for
	// transport and serialization.
	stageGrace = 10 * time.Second

	analysisTimeout = 30 * time.Second // pattern and technical stages
	tradingTimeout  = 10 * time.Second

	// A cycle that outlives five scheduler ticks is wedged and gets cancelled.
	watchdogTicks = 5

	cancelGrace   = 2 * time.Second
	finalizeGrace = 5 * time.Second
	probeTimeout  = 5 * time.Second
)

// Deps bundles the coordinator's collaborators and health probes.
type Deps struct {
	News      NewsPort
	Scanner   ScanPort
	Pattern   AnalyzePort
	Technical SignalPort
	Trading   ExecutePort

	Probes  []HealthProbe
	Pingers map[string]func(context.Context) error // store, cache
}

// Coordinator owns the cycle state machine. At most one cycle runs at a
// time; starting a second is rejected, never queued.
type Coordinator struct {
	store   persistence.Store
	runtime *config.RuntimeStore
	sched   *Schedule
	deps    Deps
	clock   func() time.Time

	mu     sync.Mutex
	active *activeCycle
}

type activeCycle struct {
	id        string
	mode      models.CycleMode
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	mu       sync.Mutex
	stage    models.Stage
	counters models.CycleCounters
}

func (ac *activeCycle) view(now time.Time) models.CycleView {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return models.CycleView{
		CycleID:   ac.id,
		Mode:      ac.mode,
		Stage:     ac.stage,
		Status:    models.CycleRunning,
		StartedAt: ac.startedAt,
		Elapsed:   now.Sub(ac.startedAt),
		Counters:  ac.counters,
	}
}

// New wires a coordinator.
func New(store persistence.Store, runtime *config.RuntimeStore, sched *Schedule, deps Deps) *Coordinator {
	return &Coordinator{
		store:   store,
		runtime: runtime,
		sched:   sched,
		deps:    deps,
		clock:   time.Now,
	}
}

// StartCycle begins a new trading cycle. An empty mode follows the schedule.
// Returns errs.ErrBusy while a cycle is active.
func (c *Coordinator) StartCycle(ctx context.Context, mode models.CycleMode) (models.CycleView, error) {
	now := c.clock()
	if mode == "" {
		mode = c.sched.ModeFor(ctx, now)
	}
	if !mode.Valid() {
		return models.CycleView{}, errs.Validationf("unknown cycle mode %q", mode)
	}

	c.mu.Lock()
	if c.active != nil {
		id := c.active.id
		c.mu.Unlock()
		return models.CycleView{}, fmt.Errorf("cycle %s: %w", id, errs.ErrBusy)
	}

	cycle := models.TradingCycle{
		CycleID:   uuid.NewString(),
		Mode:      mode,
		Status:    models.CycleRunning,
		Stage:     models.StageCollect,
		StartedAt: now,
	}
	runCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(watchdogTicks)*c.sched.Interval(ctx, mode))
	ac := &activeCycle{
		id:        cycle.CycleID,
		mode:      mode,
		startedAt: now,
		cancel:    cancel,
		done:      make(chan struct{}),
		stage:     models.StageCollect,
	}
	c.active = ac
	c.mu.Unlock()

	if err := c.store.Cycles.Insert(ctx, cycle); err != nil {
		c.clearActive(ac)
		cancel()
		close(ac.done)
		return models.CycleView{}, err
	}

	log.Info().Str("cycle_id", cycle.CycleID).Str("mode", string(mode)).Msg("Trading cycle started")
	go c.runCycle(runCtx, ac)
	return ac.view(now), nil
}

func (c *Coordinator) clearActive(ac *activeCycle) {
	c.mu.Lock()
	if c.active == ac {
		c.active = nil
	}
	c.mu.Unlock()
}

// runCycle drives the stages in order. Collect and scan failures fail the
// cycle; the downstream stages degrade to partial so one dead collaborator
// does not waste a good candidate list.
func (c *Coordinator) runCycle(ctx context.Context, ac *activeCycle) {
	defer close(ac.done)
	defer c.clearActive(ac)
	defer ac.cancel()

	var counters models.CycleCounters

	report, err := runStage(ctx, c, ac, models.StageCollect, news.CollectionBudget(ac.mode)+stageGrace,
		func(sctx context.Context) (models.CollectionReport, int, error) {
			r, err := c.deps.News.Collect(sctx, ac.mode)
			return r, r.Articles, err
		})
	if err != nil {
		if ctx.Err() != nil {
			c.finish(ac, models.CycleFailed, "cancelled", 0, counters)
			return
		}
		c.finish(ac, models.CycleFailed, "collect: "+err.Error(), 0, counters)
		return
	}
	counters.NewsCollected = report.Articles
	c.syncStage(ac, models.StageScan, counters)

	result, err := runStage(ctx, c, ac, models.StageScan, scanner.ScanBudget+stageGrace,
		func(sctx context.Context) (*models.ScanResult, int, error) {
			r, err := c.deps.Scanner.Scan(sctx, ac.mode)
			if err != nil {
				return nil, 0, err
			}
			return r, len(r.Candidates), err
		})
	if err != nil {
		if ctx.Err() != nil {
			c.finish(ac, models.CycleFailed, "cancelled", 0, counters)
			return
		}
		c.finish(ac, models.CycleFailed, "scan: "+err.Error(), 0, counters)
		return
	}
	counters.CandidatesSelected = len(result.Candidates)

	pnl := 0.0
	if len(result.Candidates) == 0 {
		c.logStage(ac.id, models.StageAnalyze, "completed", 0, "no candidates")
		c.logStage(ac.id, models.StageSignal, "completed", 0, "no candidates")
		c.logStage(ac.id, models.StageExecute, "completed", 0, "no candidates")
	} else {
		symbols := make([]string, len(result.Candidates))
		for i, cand := range result.Candidates {
			symbols[i] = cand.Symbol
		}

		c.syncStage(ac, models.StageAnalyze, counters)
		patterns, err := runStage(ctx, c, ac, models.StageAnalyze, analysisTimeout,
			func(sctx context.Context) (int, int, error) {
				n, err := c.deps.Pattern.Analyze(sctx, result.ScanID, symbols)
				return n, n, err
			})
		if err != nil {
			if ctx.Err() != nil {
				c.finish(ac, models.CycleFailed, "cancelled", 0, counters)
				return
			}
			c.degrade(ac, models.StageAnalyze, err)
		}
		counters.PatternsAnalyzed = patterns

		c.syncStage(ac, models.StageSignal, counters)
		signals, err := runStage(ctx, c, ac, models.StageSignal, analysisTimeout,
			func(sctx context.Context) (int, int, error) {
				n, err := c.deps.Technical.Signal(sctx, result.ScanID)
				return n, n, err
			})
		if err != nil {
			if ctx.Err() != nil {
				c.finish(ac, models.CycleFailed, "cancelled", 0, counters)
				return
			}
			c.degrade(ac, models.StageSignal, err)
		}
		counters.SignalsGenerated = signals

		c.syncStage(ac, models.StageExecute, counters)
		exec, err := runStage(ctx, c, ac, models.StageExecute, tradingTimeout,
			func(sctx context.Context) (ExecutionReport, int, error) {
				r, err := c.deps.Trading.Execute(sctx, ac.id, result.ScanID)
				return r, r.TradesExecuted, err
			})
		if err != nil {
			if ctx.Err() != nil {
				c.finish(ac, models.CycleFailed, "cancelled", 0, counters)
				return
			}
			c.degrade(ac, models.StageExecute, err)
		}
		counters.TradesExecuted = exec.TradesExecuted
		pnl = exec.CyclePnL
	}

	if ctx.Err() != nil {
		c.finish(ac, models.CycleFailed, "cancelled", pnl, counters)
		return
	}
	c.syncStage(ac, models.StageFinalize, counters)
	c.logStage(ac.id, models.StageFinalize, "completed", counters.TradesExecuted, "")
	c.finish(ac, models.CycleCompleted, "", pnl, counters)
}

// runStage executes one stage with its per-attempt timeout and the shared
// retry policy, logging the transition either way.
func runStage[T any](ctx context.Context, c *Coordinator, ac *activeCycle, stage models.Stage, timeout time.Duration, fn func(context.Context) (T, int, error)) (T, error) {
	c.logStage(ac.id, stage, "started", 0, "")
	start := c.clock()

	var out T
	var records int
	err := withRetry(ctx, string(stage), stageRetries, func(rctx context.Context) error {
		sctx, cancel := context.WithTimeout(rctx, timeout)
		defer cancel()
		v, n, err := fn(sctx)
		if err != nil {
			return err
		}
		out, records = v, n
		return nil
	})

	metrics.StageDuration.WithLabelValues(string(stage)).Observe(c.clock().Sub(start).Seconds())
	if err != nil {
		c.logStage(ac.id, stage, "failed", 0, err.Error())
		return out, err
	}
	c.logStage(ac.id, stage, "completed", records, "")
	return out, nil
}

// degrade records a non-fatal stage failure: the cycle continues with that
// stage's output missing.
func (c *Coordinator) degrade(ac *activeCycle, stage models.Stage, err error) {
	metrics.StagePartial.WithLabelValues(string(stage)).Inc()
	c.logStage(ac.id, stage, "partial", 0, err.Error())
	log.Warn().Err(err).Str("cycle_id", ac.id).Str("stage", string(stage)).
		Msg("Stage degraded, cycle continues")
}

// syncStage advances the in-memory and persisted stage pointers.
func (c *Coordinator) syncStage(ac *activeCycle, stage models.Stage, counters models.CycleCounters) {
	ac.mu.Lock()
	ac.stage = stage
	ac.counters = counters
	ac.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), finalizeGrace)
	defer cancel()
	if err := c.store.Cycles.UpdateStage(ctx, ac.id, stage, counters); err != nil {
		log.Warn().Err(err).Str("cycle_id", ac.id).Msg("Failed to persist stage transition")
	}
}

func (c *Coordinator) logStage(cycleID string, stage models.Stage, status string, records int, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeGrace)
	defer cancel()
	err := c.store.Cycles.AppendLog(ctx, models.WorkflowLogEntry{
		CycleID:    cycleID,
		Stage:      stage,
		Status:     status,
		Records:    records,
		Detail:     detail,
		RecordedAt: c.clock(),
	})
	if err != nil {
		log.Warn().Err(err).Str("cycle_id", cycleID).Msg("Failed to append workflow log")
	}
}

// finish writes the terminal state. Uses a fresh context so a cancelled
// cycle still persists its outcome.
func (c *Coordinator) finish(ac *activeCycle, status models.CycleStatus, reason string, pnl float64, counters models.CycleCounters) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeGrace)
	defer cancel()

	if err := c.store.Cycles.Finalize(ctx, ac.id, status, reason, pnl, counters); err != nil {
		log.Error().Err(err).Str("cycle_id", ac.id).Msg("Failed to finalize cycle")
	}
	metrics.CyclesTotal.WithLabelValues(string(status), string(ac.mode)).Inc()

	evt := log.Info()
	if status == models.CycleFailed {
		evt = log.Warn().Str("reason", reason)
	}
	evt.Str("cycle_id", ac.id).
		Str("status", string(status)).
		Int("news", counters.NewsCollected).
		Int("candidates", counters.CandidatesSelected).
		Int("trades", counters.TradesExecuted).
		Float64("pnl", pnl).
		Msg("Trading cycle finished")
}

// Cancel stops the active cycle and waits briefly for it to wind down.
func (c *Coordinator) Cancel(ctx context.Context) error {
	c.mu.Lock()
	ac := c.active
	c.mu.Unlock()
	if ac == nil {
		return errs.NotFoundf("no active cycle")
	}

	ac.cancel()
	select {
	case <-ac.done:
		return nil
	case <-time.After(cancelGrace):
		return fmt.Errorf("cycle %s did not stop within %s", ac.id, cancelGrace)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetCurrentCycle returns the live cycle view, or nil when idle.
func (c *Coordinator) GetCurrentCycle(context.Context) *models.CycleView {
	c.mu.Lock()
	ac := c.active
	c.mu.Unlock()
	if ac == nil {
		return nil
	}
	view := ac.view(c.clock())
	return &view
}

// GetCycle returns a stored cycle by id.
func (c *Coordinator) GetCycle(ctx context.Context, cycleID string) (*models.TradingCycle, error) {
	return c.store.Cycles.Get(ctx, cycleID)
}

// UpdateConfig validates and applies one runtime configuration change.
func (c *Coordinator) UpdateConfig(ctx context.Context, key, value, modifier string) error {
	if err := c.runtime.Set(ctx, key, value, modifier); err != nil {
		return err
	}
	log.Info().Str("key", key).Str("value", value).Str("modified_by", modifier).
		Msg("Runtime configuration updated")
	return nil
}

// GetConfig reads one runtime configuration value.
func (c *Coordinator) GetConfig(ctx context.Context, key string) (string, error) {
	if !config.Recognized(key) {
		return "", errs.Validationf("unrecognized config key %q", key)
	}
	return c.runtime.Get(ctx, key)
}

// ServiceHealth probes every dependency concurrently and reports per-service
// status strings.
func (c *Coordinator) ServiceHealth(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result)
	count := 0

	for name, ping := range c.deps.Pingers {
		count++
		go func(name string, ping func(context.Context) error) {
			results <- result{name, ping(ctx)}
		}(name, ping)
	}
	for _, probe := range c.deps.Probes {
		count++
		go func(probe HealthProbe) {
			results <- result{probe.Name(), probe.Healthy(ctx)}
		}(probe)
	}

	report := make(map[string]string, count)
	for i := 0; i < count; i++ {
		r := <-results
		if r.err != nil {
			report[r.name] = "unhealthy: " + r.err.Error()
		} else {
			report[r.name] = "healthy"
		}
	}
	return report
}
