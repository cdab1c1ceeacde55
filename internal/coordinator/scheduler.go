package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
)

// schedulerResolution is how often the loop re-evaluates the schedule. The
// shortest cycle interval is five minutes, so 30s keeps drift negligible.
const schedulerResolution = 30 * time.Second

// Run drives the scheduler loop until ctx is cancelled: every tick it picks
// the mode for the current market time and starts a cycle when the mode's
// interval has elapsed and nothing is running.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(schedulerResolution)
	defer ticker.Stop()

	var lastStart time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		now := c.clock()
		mode := c.sched.ModeFor(ctx, now)
		if now.Sub(lastStart) < c.sched.Interval(ctx, mode) {
			continue
		}

		view, err := c.StartCycle(ctx, mode)
		switch {
		case err == nil:
			lastStart = now
		case errors.Is(err, errs.ErrBusy):
			// Previous cycle still running; skip this tick, never queue.
		default:
			log.Error().Err(err).Str("mode", string(mode)).Msg("Scheduled cycle failed to start")
		}
		_ = view
	}
}

// StartSweeps schedules the periodic maintenance jobs on a cron runner:
// the outcome-feedback sweep on its configured interval. The caller owns
// stopping the returned cron.
func (c *Coordinator) StartSweeps(ctx context.Context, outcomeInterval time.Duration) *cron.Cron {
	runner := cron.New()

	if outcomeInterval <= 0 {
		outcomeInterval = 15 * time.Minute
	}
	_, err := runner.AddFunc("@every "+outcomeInterval.String(), func() {
		applied, err := c.SweepOutcomes(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Outcome sweep failed")
			return
		}
		if applied > 0 {
			log.Info().Int("applied", applied).Msg("Outcome sweep complete")
		}
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to schedule outcome sweep")
	}

	runner.Start()
	return runner
}
