package coordinator

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
)

const (
	stageRetries     = 2
	retryBackoffBase = 500 * time.Millisecond
)

// withRetry runs fn up to 1+retries times, backing off exponentially with
// ±25% jitter between attempts. Only transient failures are retried.
func withRetry(ctx context.Context, name string, retries int, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			backoff := jitter(retryBackoffBase << (attempt - 1))
			log.Warn().
				Str("op", name).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying after transient failure")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errs.Transient(err) {
			return err
		}
	}
	return lastErr
}

// jitter spreads a backoff over ±25% so collaborators restarting together
// do not retry in lockstep.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) / 4
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
