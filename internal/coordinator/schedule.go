// Package coordinator runs the trading cycle state machine, the market-time
// scheduler, collaborator health checks, and the outcome-feedback sweep.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
)

// Schedule maps wall-clock market time onto cycle modes and tick intervals.
// The static configuration seeds the windows; operators can move the
// pre-market boundaries and the per-mode intervals at runtime.
type Schedule struct {
	cfg     config.ScheduleConfig
	loc     *time.Location
	runtime *config.RuntimeStore

	preStart, open, close, afterClose int // minutes since midnight
}

// NewSchedule parses the configured session boundaries. A nil runtime store
// pins the schedule to the static configuration.
func NewSchedule(cfg config.ScheduleConfig, loc *time.Location, runtime *config.RuntimeStore) (*Schedule, error) {
	s := &Schedule{cfg: cfg, loc: loc, runtime: runtime}
	for _, w := range []struct {
		raw  string
		dest *int
	}{
		{cfg.PremarketStart, &s.preStart},
		{cfg.MarketOpen, &s.open},
		{cfg.MarketClose, &s.close},
		{cfg.AfterHoursClose, &s.afterClose},
	} {
		t, err := time.Parse("15:04", w.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule window %q: %w", w.raw, err)
		}
		*w.dest = t.Hour()*60 + t.Minute()
	}
	return s, nil
}

// ModeFor returns the cycle mode for a given instant. Pre-market runs
// aggressive, the regular session normal, after-hours light, and everything
// else (nights, weekends) minimal.
func (s *Schedule) ModeFor(ctx context.Context, t time.Time) models.CycleMode {
	local := t.In(s.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return models.ModeMinimal
	}
	preStart := s.windowMinutes(ctx, config.KeyPremarketStart, s.preStart)
	open := s.windowMinutes(ctx, config.KeyPremarketEnd, s.open)

	minutes := local.Hour()*60 + local.Minute()
	switch {
	case minutes >= preStart && minutes < open:
		return models.ModeAggressive
	case minutes >= open && minutes < s.close:
		return models.ModeNormal
	case minutes >= s.close && minutes < s.afterClose:
		return models.ModeLight
	default:
		return models.ModeMinimal
	}
}

// Interval returns how often cycles start in the given mode. The runtime
// interval entries are minutes.
func (s *Schedule) Interval(ctx context.Context, mode models.CycleMode) time.Duration {
	var (
		key string
		def time.Duration
	)
	switch mode {
	case models.ModeAggressive:
		key, def = config.KeyPremarketInterval, s.cfg.AggressiveInterval
	case models.ModeNormal:
		key, def = config.KeyMarketInterval, s.cfg.NormalInterval
	case models.ModeLight:
		key, def = config.KeyAfterhoursInterval, s.cfg.LightInterval
	default:
		return s.cfg.MinimalInterval
	}
	if s.runtime == nil {
		return def
	}
	minutes := s.runtime.Int(ctx, key, int64(def/time.Minute))
	if minutes <= 0 {
		return def
	}
	return time.Duration(minutes) * time.Minute
}

// windowMinutes resolves one session boundary, preferring the operator's
// runtime override over the parsed static window.
func (s *Schedule) windowMinutes(ctx context.Context, key string, fallback int) int {
	if s.runtime == nil {
		return fallback
	}
	raw := s.runtime.String(ctx, key, "")
	if raw == "" {
		return fallback
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Malformed schedule window override, using configured value")
		return fallback
	}
	return t.Hour()*60 + t.Minute()
}
