package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TradingApplication/catalyst-trading-system/internal/cache"
	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/persistence/memory"
)

func testSchedule(t *testing.T) *Schedule {
	sched, _ := testScheduleWithRuntime(t)
	return sched
}

func testScheduleWithRuntime(t *testing.T) (*Schedule, *config.RuntimeStore) {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	runtime := config.NewRuntimeStore(memory.New().Port().Config, cache.NewMemory())
	sched, err := NewSchedule(config.Default().Schedule, loc, runtime)
	require.NoError(t, err)
	return sched, runtime
}

func nyTime(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	parsed, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	require.NoError(t, err)
	return parsed
}

func TestModeForMarketWindows(t *testing.T) {
	sched := testSchedule(t)
	ctx := context.Background()

	cases := []struct {
		at   string // Wednesday 2025-08-20 unless noted
		want models.CycleMode
	}{
		{"2025-08-20 03:59", models.ModeMinimal},
		{"2025-08-20 04:00", models.ModeAggressive},
		{"2025-08-20 09:29", models.ModeAggressive},
		{"2025-08-20 09:30", models.ModeNormal},
		{"2025-08-20 15:59", models.ModeNormal},
		{"2025-08-20 16:00", models.ModeLight},
		{"2025-08-20 19:59", models.ModeLight},
		{"2025-08-20 20:00", models.ModeMinimal},
		{"2025-08-23 10:00", models.ModeMinimal}, // Saturday
		{"2025-08-24 10:00", models.ModeMinimal}, // Sunday
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sched.ModeFor(ctx, nyTime(t, tc.at)), "at %s", tc.at)
	}
}

func TestModeForHonorsWindowOverrides(t *testing.T) {
	sched, runtime := testScheduleWithRuntime(t)
	ctx := context.Background()

	// The operator widens pre-market to start at 06:00.
	require.NoError(t, runtime.Set(ctx, "premarket_start", "06:00", "ops"))

	assert.Equal(t, models.ModeMinimal, sched.ModeFor(ctx, nyTime(t, "2025-08-20 05:30")))
	assert.Equal(t, models.ModeAggressive, sched.ModeFor(ctx, nyTime(t, "2025-08-20 06:30")))

	// Malformed overrides fall back to the configured window.
	require.NoError(t, runtime.Set(ctx, "premarket_end", "half past nine", "ops"))
	assert.Equal(t, models.ModeNormal, sched.ModeFor(ctx, nyTime(t, "2025-08-20 09:30")))
}

func TestIntervalPerMode(t *testing.T) {
	sched := testSchedule(t)
	ctx := context.Background()

	assert.Equal(t, 5*time.Minute, sched.Interval(ctx, models.ModeAggressive))
	assert.Equal(t, 30*time.Minute, sched.Interval(ctx, models.ModeNormal))
	assert.Equal(t, time.Hour, sched.Interval(ctx, models.ModeLight))
	assert.Equal(t, 4*time.Hour, sched.Interval(ctx, models.ModeMinimal))
}

func TestIntervalHonorsRuntimeOverrides(t *testing.T) {
	sched, runtime := testScheduleWithRuntime(t)
	ctx := context.Background()

	require.NoError(t, runtime.Set(ctx, "market_interval", "15", "ops"))
	require.NoError(t, runtime.Set(ctx, "premarket_interval", "2", "ops"))
	require.NoError(t, runtime.Set(ctx, "afterhours_interval", "90", "ops"))

	assert.Equal(t, 15*time.Minute, sched.Interval(ctx, models.ModeNormal))
	assert.Equal(t, 2*time.Minute, sched.Interval(ctx, models.ModeAggressive))
	assert.Equal(t, 90*time.Minute, sched.Interval(ctx, models.ModeLight))

	// Nonsense values fall back to the configured interval.
	require.NoError(t, runtime.Set(ctx, "market_interval", "-5", "ops"))
	assert.Equal(t, 30*time.Minute, sched.Interval(ctx, models.ModeNormal))
}

func TestNewScheduleRejectsMalformedWindow(t *testing.T) {
	cfg := config.Default().Schedule
	cfg.MarketOpen = "9am"
	_, err := NewSchedule(cfg, time.UTC, nil)
	assert.Error(t, err)
}
