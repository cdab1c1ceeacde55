package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestAllowConsumesBurst(t *testing.T) {
	m := NewManager()
	m.Register("newsapi", Spec{RPS: 1, Burst: 2})

	assert.True(t, m.Allow("newsapi"))
	assert.True(t, m.Allow("newsapi"))
	assert.False(t, m.Allow("newsapi"))
}

func TestUnregisteredSourceIsUnlimited(t *testing.T) {
	m := NewManager()

	assert.True(t, m.Allow("unknown"))
	assert.NoError(t, m.Wait(context.Background(), "unknown"))
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	m := NewManager()
	m.Register("slow", Spec{RPS: 0.001, Burst: 1})
	require.True(t, m.Allow("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Wait(ctx, "slow")
	assert.Error(t, err)
}

func TestThrottleHalvesRate(t *testing.T) {
	m := NewManager()
	m.Register("newsapi", Spec{RPS: 4, Burst: 1})

	m.Throttle("newsapi")

	m.mu.RLock()
	limiter := m.limiters["newsapi"]
	m.mu.RUnlock()
	assert.Equal(t, rate.Limit(2), limiter.Limit())
}

func TestThrottleUnknownSourceIsNoop(t *testing.T) {
	m := NewManager()
	m.Throttle("ghost")
}

func TestRegisterClampsBurst(t *testing.T) {
	m := NewManager()
	m.Register("rss", Spec{RPS: 0.2, Burst: 0})

	assert.True(t, m.Allow("rss"))
	assert.False(t, m.Allow("rss"))
}
