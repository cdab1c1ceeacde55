// Package ratelimit provides per-source token-bucket rate limiting for the
// news collector's fan-out.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Spec declares a source's sustained request rate and burst capacity.
type Spec struct {
	RPS   float64
	Burst int
}

// Manager keeps one token bucket per registered source.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewManager creates an empty rate limiter manager.
func NewManager() *Manager {
	return &Manager{limiters: make(map[string]*rate.Limiter)}
}

// Register sizes the bucket for a source from its declared rate spec.
func (m *Manager) Register(source string, spec Spec) {
	m.mu.Lock()
	defer m.mu.Unlock()

	burst := spec.Burst
	if burst < 1 {
		burst = 1
	}
	m.limiters[source] = rate.NewLimiter(rate.Limit(spec.RPS), burst)
}

// Wait blocks until a request for the source is allowed or the context is
// cancelled. Unregistered sources are not limited.
func (m *Manager) Wait(ctx context.Context, source string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[source]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}

// Allow reports whether a request for the source may proceed immediately.
func (m *Manager) Allow(source string) bool {
	m.mu.RLock()
	limiter, ok := m.limiters[source]
	m.mu.RUnlock()
	if !ok {
		return true
	}
	return limiter.Allow()
}

// Throttle halves the source's rate after an upstream 429, keeping the
// bucket in place so the source recovers in later cycles.
func (m *Manager) Throttle(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limiter, ok := m.limiters[source]
	if !ok {
		return
	}
	limiter.SetLimit(limiter.Limit() / 2)
}
