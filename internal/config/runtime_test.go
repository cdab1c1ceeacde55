package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TradingApplication/catalyst-trading-system/internal/cache"
	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
)

// countingRepo records how many reads reach the backing store.
type countingRepo struct {
	values map[string]string
	gets   int
}

func (r *countingRepo) Get(_ context.Context, key string) (string, error) {
	r.gets++
	if v, ok := r.values[key]; ok {
		return v, nil
	}
	return "", errs.NotFoundf("config key %s", key)
}

func (r *countingRepo) Set(_ context.Context, key, value, _ string) error {
	r.values[key] = value
	return nil
}

func newRuntime(values map[string]string) (*RuntimeStore, *countingRepo) {
	repo := &countingRepo{values: values}
	return NewRuntimeStore(repo, cache.NewMemory()), repo
}

func TestGetServesFromCacheAfterFirstRead(t *testing.T) {
	s, repo := newRuntime(map[string]string{"min_price": "2.5"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := s.Get(ctx, "min_price")
		require.NoError(t, err)
		assert.Equal(t, "2.5", v)
	}
	assert.Equal(t, 1, repo.gets)
}

func TestSetInvalidatesCachedValue(t *testing.T) {
	s, _ := newRuntime(map[string]string{"min_price": "2.5"})
	ctx := context.Background()

	_, err := s.Get(ctx, "min_price")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "min_price", "5.0", "ops"))

	v, err := s.Get(ctx, "min_price")
	require.NoError(t, err)
	assert.Equal(t, "5.0", v)
}

func TestSetRejectsUnrecognizedKey(t *testing.T) {
	s, repo := newRuntime(map[string]string{})

	err := s.Set(context.Background(), "warp_factor", "9", "ops")

	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Empty(t, repo.values)
}

func TestRecognizedAcceptsTierWeights(t *testing.T) {
	assert.True(t, Recognized("tier_1_weight"))
	assert.True(t, Recognized("tier_5_weight"))
	assert.False(t, Recognized("tier_6_weight"))
	assert.True(t, Recognized("min_catalyst_score"))
	assert.False(t, Recognized("minimum_catalyst_score"))
}

func TestFloatFallbacks(t *testing.T) {
	s, _ := newRuntime(map[string]string{
		"min_price":          "2.5",
		"min_catalyst_score": "not-a-number",
	})
	ctx := context.Background()

	assert.Equal(t, 2.5, s.Float(ctx, "min_price", 1.0))
	assert.Equal(t, 30.0, s.Float(ctx, "min_catalyst_score", 30.0))
	assert.Equal(t, 1.5, s.Float(ctx, "min_relative_volume", 1.5))
}

func TestAPITimeoutResolvesSeconds(t *testing.T) {
	s, _ := newRuntime(map[string]string{"api_timeout": "45"})
	ctx := context.Background()

	assert.Equal(t, 45*time.Second, s.APITimeout(ctx, 10*time.Second))

	require.NoError(t, s.Set(ctx, "api_timeout", "0", "ops"))
	assert.Equal(t, 10*time.Second, s.APITimeout(ctx, 10*time.Second),
		"non-positive entries fall back")

	unset, _ := newRuntime(map[string]string{})
	assert.Equal(t, 10*time.Second, unset.APITimeout(ctx, 10*time.Second))
}

func TestIntAndStringFallbacks(t *testing.T) {
	s, _ := newRuntime(map[string]string{"min_volume": "750000"})
	ctx := context.Background()

	assert.Equal(t, int64(750000), s.Int(ctx, "min_volume", 500000))
	assert.Equal(t, int64(5), s.Int(ctx, "max_positions", 5))
	assert.Equal(t, "04:00", s.String(ctx, "premarket_start", "04:00"))
}
