package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TradingApplication/catalyst-trading-system/internal/cache"
	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/persistence"
)

// Recognized runtime configuration keys. Anything else is rejected by
// updateConfig so operator typos surface as validation errors.
const (
	KeyMaxPositions       = "max_positions"
	KeyMinCatalystScore   = "min_catalyst_score"
	KeyMinPrice           = "min_price"
	KeyMaxPrice           = "max_price"
	KeyMinVolume          = "min_volume"
	KeyMinRelativeVolume  = "min_relative_volume"
	KeyPremarketStart     = "premarket_start"
	KeyPremarketEnd       = "premarket_end"
	KeyMarketInterval     = "market_interval"
	KeyPremarketInterval  = "premarket_interval"
	KeyAfterhoursInterval = "afterhours_interval"
	KeyNewsCacheTTL       = "news_cache_ttl"
	KeyAPITimeout         = "api_timeout"
	KeyBaselineUniverse   = "baseline_universe"
)

var recognizedKeys = map[string]bool{
	KeyMaxPositions:       true,
	KeyMinCatalystScore:   true,
	KeyMinPrice:           true,
	KeyMaxPrice:           true,
	KeyMinVolume:          true,
	KeyMinRelativeVolume:  true,
	KeyPremarketStart:     true,
	KeyPremarketEnd:       true,
	KeyMarketInterval:     true,
	KeyPremarketInterval:  true,
	KeyAfterhoursInterval: true,
	KeyNewsCacheTTL:       true,
	KeyAPITimeout:         true,
	KeyBaselineUniverse:   true,
}

// TierWeightKey names the runtime entry holding one source tier's scoring
// weight.
func TierWeightKey(tier int) string {
	return fmt.Sprintf("tier_%d_weight", tier)
}

// Recognized reports whether key is a known runtime configuration entry.
// Tier weight keys (tier_1_weight .. tier_5_weight) are also accepted.
func Recognized(key string) bool {
	if recognizedKeys[key] {
		return true
	}
	for tier := 1; tier <= 5; tier++ {
		if key == TierWeightKey(tier) {
			return true
		}
	}
	return false
}

// RuntimeStore reads runtime configuration through a short-lived cache.
// Readers may observe values up to one cache TTL stale; writes invalidate
// the cached copy immediately.
type RuntimeStore struct {
	repo  persistence.ConfigRepo
	cache cache.Cache
}

// NewRuntimeStore builds the runtime configuration store.
func NewRuntimeStore(repo persistence.ConfigRepo, c cache.Cache) *RuntimeStore {
	return &RuntimeStore{repo: repo, cache: c}
}

func cacheKey(key string) string {
	return "config:" + key
}

// Get returns the raw value for key, consulting the cache first.
func (s *RuntimeStore) Get(ctx context.Context, key string) (string, error) {
	if cached, err := s.cache.Get(ctx, cacheKey(key)); err == nil {
		return cached, nil
	}

	value, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, cacheKey(key), value, cache.ConfigTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache config value")
	}
	return value, nil
}

// Set validates and writes a runtime entry, then invalidates its cached
// copy. Only the coordinator's updateConfig path calls this.
func (s *RuntimeStore) Set(ctx context.Context, key, value, modifier string) error {
	if !Recognized(key) {
		return errs.Validationf("unrecognized config key %q", key)
	}
	if err := s.repo.Set(ctx, key, value, modifier); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKey(key)); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to invalidate cached config value")
	}
	return nil
}

// Float returns the key parsed as float64, or fallback when unset.
func (s *RuntimeStore) Float(ctx context.Context, key string, fallback float64) float64 {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("Config read failed, using fallback")
		}
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Malformed config float, using fallback")
		return fallback
	}
	return v
}

// Int returns the key parsed as int64, or fallback when unset.
func (s *RuntimeStore) Int(ctx context.Context, key string, fallback int64) int64 {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("Config read failed, using fallback")
		}
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Malformed config int, using fallback")
		return fallback
	}
	return v
}

// APITimeout resolves the outbound HTTP timeout, preferring the operator's
// runtime entry (seconds) over the static configuration.
func (s *RuntimeStore) APITimeout(ctx context.Context, fallback time.Duration) time.Duration {
	secs := s.Int(ctx, KeyAPITimeout, int64(fallback/time.Second))
	if secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// String returns the raw value, or fallback when unset.
func (s *RuntimeStore) String(ctx context.Context, key, fallback string) string {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	return raw
}
