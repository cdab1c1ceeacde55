package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TradingApplication/catalyst-trading-system/internal/cache"
	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/persistence/memory"
)

type fakeMarket struct {
	snaps       map[string]models.MarketSnapshot
	active      []string
	snapsErr    error
	activeErr   error
	activeLimit int
}

func (f *fakeMarket) Snapshots(_ context.Context, symbols []string) (map[string]models.MarketSnapshot, error) {
	if f.snapsErr != nil {
		return nil, f.snapsErr
	}
	out := make(map[string]models.MarketSnapshot, len(symbols))
	for _, sym := range symbols {
		if snap, ok := f.snaps[sym]; ok {
			out[sym] = snap
		}
	}
	return out, nil
}

func (f *fakeMarket) MostActive(_ context.Context, limit int) ([]string, error) {
	f.activeLimit = limit
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	return f.active, nil
}

var scanNow = time.Date(2025, 8, 20, 15, 0, 0, 0, time.UTC)

func newTestScanner(t *testing.T, market *fakeMarket) (*Scanner, *memory.Store) {
	t.Helper()
	mem := memory.New()
	store := mem.Port()
	mc := cache.NewMemory()
	runtime := config.NewRuntimeStore(store.Config, mc)
	s := New(store, mc, market, runtime, config.Default().Scanner)
	s.clock = func() time.Time { return scanNow }
	return s, mem
}

func storedNews(t *testing.T, mem *memory.Store, sym string, tier int, age time.Duration, state models.MarketState, keywords ...string) {
	t.Helper()
	item := models.NewsItem{
		Fingerprint:  uuid.NewString(),
		Symbol:       &sym,
		Headline:     sym + " news",
		Source:       "test",
		PublishedAt:  scanNow.Add(-age),
		CollectedAt:  scanNow,
		Keywords:     keywords,
		SourceTier:   tier,
		MarketState:  state,
		Confirmation: models.ConfirmationUnconfirmed,
		LastSeen:     scanNow,
	}
	_, err := mem.Upsert(context.Background(), item)
	require.NoError(t, err)
}

func goodSnapshot(sym string) models.MarketSnapshot {
	return models.MarketSnapshot{
		Symbol: sym, Price: 25, Volume: 2_000_000,
		RelativeVolume: 2.0, PriceChangePct: 3.0,
	}
}

func TestScanSelectsAndRanks(t *testing.T) {
	market := &fakeMarket{snaps: map[string]models.MarketSnapshot{
		"ACME": goodSnapshot("ACME"),
		"SYMB": goodSnapshot("SYMB"),
	}}
	s, mem := newTestScanner(t, market)

	// ACME has the stronger, fresher catalyst.
	storedNews(t, mem, "ACME", 1, 30*time.Minute, models.MarketRegular, "fda")
	storedNews(t, mem, "SYMB", 3, 3*time.Hour, models.MarketRegular, "earnings")

	result, err := s.Scan(context.Background(), models.ModeNormal)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "ACME", result.Candidates[0].Symbol)
	assert.Equal(t, 1, result.Candidates[0].SelectionRank)
	assert.Equal(t, "SYMB", result.Candidates[1].Symbol)
	assert.Equal(t, 2, result.Candidates[1].SelectionRank)
	assert.True(t, result.TechnicalValidated)

	for _, cand := range result.Candidates {
		assert.Equal(t, "selected", cand.Status)
		assert.Equal(t, result.ScanID, cand.ScanID)
		assert.True(t, cand.TechnicalValidated)
		assert.Greater(t, cand.CombinedScore, 0.0)
	}
	assert.Equal(t, "fda", result.Candidates[0].PrimaryCatalyst)

	// Persisted and retrievable, both by id and as the latest scan.
	stored, err := s.GetScanResults(context.Background(), result.ScanID)
	require.NoError(t, err)
	assert.Equal(t, result.ScanID, stored.ScanID)

	latest, err := s.GetScanResults(context.Background(), "latest")
	require.NoError(t, err)
	assert.Equal(t, result.ScanID, latest.ScanID)
}

func TestScanDropsSymbolMissingSnapshot(t *testing.T) {
	market := &fakeMarket{snaps: map[string]models.MarketSnapshot{
		"ACME": goodSnapshot("ACME"),
	}}
	s, mem := newTestScanner(t, market)
	storedNews(t, mem, "ACME", 1, time.Hour, models.MarketRegular, "fda")
	storedNews(t, mem, "SYMB", 1, time.Hour, models.MarketRegular, "fda")

	result, err := s.Scan(context.Background(), models.ModeNormal)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "ACME", result.Candidates[0].Symbol)
	assert.True(t, result.TechnicalValidated)
}

func TestScanSurvivesMarketDataOutage(t *testing.T) {
	market := &fakeMarket{snapsErr: errs.DependencyDown(errors.New("market data offline"))}
	s, mem := newTestScanner(t, market)
	storedNews(t, mem, "ACME", 1, time.Hour, models.MarketRegular, "fda")

	result, err := s.Scan(context.Background(), models.ModeNormal)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	cand := result.Candidates[0]
	assert.False(t, result.TechnicalValidated)
	assert.False(t, cand.TechnicalValidated)
	assert.Equal(t, cand.CatalystScore, cand.CombinedScore, "ranking degrades to catalyst only")
	assert.Zero(t, cand.Price)
}

func TestScanAppliesPriceAndVolumeGates(t *testing.T) {
	market := &fakeMarket{snaps: map[string]models.MarketSnapshot{
		"ACME": {Symbol: "ACME", Price: 700, Volume: 2_000_000, RelativeVolume: 2},  // too expensive
		"SYMB": {Symbol: "SYMB", Price: 25, Volume: 100_000, RelativeVolume: 2},     // too thin
		"AAPL": {Symbol: "AAPL", Price: 25, Volume: 2_000_000, RelativeVolume: 1.1}, // no volume surge
		"NVDA": goodSnapshot("NVDA"),
	}}
	s, mem := newTestScanner(t, market)
	for _, sym := range []string{"ACME", "SYMB", "AAPL", "NVDA"} {
		storedNews(t, mem, sym, 1, time.Hour, models.MarketRegular, "fda")
	}

	result, err := s.Scan(context.Background(), models.ModeNormal)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "NVDA", result.Candidates[0].Symbol)
}

func TestAggressiveModeLoosensGates(t *testing.T) {
	thin := goodSnapshot("ACME")
	thin.Volume = 150_000 // below the normal floor, above the aggressive one
	market := &fakeMarket{snaps: map[string]models.MarketSnapshot{"ACME": thin}}
	s, mem := newTestScanner(t, market)

	storedNews(t, mem, "ACME", 3, 2*time.Hour, models.MarketRegular, "guidance")

	normal, err := s.Scan(context.Background(), models.ModeNormal)
	require.NoError(t, err)
	assert.Empty(t, normal.Candidates)

	aggressive, err := s.Scan(context.Background(), models.ModeAggressive)
	require.NoError(t, err)
	require.Len(t, aggressive.Candidates, 1)
	assert.Equal(t, "ACME", aggressive.Candidates[0].Symbol)
}

func TestRankingTieBreaks(t *testing.T) {
	market := &fakeMarket{snaps: map[string]models.MarketSnapshot{
		"ACME": goodSnapshot("ACME"),
		"SYMB": goodSnapshot("SYMB"),
		"AAPL": goodSnapshot("AAPL"),
	}}
	s, mem := newTestScanner(t, market)

	// All three saturate the catalyst score; identical snapshots force the
	// tie-breaks: pre-market news first, then the better source tier, then
	// the symbol.
	for i := 0; i < 5; i++ {
		storedNews(t, mem, "SYMB", 1, 0, models.MarketPreMarket, "fda")
		storedNews(t, mem, "ACME", 2, 0, models.MarketRegular, "fda")
		storedNews(t, mem, "AAPL", 1, 0, models.MarketRegular, "fda")
	}

	result, err := s.Scan(context.Background(), models.ModeNormal)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 3)
	assert.Equal(t, "SYMB", result.Candidates[0].Symbol, "pre-market news wins the tie")
	assert.Equal(t, "AAPL", result.Candidates[1].Symbol, "then the better tier")
	assert.Equal(t, "ACME", result.Candidates[2].Symbol)
}

func TestScanSymbolsTargeted(t *testing.T) {
	market := &fakeMarket{
		snaps:  map[string]models.MarketSnapshot{"ACME": goodSnapshot("ACME")},
		active: []string{"NVDA", "AAPL"},
	}
	s, mem := newTestScanner(t, market)
	storedNews(t, mem, "ACME", 1, time.Hour, models.MarketRegular, "fda")
	storedNews(t, mem, "NVDA", 1, time.Hour, models.MarketRegular, "fda")

	result, err := s.ScanSymbols(context.Background(), models.ModeNormal, []string{"$acme"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.UniverseSize, "explicit lists skip universe discovery")
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "ACME", result.Candidates[0].Symbol)

	_, err = s.ScanSymbols(context.Background(), models.ModeNormal, nil)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestUniverseUnionsBaseline(t *testing.T) {
	market := &fakeMarket{
		snaps:  map[string]models.MarketSnapshot{"ACME": goodSnapshot("ACME")},
		active: []string{"NVDA", "AAPL"},
	}
	s, mem := newTestScanner(t, market)
	storedNews(t, mem, "ACME", 1, time.Hour, models.MarketRegular, "fda")

	result, err := s.Scan(context.Background(), models.ModeNormal)
	require.NoError(t, err)

	assert.Equal(t, 3, result.UniverseSize)
	require.Len(t, result.Candidates, 1, "baseline symbols without a catalyst are not selected")

	// A dead baseline narrows the universe instead of failing the scan.
	market.activeErr = errors.New("baseline offline")
	result, err = s.Scan(context.Background(), models.ModeNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, result.UniverseSize)
}

func TestBaselineSizeHonorsRuntimeOverride(t *testing.T) {
	market := &fakeMarket{active: []string{"NVDA"}}
	s, mem := newTestScanner(t, market)

	_, err := s.Scan(context.Background(), models.ModeNormal)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Scanner.BaselineSize, market.activeLimit)

	require.NoError(t, mem.SetConfig(context.Background(), "baseline_universe", "25", "ops"))
	_, err = s.Scan(context.Background(), models.ModeNormal)
	require.NoError(t, err)
	assert.Equal(t, 25, market.activeLimit)
}

func TestTopKIgnoresMaxPositions(t *testing.T) {
	syms := []string{"AAPL", "AMZN", "META", "MSFT", "NVDA", "TSLA"}
	snaps := make(map[string]models.MarketSnapshot, len(syms))
	for _, sym := range syms {
		snaps[sym] = goodSnapshot(sym)
	}
	s, mem := newTestScanner(t, &fakeMarket{snaps: snaps})
	for _, sym := range syms {
		storedNews(t, mem, sym, 1, time.Hour, models.MarketRegular, "fda")
	}

	// max_positions caps the trading collaborator, not the candidate list.
	require.NoError(t, mem.SetConfig(context.Background(), "max_positions", "1", "ops"))

	result, err := s.Scan(context.Background(), models.ModeNormal)
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 5)
}

func TestTierWeightOverrideChangesScoring(t *testing.T) {
	market := &fakeMarket{snaps: map[string]models.MarketSnapshot{
		"ACME": goodSnapshot("ACME"),
	}}
	s, mem := newTestScanner(t, market)
	storedNews(t, mem, "ACME", 1, 4*time.Hour, models.MarketRegular, "fda")

	result, err := s.Scan(context.Background(), models.ModeNormal)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)

	// Demoting tier 1 pushes the same catalyst below the score gate.
	require.NoError(t, mem.SetConfig(context.Background(), "tier_1_weight", "0.3", "ops"))

	result, err = s.Scan(context.Background(), models.ModeNormal)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
}

func TestGetScanResultsUnknown(t *testing.T) {
	s, _ := newTestScanner(t, &fakeMarket{})
	_, err := s.GetScanResults(context.Background(), "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = s.GetScanResults(context.Background(), "latest")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestScanRejectsUnknownMode(t *testing.T) {
	s, _ := newTestScanner(t, &fakeMarket{})
	_, err := s.Scan(context.Background(), models.CycleMode("warp"))
	assert.ErrorIs(t, err, errs.ErrValidation)
}
