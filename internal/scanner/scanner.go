package scanner

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/TradingApplication/catalyst-trading-system/internal/cache"
	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/metrics"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/news"
	"github.com/TradingApplication/catalyst-trading-system/internal/persistence"
)

// ScanBudget is the wall-clock contract for one scan: callers driving the
// scanner over HTTP size their timeouts from it.
const ScanBudget = 30 * time.Second

const (
	newsLookback   = 24 * time.Hour
	latestScanKey  = "scan:latest"
	scanKeyPrefix  = "scan:"
	defaultTopK    = 5
	defaultBaseCap = 100
)

// MarketData is the slice of the market data collaborator the scanner needs.
type MarketData interface {
	Snapshots(ctx context.Context, symbols []string) (map[string]models.MarketSnapshot, error)
	MostActive(ctx context.Context, limit int) ([]string, error)
}

// Scanner builds ranked candidate lists from stored news and live market
// data.
type Scanner struct {
	store   persistence.Store
	cache   cache.Cache
	market  MarketData
	runtime *config.RuntimeStore
	cfg     config.ScannerConfig
	clock   func() time.Time
}

// New wires a scanner.
func New(store persistence.Store, c cache.Cache, market MarketData, runtime *config.RuntimeStore, cfg config.ScannerConfig) *Scanner {
	return &Scanner{
		store:   store,
		cache:   c,
		market:  market,
		runtime: runtime,
		cfg:     cfg,
		clock:   time.Now,
	}
}

// gates are the thresholds one scan runs under, resolved from the runtime
// configuration with mode-specific defaults.
type gates struct {
	minCatalyst float64
	minPrice    float64
	maxPrice    float64
	minVolume   int64
	minRelVol   float64
	topK        int
	tierWeights map[int]float64
}

func (s *Scanner) gatesFor(ctx context.Context, mode models.CycleMode) gates {
	g := gates{
		minCatalyst: s.runtime.Float(ctx, config.KeyMinCatalystScore, s.cfg.MinCatalystScore),
		minPrice:    s.runtime.Float(ctx, config.KeyMinPrice, s.cfg.MinPrice),
		maxPrice:    s.runtime.Float(ctx, config.KeyMaxPrice, s.cfg.MaxPrice),
		minVolume:   s.runtime.Int(ctx, config.KeyMinVolume, s.cfg.MinVolume),
		minRelVol:   s.runtime.Float(ctx, config.KeyMinRelativeVolume, s.cfg.MinRelativeVolume),
		topK:        s.cfg.TopK,
		tierWeights: s.tierWeightsFor(ctx),
	}
	if mode == models.ModeAggressive {
		// Pre-market cycles accept weaker catalysts and thinner volume.
		g.minCatalyst = s.cfg.AggressiveMinCatalystScore
		g.minVolume = s.cfg.AggressiveMinVolume
	}
	if g.topK <= 0 {
		g.topK = defaultTopK
	}
	return g
}

// tierWeightsFor resolves the per-tier scoring weights, letting operators
// override individual tiers at runtime.
func (s *Scanner) tierWeightsFor(ctx context.Context) map[int]float64 {
	weights := make(map[int]float64, len(defaultTierWeights))
	for tier, def := range defaultTierWeights {
		weights[tier] = s.runtime.Float(ctx, config.TierWeightKey(tier), def)
	}
	return weights
}

// Scan runs the full candidate selection pipeline for the given mode.
func (s *Scanner) Scan(ctx context.Context, mode models.CycleMode) (*models.ScanResult, error) {
	if !mode.Valid() {
		return nil, errs.Validationf("unknown scan mode %q", mode)
	}
	return s.run(ctx, mode, nil)
}

// ScanSymbols runs the pipeline against an explicit symbol list, skipping
// universe discovery. Used for targeted re-scans.
func (s *Scanner) ScanSymbols(ctx context.Context, mode models.CycleMode, symbols []string) (*models.ScanResult, error) {
	if len(symbols) == 0 {
		return nil, errs.Validationf("no symbols given")
	}
	if !mode.Valid() {
		mode = models.ModeNormal
	}
	upper := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		upper = append(upper, strings.ToUpper(strings.TrimPrefix(sym, "$")))
	}
	return s.run(ctx, mode, upper)
}

func (s *Scanner) run(ctx context.Context, mode models.CycleMode, explicit []string) (*models.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, ScanBudget)
	defer cancel()

	started := s.clock()
	g := s.gatesFor(ctx, mode)

	bySymbol, err := s.newsBySymbol(ctx, started, g.tierWeights)
	if err != nil {
		return nil, err
	}

	universe := explicit
	if universe == nil {
		universe = s.discoverUniverse(ctx, bySymbol)
	}

	// Stage 1: catalyst filter.
	scored := s.catalystFilter(universe, bySymbol, g, started)

	// Stage 2: technical validation. A total market-data outage degrades to
	// catalyst-only ranking; a missing symbol drops just that symbol.
	candidates, validated := s.validate(ctx, scored, g)

	// Stage 3: rank and cut.
	rank(candidates)
	if len(candidates) > g.topK {
		candidates = candidates[:g.topK]
	}

	result := &models.ScanResult{
		ScanID:             uuid.NewString(),
		Mode:               string(mode),
		StartedAt:          started,
		UniverseSize:       len(universe),
		CatalystFiltered:   len(scored),
		TechnicalValidated: validated,
		DurationMS:         s.clock().Sub(started).Milliseconds(),
	}
	for i := range candidates {
		candidates[i].ScanID = result.ScanID
		candidates[i].SelectedAt = started
		candidates[i].SelectionRank = i + 1
		candidates[i].Status = "selected"
	}
	result.Candidates = candidates

	if err := s.store.Candidates.InsertScan(ctx, *result); err != nil {
		return nil, err
	}
	s.cacheResult(ctx, result)

	metrics.ScanDuration.WithLabelValues(string(mode)).Observe(float64(result.DurationMS) / 1000)
	metrics.CandidatesSelected.Observe(float64(len(candidates)))
	log.Info().
		Str("scan_id", result.ScanID).
		Str("mode", string(mode)).
		Int("universe", result.UniverseSize).
		Int("catalyst_filtered", result.CatalystFiltered).
		Int("candidates", len(candidates)).
		Bool("technical_validated", validated).
		Msg("Scan complete")
	return result, nil
}

// newsBySymbol groups the lookback window's articles per symbol, keeping
// only items that individually clear the noise floor.
func (s *Scanner) newsBySymbol(ctx context.Context, now time.Time, tiers map[int]float64) (map[string][]models.NewsItem, error) {
	items, err := s.store.News.Range(ctx, persistence.TimeRange{
		From: now.Add(-newsLookback),
		To:   now,
	}, persistence.NewsFilter{})
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string][]models.NewsItem)
	for _, item := range items {
		if item.Symbol == nil {
			continue
		}
		if itemScore(item, now, tiers) < s.cfg.ItemScoreThreshold {
			continue
		}
		bySymbol[*item.Symbol] = append(bySymbol[*item.Symbol], item)
	}
	return bySymbol, nil
}

// discoverUniverse unions the news-active symbols with the most-active
// baseline. Baseline failure narrows the scan instead of failing it.
func (s *Scanner) discoverUniverse(ctx context.Context, bySymbol map[string][]models.NewsItem) []string {
	seen := make(map[string]bool, len(bySymbol))
	var universe []string
	for sym := range bySymbol {
		seen[sym] = true
		universe = append(universe, sym)
	}

	size := int(s.runtime.Int(ctx, config.KeyBaselineUniverse, int64(s.cfg.BaselineSize)))
	if size <= 0 {
		size = defaultBaseCap
	}
	baseline, err := s.market.MostActive(ctx, size)
	if err != nil {
		log.Warn().Err(err).Msg("Baseline universe unavailable, scanning news symbols only")
	}
	for _, sym := range baseline {
		if !seen[sym] {
			seen[sym] = true
			universe = append(universe, sym)
		}
	}
	sort.Strings(universe)
	return universe
}

// catalystFilter scores every universe symbol and keeps the strongest, up to
// the filter cap.
func (s *Scanner) catalystFilter(universe []string, bySymbol map[string][]models.NewsItem, g gates, now time.Time) []models.TradingCandidate {
	var scored []models.TradingCandidate
	for _, sym := range universe {
		items := bySymbol[sym]
		score := catalystScore(items, now, g.tierWeights)
		if score < g.minCatalyst {
			continue
		}
		scored = append(scored, buildCandidate(sym, items, score, now, g.tierWeights))
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].CatalystScore > scored[j].CatalystScore
	})
	limit := s.cfg.CatalystFilterCap
	if limit <= 0 {
		limit = 20
	}
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func buildCandidate(sym string, items []models.NewsItem, score float64, now time.Time, tiers map[int]float64) models.TradingCandidate {
	cand := models.TradingCandidate{
		Symbol:        sym,
		CatalystScore: score,
		NewsCount:     len(items),
		BestSourceTier: func() int {
			best := 5
			for _, item := range items {
				if item.SourceTier < best {
					best = item.SourceTier
				}
			}
			return best
		}(),
	}

	var best models.NewsItem
	bestScore := -1.0
	keywords := make(map[string]bool)
	for _, item := range items {
		if item.MarketState == models.MarketPreMarket {
			cand.HasPreMarketNews = true
		}
		for _, k := range item.Keywords {
			keywords[k] = true
		}
		if is := itemScore(item, now, tiers); is > bestScore {
			bestScore, best = is, item
		}
	}
	for k := range keywords {
		cand.CatalystKeywords = append(cand.CatalystKeywords, k)
	}
	sort.Strings(cand.CatalystKeywords)
	cand.PrimaryCatalyst = news.PrimaryCategory(best.Keywords)
	return cand
}

// validate applies the market-data gates. Returns the surviving candidates
// and whether technical validation actually ran.
func (s *Scanner) validate(ctx context.Context, scored []models.TradingCandidate, g gates) ([]models.TradingCandidate, bool) {
	if len(scored) == 0 {
		return nil, true
	}
	symbols := make([]string, len(scored))
	for i, cand := range scored {
		symbols[i] = cand.Symbol
	}

	snaps, err := s.market.Snapshots(ctx, symbols)
	if err != nil {
		metrics.MarketDataFailures.Inc()
		log.Warn().Err(err).Msg("Market data unavailable, ranking on catalyst only")
		for i := range scored {
			scored[i].CombinedScore = scored[i].CatalystScore
		}
		return scored, false
	}

	out := scored[:0]
	for _, cand := range scored {
		snap, ok := snaps[cand.Symbol]
		if !ok {
			metrics.MarketDataFailures.Inc()
			log.Debug().Str("symbol", cand.Symbol).Msg("No snapshot, dropping candidate")
			continue
		}
		if snap.Price < g.minPrice || snap.Price > g.maxPrice ||
			snap.Volume < g.minVolume || snap.RelativeVolume < g.minRelVol {
			continue
		}
		cand.Price = snap.Price
		cand.Volume = snap.Volume
		cand.RelativeVolume = snap.RelativeVolume
		cand.PriceChangePct = snap.PriceChangePct
		cand.PreMarketVolume = snap.PreMarketVolume
		cand.PreMarketChange = snap.PreMarketChangePct
		cand.TechnicalScore = TechnicalScore(snap)
		cand.CombinedScore = CombinedScore(cand.CatalystScore, cand.TechnicalScore)
		cand.TechnicalValidated = true
		out = append(out, cand)
	}
	return out, true
}

// rank orders candidates by combined score; ties prefer pre-market news,
// then the better source tier, then the symbol itself for determinism.
func rank(candidates []models.TradingCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if a.HasPreMarketNews != b.HasPreMarketNews {
			return a.HasPreMarketNews
		}
		if a.BestSourceTier != b.BestSourceTier {
			return a.BestSourceTier < b.BestSourceTier
		}
		return a.Symbol < b.Symbol
	})
}

func (s *Scanner) cacheResult(ctx context.Context, result *models.ScanResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	for _, key := range []string{latestScanKey, scanKeyPrefix + result.ScanID} {
		if err := s.cache.Set(ctx, key, string(payload), cache.CandidatesTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to cache scan result")
		}
	}
}

// GetScanResults returns a stored scan. An empty or "latest" id serves the
// most recent scan from cache when it is still warm.
func (s *Scanner) GetScanResults(ctx context.Context, scanID string) (*models.ScanResult, error) {
	if scanID == "" || scanID == "latest" {
		cached, err := s.cache.Get(ctx, latestScanKey)
		if err != nil {
			return nil, errs.NotFoundf("no recent scan")
		}
		var result models.ScanResult
		if err := json.Unmarshal([]byte(cached), &result); err != nil {
			return nil, errs.NotFoundf("no recent scan")
		}
		return &result, nil
	}

	if cached, err := s.cache.Get(ctx, scanKeyPrefix+scanID); err == nil {
		var result models.ScanResult
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			return &result, nil
		}
	}
	return s.store.Candidates.GetScan(ctx, scanID)
}
