package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TradingApplication/catalyst-trading-system/internal/cache"
	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/metrics"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/news/sources"
	"github.com/TradingApplication/catalyst-trading-system/internal/persistence"
	"github.com/TradingApplication/catalyst-trading-system/internal/ratelimit"
)

const (
	fetchRetries     = 2
	retryBackoffBase = 500 * time.Millisecond
	initialLookback  = 24 * time.Hour
)

// modeParams tunes a collection cycle to its scheduler mode: which source
// tiers participate, how many articles each source may contribute, and the
// wall-clock budget for the whole fan-out.
type modeParams struct {
	maxTier      int
	perSourceCap int
	budget       time.Duration
}

func paramsFor(mode models.CycleMode) modeParams {
	switch mode {
	case models.ModeAggressive:
		return modeParams{maxTier: 5, perSourceCap: 100, budget: 120 * time.Second}
	case models.ModeLight:
		return modeParams{maxTier: 3, perSourceCap: 30, budget: 180 * time.Second}
	case models.ModeMinimal:
		return modeParams{maxTier: 2, perSourceCap: 20, budget: 300 * time.Second}
	default:
		return modeParams{maxTier: 5, perSourceCap: 50, budget: 180 * time.Second}
	}
}

// CollectionBudget returns the wall-clock budget one collection cycle gets
// in the given mode. Callers driving the collector over HTTP size their
// timeouts from this.
func CollectionBudget(mode models.CycleMode) time.Duration {
	return paramsFor(mode).budget
}

// MaxCollectionBudget is the largest budget across all modes.
func MaxCollectionBudget() time.Duration {
	max := time.Duration(0)
	for _, mode := range []models.CycleMode{
		models.ModeAggressive, models.ModeNormal, models.ModeLight, models.ModeMinimal,
	} {
		if b := paramsFor(mode).budget; b > max {
			max = b
		}
	}
	return max
}

// Collector fans out to the configured sources, normalizes and deduplicates
// what they return, and tracks cross-tier confirmations.
type Collector struct {
	store   persistence.Store
	cache   cache.Cache
	norm    *Normalizer
	limits  *ratelimit.Manager
	runtime *config.RuntimeStore
	sources []sources.Source
	workers int
	clock   func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// NewCollector wires the collector. Each source's rate limit is registered
// with the shared limiter up front.
func NewCollector(store persistence.Store, c cache.Cache, norm *Normalizer, srcs []sources.Source, workers int) *Collector {
	limits := ratelimit.NewManager()
	for _, src := range srcs {
		limits.Register(src.Name(), src.RateLimit())
	}
	if workers <= 0 {
		workers = 8
	}
	return &Collector{
		store:   store,
		cache:   c,
		norm:    norm,
		limits:  limits,
		runtime: config.NewRuntimeStore(store.Config, c),
		sources: srcs,
		workers: workers,
		clock:   time.Now,
		lastRun: make(map[string]time.Time),
	}
}

// SeedSources creates the metrics row for every configured source so the
// reliability report never has gaps.
func (c *Collector) SeedSources(ctx context.Context) error {
	for _, src := range c.sources {
		if err := c.store.SourceMetrics.Seed(ctx, src.Name(), src.Tier()); err != nil {
			return err
		}
	}
	return nil
}

// Collect runs one collection cycle. Source failures degrade the report;
// only a store failure aborts the cycle.
func (c *Collector) Collect(ctx context.Context, mode models.CycleMode) (models.CollectionReport, error) {
	if !mode.Valid() {
		return models.CollectionReport{}, errs.Validationf("unknown collection mode %q", mode)
	}
	params := paramsFor(mode)
	started := c.clock()

	ctx, cancel := context.WithTimeout(ctx, params.budget)
	defer cancel()

	report := models.CollectionReport{
		Mode:            mode,
		PerSourceCounts: make(map[string]int),
		StartedAt:       started,
	}

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, c.workers)
		rmu sync.Mutex
	)
	for _, src := range c.sources {
		if src.Tier() > params.maxTier {
			continue
		}
		wg.Add(1)
		go func(src sources.Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			count, newCount, dupCount, err := c.collectSource(ctx, src, params)

			rmu.Lock()
			defer rmu.Unlock()
			report.Articles += count
			report.New += newCount
			report.Duplicate += dupCount
			report.PerSourceCounts[src.Name()] = count
			if err != nil {
				report.Errors = append(report.Errors, src.Name()+": "+err.Error())
			}
		}(src)
	}
	wg.Wait()

	report.DurationMS = c.clock().Sub(started).Milliseconds()
	metrics.CollectionDuration.WithLabelValues(string(mode)).Observe(float64(report.DurationMS) / 1000)

	if report.New > 0 {
		if err := c.cache.InvalidatePattern(ctx, "news:*"); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate news cache")
		}
	}

	log.Info().
		Str("mode", string(mode)).
		Int("articles", report.Articles).
		Int("new", report.New).
		Int("duplicate", report.Duplicate).
		Int("source_errors", len(report.Errors)).
		Int64("duration_ms", report.DurationMS).
		Msg("Collection cycle complete")
	return report, nil
}

// collectSource fetches, normalizes, and stores one source's batch.
func (c *Collector) collectSource(ctx context.Context, src sources.Source, params modeParams) (count, newCount, dupCount int, err error) {
	name := src.Name()
	since := c.sinceFor(name)

	raw, err := c.fetchWithRetry(ctx, src, since, params.perSourceCap)
	if err != nil {
		return 0, 0, 0, err
	}

	now := c.clock()
	for _, article := range raw {
		item := c.norm.Normalize(article, src.Tier(), now)
		res, err := c.store.News.Upsert(ctx, item)
		if err != nil {
			metrics.ArticlesCollected.WithLabelValues(name, "error").Inc()
			log.Warn().Err(err).Str("source", name).Str("fingerprint", item.Fingerprint).
				Msg("Failed to store article")
			continue
		}
		count++
		if res.Created {
			newCount++
			metrics.ArticlesCollected.WithLabelValues(name, "new").Inc()
			if item.SourceTier <= 2 {
				c.confirmEarlierReports(ctx, item)
			}
		} else {
			dupCount++
			metrics.ArticlesCollected.WithLabelValues(name, "duplicate").Inc()
		}
	}

	if newCount > 0 {
		delta := models.SourceMetricsDelta{Source: name, Articles: int64(newCount)}
		if err := c.store.SourceMetrics.Increment(ctx, delta); err != nil {
			log.Warn().Err(err).Str("source", name).Msg("Failed to bump source article count")
		}
	}

	c.mu.Lock()
	c.lastRun[name] = now
	c.mu.Unlock()
	return count, newCount, dupCount, nil
}

// fetchWithRetry waits on the source's token bucket, then fetches with two
// retries on transient failures. A 429 halves the source's rate and ends its
// participation in this cycle.
func (c *Collector) fetchWithRetry(ctx context.Context, src sources.Source, since time.Time, limit int) ([]models.RawArticle, error) {
	name := src.Name()
	var lastErr error
	for attempt := 0; attempt <= fetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoffBase << (attempt - 1)):
			}
		}
		if err := c.limits.Wait(ctx, name); err != nil {
			return nil, err
		}

		raw, err := src.Fetch(ctx, since, limit)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if errs.Transient(err) {
			metrics.SourceErrors.WithLabelValues(name, "transient").Inc()
			log.Warn().Err(err).Str("source", name).Int("attempt", attempt+1).
				Msg("Source fetch failed, retrying")
			continue
		}
		if errors.Is(err, errs.ErrRateLimited) {
			c.limits.Throttle(name)
			metrics.SourceErrors.WithLabelValues(name, "rate_limited").Inc()
			log.Warn().Str("source", name).Msg("Source throttled for this cycle")
			return nil, err
		}
		metrics.SourceErrors.WithLabelValues(name, "dropped").Inc()
		return nil, err
	}
	metrics.SourceErrors.WithLabelValues(name, "dropped").Inc()
	return nil, lastErr
}

func (c *Collector) sinceFor(source string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastRun[source]; ok {
		return last
	}
	return c.clock().Add(-initialLookback)
}

// confirmEarlierReports marks unconfirmed tier-3..5 articles about the same
// symbol and catalyst as confirmed when a tier-1/2 article lands within the
// confirmation window. The delay recorded is how long the low-tier source
// led the confirming one.
func (c *Collector) confirmEarlierReports(ctx context.Context, confirming models.NewsItem) {
	if confirming.Symbol == nil || len(confirming.Keywords) == 0 {
		return
	}
	earlier, err := c.store.News.Range(ctx, persistence.TimeRange{
		From: confirming.PublishedAt.Add(-confirmationWindow),
		To:   confirming.PublishedAt,
	}, persistence.NewsFilter{Symbol: *confirming.Symbol, Unconfirmed: true})
	if err != nil {
		log.Warn().Err(err).Str("symbol", *confirming.Symbol).
			Msg("Confirmation lookup failed")
		return
	}

	confirmingSet := categorySet(confirming.Keywords)
	for _, item := range earlier {
		if item.SourceTier <= 2 || item.PublishedAt.After(confirming.PublishedAt) {
			continue
		}
		if !overlaps(confirmingSet, item.Keywords) {
			continue
		}
		delay := int(confirming.PublishedAt.Sub(item.PublishedAt).Minutes())
		if err := c.store.News.MarkConfirmed(ctx, item.Fingerprint, confirming.Source, delay); err != nil {
			log.Warn().Err(err).Str("fingerprint", item.Fingerprint).
				Msg("Failed to mark article confirmed")
			continue
		}
		metrics.ConfirmationsTotal.Inc()
		log.Info().
			Str("symbol", *confirming.Symbol).
			Str("confirmed_source", item.Source).
			Str("confirming_source", confirming.Source).
			Int("delay_minutes", delay).
			Msg("Low-tier article confirmed")
	}
}

func categorySet(categories []string) map[string]bool {
	set := make(map[string]bool, len(categories))
	for _, c := range categories {
		set[c] = true
	}
	return set
}

func overlaps(set map[string]bool, categories []string) bool {
	for _, c := range categories {
		if set[c] {
			return true
		}
	}
	return false
}

// SearchQuery narrows a news search. Since/Until bound the window when set;
// otherwise the window is the trailing Hours (default 24).
type SearchQuery struct {
	Symbol       string
	Hours        int
	Since        time.Time
	Until        time.Time
	MinTier      int
	Categories   []string
	BreakingOnly bool
	Limit        int
}

// Search returns stored articles matching the query, newest first.
func (c *Collector) Search(ctx context.Context, q SearchQuery) ([]models.NewsItem, error) {
	if q.Hours <= 0 {
		q.Hours = 24
	}
	now := c.clock()
	tr := persistence.TimeRange{
		From: now.Add(-time.Duration(q.Hours) * time.Hour),
		To:   now,
	}
	if !q.Since.IsZero() {
		tr.From = q.Since
	}
	if !q.Until.IsZero() {
		tr.To = q.Until
	}
	return c.store.News.Range(ctx, tr, persistence.NewsFilter{
		Symbol:       strings.ToUpper(strings.TrimPrefix(q.Symbol, "$")),
		MinTier:      q.MinTier,
		Categories:   q.Categories,
		BreakingOnly: q.BreakingOnly,
		Limit:        q.Limit,
	})
}

// UpdateOutcome appends the realized market reaction to a stored article.
func (c *Collector) UpdateOutcome(ctx context.Context, fingerprint string, outcome models.NewsOutcome) error {
	return c.store.News.UpdateOutcome(ctx, fingerprint, outcome)
}

// SourceAnalysis returns the per-source reliability report.
func (c *Collector) SourceAnalysis(ctx context.Context) ([]models.SourceMetrics, error) {
	return c.store.SourceMetrics.List(ctx)
}

// TrendingTopic summarizes one active narrative cluster.
type TrendingTopic struct {
	ClusterID      string    `json:"cluster_id"`
	Symbol         string    `json:"symbol"`
	Categories     []string  `json:"categories"`
	Articles       int       `json:"articles"`
	Sources        int       `json:"distinct_sources"`
	LatestHeadline string    `json:"latest_headline"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// Trending groups the window's articles by narrative cluster and ranks
// clusters by article count. Results are cached until the next collection
// lands a new article; the operator's news_cache_ttl entry (seconds) bounds
// the cache lifetime.
func (c *Collector) Trending(ctx context.Context, hours, limit int) ([]TrendingTopic, error) {
	if hours <= 0 {
		hours = 24
	}
	if limit <= 0 {
		limit = 10
	}

	key := fmt.Sprintf("news:trending:%dh:%d", hours, limit)
	if cached, err := c.cache.Get(ctx, key); err == nil {
		var topics []TrendingTopic
		if err := json.Unmarshal([]byte(cached), &topics); err == nil {
			return topics, nil
		}
	}

	now := c.clock()
	items, err := c.store.News.Range(ctx, persistence.TimeRange{
		From: now.Add(-time.Duration(hours) * time.Hour),
		To:   now,
	}, persistence.NewsFilter{})
	if err != nil {
		return nil, err
	}

	byCluster := make(map[string][]models.NewsItem)
	for _, item := range items {
		if item.ClusterID == nil {
			continue
		}
		byCluster[*item.ClusterID] = append(byCluster[*item.ClusterID], item)
	}

	topics := make([]TrendingTopic, 0, len(byCluster))
	for id, group := range byCluster {
		topics = append(topics, summarizeCluster(id, group))
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Articles != topics[j].Articles {
			return topics[i].Articles > topics[j].Articles
		}
		return topics[i].LastSeen.After(topics[j].LastSeen)
	})
	if len(topics) > limit {
		topics = topics[:limit]
	}

	ttl := time.Duration(c.runtime.Int(ctx, config.KeyNewsCacheTTL, int64(cache.NewsTTL/time.Second))) * time.Second
	if ttl > 0 {
		if payload, err := json.Marshal(topics); err == nil {
			if err := c.cache.Set(ctx, key, string(payload), ttl); err != nil {
				log.Warn().Err(err).Msg("Failed to cache trending topics")
			}
		}
	}
	return topics, nil
}

// summarizeCluster reduces a cluster's articles to a TrendingTopic. Items
// arrive newest first from the store.
func summarizeCluster(id string, group []models.NewsItem) TrendingTopic {
	topic := TrendingTopic{
		ClusterID:      id,
		Articles:       len(group),
		LatestHeadline: group[0].Headline,
		FirstSeen:      group[0].PublishedAt,
		LastSeen:       group[0].PublishedAt,
	}
	if group[0].Symbol != nil {
		topic.Symbol = *group[0].Symbol
	}
	topic.Categories = group[0].Keywords

	distinct := make(map[string]bool)
	for _, item := range group {
		distinct[item.Source] = true
		if item.PublishedAt.Before(topic.FirstSeen) {
			topic.FirstSeen = item.PublishedAt
		}
		if item.PublishedAt.After(topic.LastSeen) {
			topic.LastSeen = item.PublishedAt
		}
	}
	topic.Sources = len(distinct)
	return topic
}
