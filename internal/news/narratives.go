package news

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TradingApplication/catalyst-trading-system/internal/metrics"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/persistence"
)

// Coordinated-narrative thresholds: a cluster qualifies when at least this
// many articles from this many distinct sources land inside the burst window.
const (
	narrativeLookback    = 24 * time.Hour
	narrativeMinArticles = 4
	narrativeMinSources  = 3
	narrativeBurstWindow = 2 * time.Hour
)

// SweepNarratives scans the last day's clusters for coordinated messaging:
// many sources pushing the same symbol-and-catalyst story inside a tight
// window. Qualifying clusters are persisted for the reporting surface.
// Returns the number of clusters detected this sweep.
func (c *Collector) SweepNarratives(ctx context.Context) (int, error) {
	now := c.clock()
	items, err := c.store.News.Range(ctx, persistence.TimeRange{
		From: now.Add(-narrativeLookback),
		To:   now,
	}, persistence.NewsFilter{})
	if err != nil {
		return 0, err
	}

	byCluster := make(map[string][]models.NewsItem)
	for _, item := range items {
		if item.ClusterID == nil || item.Symbol == nil {
			continue
		}
		byCluster[*item.ClusterID] = append(byCluster[*item.ClusterID], item)
	}

	detected := 0
	for id, group := range byCluster {
		cluster, ok := qualifyCluster(id, group, now)
		if !ok {
			continue
		}
		if err := c.store.Narratives.Insert(ctx, cluster); err != nil {
			log.Warn().Err(err).Str("cluster_id", id).Msg("Failed to store narrative cluster")
			continue
		}
		detected++
		metrics.NarrativeClusters.Inc()
		log.Info().
			Str("cluster_id", id).
			Str("symbol", cluster.Symbol).
			Int("articles", cluster.Articles).
			Int("sources", cluster.DistinctSources).
			Float64("score", cluster.CoordinationScore).
			Msg("Coordinated narrative detected")
	}
	return detected, nil
}

// qualifyCluster applies the coordination thresholds and scores the cluster.
// Score rewards source breadth and volume, and penalizes spread: a story
// everyone runs at once is more suspicious than one that trickles out.
func qualifyCluster(id string, group []models.NewsItem, now time.Time) (models.NarrativeCluster, bool) {
	first, last := group[0].PublishedAt, group[0].PublishedAt
	distinct := make(map[string]bool)
	for _, item := range group {
		distinct[item.Source] = true
		if item.PublishedAt.Before(first) {
			first = item.PublishedAt
		}
		if item.PublishedAt.After(last) {
			last = item.PublishedAt
		}
	}

	spread := last.Sub(first)
	if len(group) < narrativeMinArticles || len(distinct) < narrativeMinSources || spread >= narrativeBurstWindow {
		return models.NarrativeCluster{}, false
	}

	spreadHours := spread.Hours()
	score := 20*float64(len(distinct)) + 10*float64(len(group)) - 5*spreadHours
	if score > 100 {
		score = 100
	}

	return models.NarrativeCluster{
		ClusterID:         id,
		Symbol:            *group[0].Symbol,
		Date:              first.UTC().Format("2006-01-02"),
		Keywords:          group[0].Keywords,
		Articles:          len(group),
		DistinctSources:   len(distinct),
		SpreadHours:       spreadHours,
		CoordinationScore: score,
		FirstSeen:         first,
		LastSeen:          last,
		DetectedAt:        now,
	}, true
}

// Narratives returns the clusters detected since the given time.
func (c *Collector) Narratives(ctx context.Context, since time.Time) ([]models.NarrativeCluster, error) {
	return c.store.Narratives.ListSince(ctx, since)
}
