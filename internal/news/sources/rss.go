package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/ratelimit"
)

// rssSource polls one or more RSS/Atom feeds through gofeed.
type rssSource struct {
	cfg    config.SourceConfig
	parser *gofeed.Parser
}

func newRSS(cfg config.SourceConfig, client *http.Client) *rssSource {
	parser := gofeed.NewParser()
	parser.Client = client
	return &rssSource{cfg: cfg, parser: parser}
}

func (s *rssSource) Name() string { return s.cfg.Name }
func (s *rssSource) Tier() int    { return s.cfg.Tier }

func (s *rssSource) RateLimit() ratelimit.Spec {
	return ratelimit.Spec{RPS: s.cfg.RPS, Burst: s.cfg.Burst}
}

func (s *rssSource) Fetch(ctx context.Context, since time.Time, limit int) ([]models.RawArticle, error) {
	var articles []models.RawArticle
	var lastErr error
	for _, feedURL := range s.cfg.Feeds {
		feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			// One dead feed must not sink the others.
			lastErr = fmt.Errorf("%s: failed to parse feed %s: %w", s.cfg.Name, feedURL, err)
			continue
		}
		for _, item := range feed.Items {
			if item.Title == "" || item.Link == "" || item.PublishedParsed == nil {
				continue
			}
			if item.PublishedParsed.Before(since) {
				continue
			}
			articles = append(articles, models.RawArticle{
				Headline:    item.Title,
				Source:      s.cfg.Name,
				URL:         item.Link,
				PublishedAt: item.PublishedParsed.UTC(),
				Snippet:     item.Description,
				Metadata:    map[string]interface{}{"feed": feedURL},
			})
			if len(articles) >= limit {
				return articles, nil
			}
		}
	}
	if len(articles) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return articles, nil
}
