package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/ratelimit"
)

// paginatedSearch adapts Alpha Vantage style news search endpoints that
// return pages of sentiment-tagged articles.
type paginatedSearch struct {
	cfg      config.SourceConfig
	client   *http.Client
	pageSize int
}

func newPaginatedSearch(cfg config.SourceConfig, client *http.Client) *paginatedSearch {
	return &paginatedSearch{cfg: cfg, client: client, pageSize: 50}
}

func (s *paginatedSearch) Name() string { return s.cfg.Name }
func (s *paginatedSearch) Tier() int    { return s.cfg.Tier }

func (s *paginatedSearch) RateLimit() ratelimit.Spec {
	return ratelimit.Spec{RPS: s.cfg.RPS, Burst: s.cfg.Burst}
}

type paginatedResponse struct {
	Feed []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		TimePublished string `json:"time_published"` // 20250824T093000
		Source        string `json:"source"`
		Summary       string `json:"summary"`
		Tickers       []struct {
			Ticker string `json:"ticker"`
		} `json:"ticker_sentiment"`
	} `json:"feed"`
}

func (s *paginatedSearch) Fetch(ctx context.Context, since time.Time, limit int) ([]models.RawArticle, error) {
	var articles []models.RawArticle
	for page := 0; len(articles) < limit; page++ {
		batch, err := s.fetchPage(ctx, since, page)
		if err != nil {
			return articles, err
		}
		if len(batch) == 0 {
			break
		}
		articles = append(articles, batch...)
		if len(batch) < s.pageSize {
			break
		}
	}
	if len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}

func (s *paginatedSearch) fetchPage(ctx context.Context, since time.Time, page int) ([]models.RawArticle, error) {
	q := url.Values{}
	q.Set("function", "NEWS_SENTIMENT")
	q.Set("time_from", since.UTC().Format("20060102T1504"))
	q.Set("sort", "EARLIEST")
	q.Set("limit", strconv.Itoa(s.pageSize))
	q.Set("page", strconv.Itoa(page))
	q.Set("apikey", s.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", s.cfg.Name, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", s.cfg.Name, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(s.cfg.Name, resp); err != nil {
		return nil, err
	}

	var body paginatedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", s.cfg.Name, err)
	}

	articles := make([]models.RawArticle, 0, len(body.Feed))
	for _, entry := range body.Feed {
		if entry.Title == "" || entry.URL == "" {
			continue
		}
		published, err := time.Parse("20060102T150405", entry.TimePublished)
		if err != nil {
			continue
		}
		publisher := entry.Source
		if publisher == "" {
			publisher = s.cfg.Name
		}
		raw := models.RawArticle{
			Headline:    entry.Title,
			Source:      publisher,
			URL:         entry.URL,
			PublishedAt: published.UTC(),
			Snippet:     entry.Summary,
			Metadata:    map[string]interface{}{"feed": s.cfg.Name},
		}
		if len(entry.Tickers) > 0 {
			raw.Symbol = entry.Tickers[0].Ticker
		}
		articles = append(articles, raw)
	}
	return articles, nil
}
