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

// restJSON adapts NewsAPI-style providers: a single keyed GET returning a
// flat JSON article list.
type restJSON struct {
	cfg    config.SourceConfig
	client *http.Client
}

func newRESTJSON(cfg config.SourceConfig, client *http.Client) *restJSON {
	return &restJSON{cfg: cfg, client: client}
}

func (s *restJSON) Name() string { return s.cfg.Name }
func (s *restJSON) Tier() int    { return s.cfg.Tier }

func (s *restJSON) RateLimit() ratelimit.Spec {
	return ratelimit.Spec{RPS: s.cfg.RPS, Burst: s.cfg.Burst}
}

type restJSONResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

func (s *restJSON) Fetch(ctx context.Context, since time.Time, limit int) ([]models.RawArticle, error) {
	q := url.Values{}
	q.Set("q", "stock OR shares OR earnings")
	q.Set("language", "en")
	q.Set("sortBy", "publishedAt")
	q.Set("from", since.UTC().Format(time.RFC3339))
	q.Set("pageSize", strconv.Itoa(limit))
	q.Set("apiKey", s.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/everything?"+q.Encode(), nil)
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

	var body restJSONResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", s.cfg.Name, err)
	}

	articles := make([]models.RawArticle, 0, len(body.Articles))
	for _, a := range body.Articles {
		if a.Title == "" || a.URL == "" {
			continue
		}
		publisher := a.Source.Name
		if publisher == "" {
			publisher = s.cfg.Name
		}
		articles = append(articles, models.RawArticle{
			Headline:    a.Title,
			Source:      publisher,
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
			Snippet:     a.Description,
			Metadata:    map[string]interface{}{"feed": s.cfg.Name},
		})
		if len(articles) >= limit {
			break
		}
	}
	return articles, nil
}
