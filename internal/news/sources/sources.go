// Package sources implements the pluggable news source adapters the
// collector fans out to. Each adapter translates one upstream API shape into
// RawArticle values; normalization and deduplication happen downstream.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/ratelimit"
)

// Source fetches raw articles from one upstream provider.
type Source interface {
	Name() string
	Tier() int
	RateLimit() ratelimit.Spec

	// Fetch returns up to limit articles published after since. A nil error
	// with an empty slice is a valid quiet-window result.
	Fetch(ctx context.Context, since time.Time, limit int) ([]models.RawArticle, error)
}

// Build constructs the enabled sources from configuration. An unknown kind
// is a configuration error, not a silent skip.
func Build(cfgs []config.SourceConfig, client *http.Client) ([]Source, error) {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	var built []Source
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		switch cfg.Kind {
		case "rest_json":
			built = append(built, newRESTJSON(cfg, client))
		case "paginated_search":
			built = append(built, newPaginatedSearch(cfg, client))
		case "rss":
			built = append(built, newRSS(cfg, client))
		default:
			return nil, errs.Validationf("unknown source kind %q for %s", cfg.Kind, cfg.Name)
		}
	}
	return built, nil
}

// checkStatus maps upstream HTTP status codes onto the collector's error
// taxonomy so retry and throttling decisions stay uniform across adapters.
func checkStatus(source string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: upstream throttled: %w", source, errs.ErrRateLimited)
	case resp.StatusCode >= 500:
		return errs.DependencyDown(fmt.Errorf("%s: upstream status %d", source, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: unexpected status %d: %s", source, resp.StatusCode, string(body))
	}
	return nil
}
