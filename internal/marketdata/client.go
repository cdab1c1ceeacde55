// Package marketdata is the HTTP client for the market data collaborator.
// The scanner uses it for technical validation snapshots and for the
// most-active baseline universe.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
)

// Client talks to the market data service.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a client for the service at base.
func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type snapshotsResponse struct {
	Snapshots []models.MarketSnapshot `json:"snapshots"`
}

// Snapshots returns current snapshots for the requested symbols, keyed by
// symbol. Symbols the service cannot quote are simply absent; the caller
// decides whether a gap is fatal.
func (c *Client) Snapshots(ctx context.Context, symbols []string) (map[string]models.MarketSnapshot, error) {
	if len(symbols) == 0 {
		return map[string]models.MarketSnapshot{}, nil
	}
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))

	var body snapshotsResponse
	if err := c.getJSON(ctx, "/v1/snapshots?"+q.Encode(), &body); err != nil {
		return nil, err
	}

	out := make(map[string]models.MarketSnapshot, len(body.Snapshots))
	for _, snap := range body.Snapshots {
		out[snap.Symbol] = snap
	}
	return out, nil
}

// MostActive returns the day's highest-volume symbols, used as the baseline
// scan universe.
func (c *Client) MostActive(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var body struct {
		Symbols []string `json:"symbols"`
	}
	if err := c.getJSON(ctx, "/v1/most_active?limit="+strconv.Itoa(limit), &body); err != nil {
		return nil, err
	}
	return body.Symbols, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("market data: failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.DependencyDown(fmt.Errorf("market data: %v", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("market data: %w", errs.ErrRateLimited)
	case resp.StatusCode >= 500:
		return errs.DependencyDown(fmt.Errorf("market data: status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("market data: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("market data: failed to decode response: %w", err)
	}
	return nil
}
