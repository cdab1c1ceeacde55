package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
)

// Ports to the collaborator services, one per workflow stage. The HTTP
// clients below implement them; tests substitute in-process fakes.
type (
	NewsPort interface {
		Collect(ctx context.Context, mode models.CycleMode) (models.CollectionReport, error)
	}
	ScanPort interface {
		Scan(ctx context.Context, mode models.CycleMode) (*models.ScanResult, error)
	}
	AnalyzePort interface {
		Analyze(ctx context.Context, scanID string, symbols []string) (int, error)
	}
	SignalPort interface {
		Signal(ctx context.Context, scanID string) (int, error)
	}
	ExecutePort interface {
		Execute(ctx context.Context, cycleID, scanID string) (ExecutionReport, error)
	}
)

// ExecutionReport is the trading collaborator's stage result.
type ExecutionReport struct {
	TradesExecuted int     `json:"trades_executed"`
	CyclePnL       float64 `json:"cycle_pnl"`
}

// HealthProbe checks one dependency for the service_health report.
type HealthProbe interface {
	Name() string
	Healthy(ctx context.Context) error
}

// collab is a circuit-broken HTTP client for one collaborator service. The
// breaker opens after five consecutive failures and recovers after 30s, so
// a dead collaborator fails cycles fast instead of eating the stage budget.
type collab struct {
	name    string
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func newCollab(name, base string, timeout time.Duration) *collab {
	return &collab{
		name: name,
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("collaborator", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Collaborator circuit state changed")
			},
		}),
	}
}

func (c *collab) postJSON(ctx context.Context, path string, payload, dest interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to encode request: %w", c.name, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%s: failed to build request: %w", c.name, err)
		}
		req.Header.Set("Content-Type", "application/json")
		return nil, c.do(req, dest)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errs.DependencyDown(fmt.Errorf("%s: circuit open", c.name))
	}
	return err
}

func (c *collab) getJSON(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", c.name, err)
	}
	return c.do(req, dest)
}

func (c *collab) do(req *http.Request, dest interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.DependencyDown(fmt.Errorf("%s: %v", c.name, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", c.name, errs.ErrRateLimited)
	case resp.StatusCode >= 500:
		return errs.DependencyDown(fmt.Errorf("%s: status %d", c.name, resp.StatusCode))
	case resp.StatusCode >= 400:
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return errs.Validationf("%s: %s", c.name, apiErr.Message)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", c.name, err)
	}
	return nil
}

func (c *collab) Name() string { return c.name }

func (c *collab) Healthy(ctx context.Context) error {
	return c.getJSON(ctx, "/health", nil)
}

// NewsClient drives the news service's collection endpoint.
type NewsClient struct{ *collab }

// NewNewsClient builds the client for the news service at base.
func NewNewsClient(base string, timeout time.Duration) *NewsClient {
	return &NewsClient{newCollab("news", base, timeout)}
}

func (c *NewsClient) Collect(ctx context.Context, mode models.CycleMode) (models.CollectionReport, error) {
	var resp struct {
		Report models.CollectionReport `json:"report"`
	}
	err := c.postJSON(ctx, "/collect_news", map[string]string{"mode": string(mode)}, &resp)
	return resp.Report, err
}

// ScannerClient drives the scanner service.
type ScannerClient struct{ *collab }

// NewScannerClient builds the client for the scanner service at base.
func NewScannerClient(base string, timeout time.Duration) *ScannerClient {
	return &ScannerClient{newCollab("scanner", base, timeout)}
}

func (c *ScannerClient) Scan(ctx context.Context, mode models.CycleMode) (*models.ScanResult, error) {
	var resp struct {
		Result models.ScanResult `json:"result"`
	}
	if err := c.postJSON(ctx, "/scan", map[string]string{"mode": string(mode)}, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// PatternClient drives the pattern analysis collaborator.
type PatternClient struct{ *collab }

// NewPatternClient builds the client for the pattern service at base.
func NewPatternClient(base string, timeout time.Duration) *PatternClient {
	return &PatternClient{newCollab("pattern", base, timeout)}
}

func (c *PatternClient) Analyze(ctx context.Context, scanID string, symbols []string) (int, error) {
	var resp struct {
		PatternsAnalyzed int `json:"patterns_analyzed"`
	}
	err := c.postJSON(ctx, "/analyze_patterns", map[string]interface{}{
		"scan_id": scanID,
		"symbols": symbols,
	}, &resp)
	return resp.PatternsAnalyzed, err
}

// TechnicalClient drives the signal generation collaborator.
type TechnicalClient struct{ *collab }

// NewTechnicalClient builds the client for the technical service at base.
func NewTechnicalClient(base string, timeout time.Duration) *TechnicalClient {
	return &TechnicalClient{newCollab("technical", base, timeout)}
}

func (c *TechnicalClient) Signal(ctx context.Context, scanID string) (int, error) {
	var resp struct {
		SignalsGenerated int `json:"signals_generated"`
	}
	err := c.postJSON(ctx, "/generate_signals", map[string]string{"scan_id": scanID}, &resp)
	return resp.SignalsGenerated, err
}

// TradingClient drives the paper trading collaborator.
type TradingClient struct{ *collab }

// NewTradingClient builds the client for the trading service at base.
func NewTradingClient(base string, timeout time.Duration) *TradingClient {
	return &TradingClient{newCollab("trading", base, timeout)}
}

func (c *TradingClient) Execute(ctx context.Context, cycleID, scanID string) (ExecutionReport, error) {
	var resp ExecutionReport
	err := c.postJSON(ctx, "/execute_trades", map[string]string{
		"cycle_id": cycleID,
		"scan_id":  scanID,
	}, &resp)
	return resp, err
}
