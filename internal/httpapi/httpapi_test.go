package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TradingApplication/catalyst-trading-system/internal/cache"
	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/coordinator"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/news"
	"github.com/TradingApplication/catalyst-trading-system/internal/news/sources"
	"github.com/TradingApplication/catalyst-trading-system/internal/persistence/memory"
	"github.com/TradingApplication/catalyst-trading-system/internal/ratelimit"
	"github.com/TradingApplication/catalyst-trading-system/internal/scanner"
	"github.com/TradingApplication/catalyst-trading-system/internal/symbols"
)

const handlerTimeout = 5 * time.Second

func serve(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(s.http.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	return decodeEnvelope(t, resp)
}

func postJSON(t *testing.T, url string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	return decodeEnvelope(t, resp)
}

func decodeEnvelope(t *testing.T, resp *http.Response) (int, map[string]interface{}) {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

// stubSource feeds canned articles into a real collector.
type stubSource struct {
	name     string
	tier     int
	articles []models.RawArticle
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) Tier() int    { return s.tier }
func (s *stubSource) RateLimit() ratelimit.Spec {
	return ratelimit.Spec{RPS: 1000, Burst: 100}
}
func (s *stubSource) Fetch(context.Context, time.Time, int) ([]models.RawArticle, error) {
	return s.articles, nil
}

func newCollector(t *testing.T, srcs ...sources.Source) (*news.Collector, *memory.Store) {
	t.Helper()
	cfg := config.Default()
	loc, err := cfg.Location()
	require.NoError(t, err)
	norm, err := news.NewNormalizer(cfg.Collector, cfg.Schedule, symbols.NewSet([]string{"AAPL", "ACME"}), loc)
	require.NoError(t, err)

	mem := memory.New()
	c := news.NewCollector(mem.Port(), cache.NewMemory(), norm, srcs, 2)
	require.NoError(t, c.SeedSources(context.Background()))
	return c, mem
}

func newsURL(t *testing.T, srcs ...sources.Source) (string, *memory.Store) {
	t.Helper()
	c, mem := newCollector(t, srcs...)
	ts := serve(t, NewNewsServer(c, 0, handlerTimeout))
	return ts.URL, mem
}

type fakeMarket struct {
	snaps map[string]models.MarketSnapshot
}

func (m *fakeMarket) Snapshots(_ context.Context, syms []string) (map[string]models.MarketSnapshot, error) {
	out := make(map[string]models.MarketSnapshot, len(syms))
	for _, s := range syms {
		if snap, ok := m.snaps[s]; ok {
			out[s] = snap
		}
	}
	return out, nil
}

func (m *fakeMarket) MostActive(context.Context, int) ([]string, error) {
	return nil, nil
}

func scannerURL(t *testing.T, mem *memory.Store, market *fakeMarket) string {
	t.Helper()
	mc := cache.NewMemory()
	runtime := config.NewRuntimeStore(mem.Port().Config, mc)
	s := scanner.New(mem.Port(), mc, market, runtime, config.Default().Scanner)
	ts := serve(t, NewScannerServer(s, 0, handlerTimeout))
	return ts.URL
}

func seedCatalystNews(t *testing.T, mem *memory.Store, symbol string) {
	t.Helper()
	sym := symbol
	item := models.NewsItem{
		Fingerprint:  uuid.NewString(),
		Symbol:       &sym,
		Headline:     fmt.Sprintf("%s wins FDA approval", symbol),
		Source:       "Reuters",
		SourceTier:   1,
		Keywords:     []string{"fda"},
		MarketState:  models.MarketRegular,
		PublishedAt:  time.Now().Add(-30 * time.Minute),
		CollectedAt:  time.Now(),
		Confirmation: models.ConfirmationUnconfirmed,
	}
	_, err := mem.Port().News.Upsert(context.Background(), item)
	require.NoError(t, err)
}

func TestHealthEnvelope(t *testing.T) {
	url, _ := newsURL(t)

	status, body := getJSON(t, url+"/health")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "news", body["service"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestCollectNewsReturnsReport(t *testing.T) {
	src := &stubSource{name: "Reuters", tier: 1, articles: []models.RawArticle{
		{
			Headline:    "BREAKING: ACME wins FDA approval",
			Source:      "Reuters",
			URL:         "https://example.com/acme-fda",
			PublishedAt: time.Now().Add(-10 * time.Minute),
		},
	}}
	url, _ := newsURL(t, src)

	status, body := postJSON(t, url+"/collect_news", map[string]string{"mode": "normal"})

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])
	report, ok := body["report"].(map[string]interface{})
	require.True(t, ok, "report missing from response root")
	assert.Equal(t, float64(1), report["new"])
	assert.Equal(t, "normal", report["mode"])
}

func TestCollectNewsRejectsUnknownMode(t *testing.T) {
	url, _ := newsURL(t)

	status, body := postJSON(t, url+"/collect_news", map[string]string{"mode": "turbo"})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "validation", body["code"])
}

func TestSearchNewsFiltersBySymbol(t *testing.T) {
	url, mem := newsURL(t)
	seedCatalystNews(t, mem, "ACME")
	seedCatalystNews(t, mem, "AAPL")

	status, body := getJSON(t, url+"/search_news?symbol=ACME&hours=24")

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "ACME", items[0].(map[string]interface{})["symbol"])
}

func TestUpdateOutcomeRequiresFingerprint(t *testing.T) {
	url, _ := newsURL(t)

	status, body := postJSON(t, url+"/update_outcome", map[string]interface{}{
		"price_move_1h": 2.5,
	})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", body["code"])
}

func TestUpdateOutcomeUnknownFingerprint(t *testing.T) {
	url, _ := newsURL(t)

	status, body := postJSON(t, url+"/update_outcome", map[string]interface{}{
		"fingerprint":   "deadbeef",
		"price_move_1h": 2.5,
	})

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["code"])
}

func TestSourceAnalysisListsSeededSources(t *testing.T) {
	src := &stubSource{name: "Reuters", tier: 1}
	url, _ := newsURL(t, src)

	status, body := getJSON(t, url+"/source_analysis")

	require.Equal(t, http.StatusOK, status)
	srcs := body["sources"].([]interface{})
	require.Len(t, srcs, 1)
	assert.Equal(t, "Reuters", srcs[0].(map[string]interface{})["source"])
}

func TestScanReturnsResultAtRoot(t *testing.T) {
	mem := memory.New()
	seedCatalystNews(t, mem, "ACME")
	url := scannerURL(t, mem, &fakeMarket{snaps: map[string]models.MarketSnapshot{
		"ACME": {Symbol: "ACME", Price: 25, Volume: 2_000_000, RelativeVolume: 2.0, PriceChangePct: 3.0},
	}})

	status, body := postJSON(t, url+"/scan", map[string]string{"mode": "normal"})

	require.Equal(t, http.StatusOK, status)
	result, ok := body["result"].(map[string]interface{})
	require.True(t, ok, "result missing from response root")
	assert.NotEmpty(t, result["scan_id"])
	candidates := result["candidates"].([]interface{})
	require.Len(t, candidates, 1)
	assert.Equal(t, "ACME", candidates[0].(map[string]interface{})["symbol"])
}

func TestScanSymbolsRequiresSymbols(t *testing.T) {
	url := scannerURL(t, memory.New(), &fakeMarket{})

	status, body := postJSON(t, url+"/scan_symbols", map[string]interface{}{
		"mode":    "normal",
		"symbols": []string{},
	})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", body["code"])
}

func TestGetScanResultsUnknownID(t *testing.T) {
	url := scannerURL(t, memory.New(), &fakeMarket{})

	status, body := getJSON(t, url+"/get_scan_results?scan_id="+uuid.NewString())

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["code"])
}

func coordinatorURL(t *testing.T) string {
	t.Helper()
	mem := memory.New()
	runtime := config.NewRuntimeStore(mem.Port().Config, cache.NewMemory())
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	sched, err := coordinator.NewSchedule(config.Default().Schedule, loc, runtime)
	require.NoError(t, err)
	c := coordinator.New(mem.Port(), runtime, sched, coordinator.Deps{})
	ts := serve(t, NewCoordinatorServer(c, 0, handlerTimeout))
	return ts.URL
}

func TestCurrentCycleWhenIdle(t *testing.T) {
	url := coordinatorURL(t)

	status, body := getJSON(t, url+"/current_cycle")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])
	cycle, present := body["cycle"]
	require.True(t, present, "cycle key must be present even when idle")
	assert.Nil(t, cycle)
}

func TestWorkflowConfigRoundTrip(t *testing.T) {
	url := coordinatorURL(t)

	status, body := postJSON(t, url+"/workflow_config", map[string]string{
		"key":   "min_catalyst_score",
		"value": "42",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])

	status, body = getJSON(t, url+"/workflow_config?key=min_catalyst_score")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "42", body["value"])
}

func TestWorkflowConfigRejectsUnknownKey(t *testing.T) {
	url := coordinatorURL(t)

	status, body := postJSON(t, url+"/workflow_config", map[string]string{
		"key":   "launch_codes",
		"value": "0000",
	})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", body["code"])
}

func TestStopTradingWithoutActiveCycle(t *testing.T) {
	url := coordinatorURL(t)

	status, body := postJSON(t, url+"/stop_trading", nil)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["code"])
}

func TestRequestIDPropagated(t *testing.T) {
	url, _ := newsURL(t)

	req, err := http.NewRequest(http.MethodGet, url+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "test-id-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "test-id-123", resp.Header.Get("X-Request-ID"))
}
