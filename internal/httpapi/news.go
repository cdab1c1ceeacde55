package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/news"
)

const newsService = "news"

// NewNewsServer exposes the collection and intelligence surface.
func NewNewsServer(c *news.Collector, port int, timeout time.Duration) *Server {
	h := &newsHandlers{c: c}
	router := mux.NewRouter()
	router.HandleFunc("/collect_news", h.collect).Methods(http.MethodPost)
	router.HandleFunc("/search_news", h.search).Methods(http.MethodGet)
	router.HandleFunc("/trending_news", h.trending).Methods(http.MethodGet)
	router.HandleFunc("/update_outcome", h.updateOutcome).Methods(http.MethodPost)
	router.HandleFunc("/source_analysis", h.sourceAnalysis).Methods(http.MethodGet)
	router.HandleFunc("/coordinated_narratives", h.narratives).Methods(http.MethodGet)
	return newServer(newsService, port, timeout, router)
}

type newsHandlers struct {
	c *news.Collector
}

func (h *newsHandlers) collect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, newsService, err)
			return
		}
	}
	if req.Mode == "" {
		req.Mode = string(models.ModeNormal)
	}

	report, err := h.c.Collect(r.Context(), models.CycleMode(req.Mode))
	if err != nil {
		writeError(w, newsService, err)
		return
	}
	writeSuccess(w, newsService, http.StatusOK, map[string]interface{}{
		"report": report,
	})
}

func (h *newsHandlers) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := news.SearchQuery{
		Symbol:       q.Get("symbol"),
		Hours:        intParam(q.Get("hours"), 24),
		MinTier:      intParam(q.Get("min_tier"), 0),
		BreakingOnly: q.Get("breaking_only") == "true",
		Limit:        intParam(q.Get("limit"), 0),
	}
	if cats := q.Get("categories"); cats != "" {
		query.Categories = strings.Split(cats, ",")
	}
	if raw := q.Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, newsService, errs.Validationf("malformed since timestamp: %v", err))
			return
		}
		query.Since = ts
	}
	if raw := q.Get("until"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, newsService, errs.Validationf("malformed until timestamp: %v", err))
			return
		}
		query.Until = ts
	}

	items, err := h.c.Search(r.Context(), query)
	if err != nil {
		writeError(w, newsService, err)
		return
	}
	writeSuccess(w, newsService, http.StatusOK, map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

func (h *newsHandlers) trending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topics, err := h.c.Trending(r.Context(), intParam(q.Get("hours"), 24), intParam(q.Get("limit"), 10))
	if err != nil {
		writeError(w, newsService, err)
		return
	}
	writeSuccess(w, newsService, http.StatusOK, map[string]interface{}{
		"topics": topics,
	})
}

func (h *newsHandlers) updateOutcome(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fingerprint string  `json:"fingerprint"`
		PriceMove1h float64 `json:"price_move_1h"`
		PriceMove24 float64 `json:"price_move_24h"`
		VolumeSurge float64 `json:"volume_surge_ratio"`
		WasAccurate bool    `json:"was_accurate"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, newsService, err)
		return
	}
	if req.Fingerprint == "" {
		writeError(w, newsService, errs.Validationf("fingerprint is required"))
		return
	}

	err := h.c.UpdateOutcome(r.Context(), req.Fingerprint, models.NewsOutcome{
		PriceMove1h:      req.PriceMove1h,
		PriceMove24h:     req.PriceMove24,
		VolumeSurgeRatio: req.VolumeSurge,
		WasAccurate:      req.WasAccurate,
	})
	if err != nil {
		writeError(w, newsService, err)
		return
	}
	writeSuccess(w, newsService, http.StatusOK, map[string]interface{}{
		"fingerprint": req.Fingerprint,
	})
}

func (h *newsHandlers) sourceAnalysis(w http.ResponseWriter, r *http.Request) {
	sources, err := h.c.SourceAnalysis(r.Context())
	if err != nil {
		writeError(w, newsService, err)
		return
	}
	writeSuccess(w, newsService, http.StatusOK, map[string]interface{}{
		"sources": sources,
	})
}

func (h *newsHandlers) narratives(w http.ResponseWriter, r *http.Request) {
	hours := intParam(r.URL.Query().Get("hours"), 24)
	clusters, err := h.c.Narratives(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		writeError(w, newsService, err)
		return
	}
	writeSuccess(w, newsService, http.StatusOK, map[string]interface{}{
		"clusters": clusters,
	})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
