package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/scanner"
)

const scannerService = "scanner"

// NewScannerServer exposes the candidate selection surface.
func NewScannerServer(s *scanner.Scanner, port int, timeout time.Duration) *Server {
	h := &scannerHandlers{s: s}
	router := mux.NewRouter()
	router.HandleFunc("/scan", h.scan).Methods(http.MethodPost)
	router.HandleFunc("/scan", h.scanGet).Methods(http.MethodGet)
	router.HandleFunc("/scan_symbols", h.scanSymbols).Methods(http.MethodPost)
	router.HandleFunc("/get_scan_results", h.getResults).Methods(http.MethodGet)
	return newServer(scannerService, port, timeout, router)
}

type scannerHandlers struct {
	s *scanner.Scanner
}

func (h *scannerHandlers) scan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, scannerService, err)
			return
		}
	}
	if req.Mode == "" {
		req.Mode = string(models.ModeNormal)
	}

	result, err := h.s.Scan(r.Context(), models.CycleMode(req.Mode))
	if err != nil {
		writeError(w, scannerService, err)
		return
	}
	writeSuccess(w, scannerService, http.StatusOK, map[string]interface{}{
		"result": result,
	})
}

// scanGet mirrors the POST body contract for operators probing by hand.
func (h *scannerHandlers) scanGet(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = string(models.ModeNormal)
	}

	result, err := h.s.Scan(r.Context(), models.CycleMode(mode))
	if err != nil {
		writeError(w, scannerService, err)
		return
	}
	writeSuccess(w, scannerService, http.StatusOK, map[string]interface{}{
		"result": result,
	})
}

func (h *scannerHandlers) scanSymbols(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode    string   `json:"mode"`
		Symbols []string `json:"symbols"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, scannerService, err)
		return
	}
	if req.Mode == "" {
		req.Mode = string(models.ModeNormal)
	}

	result, err := h.s.ScanSymbols(r.Context(), models.CycleMode(req.Mode), req.Symbols)
	if err != nil {
		writeError(w, scannerService, err)
		return
	}
	writeSuccess(w, scannerService, http.StatusOK, map[string]interface{}{
		"result": result,
	})
}

func (h *scannerHandlers) getResults(w http.ResponseWriter, r *http.Request) {
	result, err := h.s.GetScanResults(r.Context(), r.URL.Query().Get("scan_id"))
	if err != nil {
		writeError(w, scannerService, err)
		return
	}
	writeSuccess(w, scannerService, http.StatusOK, map[string]interface{}{
		"result": result,
	})
}
