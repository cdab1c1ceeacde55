package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/TradingApplication/catalyst-trading-system/internal/coordinator"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
)

const coordinatorService = "coordinator"

// NewCoordinatorServer exposes the cycle control surface.
func NewCoordinatorServer(c *coordinator.Coordinator, port int, timeout time.Duration) *Server {
	h := &coordinatorHandlers{c: c}
	router := mux.NewRouter()
	router.HandleFunc("/start_trading_cycle", h.startCycle).Methods(http.MethodPost)
	router.HandleFunc("/stop_trading", h.stopTrading).Methods(http.MethodPost)
	router.HandleFunc("/current_cycle", h.currentCycle).Methods(http.MethodGet)
	router.HandleFunc("/cycle/{cycle_id}", h.getCycle).Methods(http.MethodGet)
	router.HandleFunc("/service_health", h.serviceHealth).Methods(http.MethodGet)
	router.HandleFunc("/workflow_config", h.getConfig).Methods(http.MethodGet)
	router.HandleFunc("/workflow_config", h.updateConfig).Methods(http.MethodPost)
	return newServer(coordinatorService, port, timeout, router)
}

type coordinatorHandlers struct {
	c *coordinator.Coordinator
}

func (h *coordinatorHandlers) startCycle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, coordinatorService, err)
			return
		}
	}

	view, err := h.c.StartCycle(r.Context(), models.CycleMode(req.Mode))
	if err != nil {
		writeError(w, coordinatorService, err)
		return
	}
	writeSuccess(w, coordinatorService, http.StatusAccepted, map[string]interface{}{
		"cycle": view,
	})
}

func (h *coordinatorHandlers) stopTrading(w http.ResponseWriter, r *http.Request) {
	if err := h.c.Cancel(r.Context()); err != nil {
		writeError(w, coordinatorService, err)
		return
	}
	writeSuccess(w, coordinatorService, http.StatusOK, map[string]interface{}{
		"message": "cycle cancelled",
	})
}

// currentCycle reports the live cycle, or a null cycle when idle. Idle is
// not an error.
func (h *coordinatorHandlers) currentCycle(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, coordinatorService, http.StatusOK, map[string]interface{}{
		"cycle": h.c.GetCurrentCycle(r.Context()),
	})
}

func (h *coordinatorHandlers) getCycle(w http.ResponseWriter, r *http.Request) {
	cycle, err := h.c.GetCycle(r.Context(), mux.Vars(r)["cycle_id"])
	if err != nil {
		writeError(w, coordinatorService, err)
		return
	}
	writeSuccess(w, coordinatorService, http.StatusOK, map[string]interface{}{
		"cycle": cycle,
	})
}

func (h *coordinatorHandlers) serviceHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, coordinatorService, http.StatusOK, map[string]interface{}{
		"services": h.c.ServiceHealth(r.Context()),
	})
}

func (h *coordinatorHandlers) getConfig(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	value, err := h.c.GetConfig(r.Context(), key)
	if err != nil {
		writeError(w, coordinatorService, err)
		return
	}
	writeSuccess(w, coordinatorService, http.StatusOK, map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

func (h *coordinatorHandlers) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key        string `json:"key"`
		Value      string `json:"value"`
		ModifiedBy string `json:"modified_by"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, coordinatorService, err)
		return
	}
	if req.ModifiedBy == "" {
		req.ModifiedBy = "api"
	}

	if err := h.c.UpdateConfig(r.Context(), req.Key, req.Value, req.ModifiedBy); err != nil {
		writeError(w, coordinatorService, err)
		return
	}
	writeSuccess(w, coordinatorService, http.StatusOK, map[string]interface{}{
		"key":   req.Key,
		"value": req.Value,
	})
}
