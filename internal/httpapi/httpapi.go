// Package httpapi exposes the three service surfaces (coordinator, news,
// scanner) over HTTP with a shared response envelope and middleware stack.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownDrain     = 10 * time.Second
)

// Server wraps one service's HTTP listener.
type Server struct {
	name string
	http *http.Server
}

func newServer(name string, port int, handlerTimeout time.Duration, router *mux.Router) *Server {
	router.Use(requestIDMiddleware, loggingMiddleware(name), timeoutMiddleware(handlerTimeout))
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, name, http.StatusOK, nil)
	}).Methods(http.MethodGet)

	return &Server{
		name: name,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("service", s.name).Str("addr", s.http.Addr).Msg("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", s.name, err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownDrain)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// writeSuccess emits the standard envelope with the handler's payload merged
// into the body root.
func writeSuccess(w http.ResponseWriter, service string, status int, payload map[string]interface{}) {
	body := map[string]interface{}{
		"status":    "success",
		"service":   service,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// writeError maps the error kind onto its status code and emits the error
// envelope.
func writeError(w http.ResponseWriter, service string, err error) {
	writeJSON(w, errs.HTTPStatus(err), map[string]interface{}{
		"status":    "error",
		"service":   service,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"code":      errs.Code(err),
		"message":   err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// decodeBody parses a JSON request body into dest.
func decodeBody(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return errs.Validationf("malformed request body: %v", err)
	}
	return nil
}

type ctxKey int

const requestIDKey ctxKey = 0

// RequestID returns the request id assigned by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func loggingMiddleware(service string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debug().
				Str("service", service).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Str("request_id", w.Header().Get("X-Request-ID")).
				Msg("Request handled")
		})
	}
}

func timeoutMiddleware(timeout time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
