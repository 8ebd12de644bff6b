// Package server exposes the event log over HTTP: append/query/purge of
// events, the projected state read model, a websocket feed for realtime
// delivery, and the legacy field-merge item endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/meshline/syncd/internal/sqlite"
	"github.com/meshline/syncd/pkg/types"
)

// Server wires the storage backend, the realtime hub, and the HTTP routes.
type Server struct {
	backend *sqlite.Backend
	config  types.Config
	log     *slog.Logger
	hub     *Hub
	now     func() int64 // ms clock, swappable in tests
}

// New creates a Server over an attached backend. A nil logger uses
// slog.Default().
func New(backend *sqlite.Backend, config types.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend: backend,
		config:  config,
		log:     logger,
		hub:     NewHub(logger),
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logMiddleware)
	r.Use(s.authMiddleware)

	r.Methods(http.MethodPost).Path("/events").HandlerFunc(s.handleAppendEvents)
	r.Methods(http.MethodGet).Path("/events").HandlerFunc(s.handleQueryEvents)
	r.Methods(http.MethodDelete).Path("/events").HandlerFunc(s.handlePurgeEvents)
	r.Methods(http.MethodGet).Path("/events/watch").HandlerFunc(s.handleWatch)
	r.Methods(http.MethodGet).Path("/state").HandlerFunc(s.handleState)

	r.Methods(http.MethodGet).Path("/items").HandlerFunc(s.handleListItems)
	r.Methods(http.MethodPost).Path("/items").HandlerFunc(s.handleCreateItem)
	r.Methods(http.MethodGet).Path("/items/{id}").HandlerFunc(s.handleGetItem)
	r.Methods(http.MethodPatch).Path("/items/{id}").HandlerFunc(s.handleMergeItem)
	r.Methods(http.MethodDelete).Path("/items/{id}").HandlerFunc(s.handleDeleteItem)

	return r
}

// Run serves HTTP on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	httpServer := &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.Info("listening", "addr", s.config.ListenAddr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// logMiddleware logs every request with its status and duration.
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.log.Info("handled",
			"method", r.Method,
			"url", r.URL.String(),
			"status", m.Code,
			"duration", m.Duration,
		)
	})
}

// writeJSON encodes v as the response body with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write response", "err", err)
	}
}

// writeError logs the failure and returns a generic structured error body.
func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.Error("request failed", "status", status, "err", err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps the failure taxonomy to HTTP status codes. Anything
// unclassified is a retryable storage failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
