// Package api exposes the operational HTTP surface of the ingestion service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/truthscan/feedd/internal/ingest"
	"github.com/truthscan/feedd/internal/metrics"
)

// Dispatch is the boundary manual fetch triggers are handed to.
type Dispatch interface {
	Enqueue(ctx context.Context, task ingest.Task) error
}

// Server wires HTTP handlers to the registry, stores, and dispatcher.
type Server struct {
	router   chi.Router
	registry ingest.SourceRegistry
	jobs     ingest.JobStore
	items    ingest.ItemStore
	dispatch Dispatch
	clock    ingest.Clock
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	registry ingest.SourceRegistry,
	jobs ingest.JobStore,
	items ingest.ItemStore,
	dispatch Dispatch,
	clock ingest.Clock,
	logger *zap.Logger,
) *Server {
	s := &Server{
		registry: registry,
		jobs:     jobs,
		items:    items,
		dispatch: dispatch,
		clock:    clock,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sources/{source_id}", func(r chi.Router) {
			r.Get("/", s.getSource)
			r.Post("/fetch", s.triggerFetch)
		})
		r.Route("/items/{item_id}", func(r chi.Router) {
			r.Get("/", s.getItem)
			r.Get("/verification", s.getVerification)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.registry.ListActiveSources(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "source registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "source_id")
	src, err := s.registry.GetSource(r.Context(), sourceID)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load source")
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// triggerFetch enqueues an out-of-cycle fetch for one source. Overlapping
// with a scheduled fetch of the same source is tolerated: all writes on the
// fetch path are idempotent or additive.
func (s *Server) triggerFetch(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "source_id")
	src, err := s.registry.GetSource(r.Context(), sourceID)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load source")
		return
	}
	if !src.IsActive {
		writeError(w, http.StatusConflict, "source is inactive")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	task := ingest.Task{SourceID: sourceID, EnqueuedAt: s.clock.Now()}
	if err := s.dispatch.Enqueue(queueCtx, task); err != nil {
		writeError(w, http.StatusServiceUnavailable, "fetch queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"source_id": sourceID, "status": "queued"})
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")
	item, err := s.items.GetItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) getVerification(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")
	job, err := s.jobs.GetJob(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no verification job for item")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load verification job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
