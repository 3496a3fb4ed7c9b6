// Package api exposes the HTTP interface for the harvester service: job
// control, the live progress stream, health probes, and Prometheus metrics.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signalharvest/harvester/internal/metrics"
	"github.com/signalharvest/harvester/internal/middleware"
	"github.com/signalharvest/harvester/internal/progress"
	"github.com/signalharvest/harvester/internal/scrape"
)

// JobControl is the orchestrator surface the API consumes.
type JobControl struct {
	Start  func() (string, error)
	Stop   func() error
	Status func() (bool, []scrape.SourceResult)
}

// Config controls server behavior.
type Config struct {
	AuthEnabled bool
	APIKey      string
	// Timeout bounds non-streaming request handling.
	Timeout time.Duration
}

// Server wires HTTP handlers to the orchestrator and broadcaster.
type Server struct {
	router      chi.Router
	jobs        JobControl
	broadcaster *progress.Broadcaster
	logger      *zap.Logger
	cfg         Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(jobs JobControl, broadcaster *progress.Broadcaster, logger *zap.Logger, cfg Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	s := &Server{
		jobs:        jobs,
		broadcaster: broadcaster,
		logger:      logger.Named("api"),
		cfg:         cfg,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(middleware.Metrics)
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/scrape", func(r chi.Router) {
			r.With(timeoutMiddleware(cfg.Timeout)).Post("/start", s.startRun)
			r.With(timeoutMiddleware(cfg.Timeout)).Post("/stop", s.stopRun)
			r.With(timeoutMiddleware(cfg.Timeout)).Get("/status", s.status)
		})
		// The stream upgrades to a websocket; no timeout wrapper.
		r.Get("/progress/stream", s.streamProgress)
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

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) startRun(w http.ResponseWriter, _ *http.Request) {
	jobID, err := s.jobs.Start()
	switch {
	case errors.Is(err, scrape.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "alreadyRunning"})
	case err != nil:
		s.logger.Error("start run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"jobId":  jobID,
		})
	}
}

func (s *Server) stopRun(w http.ResponseWriter, _ *http.Request) {
	err := s.jobs.Stop()
	switch {
	case errors.Is(err, scrape.ErrNotRunning):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "notRunning"})
	case err != nil:
		s.logger.Error("stop run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to stop run")
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	running, results := s.jobs.Status()
	if results == nil {
		results = []scrape.SourceResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running":       running,
		"sourceResults": results,
	})
}

type requestIDKey struct{}

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
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
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

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
