// Package server exposes health and status endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/edgard/autoreply/internal/autoresponse"
)

const (
	requestTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// StatusSource is satisfied by *autoresponse.Service.
type StatusSource interface {
	Stats(ctx context.Context) (autoresponse.Stats, error)
}

// Pinger is satisfied by database.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheSizer is satisfied by *summarize.Service.
type CacheSizer interface {
	CacheLen(ctx context.Context) (int, error)
}

// Status is the body of GET /status.
type Status struct {
	AutoResponse    autoresponse.Stats `json:"auto_response"`
	CachedSummaries int                `json:"cached_summaries"`
	DatabaseHealthy bool               `json:"database_healthy"`
	UptimeSeconds   int64              `json:"uptime_seconds"`
}

// NewHandler builds the router serving /healthz and /status.
func NewHandler(auto StatusSource, db Pinger, cache CacheSizer) http.Handler {
	started := time.Now()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		stats, err := auto.Stats(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		cached, _ := cache.CacheLen(r.Context())
		writeJSON(w, http.StatusOK, Status{
			AutoResponse:    stats,
			CachedSummaries: cached,
			DatabaseHealthy: db.Ping(r.Context()) == nil,
			UptimeSeconds:   int64(time.Since(started).Seconds()),
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Server runs the status endpoints until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// New creates a server that serves handler on addr once Run is called.
func New(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: requestTimeout,
		},
		logger: logger.With("component", "status_server"),
	}
}

// Run listens on the configured address and shuts down gracefully when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down status server: %w", err)
	}
	s.logger.Info("Status server stopped")
	return nil
}
