// Package server exposes the state of a long-running health check over HTTP:
// liveness of the watched service, the last report and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/HerbHall/cellwatch/internal/report"
	"github.com/HerbHall/cellwatch/internal/version"
)

// Server serves status for watch mode.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux

	mu   sync.RWMutex
	last *report.Report
}

// New creates a Server listening on addr. gatherer may be nil, in which case
// /metrics is not served.
func New(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		mux:    mux,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/last", s.handleLast)
	mux.HandleFunc("GET /api/v1/version", s.handleVersion)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler { return s.mux }

// Update records the most recent report.
func (s *Server) Update(rep *report.Report) {
	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()
}

func (s *Server) lastReport() *report.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("status server listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("shutting down status server")
	return s.httpServer.Shutdown(shutdownCtx)
}

// handleHealth answers 200 while the last check found the service healthy or
// checks disabled, and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := s.lastReport()
	if rep == nil {
		unavailable(w, "no check has completed yet", r.URL.Path)
		return
	}
	switch rep.Outcome {
	case report.OutcomeHealthy, report.OutcomeDisabled:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     string(rep.Outcome),
			"checked_at": rep.FinishedAt,
		})
	default:
		unavailable(w, fmt.Sprintf("last check %s: %s", rep.Outcome, rep.Detail), r.URL.Path)
	}
}

func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	rep := s.lastReport()
	if rep == nil {
		notFound(w, "no check has completed yet", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Current())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
