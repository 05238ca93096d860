// Package api serves the observability endpoint: health, Prometheus metrics
// and queue depth counts. There is deliberately no admin surface here;
// message and blacklist administration happen out of band.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/busybox42/mailroom/internal/metrics"
	"github.com/busybox42/mailroom/internal/queue"
)

// Server exposes /healthz, /metrics and /queue/stats.
type Server struct {
	store  *queue.Store
	http   *http.Server
	logger *slog.Logger
}

// NewServer creates an API server listening on addr.
func NewServer(store *queue.Store, addr string) *Server {
	s := &Server{
		store:  store,
		logger: slog.Default().With("component", "api", "listen", addr),
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/queue/stats", s.handleStats).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("api server starting")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleStats reports per-status message counts and refreshes the queue
// depth gauges as a side effect.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountByStatus(r.Context())
	if err != nil {
		s.logger.Error("failed to count messages", "error", err)
		http.Error(w, "failed to count messages", http.StatusInternalServerError)
		return
	}

	m := metrics.Get()
	stats := make(map[string]int, len(counts))
	for status, count := range counts {
		stats[status.String()] = count
		m.QueueDepth.WithLabelValues(status.String()).Set(float64(count))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"counts":     stats,
		"updated_at": time.Now().UTC(),
	})
}
