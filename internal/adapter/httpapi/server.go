// Package httpapi exposes the service over HTTP: resolution, acquisition,
// manual entry, audit, plus health, readiness, and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tapsafe/chlorine-data-service/internal/acquire"
	"github.com/tapsafe/chlorine-data-service/internal/audit"
	"github.com/tapsafe/chlorine-data-service/internal/domain"
)

// UtilityResolver maps a postal code to candidate utilities.
type UtilityResolver interface {
	Resolve(ctx context.Context, zip string) ([]domain.Utility, error)
}

// ReadingAcquirer runs the acquisition chain and records manual entries.
type ReadingAcquirer interface {
	Acquire(ctx context.Context, req acquire.Request) (acquire.Outcome, error)
	RecordManual(ctx context.Context, entry acquire.ManualEntry) (domain.Reading, error)
}

// AuditRunner scans stored readings and performs gated cleanups.
type AuditRunner interface {
	Scan(ctx context.Context, opts audit.ScanOptions) (audit.Report, error)
	Cleanup(ctx context.Context, req audit.CleanupRequest) (audit.CleanupResult, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the API plus health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	resolver   UtilityResolver
	acquirer   ReadingAcquirer
	auditor    AuditRunner
	pinger     Pinger
	logger     *slog.Logger
}

func NewServer(addr string, resolver UtilityResolver, acquirer ReadingAcquirer,
	auditor AuditRunner, pinger Pinger, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 120 * time.Second, // acquisition waits on external collaborators
			IdleTimeout:  60 * time.Second,
		},
		resolver: resolver,
		acquirer: acquirer,
		auditor:  auditor,
		pinger:   pinger,
		logger:   logger,
	}

	mux.HandleFunc("GET /api/utilities", s.handleResolveUtilities)
	mux.HandleFunc("POST /api/readings/acquire", s.handleAcquireReading)
	mux.HandleFunc("POST /api/readings/manual", s.handleManualEntry)
	mux.HandleFunc("GET /api/audit/scan", s.handleAuditScan)
	mux.HandleFunc("POST /api/audit/cleanup", s.handleAuditCleanup)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
