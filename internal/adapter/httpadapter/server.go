package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/reports"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReportsService answers range queries for the read endpoint.
type ReportsService interface {
	Reports(ctx context.Context, rng domain.QueryRange) reports.Result
}

// SnapshotReader serves raw snapshot files.
type SnapshotReader interface {
	ReadRaw(day time.Time) ([]byte, error)
}

// StatementSource reads observations from recent NWS statements.
type StatementSource interface {
	Recent(ctx context.Context, window time.Duration) (domain.FeatureCollection, error)
}

// Options wires the data routes. A nil Reports, Snapshots or Statements
// leaves the corresponding route unmounted.
type Options struct {
	Reports    ReportsService
	Snapshots  SnapshotReader
	Statements StatementSource
	Clock      clockwork.Clock
}

// Server exposes the read endpoint, snapshot files, and the health,
// readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	reports    ReportsService
	snapshots  SnapshotReader
	statements StatementSource
	clock      clockwork.Clock
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /api/cache, /api/pns, /data/{file},
// /healthz, /readyz, and /metrics routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, opts Options, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 90 * time.Second, // live upstream fetches can take up to a minute
			IdleTimeout:  60 * time.Second,
		},
		reports:    opts.Reports,
		snapshots:  opts.Snapshots,
		statements: opts.Statements,
		clock:      opts.Clock,
		validate:   newValidator(),
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.reports != nil {
		mux.HandleFunc("GET /api/cache", s.handleCache)
	}
	if s.snapshots != nil {
		mux.HandleFunc("GET /data/{file}", s.handleSnapshotFile)
	}
	if s.statements != nil {
		mux.HandleFunc("GET /api/pns", s.handleStatements)
	}

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

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
