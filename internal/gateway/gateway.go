// Package gateway decides where a query range is answered from: the
// snapshot store when the whole range is covered and settled, otherwise
// the live upstream.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/observability"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/snapshot"
	"github.com/jonboulle/clockwork"
)

// Path is the routing decision taken for a query.
type Path string

const (
	// PathRealtime covers ranges ending inside the real-time window.
	PathRealtime Path = "realtime"
	// PathOutOfWindow covers ranges ending before the retention window.
	PathOutOfWindow Path = "out_of_window"
	// PathCache is a range the snapshot store should be able to serve.
	PathCache Path = "cache"
)

// Source names what produced a resolution's collection.
type Source string

const (
	SourceCache Source = "cache"
	SourceLive  Source = "live"
	SourceNone  Source = "none"
)

// Response headers carrying a resolution's source and path to consumers.
const (
	SourceHeader = "X-LSR-Source"
	PathHeader   = "X-LSR-Path"
)

// Assembler builds a range from snapshot files.
type Assembler interface {
	Assemble(ctx context.Context, rng domain.QueryRange) snapshot.Result
}

// Fetcher fetches a range from the live upstream.
type Fetcher interface {
	Fetch(ctx context.Context, rng domain.QueryRange) (domain.FeatureCollection, error)
}

// Resolution is the answer to a query. When Source is SourceNone the
// collection is empty and carries an error message, and Err holds the
// live failure.
type Resolution struct {
	Collection domain.FeatureCollection
	Source     Source
	Path       Path
	Fallback   bool // cache path fell through to live
	Err        error
}

// Unavailable reports whether the resolution failed because the upstream
// could not answer at all.
func (r Resolution) Unavailable() bool {
	return r.Source == SourceNone && domain.IsTransportError(r.Err)
}

// Config holds the routing windows.
type Config struct {
	RealtimeWindow time.Duration
	Retention      time.Duration
	Clock          clockwork.Clock
}

// Gateway routes queries between the snapshot store and the live upstream.
type Gateway struct {
	assembler      Assembler
	live           Fetcher
	realtimeWindow time.Duration
	retention      time.Duration
	clock          clockwork.Clock
	logger         *slog.Logger
	metrics        *observability.Metrics
}

// New creates a gateway. Zero windows default to 24 hours and 30 days.
func New(assembler Assembler, live Fetcher, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Gateway {
	if cfg.RealtimeWindow <= 0 {
		cfg.RealtimeWindow = 24 * time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Gateway{
		assembler:      assembler,
		live:           live,
		realtimeWindow: cfg.RealtimeWindow,
		retention:      cfg.Retention,
		clock:          cfg.Clock,
		logger:         logger,
		metrics:        metrics,
	}
}

// Classify picks the routing path for rng. Both checks look at the range
// end only; the real-time boundary is inclusive.
func (g *Gateway) Classify(rng domain.QueryRange) Path {
	now := g.clock.Now().UTC()
	switch {
	case !rng.End.Before(now.Add(-g.realtimeWindow)):
		return PathRealtime
	case rng.End.Before(now.Add(-g.retention)):
		return PathOutOfWindow
	default:
		return PathCache
	}
}

// Resolve answers rng. It never fails for lack of data: a missing or
// unreadable snapshot falls back to the live upstream, and a live failure
// yields an empty collection with Source set to SourceNone.
func (g *Gateway) Resolve(ctx context.Context, rng domain.QueryRange) Resolution {
	path := g.Classify(rng)
	res := g.resolve(ctx, rng, path)
	g.metrics.GatewayResolutions.WithLabelValues(string(res.Path), string(res.Source)).Inc()

	attrs := []any{"range", rng.String(), "path", res.Path, "source", res.Source}
	if res.Fallback {
		attrs = append(attrs, "fallback", true)
	}
	if res.Err != nil {
		g.logger.Warn("query unresolved", append(attrs, "error", res.Err, "kind", domain.ErrorKind(res.Err))...)
	} else {
		g.logger.Debug("query resolved", append(attrs, "reports", len(res.Collection.Features))...)
	}
	return res
}

func (g *Gateway) resolve(ctx context.Context, rng domain.QueryRange, path Path) Resolution {
	if path != PathCache {
		return g.fetchLive(ctx, rng, path, false)
	}

	result := g.assembler.Assemble(ctx, rng)
	if result.Outcome == snapshot.Hit {
		return Resolution{Collection: result.Collection, Source: SourceCache, Path: path}
	}
	if errors.Is(result.Err, context.Canceled) {
		return none(path, false, result.Err)
	}
	g.logger.Info("snapshot fallback to live", "range", rng.String(), "outcome", result.Outcome.String(), "error", result.Err)
	return g.fetchLive(ctx, rng, path, true)
}

func (g *Gateway) fetchLive(ctx context.Context, rng domain.QueryRange, path Path, fallback bool) Resolution {
	fc, err := g.live.Fetch(ctx, rng)
	if err != nil {
		return none(path, fallback, err)
	}
	return Resolution{Collection: fc, Source: SourceLive, Path: path, Fallback: fallback}
}

func none(path Path, fallback bool, err error) Resolution {
	return Resolution{
		Collection: domain.EmptyCollection(err.Error()),
		Source:     SourceNone,
		Path:       path,
		Fallback:   fallback,
		Err:        err,
	}
}
