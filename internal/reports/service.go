// Package reports is the consumer-facing entry point for range queries. It
// keeps recent answers in a short-lived in-memory cache in front of a
// resolver.
package reports

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/ephemeral"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/gateway"
)

// Resolver answers a query range. It is satisfied by *gateway.Gateway on the
// server and by the read-endpoint client on the consumer side.
type Resolver interface {
	Resolve(ctx context.Context, rng domain.QueryRange) gateway.Resolution
}

// Result is a resolution plus whether it came from the ephemeral cache.
type Result struct {
	gateway.Resolution
	Cached bool
}

type cachedResolution struct {
	Source     gateway.Source           `json:"source"`
	Path       gateway.Path             `json:"path"`
	Collection domain.FeatureCollection `json:"collection"`
}

// Service serves query ranges through the ephemeral cache.
type Service struct {
	cache    *ephemeral.Cache
	resolver Resolver
	ttl      time.Duration
	logger   *slog.Logger
}

// NewService creates a service. A zero ttl uses the cache default.
func NewService(cache *ephemeral.Cache, resolver Resolver, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{cache: cache, resolver: resolver, ttl: ttl, logger: logger}
}

// Reports resolves rng, consulting the ephemeral cache first. Only
// successful resolutions are cached, so a failure is retried on the next
// call.
func (s *Service) Reports(ctx context.Context, rng domain.QueryRange) Result {
	key := rng.Fingerprint()

	if raw, ok := s.cache.Get(key); ok {
		var cr cachedResolution
		if err := json.Unmarshal(raw, &cr); err == nil {
			return Result{
				Resolution: gateway.Resolution{Collection: cr.Collection, Source: cr.Source, Path: cr.Path},
				Cached:     true,
			}
		}
		s.logger.Warn("discarding unreadable cache entry", "key", key)
		s.cache.Delete(key)
	}

	res := s.resolver.Resolve(ctx, rng)
	if res.Source == gateway.SourceNone {
		return Result{Resolution: res}
	}

	raw, err := json.Marshal(cachedResolution{Source: res.Source, Path: res.Path, Collection: res.Collection})
	if err != nil {
		s.logger.Warn("encode cache entry failed", "key", key, "error", err)
		return Result{Resolution: res}
	}
	if !s.cache.Set(key, raw, s.ttl) {
		s.logger.Debug("response too large for ephemeral cache", "key", key, "bytes", len(raw))
	}
	return Result{Resolution: res}
}

// Invalidate drops every cached answer.
func (s *Service) Invalidate() {
	s.cache.Clear()
}
