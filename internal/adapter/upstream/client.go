// Package upstream fetches Local Storm Reports from the IEM GeoJSON service.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/observability"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/resilience"
	"github.com/sony/gobreaker"
)

// DefaultUserAgent identifies this service to the upstream.
const DefaultUserAgent = "storm-data-lsr-cache/1.0"

// Doer sends an outbound request. It is satisfied by *resilience.Client.
type Doer interface {
	Do(ctx context.Context, req resilience.Request) (*resilience.Response, error)
}

// BreakerSettings tunes the circuit breaker around live fetches.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// Client implements live fetches against the LSR GeoJSON endpoint.
type Client struct {
	doer      Doer
	baseURL   string
	userAgent string
	breaker   *gobreaker.CircuitBreaker
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewClient creates an upstream client for baseURL (the lsr.php endpoint).
func NewClient(doer Doer, baseURL string, bs BreakerSettings, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if bs.ConsecutiveFailures == 0 {
		bs.ConsecutiveFailures = 5
	}
	if bs.OpenTimeout <= 0 {
		bs.OpenTimeout = 30 * time.Second
	}
	c := &Client{
		doer:      doer,
		baseURL:   baseURL,
		userAgent: DefaultUserAgent,
		logger:    logger,
		metrics:   metrics,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "lsr-upstream",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.Set(float64(to))
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// URL returns the upstream request URL for rng.
func (c *Client) URL(rng domain.QueryRange) string {
	return fmt.Sprintf("%s?sts=%s&ets=%s&wfos=", c.baseURL, rng.UpstreamStart(), rng.UpstreamEnd())
}

// Fetch retrieves every report in rng. Failures are classified with the
// domain error taxonomy; an open breaker yields domain.ErrUpstreamUnavailable.
func (c *Client) Fetch(ctx context.Context, rng domain.QueryRange) (domain.FeatureCollection, error) {
	start := time.Now()
	fc, err := c.fetch(ctx, rng)
	c.metrics.UpstreamDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(domain.ErrorKind(err)).Inc()
		return domain.FeatureCollection{}, err
	}
	c.metrics.UpstreamRequests.WithLabelValues("success").Inc()
	c.logger.Debug("upstream fetch complete", "range", rng.String(), "reports", len(fc.Features))
	return fc, nil
}

func (c *Client) fetch(ctx context.Context, rng domain.QueryRange) (domain.FeatureCollection, error) {
	req := resilience.Request{
		Method: http.MethodGet,
		URL:    c.URL(rng),
		Header: http.Header{
			"User-Agent": {c.userAgent},
			"Accept":     {"application/geo+json, application/json"},
		},
	}

	// Errors that say nothing about upstream health are passed out through
	// passthrough so they do not trip the breaker.
	var passthrough error
	out, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.doer.Do(ctx, req)
		if err != nil {
			if tripsBreaker(err) {
				return nil, err
			}
			passthrough = err
			return nil, nil
		}
		fc, err := domain.DecodeFeatureCollection(resp.Body)
		if err != nil {
			return nil, err
		}
		return fc, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return domain.FeatureCollection{}, fmt.Errorf("%w: circuit %s", domain.ErrUpstreamUnavailable, err)
	case err != nil:
		return domain.FeatureCollection{}, fmt.Errorf("fetch %s: %w", rng, err)
	case passthrough != nil:
		return domain.FeatureCollection{}, fmt.Errorf("fetch %s: %w", rng, passthrough)
	}
	return out.(domain.FeatureCollection), nil
}

func tripsBreaker(err error) bool {
	if errors.Is(err, domain.ErrEgressBlocked) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *domain.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
		return false
	}
	return true
}
