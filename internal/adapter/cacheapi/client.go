// Package cacheapi is the consumer-side client for the service's own read
// endpoint. When the endpoint cannot answer it falls back to the live
// upstream directly.
package cacheapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/upstream"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/gateway"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/resilience"
)

// EndpointPath is the read endpoint path under the public base URL.
const EndpointPath = "/api/cache"

// Client resolves ranges through the read endpoint.
type Client struct {
	doer     upstream.Doer
	endpoint string
	live     gateway.Fetcher
	logger   *slog.Logger
}

// NewClient creates a client for endpoint, which may be relative to the
// allowlist base URL. live may be nil to disable the upstream fallback.
func NewClient(doer upstream.Doer, endpoint string, live gateway.Fetcher, logger *slog.Logger) *Client {
	return &Client{doer: doer, endpoint: endpoint, live: live, logger: logger}
}

// URL returns the read endpoint URL for rng.
func (c *Client) URL(rng domain.QueryRange) string {
	q := url.Values{}
	q.Set("start", rng.Start.Format(domain.DateLayout))
	q.Set("startHour", rng.Start.Format(domain.HourLayout))
	q.Set("end", rng.End.Format(domain.DateLayout))
	q.Set("endHour", rng.End.Format(domain.HourLayout))
	return c.endpoint + "?" + q.Encode()
}

// Resolve fetches rng from the read endpoint. A transport failure, a
// non-200 status or a body carrying the error marker sends the request to
// the live upstream instead. A blocked endpoint URL or an undecodable body
// is a hard failure.
func (c *Client) Resolve(ctx context.Context, rng domain.QueryRange) gateway.Resolution {
	res, err := c.fromEndpoint(ctx, rng)
	if err == nil {
		return res
	}
	if ctx.Err() != nil {
		return failed(err, false)
	}
	if errors.Is(err, domain.ErrEgressBlocked) || errors.Is(err, domain.ErrUpstreamMalformed) {
		c.logger.Error("read endpoint failed", "range", rng.String(), "error", err, "kind", domain.ErrorKind(err))
		return failed(err, false)
	}

	c.logger.Warn("read endpoint failed, trying upstream", "range", rng.String(), "error", err, "kind", domain.ErrorKind(err))
	if c.live == nil {
		return failed(err, false)
	}
	fc, liveErr := c.live.Fetch(ctx, rng)
	if liveErr != nil {
		return failed(liveErr, true)
	}
	return gateway.Resolution{Collection: fc, Source: gateway.SourceLive, Fallback: true}
}

func (c *Client) fromEndpoint(ctx context.Context, rng domain.QueryRange) (gateway.Resolution, error) {
	resp, err := c.doer.Do(ctx, resilience.Request{
		Method: http.MethodGet,
		URL:    c.URL(rng),
		Header: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return gateway.Resolution{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return gateway.Resolution{}, &domain.StatusError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	fc, err := domain.DecodeFeatureCollection(resp.Body)
	if err != nil {
		return gateway.Resolution{}, err
	}
	if fc.Error != "" {
		return gateway.Resolution{}, &markerError{msg: fc.Error}
	}

	res := gateway.Resolution{
		Collection: fc,
		Source:     gateway.Source(resp.Header.Get(gateway.SourceHeader)),
		Path:       gateway.Path(resp.Header.Get(gateway.PathHeader)),
	}
	if res.Source == "" {
		res.Source = gateway.SourceCache
	}
	return res, nil
}

// markerError is a 200 response whose body reports the server could not
// reach the upstream either.
type markerError struct {
	msg string
}

func (e *markerError) Error() string { return "read endpoint degraded: " + e.msg }

func (e *markerError) Unwrap() error { return domain.ErrUpstreamUnavailable }

func failed(err error, fallback bool) gateway.Resolution {
	return gateway.Resolution{
		Collection: domain.EmptyCollection(err.Error()),
		Source:     gateway.SourceNone,
		Fallback:   fallback,
		Err:        err,
	}
}
