package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Failure classes shared by the fetch, cache and gateway layers.
var (
	ErrNetwork             = errors.New("network error")
	ErrTimeout             = errors.New("request timed out")
	ErrUpstreamMalformed   = errors.New("upstream response malformed")
	ErrCacheMiss           = errors.New("snapshot cache miss")
	ErrEgressBlocked       = errors.New("egress blocked by allowlist")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidRange        = errors.New("invalid query range")
)

// StatusError is a non-2xx upstream response. 502 and 503 match
// ErrUpstreamUnavailable under errors.Is.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrUpstreamUnavailable) match gateway errors.
func (e *StatusError) Is(target error) bool {
	return target == ErrUpstreamUnavailable && e.Unavailable()
}

// Unavailable reports whether the status signals the upstream is down.
func (e *StatusError) Unavailable() bool {
	return e.StatusCode == http.StatusBadGateway || e.StatusCode == http.StatusServiceUnavailable
}

// Retryable reports whether the status is a server error worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 && !e.Unavailable()
}

// ErrorKind maps an error to a stable label for logs and metrics.
func ErrorKind(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrEgressBlocked):
		return "egress_blocked"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, ErrUpstreamMalformed):
		return "upstream_malformed"
	case errors.Is(err, ErrCacheMiss):
		return "cache_miss"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &statusErr):
		return "upstream_status"
	default:
		return "unknown"
	}
}

// IsTransportError reports whether err means the upstream could not be
// reached at all, as opposed to answering with bad data.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrEgressBlocked)
}
