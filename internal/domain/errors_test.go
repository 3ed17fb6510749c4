package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusError(t *testing.T) {
	tests := []struct {
		code        int
		unavailable bool
		retryable   bool
	}{
		{500, false, true},
		{502, true, false},
		{503, true, false},
		{504, false, true},
		{404, false, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			err := fmt.Errorf("fetch: %w", &StatusError{StatusCode: tt.code})
			assert.Equal(t, tt.unavailable, errors.Is(err, ErrUpstreamUnavailable))

			var se *StatusError
			assert.True(t, errors.As(err, &se))
			assert.Equal(t, tt.retryable, se.Retryable())
		})
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "none", ErrorKind(nil))
	assert.Equal(t, "egress_blocked", ErrorKind(fmt.Errorf("%w: evil.example", ErrEgressBlocked)))
	assert.Equal(t, "upstream_unavailable", ErrorKind(&StatusError{StatusCode: 503}))
	assert.Equal(t, "upstream_status", ErrorKind(&StatusError{StatusCode: 500}))
	assert.Equal(t, "timeout", ErrorKind(context.DeadlineExceeded))
	assert.Equal(t, "network", ErrorKind(fmt.Errorf("%w: refused", ErrNetwork)))
	assert.Equal(t, "cache_miss", ErrorKind(ErrCacheMiss))
	assert.Equal(t, "unknown", ErrorKind(errors.New("boom")))
}

func TestIsTransportError(t *testing.T) {
	assert.True(t, IsTransportError(fmt.Errorf("%w: reset", ErrNetwork)))
	assert.True(t, IsTransportError(&StatusError{StatusCode: 502}))
	assert.False(t, IsTransportError(ErrUpstreamMalformed))
	assert.False(t, IsTransportError(&StatusError{StatusCode: 500}))
}
