// Package resilience wraps outbound HTTP with an egress allowlist, in-flight
// request deduplication, retry with capped exponential backoff and jitter,
// and per-request cancellation.
package resilience

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// Defaults applied when Options leave a field zero.
const (
	DefaultMaxAttempts  = 3
	DefaultBaseDelay    = time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultMaxJitter    = time.Second
	DefaultMaxBodyBytes = 64 << 20
)

// Request describes an outbound call. Requests with the same method, URL
// and headers share one in-flight network call.
type Request struct {
	Method string
	URL    string
	Header http.Header
}

// Fingerprint identifies the request for deduplication and cancellation.
func (r Request) Fingerprint() string {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(r.URL)

	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		keys = append(keys, http.CanonicalHeaderKey(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('\n')
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(strings.Join(r.Header.Values(k), ","))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Response is a fully read response. Deduplicated callers share the same
// Response and must treat Body as read-only.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Options configures a Client.
type Options struct {
	HTTPClient   *http.Client
	Allowlist    *Allowlist
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Jitter       func() time.Duration // nil draws uniformly from [0, 1s)
	MaxBodyBytes int64
	Clock        clockwork.Clock
	Logger       *slog.Logger
	Metrics      *observability.Metrics
}

// Client is safe for concurrent use.
type Client struct {
	httpClient   *http.Client
	allow        *Allowlist
	maxAttempts  int
	baseDelay    time.Duration
	maxDelay     time.Duration
	jitter       func() time.Duration
	maxBodyBytes int64
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *observability.Metrics

	group    singleflight.Group
	mu       sync.Mutex
	inflight map[string]*call
}

type call struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New creates a Client. Allowlist and HTTPClient are required.
func New(opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.Jitter == nil {
		opts.Jitter = func() time.Duration { return rand.N(DefaultMaxJitter) }
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetricsForTesting()
	}
	return &Client{
		httpClient:   opts.HTTPClient,
		allow:        opts.Allowlist,
		maxAttempts:  opts.MaxAttempts,
		baseDelay:    opts.BaseDelay,
		maxDelay:     opts.MaxDelay,
		jitter:       opts.Jitter,
		maxBodyBytes: opts.MaxBodyBytes,
		clock:        opts.Clock,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		inflight:     make(map[string]*call),
	}
}

// Do performs req, joining an identical in-flight call if one exists.
// Non-2xx responses are returned as *domain.StatusError. Requests rejected
// by the allowlist fail with domain.ErrEgressBlocked and are never retried.
//
// A caller whose ctx ends stops waiting; the shared call is aborted once
// its last waiter has gone.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	target, err := c.allow.Admit(req.URL)
	if err != nil {
		c.metrics.EgressBlocked.Inc()
		c.logger.Warn("egress blocked", "url", req.URL)
		return nil, err
	}
	req.URL = target

	key := req.Fingerprint()
	cl := c.join(key)
	defer c.leave(key, cl)

	ch := c.group.DoChan(key, func() (any, error) {
		return c.doWithRetry(cl.ctx, req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.RequestsDeduped.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response), nil
	}
}

// Cancel aborts the in-flight call matching req, if any, and removes it so
// the next identical request starts fresh. Every waiter receives a
// context.Canceled error.
func (c *Client) Cancel(req Request) bool {
	if target, err := c.allow.Admit(req.URL); err == nil {
		req.URL = target
	}
	key := req.Fingerprint()
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.inflight[key]
	if !ok {
		return false
	}
	c.drop(key, cl)
	return true
}

// CancelAll aborts every in-flight call.
func (c *Client) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, cl := range c.inflight {
		c.drop(key, cl)
	}
}

// Pending returns the number of distinct in-flight calls.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// join registers a waiter on the call for key, creating it if needed.
func (c *Client) join(key string) *call {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.inflight[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		cl = &call{ctx: ctx, cancel: cancel}
		c.inflight[key] = cl
	}
	cl.waiters++
	return cl
}

// leave drops a waiter and aborts the call when none remain.
func (c *Client) leave(key string, cl *call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl.waiters--
	if cl.waiters > 0 {
		return
	}
	if c.inflight[key] == cl {
		c.drop(key, cl)
		return
	}
	cl.cancel()
}

// drop removes the call and aborts its transport. Forget runs under c.mu
// so no new waiter can join the flight being cancelled.
func (c *Client) drop(key string, cl *call) {
	delete(c.inflight, key)
	c.group.Forget(key)
	cl.cancel()
}

func (c *Client) doWithRetry(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt - 1)
			c.metrics.RequestRetries.Inc()
			c.logger.Warn("retrying request",
				"url", req.URL,
				"attempt", attempt+1,
				"max_attempts", c.maxAttempts,
				"backoff_ms", wait.Milliseconds(),
				"error", lastErr)
			if !c.sleep(ctx, wait) {
				return nil, fmt.Errorf("request canceled: %w", context.Canceled)
			}
		}

		resp, err := c.roundTrip(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("request canceled: %w", context.Canceled)
		}
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) roundTrip(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := limitedReadAll(resp.Body, c.maxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// backoff returns min(base*2^n, max) plus jitter.
func (c *Client) backoff(n int) time.Duration {
	d := c.maxDelay
	if n < 31 {
		if exp := c.baseDelay << uint(n); exp > 0 && exp < c.maxDelay {
			d = exp
		}
	}
	return d + c.jitter()
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(d):
		return true
	}
}

// retryable reports whether err is transient: network failures, timeouts,
// and 5xx other than 502/503.
func retryable(err error) bool {
	if errors.Is(err, domain.ErrEgressBlocked) {
		return false
	}
	if errors.Is(err, domain.ErrNetwork) || errors.Is(err, domain.ErrTimeout) {
		return true
	}
	var statusErr *domain.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return false
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
}

func limitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
