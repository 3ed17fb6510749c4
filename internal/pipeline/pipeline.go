// Package pipeline runs the server's snapshot event loop: it consumes
// snapshot-updated events and drops cached answers that may now be stale.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/observability"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/snapshot"
	"github.com/jonboulle/clockwork"
)

// EventSource delivers snapshot events until ctx ends or it fails.
type EventSource interface {
	Run(ctx context.Context, handle snapshot.EventHandler) error
}

// Invalidator drops cached query answers.
type Invalidator interface {
	Invalidate()
}

// Pipeline restarts the event source with exponential backoff and
// invalidates the cache on every event.
type Pipeline struct {
	source     EventSource
	target     Invalidator
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	minBackoff time.Duration
	maxBackoff time.Duration
}

// New creates a Pipeline. A nil clock uses the real clock.
func New(source EventSource, target Invalidator, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		source:     source,
		target:     target,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		minBackoff: 200 * time.Millisecond,
		maxBackoff: 5 * time.Second,
	}
}

// Run consumes events until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("snapshot event pipeline started")
	p.metrics.InvalidatorRunning.Set(1)
	defer p.metrics.InvalidatorRunning.Set(0)

	backoff := p.minBackoff
	for {
		err := p.source.Run(ctx, p.handle)
		if ctx.Err() != nil {
			p.logger.Info("snapshot event pipeline stopping", "reason", ctx.Err())
			return nil
		}
		if err != nil {
			p.logger.Error("snapshot event source failed", "error", err, "backoff", backoff)
		}
		p.metrics.InvalidatorRestarts.Inc()
		if !p.sleep(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff, p.maxBackoff)
	}
}

func (p *Pipeline) handle(_ context.Context, event snapshot.Event) {
	p.metrics.SnapshotEvents.Inc()
	p.target.Invalidate()
	p.logger.Info("snapshot updated, cache invalidated", "day", event.Date, "reports", event.Reports)
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(d):
		return true
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
