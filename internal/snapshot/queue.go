package snapshot

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// WorkQueue hands out items in order with a fixed pause between them.
// The pause waits on the injected clock and ends early on cancellation.
type WorkQueue[T any] struct {
	items []T
	delay time.Duration
	clock clockwork.Clock
}

// NewWorkQueue creates a queue over items. A zero delay drains back to back.
func NewWorkQueue[T any](items []T, delay time.Duration, clock clockwork.Clock) *WorkQueue[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WorkQueue[T]{items: items, delay: delay, clock: clock}
}

// Len returns the number of items not yet handed out.
func (q *WorkQueue[T]) Len() int { return len(q.items) }

// Drain calls fn for each item in order. It returns ctx.Err() if the
// context ends before the queue is empty; remaining items are left queued.
func (q *WorkQueue[T]) Drain(ctx context.Context, fn func(context.Context, T)) error {
	for len(q.items) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := q.items[0]
		q.items = q.items[1:]
		fn(ctx, item)

		if len(q.items) > 0 && !q.wait(ctx) {
			return ctx.Err()
		}
	}
	return nil
}

func (q *WorkQueue[T]) wait(ctx context.Context) bool {
	if q.delay <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-q.clock.After(q.delay):
		return true
	}
}
