package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Pruner lists and removes daily snapshots.
type Pruner interface {
	Days(ctx context.Context) ([]time.Time, error)
	Delete(day time.Time) error
}

// CleanupResult summarizes a cleanup pass.
type CleanupResult struct {
	Cutoff  time.Time
	Deleted []time.Time
	Kept    int
	Failed  int
}

// Cleaner removes snapshots older than the retention window.
type Cleaner struct {
	store         Pruner
	retentionDays int
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewCleaner creates a cleaner keeping retentionDays of history before today.
func NewCleaner(store Pruner, retentionDays int, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Cleaner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cleaner{
		store:         store,
		retentionDays: retentionDays,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
	}
}

// Cutoff returns the oldest day that is kept.
func (c *Cleaner) Cutoff() time.Time {
	return domain.StartOfDay(c.clock.Now()).AddDate(0, 0, -c.retentionDays)
}

// Plan reports what Cleanup would do without deleting anything. Deleted
// lists the days that are past retention.
func (c *Cleaner) Plan(ctx context.Context) (CleanupResult, error) {
	result := CleanupResult{Cutoff: c.Cutoff()}

	days, err := c.store.Days(ctx)
	if err != nil {
		return result, fmt.Errorf("list snapshots: %w", err)
	}
	for _, day := range days {
		if day.Before(result.Cutoff) {
			result.Deleted = append(result.Deleted, day)
		} else {
			result.Kept++
		}
	}
	return result, nil
}

// Cleanup deletes every snapshot dated before the cutoff. A failed delete
// is logged and counted; the pass continues with the remaining days.
func (c *Cleaner) Cleanup(ctx context.Context) (CleanupResult, error) {
	result := CleanupResult{Cutoff: c.Cutoff()}

	days, err := c.store.Days(ctx)
	if err != nil {
		return result, fmt.Errorf("list snapshots: %w", err)
	}

	for _, day := range days {
		if !day.Before(result.Cutoff) {
			result.Kept++
			continue
		}
		if err := c.store.Delete(day); err != nil {
			c.logger.Error("snapshot delete failed", "day", domain.DayKey(day), "error", err)
			result.Failed++
			continue
		}
		result.Deleted = append(result.Deleted, day)
		c.metrics.SnapshotsDeleted.Inc()
		c.logger.Debug("snapshot deleted", "day", domain.DayKey(day))
	}

	c.logger.Info("snapshot cleanup finished",
		"cutoff", domain.DayKey(result.Cutoff),
		"deleted", len(result.Deleted),
		"kept", result.Kept,
		"failed", result.Failed)
	return result, nil
}
