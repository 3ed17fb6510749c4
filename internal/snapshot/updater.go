// Package snapshot maintains the per-day report snapshots: fetching and
// merging new reports, assembling query ranges from disk, and pruning files
// that fall outside the retention window.
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

// Fetcher retrieves reports for a window from the live upstream.
type Fetcher interface {
	Fetch(ctx context.Context, rng domain.QueryRange) (domain.FeatureCollection, error)
}

// Store reads and replaces daily snapshots.
type Store interface {
	Exists(day time.Time) bool
	Load(day time.Time) (domain.FeatureCollection, error)
	Save(day time.Time, fc domain.FeatureCollection) error
}

// Notifier is told about every snapshot the updater rewrites.
type Notifier interface {
	SnapshotUpdated(ctx context.Context, event Event) error
}

// EventHandler receives snapshot events from a subscription.
type EventHandler func(ctx context.Context, event Event)

// Event describes a rewritten snapshot.
type Event struct {
	Day       time.Time `json:"-"`
	Date      string    `json:"date"`
	Reports   int       `json:"reports"`
	Added     int       `json:"added"`
	Updated   int       `json:"updated"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdaterConfig holds optional updater collaborators.
type UpdaterConfig struct {
	Delay    time.Duration // pause between days in range mode
	Clock    clockwork.Clock
	Notifier Notifier
}

// Updater fetches a day from the upstream and merges it into that day's
// snapshot. One updater process at a time is assumed.
type Updater struct {
	fetcher  Fetcher
	store    Store
	notifier Notifier
	delay    time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewUpdater creates an updater.
func NewUpdater(fetcher Fetcher, store Store, cfg UpdaterConfig, logger *slog.Logger, metrics *observability.Metrics) *Updater {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Updater{
		fetcher:  fetcher,
		store:    store,
		notifier: cfg.Notifier,
		delay:    cfg.Delay,
		clock:    cfg.Clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Yesterday is the default update target: the most recent closed UTC day.
func (u *Updater) Yesterday() time.Time {
	return domain.StartOfDay(u.clock.Now()).AddDate(0, 0, -1)
}

// Today is the current UTC day.
func (u *Updater) Today() time.Time {
	return domain.StartOfDay(u.clock.Now())
}

// UpdateDay fetches day's reports and merges them into its snapshot,
// returning the number of reports written. On a fetch failure nothing is
// written. An existing snapshot that cannot be read is left untouched.
func (u *Updater) UpdateDay(ctx context.Context, day time.Time) (int, error) {
	day = domain.StartOfDay(day)
	key := domain.DayKey(day)

	fc, err := u.fetcher.Fetch(ctx, domain.DayRange(day))
	if err != nil {
		u.metrics.UpdaterDays.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("fetch %s: %w", key, err)
	}

	var existing []domain.Feature
	if u.store.Exists(day) {
		current, err := u.store.Load(day)
		if err != nil {
			u.metrics.UpdaterDays.WithLabelValues("error").Inc()
			return 0, fmt.Errorf("load snapshot %s: %w", key, err)
		}
		existing = current.Features
	}

	merged, stats := Merge(existing, fc.Features)
	if err := u.store.Save(day, domain.NewFeatureCollection(merged)); err != nil {
		u.metrics.UpdaterDays.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("save snapshot %s: %w", key, err)
	}

	u.metrics.UpdaterDays.WithLabelValues("success").Inc()
	u.metrics.ReportsWritten.Add(float64(len(merged)))
	u.logger.Info("snapshot updated",
		"day", key,
		"fetched", len(fc.Features),
		"reports", len(merged),
		"added", stats.Added,
		"updated", stats.Updated,
		"unidentified", stats.Unidentified)

	u.notify(ctx, Event{
		Day:       day,
		Date:      key,
		Reports:   len(merged),
		Added:     stats.Added + stats.Unidentified,
		Updated:   stats.Updated,
		UpdatedAt: u.clock.Now().UTC(),
	})
	return len(merged), nil
}

func (u *Updater) notify(ctx context.Context, event Event) {
	if u.notifier == nil {
		return
	}
	if err := u.notifier.SnapshotUpdated(ctx, event); err != nil {
		u.logger.Warn("snapshot notification failed", "day", event.Date, "error", err)
	}
}

// DayResult is the outcome of one day in a range update.
type DayResult struct {
	Day     time.Time
	Reports int
	Err     error
}

// RangeResult summarizes a range update.
type RangeResult struct {
	Days []DayResult
	Err  error // set when the run was cut short by cancellation
}

// Succeeded returns the number of days written.
func (r RangeResult) Succeeded() int {
	n := 0
	for _, d := range r.Days {
		if d.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the number of days that could not be updated.
func (r RangeResult) Failed() int {
	return len(r.Days) - r.Succeeded()
}

// Reports returns the total reports written across successful days.
func (r RangeResult) Reports() int {
	n := 0
	for _, d := range r.Days {
		n += d.Reports
	}
	return n
}

// Unreachable reports whether every attempted day failed because the
// upstream could not be reached.
func (r RangeResult) Unreachable() bool {
	if len(r.Days) == 0 {
		return false
	}
	for _, d := range r.Days {
		if d.Err == nil || !domain.IsTransportError(d.Err) {
			return false
		}
	}
	return true
}

// UpdateRange updates every day from start through end in order, pausing
// between days. A failed day is logged and skipped.
func (u *Updater) UpdateRange(ctx context.Context, start, end time.Time) RangeResult {
	days := domain.DaysBetween(start, end)
	u.metrics.UpdaterRunning.Set(1)
	defer u.metrics.UpdaterRunning.Set(0)

	u.logger.Info("snapshot update starting", "from", domain.DayKey(start), "to", domain.DayKey(end), "days", len(days))

	var result RangeResult
	queue := NewWorkQueue(days, u.delay, u.clock)
	result.Err = queue.Drain(ctx, func(ctx context.Context, day time.Time) {
		n, err := u.UpdateDay(ctx, day)
		if err != nil {
			u.logger.Error("snapshot update failed", "day", domain.DayKey(day), "error", err, "kind", domain.ErrorKind(err))
		}
		result.Days = append(result.Days, DayResult{Day: day, Reports: n, Err: err})
	})

	u.logger.Info("snapshot update finished",
		"succeeded", result.Succeeded(),
		"failed", result.Failed(),
		"reports", result.Reports())
	return result
}
