// Package scheduler runs the daily snapshot maintenance inside the server:
// update yesterday's snapshot, then prune files past retention.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/snapshot"
	"github.com/go-co-op/gocron"
)

// Updater updates a range of daily snapshots.
type Updater interface {
	Yesterday() time.Time
	UpdateRange(ctx context.Context, start, end time.Time) snapshot.RangeResult
}

// Cleaner prunes snapshots past retention.
type Cleaner interface {
	Cleanup(ctx context.Context) (snapshot.CleanupResult, error)
}

// Scheduler triggers the daily run at a fixed UTC time of day.
type Scheduler struct {
	cron    *gocron.Scheduler
	job     *gocron.Job
	updater Updater
	cleaner Cleaner
	logger  *slog.Logger
	ctx     context.Context
}

// New schedules the daily run at, formatted HH:MM in UTC.
func New(at string, updater Updater, cleaner Cleaner, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    gocron.NewScheduler(time.UTC),
		updater: updater,
		cleaner: cleaner,
		logger:  logger,
		ctx:     context.Background(),
	}
	s.cron.SingletonModeAll()

	job, err := s.cron.Every(1).Day().At(at).Do(func() { s.RunNow(s.ctx) })
	if err != nil {
		return nil, fmt.Errorf("schedule daily update at %q: %w", at, err)
	}
	s.job = job
	return s, nil
}

// Start begins scheduling. Runs use ctx, so cancelling it aborts an
// in-progress update.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.StartAsync()
	s.logger.Info("scheduler started", "next_run", s.NextRun())
}

// Stop halts scheduling.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// NextRun returns the next scheduled run time.
func (s *Scheduler) NextRun() time.Time {
	return s.job.NextRun()
}

// RunNow performs one daily run synchronously.
func (s *Scheduler) RunNow(ctx context.Context) {
	day := s.updater.Yesterday()
	res := s.updater.UpdateRange(ctx, day, day)
	s.logger.Info("scheduled update finished",
		"day", domain.DayKey(day),
		"succeeded", res.Succeeded(),
		"failed", res.Failed(),
		"reports", res.Reports())

	if ctx.Err() != nil {
		return
	}
	if _, err := s.cleaner.Cleanup(ctx); err != nil {
		s.logger.Error("scheduled cleanup failed", "error", err)
	}
}
