package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var yesterday = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

type fakeUpdater struct {
	ranges [][2]time.Time
}

func (f *fakeUpdater) Yesterday() time.Time { return yesterday }

func (f *fakeUpdater) UpdateRange(_ context.Context, start, end time.Time) snapshot.RangeResult {
	f.ranges = append(f.ranges, [2]time.Time{start, end})
	return snapshot.RangeResult{Days: []snapshot.DayResult{{Day: start, Reports: 12}}}
}

type fakeCleaner struct {
	calls int
	err   error
}

func (f *fakeCleaner) Cleanup(_ context.Context) (snapshot.CleanupResult, error) {
	f.calls++
	return snapshot.CleanupResult{}, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunNow(t *testing.T) {
	updater := &fakeUpdater{}
	cleaner := &fakeCleaner{}
	s, err := New("00:15", updater, cleaner, discardLogger())
	require.NoError(t, err)

	s.RunNow(context.Background())

	require.Len(t, updater.ranges, 1)
	assert.Equal(t, [2]time.Time{yesterday, yesterday}, updater.ranges[0])
	assert.Equal(t, 1, cleaner.calls)
}

func TestScheduler_RunNowSkipsCleanupWhenCancelled(t *testing.T) {
	updater := &fakeUpdater{}
	cleaner := &fakeCleaner{}
	s, err := New("00:15", updater, cleaner, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.RunNow(ctx)

	assert.Len(t, updater.ranges, 1)
	assert.Zero(t, cleaner.calls)
}

func TestScheduler_CleanupErrorLogged(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("permission denied")}
	s, err := New("00:15", &fakeUpdater{}, cleaner, discardLogger())
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.RunNow(context.Background()) })
	assert.Equal(t, 1, cleaner.calls)
}

func TestScheduler_NextRunAtConfiguredTime(t *testing.T) {
	s, err := New("03:45", &fakeUpdater{}, &fakeCleaner{}, discardLogger())
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()

	next := s.NextRun().UTC()
	assert.Equal(t, 3, next.Hour())
	assert.Equal(t, 45, next.Minute())
	assert.True(t, next.After(time.Now()))
	assert.True(t, next.Before(time.Now().Add(24*time.Hour+time.Minute)))
}

func TestScheduler_InvalidTime(t *testing.T) {
	_, err := New("quarter past", &fakeUpdater{}, &fakeCleaner{}, discardLogger())
	assert.Error(t, err)
}
