package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/filestore"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/stretchr/testify/require"
)

var (
	day1 = time.Date(2026, 4, 26, 0, 0, 0, 0, time.UTC)
	day2 = day1.AddDate(0, 0, 1)
	day3 = day1.AddDate(0, 0, 2)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *filestore.Store {
	t.Helper()
	s, err := filestore.New(t.TempDir(), discardLogger())
	require.NoError(t, err)
	return s
}

// lsr builds a report feature. An empty magnitude omits the property and a
// zero valid time omits the timestamp.
func lsr(t *testing.T, valid time.Time, typ string, lat, lon float64, magnitude, remark string) domain.Feature {
	t.Helper()
	props := map[string]any{
		"type":   typ,
		"lat":    lat,
		"lon":    lon,
		"remark": remark,
	}
	if !valid.IsZero() {
		props["valid"] = valid.UTC().Format(time.RFC3339)
	}
	if magnitude != "" {
		props["magnitude"] = json.RawMessage(magnitude)
	}
	raw, err := json.Marshal(map[string]any{
		"type":       "Feature",
		"geometry":   map[string]any{"type": "Point", "coordinates": []float64{lon, lat}},
		"properties": props,
	})
	require.NoError(t, err)

	var f domain.Feature
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func remarks(fc []domain.Feature) []string {
	out := make([]string, len(fc))
	for i, f := range fc {
		out[i] = f.Report().Remark
	}
	return out
}

type fakeFetcher struct {
	mu      sync.Mutex
	results map[string][]domain.Feature
	errs    map[string]error
	calls   []domain.QueryRange
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{results: map[string][]domain.Feature{}, errs: map[string]error{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, rng domain.QueryRange) (domain.FeatureCollection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rng)
	key := domain.DayKey(rng.Start)
	if err := f.errs[key]; err != nil {
		return domain.FeatureCollection{}, err
	}
	return domain.NewFeatureCollection(f.results[key]), nil
}

type recordingNotifier struct {
	events []Event
	err    error
}

func (n *recordingNotifier) SnapshotUpdated(_ context.Context, e Event) error {
	n.events = append(n.events, e)
	return n.err
}

func at(day time.Time, hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func mustRange(t *testing.T, start, end time.Time) domain.QueryRange {
	t.Helper()
	rng, err := domain.NewQueryRange(start, end)
	require.NoError(t, err, fmt.Sprintf("range %s to %s", start, end))
	return rng
}
