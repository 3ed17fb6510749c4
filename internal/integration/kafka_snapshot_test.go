//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/filestore"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/upstream"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/config"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/observability"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/resilience"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/snapshot"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSnapshotTopic = "test-snapshot-updates"

const lsrDay = `{"type":"FeatureCollection","features":[
	{"type":"Feature","geometry":{"type":"Point","coordinates":[-98.44,31.02]},
	 "properties":{"valid":"2026-04-26T15:10:00Z","type":"H","magnitude":1.25,"lat":31.02,"lon":-98.44,"city":"8 ESE Chappel","county":"San Saba","st":"TX","wfo":"SJT"}},
	{"type":"Feature","geometry":{"type":"Point","coordinates":[-95.77,34.96]},
	 "properties":{"valid":"2026-04-26T12:02:00Z","type":"T","magnitude":null,"lat":34.96,"lon":-95.77,"city":"2 N Mcalester","county":"Pittsburg","st":"OK","wfo":"TSA"}}
]}`

// TestSnapshotUpdateNotifies runs the updater against a fake upstream with
// the Kafka writer as notifier, then consumes the event with the Kafka reader.
func TestSnapshotUpdateNotifies(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSnapshotTopic)

	cfg := &config.Config{
		KafkaEnabled:       true,
		KafkaBrokers:       []string{broker},
		KafkaSnapshotTopic: testSnapshotTopic,
		KafkaGroupID:       fmt.Sprintf("test-invalidator-%d", time.Now().UnixNano()),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "202604260000", r.URL.Query().Get("sts"))
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(lsrDay))
	}))
	t.Cleanup(srv.Close)

	metrics := observability.NewMetricsForTesting()
	allow, err := resilience.DefaultAllowlist("http://localhost:8080", srv.URL+"/geojson/lsr.php", "https://api.weather.gov/products")
	require.NoError(t, err)
	doer := resilience.New(resilience.Options{
		HTTPClient: srv.Client(),
		Allowlist:  allow,
		Logger:     discardLogger(),
		Metrics:    metrics,
	})
	live := upstream.NewClient(doer, srv.URL+"/geojson/lsr.php", upstream.BreakerSettings{}, discardLogger(), metrics)

	store, err := filestore.New(t.TempDir(), discardLogger())
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	updater := snapshot.NewUpdater(live, store, snapshot.UpdaterConfig{
		Clock:    clockwork.NewFakeClockAt(time.Date(2026, 4, 27, 0, 15, 0, 0, time.UTC)),
		Notifier: writer,
	}, discardLogger(), metrics)

	day := time.Date(2026, 4, 26, 0, 0, 0, 0, time.UTC)
	n, err := updater.UpdateDay(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fc, err := store.Load(day)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	runCtx, runCancel := context.WithCancel(ctx)
	events := make(chan snapshot.Event, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- reader.Run(runCtx, func(_ context.Context, e snapshot.Event) {
			events <- e
			runCancel()
		})
	}()

	select {
	case e := <-events:
		assert.Equal(t, "2026-04-26", e.Date)
		assert.Equal(t, day, e.Day)
		assert.Equal(t, 2, e.Reports)
		assert.Equal(t, 2, e.Added)
		assert.Equal(t, time.Date(2026, 4, 27, 0, 15, 0, 0, time.UTC), e.UpdatedAt)
	case <-ctx.Done():
		t.Fatal("timed out waiting for snapshot event")
	}
	require.NoError(t, <-errCh)
}
