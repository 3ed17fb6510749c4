package filestore

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2026, 4, 26, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func testCollection(t *testing.T) domain.FeatureCollection {
	t.Helper()
	var f domain.Feature
	require.NoError(t, json.Unmarshal([]byte(`{"type":"Feature","geometry":{"type":"Point","coordinates":[-98.44,31.02]},
		"properties":{"valid":"2026-04-26T15:10:00Z","type":"H","magnitude":1.25,"lat":31.02,"lon":-98.44}}`), &f))
	return domain.NewFeatureCollection([]domain.Feature{f})
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "reports-2026-04-26.geojson", FileName(testDay.Add(17*time.Hour)))

	day, ok := DayFromFileName("reports-2026-04-26.geojson")
	require.True(t, ok)
	assert.Equal(t, testDay, day)

	_, ok = DayFromFileName("notes.txt")
	assert.False(t, ok)
	_, ok = DayFromFileName("reports-2026-13-45.geojson")
	assert.False(t, ok)
}

func TestStore_SaveLoad(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.Exists(testDay))

	fc := testCollection(t)
	require.NoError(t, s.Save(testDay, fc))
	assert.True(t, s.Exists(testDay))

	_, err := os.Stat(filepath.Join(s.Dir(), "reports-2026-04-26.geojson"))
	require.NoError(t, err)

	got, err := s.Load(testDay)
	require.NoError(t, err)
	require.Len(t, got.Features, 1)
	assert.Equal(t, domain.FeatureCollectionType, got.Type)
	assert.Equal(t, "H", got.Features[0].Report().Type)
}

func TestStore_SavePrettyPrints(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(testDay, testCollection(t)))

	raw, err := s.ReadRaw(testDay)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"features\": [")
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(testDay)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ReadRaw(testDay)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LoadCorrupt(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), FileName(testDay)), []byte("{not json"), 0o644))

	_, err := s.Load(testDay)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamMalformed)
}

func TestStore_DaysAndDelete(t *testing.T) {
	s := newTestStore(t)
	fc := testCollection(t)
	for _, d := range []time.Time{testDay.AddDate(0, 0, 2), testDay, testDay.AddDate(0, 0, 1)} {
		require.NoError(t, s.Save(d, fc))
	}
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "README.txt"), []byte("hi"), 0o644))

	days, err := s.Days(context.Background())
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, testDay, days[0])
	assert.Equal(t, testDay.AddDate(0, 0, 2), days[2])

	require.NoError(t, s.Delete(testDay))
	assert.False(t, s.Exists(testDay))

	days, err = s.Days(context.Background())
	require.NoError(t, err)
	assert.Len(t, days, 2)

	assert.Error(t, s.Delete(testDay))
}

func TestStore_CheckReadiness(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CheckReadiness(context.Background()))

	require.NoError(t, os.RemoveAll(s.Dir()))
	assert.Error(t, s.CheckReadiness(context.Background()))
}
