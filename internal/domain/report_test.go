package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hailFeatureJSON = `{
	"type": "Feature",
	"geometry": {"type": "Point", "coordinates": [-98.44, 31.02]},
	"properties": {
		"valid": "2026-04-26T15:10:00Z",
		"type": "H",
		"typetext": "HAIL",
		"magnitude": 1.25,
		"lat": 31.02,
		"lon": -98.44,
		"city": "8 ESE Chappel",
		"county": "San Saba",
		"st": "TX",
		"wfo": "SJT",
		"remark": "Quarter to golf ball hail.",
		"source": "Trained Spotter"
	}
}`

func mustFeature(t *testing.T, s string) Feature {
	t.Helper()
	var f Feature
	require.NoError(t, json.Unmarshal([]byte(s), &f))
	return f
}

func TestFeature_Report(t *testing.T) {
	r := mustFeature(t, hailFeatureJSON).Report()

	assert.Equal(t, "H", r.Type)
	assert.Equal(t, "HAIL", r.TypeText)
	assert.Equal(t, "1.25", r.Magnitude)
	assert.True(t, r.HasCoords)
	assert.Equal(t, 31.02, r.Lat)
	assert.Equal(t, -98.44, r.Lon)
	assert.Equal(t, time.Date(2026, 4, 26, 15, 10, 0, 0, time.UTC), r.Valid)
	assert.Equal(t, "8 ESE Chappel", r.City)
	assert.Equal(t, "San Saba", r.County)
	assert.Equal(t, "TX", r.State)
	assert.Equal(t, "SJT", r.WFO)
	assert.Equal(t, "Quarter to golf ball hail.", r.Remark)
}

func TestFeature_Report_Fallbacks(t *testing.T) {
	t.Run("rtype and state aliases", func(t *testing.T) {
		f := mustFeature(t, `{"type":"Feature","geometry":null,"properties":{"rtype":"T","state":"OK","lat":"35.2","lon":"-97.4"}}`)
		r := f.Report()
		assert.Equal(t, "T", r.Type)
		assert.Equal(t, "OK", r.State)
		assert.True(t, r.HasCoords)
		assert.Equal(t, 35.2, r.Lat)
	})

	t.Run("coordinates from geometry", func(t *testing.T) {
		f := mustFeature(t, `{"type":"Feature","geometry":{"type":"Point","coordinates":[-97.4,35.2]},"properties":{"type":"G"}}`)
		r := f.Report()
		assert.True(t, r.HasCoords)
		assert.Equal(t, 35.2, r.Lat)
		assert.Equal(t, -97.4, r.Lon)
	})

	t.Run("null magnitude is empty", func(t *testing.T) {
		f := mustFeature(t, `{"type":"Feature","geometry":null,"properties":{"magnitude":null}}`)
		assert.Empty(t, f.Report().Magnitude)
	})

	t.Run("no coordinates anywhere", func(t *testing.T) {
		f := mustFeature(t, `{"type":"Feature","geometry":null,"properties":{"type":"H"}}`)
		assert.False(t, f.Report().HasCoords)
	})
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 4, 26, 15, 10, 0, 0, time.UTC)
	tests := []struct {
		in string
		ok bool
	}{
		{"2026-04-26T15:10:00Z", true},
		{"2026-04-26T15:10:00", true},
		{"2026-04-26 15:10:00", true},
		{"2026-04-26T15:10", true},
		{"2026-04-26T10:10:00-05:00", true},
		{"", false},
		{"yesterday", false},
		{"04/26/2026 15:10", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestDecodeFeatureCollection(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		fc, err := DecodeFeatureCollection([]byte(`{"type":"FeatureCollection","features":[` + hailFeatureJSON + `]}`))
		require.NoError(t, err)
		assert.Len(t, fc.Features, 1)
		assert.Equal(t, FeatureCollectionType, fc.Type)
	})

	t.Run("empty features", func(t *testing.T) {
		fc, err := DecodeFeatureCollection([]byte(`{"type":"FeatureCollection","features":[]}`))
		require.NoError(t, err)
		assert.NotNil(t, fc.Features)
		assert.Empty(t, fc.Features)
	})

	t.Run("missing features", func(t *testing.T) {
		_, err := DecodeFeatureCollection([]byte(`{"type":"FeatureCollection"}`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUpstreamMalformed))
	})

	t.Run("not json", func(t *testing.T) {
		_, err := DecodeFeatureCollection([]byte(`<html>busy</html>`))
		assert.ErrorIs(t, err, ErrUpstreamMalformed)
	})
}

func TestFeatureCollection_MarshalJSON(t *testing.T) {
	t.Run("nil features encode as empty array", func(t *testing.T) {
		data, err := json.Marshal(FeatureCollection{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(data))
	})

	t.Run("error marker", func(t *testing.T) {
		data, err := json.Marshal(EmptyCollection("upstream unavailable"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"FeatureCollection","features":[],"error":"upstream unavailable"}`, string(data))
	})

	t.Run("unknown properties survive", func(t *testing.T) {
		f := mustFeature(t, hailFeatureJSON)
		data, err := json.Marshal(NewFeatureCollection([]Feature{f}))
		require.NoError(t, err)

		back, err := DecodeFeatureCollection(data)
		require.NoError(t, err)
		require.Len(t, back.Features, 1)
		assert.JSONEq(t, `"Trained Spotter"`, string(back.Features[0].Properties["source"]))
	})
}
