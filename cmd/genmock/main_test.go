package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportDay = time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC)

func TestSPCTime(t *testing.T) {
	got, ok := spcTime(reportDay, "1510")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC), got)

	got, ok = spcTime(reportDay, "045")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 4, 27, 0, 45, 0, 0, time.UTC), got, "before 12Z rolls to the next UTC day")

	_, ok = spcTime(reportDay, "2575")
	assert.False(t, ok)
	_, ok = spcTime(reportDay, "")
	assert.False(t, ok)
}

func TestMagnitude(t *testing.T) {
	assert.Equal(t, 1.25, magnitude("H", "125"))
	assert.Equal(t, 65.0, magnitude("G", "65"))
	assert.Nil(t, magnitude("G", "UNK"))
	assert.Nil(t, magnitude("T", "EF1"))
}

func TestProcessCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "240426_rpts_hail.csv")
	body := "Time,Size,Location,County,State,Lat,Lon,Comments\n" +
		"1510,125,8 ESE Chappel,San Saba,TX,31.02,-98.44,Quarter size hail. (SJT)\n" +
		"0030,100,Ponca City,Kay,OK,36.7,-97.08,Report via social media. (OUN)\n" +
		"1600,100,Nowhere,Kay,OK,,,No coordinates\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	features, err := processCSV(path, reportDay, defs[0])
	require.NoError(t, err)
	require.Len(t, features, 2)

	r := features[0].Report()
	assert.Equal(t, "H", r.Type)
	assert.Equal(t, "1.25", r.Magnitude)
	assert.Equal(t, "SJT", r.WFO)
	assert.Equal(t, "TX", r.State)
	assert.Equal(t, time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC), r.Valid)
	_, ok := features[0].Identity()
	assert.True(t, ok)

	ts, ok := features[1].Timestamp()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 4, 27, 0, 30, 0, 0, time.UTC), ts)
}
