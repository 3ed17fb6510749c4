package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	d, _ := domain.ParseDay(s)
	return d
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		start, end string
	}{
		{"default is yesterday", nil, "2026-10-16", "2026-10-16"},
		{"today", []string{"--today"}, "2026-10-17", "2026-10-17"},
		{"days", []string{"--days", "7"}, "2026-10-10", "2026-10-16"},
		{"all", []string{"--all"}, "2026-09-18", "2026-10-17"},
		{"date", []string{"--date", "2026-04-26"}, "2026-04-26", "2026-04-26"},
		{"range", []string{"--from", "2026-04-20", "--to", "2026-04-26"}, "2026-04-20", "2026-04-26"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := parseFlags(tt.args)
			require.NoError(t, err)
			start, end, err := m.window(now, 30)
			require.NoError(t, err)
			assert.Equal(t, day(tt.start), start)
			assert.Equal(t, day(tt.end), end)
		})
	}
}

func TestParseFlags_Rejects(t *testing.T) {
	for _, args := range [][]string{
		{"--all", "--today"},
		{"--days", "-2"},
		{"--from", "2026-04-20"},
		{"extra"},
	} {
		_, err := parseFlags(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestWindow_InvertedRange(t *testing.T) {
	m, err := parseFlags([]string{"--from", "2026-04-26", "--to", "2026-04-20"})
	require.NoError(t, err)
	_, _, err = m.window(now, 30)
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	res := snapshot.RangeResult{Days: []snapshot.DayResult{
		{Day: day("2026-04-25"), Reports: 12},
		{Day: day("2026-04-26"), Err: errors.Join(domain.ErrNetwork, errors.New("dial tcp: connection refused"))},
	}}
	var out bytes.Buffer
	printSummary(&out, res)

	assert.Contains(t, out.String(), "2026-04-25")
	assert.Contains(t, out.String(), "12 reports")
	assert.Contains(t, out.String(), "Days: 1 updated, 1 failed. Reports: 12")
}
