package domain

import (
	"fmt"
	"strings"
	"time"
)

// Layouts for query parameters, snapshot keys and upstream windows.
const (
	DateLayout     = "2006-01-02"
	HourLayout     = "15:04"
	UpstreamLayout = "200601021504"
)

// Default hours applied when a query omits startHour or endHour.
const (
	DefaultStartHour = "00:00"
	DefaultEndHour   = "23:59"
)

// QueryRange is a closed [Start, End] window in UTC at minute granularity.
type QueryRange struct {
	Start time.Time
	End   time.Time
}

// NewQueryRange normalizes both bounds to UTC minutes and rejects inverted windows.
func NewQueryRange(start, end time.Time) (QueryRange, error) {
	r := QueryRange{
		Start: start.UTC().Truncate(time.Minute),
		End:   end.UTC().Truncate(time.Minute),
	}
	if r.End.Before(r.Start) {
		return QueryRange{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidRange,
			r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return r, nil
}

// ParseQueryRange builds a range from date (YYYY-MM-DD) and hour (HH:MM)
// parameters. Empty hours default to 00:00 and 23:59.
func ParseQueryRange(startDate, startHour, endDate, endHour string) (QueryRange, error) {
	if startHour == "" {
		startHour = DefaultStartHour
	}
	if endHour == "" {
		endHour = DefaultEndHour
	}
	start, err := time.Parse(DateLayout+" "+HourLayout, strings.TrimSpace(startDate)+" "+strings.TrimSpace(startHour))
	if err != nil {
		return QueryRange{}, fmt.Errorf("%w: start: %v", ErrInvalidRange, err)
	}
	end, err := time.Parse(DateLayout+" "+HourLayout, strings.TrimSpace(endDate)+" "+strings.TrimSpace(endHour))
	if err != nil {
		return QueryRange{}, fmt.Errorf("%w: end: %v", ErrInvalidRange, err)
	}
	return NewQueryRange(start, end)
}

// DayRange covers a whole UTC day, 00:00 through 23:59.
func DayRange(day time.Time) QueryRange {
	start := StartOfDay(day)
	return QueryRange{Start: start, End: start.Add(24*time.Hour - time.Minute)}
}

// TrailingRange is the window of length d ending at now.
func TrailingRange(now time.Time, d time.Duration) QueryRange {
	end := now.UTC().Truncate(time.Minute)
	return QueryRange{Start: end.Add(-d), End: end}
}

// Days lists every UTC calendar day the range touches, in order.
func (r QueryRange) Days() []time.Time {
	var days []time.Time
	for d := StartOfDay(r.Start); !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Contains reports whether t falls inside the range. Seconds are ignored so
// a report at 23:59:30 belongs to a window ending at 23:59.
func (r QueryRange) Contains(t time.Time) bool {
	m := t.UTC().Truncate(time.Minute)
	return !m.Before(r.Start) && !m.After(r.End)
}

// UpstreamStart formats the start bound for the IEM sts parameter.
func (r QueryRange) UpstreamStart() string { return r.Start.Format(UpstreamLayout) }

// UpstreamEnd formats the end bound for the IEM ets parameter.
func (r QueryRange) UpstreamEnd() string { return r.End.Format(UpstreamLayout) }

// Fingerprint is a stable cache key for the range.
func (r QueryRange) Fingerprint() string {
	return "lsr|" + r.UpstreamStart() + "|" + r.UpstreamEnd()
}

func (r QueryRange) String() string {
	return r.Start.Format(DateLayout+" "+HourLayout) + " to " + r.End.Format(DateLayout+" "+HourLayout)
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey is the snapshot key for the UTC day containing t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDay parses a YYYY-MM-DD snapshot key.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return t, nil
}

// DaysBetween lists the UTC days from start through end inclusive.
func DaysBetween(start, end time.Time) []time.Time {
	return QueryRange{Start: StartOfDay(start), End: StartOfDay(end)}.Days()
}
