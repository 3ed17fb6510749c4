package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FeatureCollectionType is the GeoJSON type tag for report collections.
const FeatureCollectionType = "FeatureCollection"

// Feature is a single GeoJSON report. Properties are held as raw JSON so
// fields this package does not interpret are written back unchanged.
type Feature struct {
	Type       string                     `json:"type"`
	ID         json.RawMessage            `json:"id,omitempty"`
	Geometry   json.RawMessage            `json:"geometry"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// FeatureCollection is the wire and on-disk shape of a set of reports.
// Error is only set on degraded responses.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
	Error    string    `json:"error,omitempty"`
}

// NewFeatureCollection wraps features in a collection. A nil slice becomes
// an empty one so the collection always encodes "features": [].
func NewFeatureCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{Type: FeatureCollectionType, Features: features}
}

// EmptyCollection returns a collection with no features carrying an error marker.
func EmptyCollection(errMsg string) FeatureCollection {
	fc := NewFeatureCollection(nil)
	fc.Error = errMsg
	return fc
}

// MarshalJSON encodes the collection, forcing an empty features array.
func (fc FeatureCollection) MarshalJSON() ([]byte, error) {
	type alias FeatureCollection
	out := alias(fc)
	if out.Type == "" {
		out.Type = FeatureCollectionType
	}
	if out.Features == nil {
		out.Features = []Feature{}
	}
	return json.Marshal(out)
}

// DecodeFeatureCollection parses a GeoJSON payload. A payload that is not
// JSON or has no "features" array is reported as ErrUpstreamMalformed.
func DecodeFeatureCollection(data []byte) (FeatureCollection, error) {
	var raw struct {
		Type     string     `json:"type"`
		Features *[]Feature `json:"features"`
		Error    string     `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return FeatureCollection{}, fmt.Errorf("%w: %v", ErrUpstreamMalformed, err)
	}
	if raw.Features == nil {
		return FeatureCollection{}, fmt.Errorf("%w: missing features array", ErrUpstreamMalformed)
	}
	fc := NewFeatureCollection(*raw.Features)
	fc.Error = raw.Error
	return fc, nil
}

// Report is the typed view of an LSR feature's properties.
type Report struct {
	Type      string
	TypeText  string
	Magnitude string // textual form; empty when null or absent
	Lat       float64
	Lon       float64
	HasCoords bool
	Valid     time.Time // zero when absent or unparseable
	ValidRaw  string
	Remark    string
	City      string
	County    string
	State     string
	WFO       string
}

// Report normalizes the feature's properties. Coordinates fall back to the
// Point geometry when the lat/lon properties are missing.
func (f Feature) Report() Report {
	r := Report{
		Type:      f.firstProp("type", "rtype"),
		TypeText:  f.firstProp("typetext"),
		Magnitude: f.firstProp("magnitude"),
		ValidRaw:  f.firstProp("valid"),
		Remark:    f.firstProp("remark"),
		City:      f.firstProp("city"),
		County:    f.firstProp("county"),
		State:     f.firstProp("st", "state"),
		WFO:       f.firstProp("wfo"),
	}
	if t, ok := ParseTimestamp(r.ValidRaw); ok {
		r.Valid = t
	}

	lat, latErr := strconv.ParseFloat(f.firstProp("lat"), 64)
	lon, lonErr := strconv.ParseFloat(f.firstProp("lon"), 64)
	if latErr == nil && lonErr == nil {
		r.Lat, r.Lon, r.HasCoords = lat, lon, true
	} else if glat, glon, ok := f.pointCoords(); ok {
		r.Lat, r.Lon, r.HasCoords = glat, glon, true
	}
	return r
}

// Timestamp returns the parsed "valid" time, or false when it is absent or
// unparseable.
func (f Feature) Timestamp() (time.Time, bool) {
	return ParseTimestamp(f.firstProp("valid"))
}

// firstProp returns the first non-empty property among keys as text.
func (f Feature) firstProp(keys ...string) string {
	for _, k := range keys {
		if s := propString(f.Properties[k]); s != "" {
			return s
		}
	}
	return ""
}

func (f Feature) pointCoords() (lat, lon float64, ok bool) {
	if len(f.Geometry) == 0 {
		return 0, 0, false
	}
	var g struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(f.Geometry, &g); err != nil || g.Type != "Point" || len(g.Coordinates) < 2 {
		return 0, 0, false
	}
	return g.Coordinates[1], g.Coordinates[0], true
}

// propString renders a raw JSON value as text: strings are unquoted, null
// becomes empty, and numbers keep their literal form.
func propString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(raw)
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an LSR "valid" value. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
