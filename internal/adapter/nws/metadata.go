package nws

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
)

// Entry is one observation from a PNS METADATA block. Lines look like
//
//	:2/15/2026,0700 AM,OH,Franklin,2 NW Columbus,40.02,-83.05,SNOW_24,5.0,Inch,CO-OP Observer,24 hour total
//
// where the location may itself contain commas.
type Entry struct {
	Date        string
	Time        string
	State       string
	County      string
	Location    string
	Lat         float64
	Lon         float64
	Type        string
	Magnitude   string
	Unit        string
	Provider    string
	Description string
}

var (
	metadataHeader = regexp.MustCompile(`(?i)\**\s*METADATA\s*\**`)
	sectionEnd     = regexp.MustCompile(`\$\$|&&`)
	normalizer     = strings.NewReplacer("_", "", "-", "", " ", "")
)

// typeGroups maps PNS metadata types to LSR type codes.
var typeGroups = []struct {
	code  string
	types []string
}{
	{"S", []string{"SNOW", "SNOW_24", "SN"}},
	{"R", []string{"RAIN", "RAIN_24", "PRECIP", "PRECIPITATION"}},
	{"5", []string{"ICE", "ICING", "FREEZING_RAIN", "FREEZING", "FREEZING_DRIZZLE", "FZRA"}},
	{"s", []string{"SLEET"}},
	{"F", []string{"FLOOD", "FLOODING", "COASTAL_FLOOD", "COASTAL_FLOODING"}},
	{"X", []string{"TEMPERATURE", "TEMP", "COLD", "HEAT", "WIND_CHILL", "HEAT_INDEX", "EXTREME_COLD", "EXTREME_HEAT", "EXTREME_TEMP"}},
	{"O", []string{"WIND", "WIND_GUST", "WIND_24", "GUST", "GUSTS", "HIGH_WIND", "STRONG_WIND", "SUSTAINED_WIND", "PEAK_WIND", "P_WIND"}},
	{"H", []string{"HAIL"}},
	{"D", []string{"THUNDERSTORM", "TS", "TSTM", "THUNDER"}},
	{"T", []string{"TORNADO"}},
}

var typeCodes = func() map[string]string {
	m := make(map[string]string)
	for _, g := range typeGroups {
		for _, t := range g.types {
			m[t] = g.code
		}
	}
	return m
}()

// typeKeysByLength lists typeCodes keys longest first for substring matching.
var typeKeysByLength = func() []string {
	keys := make([]string, 0, len(typeCodes))
	for k := range typeCodes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// TypeCode maps a PNS metadata type to an LSR type code, or "" when unknown.
// Exact matches win, then matches ignoring separators, then the longest
// known type the value contains.
func TypeCode(pnsType string) string {
	upper := strings.ToUpper(strings.TrimSpace(pnsType))
	if upper == "" {
		return ""
	}
	if code, ok := typeCodes[upper]; ok {
		return code
	}
	normalized := normalizer.Replace(upper)
	for _, k := range typeKeysByLength {
		if normalizer.Replace(k) == normalized {
			return typeCodes[k]
		}
	}
	for _, k := range typeKeysByLength {
		if len(k) > 2 && strings.Contains(upper, k) {
			return typeCodes[k]
		}
	}
	return ""
}

// ParseMetadata extracts the entries of the METADATA block in a PNS
// product. Products without one yield nil. Lines without a usable
// coordinate pair are skipped.
func ParseMetadata(text string) []Entry {
	loc := metadataHeader.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	section := text[loc[1]:]
	if end := sectionEnd.FindStringIndex(section); end != nil {
		section = section[:end[0]]
	}

	var entries []Entry
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, ":") {
			continue
		}
		if e, ok := parseLine(line); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func parseLine(line string) (Entry, bool) {
	parts := strings.Split(strings.TrimPrefix(line, ":"), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	latIdx, lat, lon, ok := findCoords(parts)
	if !ok {
		return Entry{}, false
	}
	lonIdx := latIdx + 1

	e := Entry{
		Date:        field(parts, 0),
		Time:        field(parts, 1),
		State:       field(parts, 2),
		County:      field(parts, 3),
		Lat:         lat,
		Lon:         lon,
		Type:        field(parts, lonIdx+1),
		Magnitude:   field(parts, lonIdx+2),
		Unit:        field(parts, lonIdx+3),
		Provider:    field(parts, lonIdx+4),
		Description: joinNonEmpty(parts, lonIdx+5, len(parts)),
	}
	if latIdx > 4 {
		e.Location = joinNonEmpty(parts, 4, latIdx)
	}
	return e, true
}

// findCoords scans from the end for a latitude followed by a western
// longitude, then falls back to any plausible pair of numbers.
func findCoords(parts []string) (int, float64, float64, bool) {
	for i := len(parts) - 1; i >= 3; i-- {
		lon, errLon := strconv.ParseFloat(parts[i], 64)
		lat, errLat := strconv.ParseFloat(parts[i-1], 64)
		if errLon != nil || errLat != nil {
			continue
		}
		if lon < 0 && lon >= -180 && lat >= 20 && lat <= 60 {
			return i - 1, lat, lon, true
		}
	}
	for i := len(parts) - 1; i >= 3; i-- {
		lon, errLon := strconv.ParseFloat(parts[i], 64)
		lat, errLat := strconv.ParseFloat(parts[i-1], 64)
		if errLon != nil || errLat != nil {
			continue
		}
		absLat, absLon := abs(lat), abs(lon)
		if absLat >= 20 && absLat <= 60 && absLon >= 60 && absLon <= 180 {
			return i - 1, absLat, lon, true
		}
	}
	return 0, 0, 0, false
}

// Feature renders the entry as an LSR-shaped GeoJSON feature. PNS times are
// local to the issuing office, so "valid" carries the product's issuance
// time and the reported local date and time are kept alongside.
func (e Entry) Feature(p Product) domain.Feature {
	props := map[string]any{
		"valid":      p.IssuanceTime.UTC().Format(time.RFC3339),
		"type":       TypeCode(e.Type),
		"typetext":   e.Type,
		"magnitude":  magnitude(e.Magnitude),
		"unit":       e.Unit,
		"city":       e.Location,
		"county":     e.County,
		"st":         e.State,
		"lat":        e.Lat,
		"lon":        e.Lon,
		"remark":     e.Description,
		"source":     e.Provider,
		"wfo":        office(p.IssuingOffice),
		"reported":   strings.TrimSpace(e.Date + " " + e.Time),
		"product_id": p.ID,
	}

	f := domain.Feature{Type: "Feature", Properties: make(map[string]json.RawMessage, len(props))}
	for k, v := range props {
		raw, _ := json.Marshal(v) // plain strings and numbers always encode
		f.Properties[k] = raw
	}
	f.Geometry, _ = json.Marshal(map[string]any{"type": "Point", "coordinates": []float64{e.Lon, e.Lat}})
	return f
}

func magnitude(raw string) any {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return v
}

// office drops the ICAO "K" prefix so offices match LSR wfo codes.
func office(id string) string {
	if len(id) == 4 && id[0] == 'K' {
		return id[1:]
	}
	return id
}

func field(parts []string, i int) string {
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}

func joinNonEmpty(parts []string, from, to int) string {
	if from >= len(parts) || from >= to {
		return ""
	}
	if to > len(parts) {
		to = len(parts)
	}
	var kept []string
	for _, p := range parts[from:to] {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
