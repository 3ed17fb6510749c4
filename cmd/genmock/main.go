// Command genmock converts NOAA SPC daily storm report CSVs into LSR snapshot
// files, so a local snapshot directory can be seeded without the upstream
// feed. Reports are shaped like IEM LSR GeoJSON features and merged into any
// existing snapshots, keyed by the UTC day of each report.
//
// SPC report days run 12Z to 12Z, so reports timed before 1200 belong to the
// following UTC day.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -csv-dir ../storm-data-system/mock-server/data \
//	  -date 2024-04-26 \
//	  -out data
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/filestore"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/snapshot"
)

// csvDef maps an SPC report file to its LSR type code.
type csvDef struct {
	suffix   string
	typeCode string
	typeText string
	magCol   string // column name for magnitude (Size, F_Scale, Speed)
}

var defs = []csvDef{
	{suffix: "_rpts_hail.csv", typeCode: "H", typeText: "HAIL", magCol: "Size"},
	{suffix: "_rpts_torn.csv", typeCode: "T", typeText: "TORNADO", magCol: "F_Scale"},
	{suffix: "_rpts_wind.csv", typeCode: "G", typeText: "TSTM WND GST", magCol: "Speed"},
}

// officePattern matches the trailing "(FWD)" office tag in SPC comments.
var officePattern = regexp.MustCompile(`\(([A-Z]{3})\)\s*$`)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvDir := flag.String("csv-dir", "", "directory containing NOAA SPC CSV files")
	date := flag.String("date", "", "SPC report date (YYYY-MM-DD)")
	out := flag.String("out", "", "snapshot directory to write")
	flag.Parse()

	if *csvDir == "" || *date == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -csv-dir, -date, -out")
	}
	reportDay, err := domain.ParseDay(*date)
	if err != nil {
		return err
	}

	byDay := map[time.Time][]domain.Feature{}
	for _, d := range defs {
		path := filepath.Join(*csvDir, reportDay.Format("060102")+d.suffix)
		features, err := processCSV(path, reportDay, d)
		if err != nil {
			return fmt.Errorf("processing %s: %w", filepath.Base(path), err)
		}
		for _, f := range features {
			ts, _ := f.Timestamp()
			day := domain.StartOfDay(ts)
			byDay[day] = append(byDay[day], f)
		}
		log.Printf("%s: %d reports", d.typeText, len(features))
	}

	store, err := filestore.New(*out, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}
	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	for _, day := range days {
		var existing []domain.Feature
		if store.Exists(day) {
			fc, err := store.Load(day)
			if err != nil {
				return fmt.Errorf("load %s: %w", filestore.FileName(day), err)
			}
			existing = fc.Features
		}
		merged, stats := snapshot.Merge(existing, byDay[day])
		if err := store.Save(day, domain.NewFeatureCollection(merged)); err != nil {
			return fmt.Errorf("save %s: %w", filestore.FileName(day), err)
		}
		log.Printf("wrote %s: %d reports (%d added, %d updated)",
			filestore.FileName(day), len(merged), stats.Added, stats.Updated)
	}

	printStats(byDay)
	return nil
}

func processCSV(path string, reportDay time.Time, d csvDef) ([]domain.Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[h] = i
	}

	features := make([]domain.Feature, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < len(rows[0]) {
			continue
		}
		feat, ok := convertRow(row, colIdx, reportDay, d)
		if !ok {
			continue
		}
		features = append(features, feat)
	}
	return features, nil
}

// convertRow builds an LSR feature from one SPC row. Rows without a usable
// time or coordinates are skipped.
func convertRow(row []string, idx map[string]int, reportDay time.Time, d csvDef) (domain.Feature, bool) {
	valid, ok := spcTime(reportDay, get(row, idx, "Time"))
	if !ok {
		return domain.Feature{}, false
	}
	lat, errLat := strconv.ParseFloat(get(row, idx, "Lat"), 64)
	lon, errLon := strconv.ParseFloat(get(row, idx, "Lon"), 64)
	if errLat != nil || errLon != nil {
		return domain.Feature{}, false
	}

	comments := get(row, idx, "Comments")
	props := map[string]any{
		"valid":     valid.Format("2006-01-02T15:04:05Z"),
		"type":      d.typeCode,
		"typetext":  d.typeText,
		"magnitude": magnitude(d.typeCode, get(row, idx, d.magCol)),
		"city":      get(row, idx, "Location"),
		"county":    get(row, idx, "County"),
		"st":        get(row, idx, "State"),
		"lat":       lat,
		"lon":       lon,
		"remark":    comments,
		"source":    "SPC",
	}
	if m := officePattern.FindStringSubmatch(comments); m != nil {
		props["wfo"] = m[1]
	}

	feat := domain.Feature{Type: "Feature", Properties: map[string]json.RawMessage{}}
	for k, v := range props {
		raw, err := json.Marshal(v)
		if err != nil {
			return domain.Feature{}, false
		}
		feat.Properties[k] = raw
	}
	geom, err := json.Marshal(map[string]any{"type": "Point", "coordinates": []float64{lon, lat}})
	if err != nil {
		return domain.Feature{}, false
	}
	feat.Geometry = geom
	return feat, true
}

// spcTime places an HHMM report time on the SPC day, which starts at 12Z.
func spcTime(reportDay time.Time, hhmm string) (time.Time, bool) {
	if len(hhmm) == 3 {
		hhmm = "0" + hhmm
	}
	if len(hhmm) != 4 {
		return time.Time{}, false
	}
	hour, errH := strconv.Atoi(hhmm[:2])
	mins, errM := strconv.Atoi(hhmm[2:])
	if errH != nil || errM != nil || hour > 23 || mins > 59 || hour < 0 || mins < 0 {
		return time.Time{}, false
	}
	t := time.Date(reportDay.Year(), reportDay.Month(), reportDay.Day(), hour, mins, 0, 0, time.UTC)
	if hour < 12 {
		t = t.AddDate(0, 0, 1)
	}
	return t, true
}

// magnitude converts SPC units to LSR ones: hail size is in hundredths of
// an inch, wind speed in mph, and tornado ratings carry no magnitude.
func magnitude(typeCode, raw string) any {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || typeCode == "T" {
		return nil
	}
	if typeCode == "H" {
		return v / 100
	}
	return v
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

type stateCount struct {
	state string
	count int
}

func printStats(byDay map[time.Time][]domain.Feature) {
	typeCounts := map[string]int{}
	stateCounts := map[string]int{}
	total := 0
	for _, features := range byDay {
		for _, f := range features {
			r := f.Report()
			typeCounts[r.Type]++
			stateCounts[r.State]++
			total++
		}
	}

	fmt.Println("\n=== Stats ===")
	fmt.Printf("Total: %d across %d days\n", total, len(byDay))
	fmt.Printf("By type: hail=%d, tornado=%d, wind=%d\n", typeCounts["H"], typeCounts["T"], typeCounts["G"])

	sc := make([]stateCount, 0, len(stateCounts))
	for s, c := range stateCounts {
		sc = append(sc, stateCount{s, c})
	}
	sort.Slice(sc, func(i, j int) bool { return sc[i].count > sc[j].count })
	fmt.Printf("States (%d): ", len(sc))
	for _, s := range sc {
		fmt.Printf("%s=%d ", s.state, s.count)
	}
	fmt.Println()
}
