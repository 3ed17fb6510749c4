// Command validate checks the integrity of a snapshot directory: file
// naming, GeoJSON decoding, report identity, day boundaries and retention.
// It reads files directly and never modifies the directory.
//
// Usage:
//
//	go run ./cmd/validate -dir data -retention-days 30
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/filestore"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// snapshotFile is one decoded snapshot.
type snapshotFile struct {
	name       string
	day        time.Time
	collection domain.FeatureCollection
}

func main() {
	dir := flag.String("dir", sharedcfg.EnvOrDefault("SNAPSHOT_DIR", "data"), "snapshot directory")
	retentionDays := flag.Int("retention-days", 30, "retention window in days")
	flag.Parse()

	if *retentionDays <= 0 {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir, *retentionDays, time.Now().UTC()); code != 0 {
		os.Exit(code)
	}
}

func run(dir string, retentionDays int, now time.Time) int {
	fmt.Println("=== LSR Snapshot Integrity Validation ===")
	fmt.Printf("Directory: %s\n\n", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read snapshot dir: %v\n", err)
		return 1
	}

	naming, names := validateNaming(entries)
	decoding, files := validateDecoding(dir, names)

	// ── Run validation phases ──
	phases := []*phase{
		naming,
		decoding,
		validateIdentity(files),
		validateDayBoundaries(files),
		validateRetention(files, retentionDays, now),
	}

	// ── Report results ──
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Snapshots: %d files, %d reports\n", len(files), countReports(files))

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phases ──

// validateNaming checks every regular file is a snapshot and returns the
// names that parse. Hidden entries (the write temp dir) are ignored.
func validateNaming(entries []os.DirEntry) (*phase, []string) {
	p := &phase{name: "File naming"}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() {
			p.errorf("%s: unexpected subdirectory", e.Name())
			continue
		}
		if _, ok := filestore.DayFromFileName(e.Name()); !ok {
			p.errorf("%s: not a reports-YYYY-MM-DD.geojson file", e.Name())
			continue
		}
		names = append(names, e.Name())
	}
	return p, names
}

// validateDecoding parses each snapshot. Snapshots must be plain
// collections, never a degraded response carrying an error marker.
func validateDecoding(dir string, names []string) (*phase, []snapshotFile) {
	p := &phase{name: "GeoJSON decoding"}
	var files []snapshotFile
	for _, name := range names {
		day, _ := filestore.DayFromFileName(name)
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		fc, err := domain.DecodeFeatureCollection(data)
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		if fc.Error != "" {
			p.errorf("%s: carries error marker %q", name, fc.Error)
		}
		files = append(files, snapshotFile{name: name, day: day, collection: fc})
	}
	return p, files
}

// validateIdentity checks no two reports in a file share an identity.
// Reports without an identity are allowed.
func validateIdentity(files []snapshotFile) *phase {
	p := &phase{name: "Report identity (no duplicates)"}
	for _, f := range files {
		seen := make(map[string]int)
		for i, feat := range f.collection.Features {
			id, ok := feat.Identity()
			if !ok {
				continue
			}
			if first, dup := seen[id]; dup {
				p.errorf("%s: feature %d duplicates feature %d (%s)", f.name, i, first, id[:12])
				continue
			}
			seen[id] = i
		}
	}
	return p
}

// validateDayBoundaries checks every timestamped report falls inside the
// UTC day its file is named for.
func validateDayBoundaries(files []snapshotFile) *phase {
	p := &phase{name: "Day boundaries"}
	for _, f := range files {
		rng := domain.DayRange(f.day)
		for i, feat := range f.collection.Features {
			ts, ok := feat.Timestamp()
			if !ok {
				continue
			}
			if !rng.Contains(ts) {
				p.errorf("%s: feature %d valid %s is outside %s", f.name, i, ts.Format(time.RFC3339), domain.DayKey(f.day))
			}
		}
	}
	return p
}

// validateRetention checks no snapshot precedes the cleanup cutoff or is
// dated in the future.
func validateRetention(files []snapshotFile, retentionDays int, now time.Time) *phase {
	p := &phase{name: fmt.Sprintf("Retention (%d days)", retentionDays)}
	today := domain.StartOfDay(now)
	cutoff := today.AddDate(0, 0, -retentionDays)
	for _, f := range files {
		switch {
		case f.day.Before(cutoff):
			p.errorf("%s: older than cutoff %s", f.name, domain.DayKey(cutoff))
		case f.day.After(today):
			p.errorf("%s: dated in the future", f.name)
		}
	}
	return p
}

func countReports(files []snapshotFile) int {
	n := 0
	for _, f := range files {
		n += len(f.collection.Features)
	}
	return n
}
