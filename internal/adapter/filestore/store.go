// Package filestore persists daily report snapshots as one GeoJSON file per
// UTC day, named reports-YYYY-MM-DD.geojson, in a flat directory.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/peterbourgon/diskv/v3"
)

const (
	filePrefix = "reports-"
	fileSuffix = ".geojson"
	tempDir    = ".tmp"
)

// ErrNotFound is returned when no snapshot exists for a day.
var ErrNotFound = errors.New("snapshot not found")

var fileNamePattern = regexp.MustCompile(`^reports-(\d{4}-\d{2}-\d{2})\.geojson$`)

// Store reads and writes daily snapshots. Writes go to a temp file and are
// renamed into place, so readers never observe a partial snapshot.
type Store struct {
	kv     *diskv.Diskv
	dir    string
	logger *slog.Logger
}

// New opens (creating if needed) a snapshot directory.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, tempDir), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	kv := diskv.New(diskv.Options{
		BasePath:          dir,
		TempDir:           filepath.Join(dir, tempDir),
		AdvancedTransform: pathKey,
		InverseTransform:  keyFromPath,
		// The updater runs as a separate process; always read from disk.
		CacheSizeMax: 0,
		PathPerm:     0o755,
		FilePerm:     0o644,
	})
	return &Store{kv: kv, dir: dir, logger: logger}, nil
}

// FileName is the on-disk name of the snapshot for day.
func FileName(day time.Time) string {
	return filePrefix + domain.DayKey(day) + fileSuffix
}

// DayFromFileName parses a snapshot file name back to its day.
func DayFromFileName(name string) (time.Time, bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	day, err := domain.ParseDay(m[1])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

func pathKey(key string) *diskv.PathKey {
	return &diskv.PathKey{Path: []string{}, FileName: filePrefix + key + fileSuffix}
}

// keyFromPath maps foreign files to the empty key; Days skips them.
func keyFromPath(pk *diskv.PathKey) string {
	if len(pk.Path) > 0 {
		return ""
	}
	m := fileNamePattern.FindStringSubmatch(pk.FileName)
	if m == nil {
		return ""
	}
	return m[1]
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string { return s.dir }

// Exists reports whether a snapshot file is present for day.
func (s *Store) Exists(day time.Time) bool {
	return s.kv.Has(domain.DayKey(day))
}

// Load reads and decodes the snapshot for day. A missing file yields
// ErrNotFound.
func (s *Store) Load(day time.Time) (domain.FeatureCollection, error) {
	key := domain.DayKey(day)
	if !s.kv.Has(key) {
		return domain.FeatureCollection{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	data, err := s.kv.Read(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.FeatureCollection{}, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return domain.FeatureCollection{}, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	fc, err := domain.DecodeFeatureCollection(data)
	if err != nil {
		return domain.FeatureCollection{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return fc, nil
}

// Save replaces the snapshot for day with fc, pretty-printed.
func (s *Store) Save(day time.Time, fc domain.FeatureCollection) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", domain.DayKey(day), err)
	}
	if err := s.kv.Write(domain.DayKey(day), data); err != nil {
		return fmt.Errorf("write snapshot %s: %w", domain.DayKey(day), err)
	}
	return nil
}

// ReadRaw returns the stored bytes of the snapshot for day.
func (s *Store) ReadRaw(day time.Time) ([]byte, error) {
	key := domain.DayKey(day)
	if !s.kv.Has(key) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	data, err := s.kv.Read(key)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the snapshot for day.
func (s *Store) Delete(day time.Time) error {
	if err := s.kv.Erase(domain.DayKey(day)); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", domain.DayKey(day), err)
	}
	return nil
}

// Days lists the days with a snapshot, oldest first.
func (s *Store) Days(ctx context.Context) ([]time.Time, error) {
	var days []time.Time
	cancel := make(chan struct{})
	defer close(cancel)

	for key := range s.kv.Keys(cancel) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if key == "" {
			continue
		}
		day, err := domain.ParseDay(key)
		if err != nil {
			s.logger.Warn("skipping unrecognized snapshot key", "key", key, "error", err)
			continue
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// CheckReadiness verifies the snapshot directory is reachable.
func (s *Store) CheckReadiness(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot dir %s is not a directory", s.dir)
	}
	return nil
}
