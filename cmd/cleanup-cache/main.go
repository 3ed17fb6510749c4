// Command cleanup-cache deletes snapshot files whose day precedes
// today minus RETENTION_DAYS.
//
// Usage:
//
//	cleanup-cache
//	cleanup-cache -dry-run
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/filestore"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/config"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/observability"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/snapshot"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, observability.NewMetrics()))
}

func run(args []string, out io.Writer, metrics *observability.Metrics) int {
	fs := flag.NewFlagSet("cleanup-cache", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "report what would be deleted without deleting")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	logger := observability.NewLogger(cfg)

	store, err := filestore.New(cfg.SnapshotDir, logger)
	if err != nil {
		logger.Error("failed to open snapshot store", "error", err)
		return 1
	}
	cleaner := snapshot.NewCleaner(store, cfg.RetentionDays, nil, logger, metrics)

	verb := "Deleted"
	cleanup := cleaner.Cleanup
	if *dryRun {
		verb = "Would delete"
		cleanup = cleaner.Plan
	}
	res, err := cleanup(context.Background())
	if err != nil {
		logger.Error("cleanup failed", "error", err)
		return 1
	}

	fmt.Fprintf(out, "Cutoff: %s (retention %d days)\n", domain.DayKey(res.Cutoff), cfg.RetentionDays)
	fmt.Fprintf(out, "%s %d, kept %d, failed %d\n", verb, len(res.Deleted), res.Kept, res.Failed)
	for _, d := range res.Deleted {
		fmt.Fprintf(out, "  %s\n", filestore.FileName(d))
	}
	if res.Failed > 0 {
		return 1
	}
	return 0
}
