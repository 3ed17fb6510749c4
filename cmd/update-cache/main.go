// Command update-cache fetches closed UTC days from the upstream LSR feed and
// merges them into the daily snapshot files.
//
// Usage:
//
//	update-cache                      # yesterday
//	update-cache --today              # today so far
//	update-cache --days 7             # the 7 days ending yesterday
//	update-cache --all                # the retention window ending today
//	update-cache --date 2026-04-26
//	update-cache --from 2026-04-20 --to 2026-04-26
//
// Exits 1 only when every day failed because the upstream was unreachable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/filestore"
	kafkaadapter "github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/upstream"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/config"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/observability"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/resilience"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/snapshot"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// mode is the parsed command line.
type mode struct {
	all   bool
	today bool
	days  int
	date  string
	from  string
	to    string
}

func parseFlags(args []string) (mode, error) {
	var m mode
	fs := flag.NewFlagSet("update-cache", flag.ContinueOnError)
	fs.BoolVar(&m.all, "all", false, "update every day in the retention window, ending today")
	fs.BoolVar(&m.today, "today", false, "update today so far")
	fs.IntVar(&m.days, "days", 0, "update the N days ending yesterday")
	fs.StringVar(&m.date, "date", "", "update one day (YYYY-MM-DD)")
	fs.StringVar(&m.from, "from", "", "first day of a range (YYYY-MM-DD)")
	fs.StringVar(&m.to, "to", "", "last day of a range (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return mode{}, err
	}
	if fs.NArg() > 0 {
		return mode{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	set := 0
	for _, on := range []bool{m.all, m.today, m.days != 0, m.date != "", m.from != "" || m.to != ""} {
		if on {
			set++
		}
	}
	if set > 1 {
		return mode{}, errors.New("choose one of --all, --today, --days, --date, --from/--to")
	}
	if m.days < 0 {
		return mode{}, errors.New("--days must be positive")
	}
	if (m.from == "") != (m.to == "") {
		return mode{}, errors.New("--from and --to must be given together")
	}
	return m, nil
}

// window returns the first and last day to update. today is the current
// UTC day; retentionDays bounds --all.
func (m mode) window(today time.Time, retentionDays int) (time.Time, time.Time, error) {
	today = domain.StartOfDay(today)
	yesterday := today.AddDate(0, 0, -1)
	switch {
	case m.all:
		return today.AddDate(0, 0, -(retentionDays - 1)), today, nil
	case m.today:
		return today, today, nil
	case m.days > 0:
		return yesterday.AddDate(0, 0, -(m.days - 1)), yesterday, nil
	case m.date != "":
		day, err := domain.ParseDay(m.date)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return day, day, nil
	case m.from != "":
		from, err := domain.ParseDay(m.from)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to, err := domain.ParseDay(m.to)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if to.Before(from) {
			return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", m.to, m.from)
		}
		return from, to, nil
	default:
		return yesterday, yesterday, nil
	}
}

func run(args []string, out io.Writer) int {
	m, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "update-cache: %v\n", err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store, err := filestore.New(cfg.SnapshotDir, logger)
	if err != nil {
		logger.Error("failed to open snapshot store", "error", err)
		return 1
	}
	doer, err := resilience.NewFromConfig(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build http client", "error", err)
		return 1
	}
	live := upstream.NewClient(doer, cfg.UpstreamURL, upstream.BreakerSettings{}, logger, metrics)

	updaterCfg := snapshot.UpdaterConfig{Delay: cfg.UpdateDelay}
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		updaterCfg.Notifier = writer
	}
	updater := snapshot.NewUpdater(live, store, updaterCfg, logger, metrics)

	start, end, err := m.window(updater.Today(), cfg.RetentionDays)
	if err != nil {
		fmt.Fprintf(os.Stderr, "update-cache: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := updater.UpdateRange(ctx, start, end)
	printSummary(out, res)

	if res.Unreachable() {
		return 1
	}
	return 0
}

func printSummary(out io.Writer, res snapshot.RangeResult) {
	fmt.Fprintln(out)
	for _, d := range res.Days {
		status := fmt.Sprintf("\033[32m%d reports\033[0m", d.Reports)
		if d.Err != nil {
			status = fmt.Sprintf("\033[31mFAIL (%s)\033[0m", domain.ErrorKind(d.Err))
		}
		fmt.Fprintf(out, "  %-12s %s\n", domain.DayKey(d.Day), status)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Days: %d updated, %d failed. Reports: %d\n", res.Succeeded(), res.Failed(), res.Reports())
	if res.Err != nil {
		fmt.Fprintf(out, "Stopped early: %v\n", res.Err)
	}
}
