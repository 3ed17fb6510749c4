// Command lsr-fetch fetches storm reports for a range the way a client
// would: from its in-memory cache, then the service's read endpoint, then
// the live upstream if the endpoint cannot answer.
//
// Usage:
//
//	lsr-fetch                                   # trailing 24 hours
//	lsr-fetch -start 2026-04-26 -end 2026-04-27
//	lsr-fetch -start 2026-04-26 -start-hour 12:00 -end 2026-04-26 -end-hour 18:00
//	lsr-fetch -poll 5m -out reports.geojson     # refresh every 5 minutes
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/cacheapi"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/upstream"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/config"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/ephemeral"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/observability"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/reports"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/resilience"
	"github.com/jonboulle/clockwork"
)

// query holds the range flags. Empty start or end selects the trailing
// 24 hours, recomputed on every poll.
type query struct {
	start, startHour string
	end, endHour     string
}

func (q query) trailing() bool { return q.start == "" || q.end == "" }

func (q query) rangeAt(now time.Time) (domain.QueryRange, error) {
	if q.trailing() {
		return domain.TrailingRange(now, 24*time.Hour), nil
	}
	return domain.ParseQueryRange(q.start, q.startHour, q.end, q.endHour)
}

func main() {
	var q query
	flag.StringVar(&q.start, "start", "", "start date (YYYY-MM-DD, UTC)")
	flag.StringVar(&q.startHour, "start-hour", "", "start hour (HH:MM, default 00:00)")
	flag.StringVar(&q.end, "end", "", "end date (YYYY-MM-DD, UTC)")
	flag.StringVar(&q.endHour, "end-hour", "", "end hour (HH:MM, default 23:59)")
	poll := flag.Duration("poll", 0, "refetch at this interval until interrupted")
	outPath := flag.String("out", "", "write the collection to this file instead of stdout")
	flag.Parse()

	if code := run(q, *poll, *outPath); code != 0 {
		os.Exit(code)
	}
}

func run(q query, poll time.Duration, outPath string) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	doer, err := resilience.NewFromConfig(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build http client", "error", err)
		return 1
	}
	live := upstream.NewClient(doer, cfg.UpstreamURL, upstream.BreakerSettings{}, logger, metrics)
	endpoint := strings.TrimSuffix(cfg.PublicBaseURL, "/") + cacheapi.EndpointPath
	client := cacheapi.NewClient(doer, endpoint, live, logger)

	clock := clockwork.NewRealClock()
	cache := ephemeral.New(ephemeral.Options{
		TTL:      cfg.ClientCacheTTL,
		MaxBytes: cfg.ClientCacheMaxBytes,
		Clock:    clock,
		Metrics:  metrics,
	})
	svc := reports.NewService(cache, client, cfg.ClientCacheTTL, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer doer.CancelAll()

	f := fetcher{query: q, svc: svc, clock: clock, outPath: outPath, stdout: os.Stdout, logger: logger}
	if poll <= 0 {
		if err := f.once(ctx); err != nil {
			logger.Error("fetch failed", "error", err, "kind", domain.ErrorKind(err))
			return 1
		}
		return 0
	}

	logger.Info("polling", "interval", poll)
	ticker := clock.NewTicker(poll)
	defer ticker.Stop()
	for {
		if err := f.once(ctx); err != nil {
			logger.Error("fetch failed", "error", err, "kind", domain.ErrorKind(err))
		}
		select {
		case <-ctx.Done():
			return 0
		case <-ticker.Chan():
		}
	}
}

// fetcher performs one range fetch and writes the result.
type fetcher struct {
	query   query
	svc     *reports.Service
	clock   clockwork.Clock
	outPath string
	stdout  io.Writer
	logger  *slog.Logger
}

func (f fetcher) once(ctx context.Context) error {
	rng, err := f.query.rangeAt(f.clock.Now())
	if err != nil {
		return err
	}

	res := f.svc.Reports(ctx, rng)
	if res.Err != nil && !res.Unavailable() {
		return res.Err
	}
	f.logger.Info("fetched reports",
		"range", rng.String(),
		"reports", len(res.Collection.Features),
		"source", res.Source,
		"fallback", res.Fallback,
		"cached", res.Cached)
	if res.Unavailable() {
		f.logger.Warn("upstream unavailable, writing empty collection", "error", res.Err)
	}

	body, err := json.MarshalIndent(res.Collection, "", "  ")
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	body = append(body, '\n')
	return f.write(body)
}

func (f fetcher) write(body []byte) error {
	if f.outPath == "" {
		_, err := f.stdout.Write(body)
		return err
	}
	tmp := f.outPath + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.outPath); err != nil {
		return errors.Join(fmt.Errorf("rename to %s: %w", f.outPath, err), os.Remove(tmp))
	}
	return nil
}
