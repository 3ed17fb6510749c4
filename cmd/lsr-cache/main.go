package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/filestore"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/nws"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/upstream"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/config"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/ephemeral"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/gateway"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/observability"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/pipeline"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/reports"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/resilience"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/scheduler"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store, err := filestore.New(cfg.SnapshotDir, logger)
	if err != nil {
		logger.Error("failed to open snapshot store", "error", err)
		os.Exit(1)
	}

	doer, err := resilience.NewFromConfig(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build http client", "error", err)
		os.Exit(1)
	}
	live := upstream.NewClient(doer, cfg.UpstreamURL, upstream.BreakerSettings{}, logger, metrics)

	gw := gateway.New(snapshot.NewAssembler(store, logger, metrics), live, gateway.Config{
		RealtimeWindow: cfg.RealtimeWindow,
		Retention:      cfg.RetentionWindow(),
	}, logger, metrics)

	cache := ephemeral.New(ephemeral.Options{
		TTL:      cfg.ClientCacheTTL,
		MaxBytes: cfg.ClientCacheMaxBytes,
		Metrics:  metrics,
	})
	svc := reports.NewService(cache, gw, cfg.ClientCacheTTL, logger)

	opts := httpadapter.Options{Reports: svc, Snapshots: store}
	// NWS statements (feature-flagged via PNS_ENABLED).
	if cfg.PNSEnabled {
		opts.Statements = nws.NewClient(doer, cfg.AlertsURL, cfg.NWSUserAgent, cfg.PNSCacheSize, nil, logger)
		logger.Info("pns statements enabled", "cache_size", cfg.PNSCacheSize)
	} else {
		logger.Info("pns statements disabled")
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, store, opts, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Snapshot-updated events (feature-flagged via KAFKA_ENABLED).
	var writer *kafkaadapter.Writer
	var reader *kafkaadapter.Reader
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		reader = kafkaadapter.NewReader(cfg, logger)
		p := pipeline.New(reader, svc, nil, logger, metrics)
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
		logger.Info("snapshot events enabled", "topic", cfg.KafkaSnapshotTopic, "group", cfg.KafkaGroupID)
	} else {
		logger.Info("snapshot events disabled")
	}

	// Daily update and cleanup (feature-flagged via SCHEDULER_ENABLED).
	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		updaterCfg := snapshot.UpdaterConfig{Delay: cfg.UpdateDelay}
		if writer != nil {
			updaterCfg.Notifier = writer
		}
		updater := snapshot.NewUpdater(live, store, updaterCfg, logger, metrics)
		cleaner := snapshot.NewCleaner(store, cfg.RetentionDays, nil, logger, metrics)
		sched, err = scheduler.New(cfg.SchedulerUpdateAt, updater, cleaner, logger)
		if err != nil {
			logger.Error("failed to create scheduler", "error", err)
			os.Exit(1)
		}
		sched.Start(ctx)
	} else {
		logger.Info("scheduler disabled")
	}

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		sched.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	doer.CancelAll()
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
