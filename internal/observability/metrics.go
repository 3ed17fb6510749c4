package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lsr_cache"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// snapshot cache, the gateway and the outbound client.
type Metrics struct {
	// Gateway and range assembly.
	GatewayResolutions *prometheus.CounterVec // labels: path={realtime,out_of_window,cache}, source={cache,live,none}
	AssembleResults    *prometheus.CounterVec // labels: outcome={hit,miss,failed}
	AssembleDuration   prometheus.Histogram

	// Snapshot updater and retention.
	UpdaterDays      *prometheus.CounterVec // labels: outcome={success,error}
	ReportsWritten   prometheus.Counter
	UpdaterRunning   prometheus.Gauge
	SnapshotsDeleted prometheus.Counter

	// Snapshot-updated event consumption.
	SnapshotEvents      prometheus.Counter
	InvalidatorRunning  prometheus.Gauge
	InvalidatorRestarts prometheus.Counter

	// Outbound requests.
	UpstreamRequests *prometheus.CounterVec // labels: outcome={success,<error kind>}
	UpstreamDuration prometheus.Histogram
	RequestRetries   prometheus.Counter
	RequestsDeduped  prometheus.Counter
	EgressBlocked    prometheus.Counter
	BreakerState     prometheus.Gauge

	// Ephemeral client cache.
	EphemeralCache     *prometheus.CounterVec // labels: result={hit,miss,expired}
	EphemeralEvictions *prometheus.CounterVec // labels: reason={expired,pressure}
	EphemeralBytes     prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		GatewayResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_resolutions_total",
			Help:      "Query resolutions by routing path and the source that answered.",
		}, []string{"path", "source"}),
		AssembleResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assemble_results_total",
			Help:      "Range assembly outcomes over the snapshot store.",
		}, []string{"outcome"}),
		AssembleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assemble_duration_seconds",
			Help:      "Duration of assembling a query range from snapshot files.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		UpdaterDays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updater_days_total",
			Help:      "Snapshot days processed by the updater, by outcome.",
		}, []string{"outcome"}),
		ReportsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updater_reports_written_total",
			Help:      "Reports written into snapshot files after merging.",
		}),
		UpdaterRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "updater_running",
			Help:      "1 while an updater run is in progress, 0 otherwise.",
		}),
		SnapshotsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_deleted_total",
			Help:      "Snapshot files removed by retention cleanup.",
		}),
		SnapshotEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_events_consumed_total",
			Help:      "Snapshot-updated events consumed from Kafka.",
		}),
		InvalidatorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "invalidator_running",
			Help:      "1 while the snapshot event consumer is running, 0 otherwise.",
		}),
		InvalidatorRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidator_restarts_total",
			Help:      "Times the snapshot event consumer was restarted after an error.",
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Live upstream fetches by outcome.",
		}, []string{"outcome"}),
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Live upstream fetch duration in seconds, including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RequestRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Outbound request retry attempts.",
		}),
		RequestsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_deduped_total",
			Help:      "Outbound requests that joined an identical in-flight call.",
		}),
		EgressBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "egress_blocked_total",
			Help:      "Outbound requests rejected by the egress allowlist.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_breaker_state",
			Help:      "Upstream circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
		EphemeralCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ephemeral_cache_total",
			Help:      "Ephemeral cache lookups by result.",
		}, []string{"result"}),
		EphemeralEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ephemeral_evictions_total",
			Help:      "Ephemeral cache entries evicted, by reason.",
		}, []string{"reason"}),
		EphemeralBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ephemeral_cache_bytes",
			Help:      "Bytes currently held by the ephemeral cache.",
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.GatewayResolutions,
		m.AssembleResults,
		m.AssembleDuration,
		m.UpdaterDays,
		m.ReportsWritten,
		m.UpdaterRunning,
		m.SnapshotsDeleted,
		m.SnapshotEvents,
		m.InvalidatorRunning,
		m.InvalidatorRestarts,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.RequestRetries,
		m.RequestsDeduped,
		m.EgressBlocked,
		m.BreakerState,
		m.EphemeralCache,
		m.EphemeralEvictions,
		m.EphemeralBytes,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
