package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for SwapLedger.
type Metrics struct {
	// --- Rebuild state machine ---
	RebuildsStarted   prometheus.Counter
	RebuildsSucceeded prometheus.Counter
	RebuildsFailed    prometheus.Counter
	RebuildsSkipped   prometheus.Counter
	RebuildDuration   prometheus.Histogram

	// --- Event replay ---
	EventsReplayed prometheus.Counter
	CallsInvalid   prometheus.Counter

	// --- Log source ---
	FetchPages   prometheus.Counter
	FetchLatency prometheus.Histogram

	// --- Chain position ---
	HeadHeight      prometheus.Gauge
	ConfirmedHeight prometheus.Gauge

	// --- Persistence ---
	CheckpointBatches prometheus.Counter
	PersistBatchDur   prometheus.Histogram

	// --- Notifications ---
	NotifyFailures prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	rebuildBuckets := []float64{
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0,
	}

	fetchBuckets := []float64{
		0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
	}

	return &Metrics{
		RebuildsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swap_rebuilds_started_total",
			Help: "Rebuild ticks started",
		}),

		RebuildsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swap_rebuilds_succeeded_total",
			Help: "Rebuild ticks completed and head published",
		}),

		RebuildsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swap_rebuilds_failed_total",
			Help: "Rebuild ticks aborted (fetch, replay or persistence failure)",
		}),

		RebuildsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swap_rebuilds_skipped_total",
			Help: "Rebuild ticks skipped by the unchanged-range guard",
		}),

		RebuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "swap_rebuild_duration_seconds",
			Help:    "Full rebuild tick duration",
			Buckets: rebuildBuckets,
		}),

		EventsReplayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swap_events_replayed_total",
			Help: "Op events applied during rebuilds",
		}),

		CallsInvalid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swap_calls_invalid_total",
			Help: "Sub-operations recorded as failed (validation or financial rule)",
		}),

		FetchPages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swap_fetch_pages_total",
			Help: "Cursor pages fetched from the log source",
		}),

		FetchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "swap_fetch_latency_seconds",
			Help:    "Log source request latency",
			Buckets: fetchBuckets,
		}),

		HeadHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "swap_head_height",
			Help: "Best chain height seen by the last rebuild",
		}),

		ConfirmedHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "swap_confirmed_height",
			Help: "Height of the last checkpointed event",
		}),

		CheckpointBatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swap_checkpoint_batches_total",
			Help: "Checkpoint batches persisted",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "swap_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),

		NotifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swap_notify_failures_total",
			Help: "Head notifications that failed to publish",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swap_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
