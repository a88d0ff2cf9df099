package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox dispatch Prometheus metrics.
var (
	OutboxDeliveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "indexwarden",
			Name:      "outbox_delivered_total",
			Help:      "Total number of outbox entries delivered to the index",
		},
	)

	OutboxFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexwarden",
			Name:      "outbox_failures_total",
			Help:      "Total outbox delivery failures by stage",
		},
		[]string{"stage"}, // "decode" / "publish"
	)

	OutboxExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "indexwarden",
			Name:      "outbox_exhausted_total",
			Help:      "Total outbox entries that ran out of delivery attempts",
		},
	)

	OutboxDeliveryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "indexwarden",
			Name:      "outbox_delivery_latency_seconds",
			Help:      "Time from outbox enqueue to successful delivery",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
	)

	OutboxDispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "indexwarden",
			Name:      "outbox_dispatch_duration_seconds",
			Help:      "Duration of a single outbox dispatch cycle",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 1, 2.5, 10},
		},
	)

	OutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "indexwarden",
			Name:      "outbox_pending",
			Help:      "Retryable outbox entries seen by the last dispatch cycle (capped at four batches)",
		},
	)
)

// Reindex Prometheus metrics.
var (
	ReindexRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexwarden",
			Name:      "reindex_requests_total",
			Help:      "Total reindex requests processed by reason",
		},
		[]string{"reason"},
	)

	ReindexSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "indexwarden",
			Name:      "reindex_skipped_total",
			Help:      "Reindex requests skipped because the stored signature already matched",
		},
	)
)

// Audit Prometheus metrics.
var (
	AuditRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexwarden",
			Name:      "audit_runs_total",
			Help:      "Total audit runs by result",
		},
		[]string{"result"}, // "ok" / "degraded" / "error"
	)

	AuditDocuments = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "indexwarden",
			Name:      "audit_documents",
			Help:      "Documents flagged by the last audit run, by class",
		},
		[]string{"class"}, // "missing" / "drift" / "extra"
	)

	AuditRepairsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "indexwarden",
			Name:      "audit_repairs_total",
			Help:      "Total documents queued for reindexing by audit repair",
		},
	)

	AuditRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "indexwarden",
			Name:      "audit_run_duration_seconds",
			Help:      "Duration of a full audit run",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(OutboxDeliveredTotal)
	prometheus.MustRegister(OutboxFailuresTotal)
	prometheus.MustRegister(OutboxExhaustedTotal)
	prometheus.MustRegister(OutboxDeliveryLatency)
	prometheus.MustRegister(OutboxDispatchDuration)
	prometheus.MustRegister(OutboxPending)
	prometheus.MustRegister(ReindexRequestsTotal)
	prometheus.MustRegister(ReindexSkippedTotal)
	prometheus.MustRegister(AuditRunsTotal)
	prometheus.MustRegister(AuditDocuments)
	prometheus.MustRegister(AuditRepairsTotal)
	prometheus.MustRegister(AuditRunDuration)
	pipelineMetricsRegistered = true
}
