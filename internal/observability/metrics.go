// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	MessagesProcessed *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	RecordsWritten    *prometheus.CounterVec
	MessageLatency    *prometheus.HistogramVec

	// Retention metrics
	RetentionRuns      *prometheus.CounterVec
	RetentionDuration  *prometheus.HistogramVec
	RetentionPhaseRows *prometheus.CounterVec
	PhaseDuration      *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "market_data_sql"
	}

	return &Metrics{
		MessagesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "messages_processed_total",
			Help:      "Total number of bus messages reconciled, by subject",
		}, []string{"subject"}),
		MessagesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "messages_dropped_total",
			Help:      "Total number of bus messages dropped, by subject and reason",
		}, []string{"subject", "reason"}),
		RecordsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_written_total",
			Help:      "Total number of records created or updated, by kind",
		}, []string{"kind"}),
		MessageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "message_latency_seconds",
			Help:      "Message reconciliation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"subject"}),

		RetentionRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "runs_total",
			Help:      "Total number of retention invocations, by status",
		}, []string{"status"}),
		RetentionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "run_duration_seconds",
			Help:      "Retention invocation duration in seconds",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600},
		}, []string{"status"}),
		RetentionPhaseRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "phase_rows_total",
			Help:      "Total number of rows affected by retention phases",
		}, []string{"phase"}),
		PhaseDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "phase_duration_seconds",
			Help:      "Retention phase duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
	}
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics("")

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordMessage records a reconciled message.
func RecordMessage(subject string, seconds float64) {
	DefaultMetrics.MessagesProcessed.WithLabelValues(subject).Inc()
	DefaultMetrics.MessageLatency.WithLabelValues(subject).Observe(seconds)
}

// RecordWritten adds to the written-records counter for a record kind.
func RecordWritten(kind string, records int) {
	DefaultMetrics.RecordsWritten.WithLabelValues(kind).Add(float64(records))
}

// RecordDrop records a dropped message.
func RecordDrop(subject, reason string) {
	DefaultMetrics.MessagesDropped.WithLabelValues(subject, reason).Inc()
}

// RecordRetentionRun records a finished retention invocation.
func RecordRetentionRun(status string, durationSeconds float64) {
	DefaultMetrics.RetentionRuns.WithLabelValues(status).Inc()
	DefaultMetrics.RetentionDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordRetentionPhase records one bounded phase execution.
func RecordRetentionPhase(phase string, rows int64, durationSeconds float64) {
	DefaultMetrics.RetentionPhaseRows.WithLabelValues(phase).Add(float64(rows))
	DefaultMetrics.PhaseDuration.WithLabelValues(phase).Observe(durationSeconds)
}
