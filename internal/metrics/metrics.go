// Package metrics provides Prometheus collectors for the bulk pipelines.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	BulkJobsSubmitted  *prometheus.CounterVec
	BulkJobPolls       *prometheus.CounterVec
	ReconcileOutcomes  *prometheus.CounterVec
	UsageRejections    *prometheus.CounterVec
	NDJSONLinesDropped prometheus.Counter
	ImportDuration     *prometheus.HistogramVec
}

var defaultMetrics *Metrics

// Init registers the collectors with the default registry. Call it once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pricesync"
	}

	m := &Metrics{
		BulkJobsSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_jobs_submitted_total",
				Help:      "Total number of bulk jobs submitted to the catalog API",
			},
			[]string{"kind"},
		),
		BulkJobPolls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_job_polls_total",
				Help:      "Total number of bulk job status polls by observed status",
			},
			[]string{"kind", "status"},
		),
		ReconcileOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_outcomes_total",
				Help:      "Total number of reconciled import rows by outcome",
			},
			[]string{"outcome"},
		),
		UsageRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_rejections_total",
				Help:      "Total number of imports rejected by plan limits",
			},
			[]string{"type"},
		),
		NDJSONLinesDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ndjson_lines_dropped_total",
				Help:      "Total number of malformed NDJSON lines skipped while decoding",
			},
		),
		ImportDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "import_duration_seconds",
				Help:      "Time spent in each import phase",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"phase"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance, or nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) IncBulkJobsSubmitted(kind string) {
	if m == nil {
		return
	}
	m.BulkJobsSubmitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncBulkJobPolls(kind, status string) {
	if m == nil {
		return
	}
	m.BulkJobPolls.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) AddReconcileOutcomes(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReconcileOutcomes.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) IncUsageRejections(limitType string) {
	if m == nil {
		return
	}
	m.UsageRejections.WithLabelValues(limitType).Inc()
}

func (m *Metrics) IncNDJSONLinesDropped() {
	if m == nil {
		return
	}
	m.NDJSONLinesDropped.Inc()
}

// ObserveImportDuration records the time spent in an import phase.
func (m *Metrics) ObserveImportDuration(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.ImportDuration.WithLabelValues(phase).Observe(seconds)
}
