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
	// Catalog metrics
	RecordsConverted   *prometheus.CounterVec // by record_type
	BatchesWritten     prometheus.Counter
	ConversionsSkipped prometheus.Counter
	ConversionErrors   *prometheus.CounterVec // by kind
	SortFallbacks      prometheus.Counter

	// Scheduler metrics
	SlicesScheduled prometheus.Counter
	SlicesSubmitted prometheus.Counter
	SlicesCancelled prometheus.Counter

	// Reconciliation metrics
	CommissionFallbacks *prometheus.CounterVec // by source
	SummariesProduced   prometheus.Counter

	// Run metrics
	RunDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all metrics registered
// on the default registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "backtest_lab"
	}

	return &Metrics{
		RecordsConverted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_converted_total",
			Help:      "Canonical records written to the catalog",
		}, []string{"record_type"}),
		BatchesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_written_total",
			Help:      "Catalog write batches flushed",
		}),
		ConversionsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_skipped_total",
			Help:      "Conversions skipped because the catalog already covers the key",
		}),
		ConversionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_errors_total",
			Help:      "Conversion failures by error kind",
		}, []string{"kind"}),
		SortFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sort_fallbacks_total",
			Help:      "Conversions that required sorting an unordered source",
		}),
		SlicesScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slices_scheduled_total",
			Help:      "Child order slices scheduled via clock alarms",
		}),
		SlicesSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slices_submitted_total",
			Help:      "Child order slices submitted to the engine",
		}),
		SlicesCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slices_cancelled_total",
			Help:      "Pending slices invalidated by parent cancellation",
		}),
		CommissionFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_fallbacks_total",
			Help:      "Commission aggregation paths used, by source",
		}, []string{"source"}),
		SummariesProduced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_produced_total",
			Help:      "Run summaries produced",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of backtest runs",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

// Handler returns an HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
