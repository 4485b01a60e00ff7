package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// JobsTotal counts finished jobs by terminal state.
	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shotlate",
		Subsystem: "batch",
		Name:      "jobs_total",
		Help:      "Total number of translation jobs, labeled by terminal state.",
	}, []string{"state"})

	// JobsInFlight is the number of jobs currently running.
	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shotlate",
		Subsystem: "batch",
		Name:      "jobs_in_flight",
		Help:      "Current number of running translation jobs.",
	})

	// ItemsTotal counts processed images by provider and outcome.
	ItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shotlate",
		Subsystem: "batch",
		Name:      "items_total",
		Help:      "Total number of processed images, labeled by provider and status.",
	}, []string{"provider", "status"})

	// ItemErrorsTotal counts per-item failures by provider and error kind.
	ItemErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shotlate",
		Subsystem: "batch",
		Name:      "item_errors_total",
		Help:      "Total number of per-item failures, labeled by provider and error kind.",
	}, []string{"provider", "kind"})

	// TruncatedItemsTotal counts images dropped by the batch size cap.
	TruncatedItemsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shotlate",
		Subsystem: "batch",
		Name:      "truncated_items_total",
		Help:      "Total number of images dropped because a job exceeded the batch size cap.",
	})

	// ProviderRequestDurationSeconds is the wall time of one backend request.
	ProviderRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shotlate",
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Duration of model provider requests, labeled by provider and result.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider", "result"})
)

// Register registers the metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			JobsTotal,
			JobsInFlight,
			ItemsTotal,
			ItemErrorsTotal,
			TruncatedItemsTotal,
			ProviderRequestDurationSeconds,
		)
	})
}
