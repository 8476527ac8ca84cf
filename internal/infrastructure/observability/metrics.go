package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Purchase metrics
	PurchaseAttemptsTotal   *prometheus.CounterVec
	PurchaseAttemptDuration *prometheus.HistogramVec
	PurchaseRetriesTotal    prometheus.Counter
	PurchasesExhausted      prometheus.Counter
	PurchaseErrors          *prometheus.CounterVec

	// Claim metrics
	ClaimsTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Worker metrics
	WorkerTasksProcessed     *prometheus.CounterVec
	WorkerProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		PurchaseAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchase_attempts_total",
				Help:      "Total number of policy purchase attempts by outcome",
			},
			[]string{"outcome"},
		),
		PurchaseAttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "purchase_attempt_duration_seconds",
				Help:      "Policy purchase attempt duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"outcome"},
		),
		PurchaseRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchase_retries_total",
				Help:      "Total number of purchase retries scheduled",
			},
		),
		PurchasesExhausted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchases_exhausted_total",
				Help:      "Total number of orders whose purchase retries ran out",
			},
		),
		PurchaseErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchase_errors_total",
				Help:      "Total number of purchase failures by kind",
			},
			[]string{"kind"},
		),
		ClaimsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "claims_total",
				Help:      "Total number of claim submissions by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		WorkerTasksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_tasks_processed_total",
				Help:      "Total number of scheduled retry tasks processed",
			},
			[]string{"status"},
		),
		WorkerProcessingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_processing_duration_seconds",
				Help:      "Retry task processing duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
			},
		),
	}

	factory.MustRegister(
		m.PurchaseAttemptsTotal,
		m.PurchaseAttemptDuration,
		m.PurchaseRetriesTotal,
		m.PurchasesExhausted,
		m.PurchaseErrors,
		m.ClaimsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WorkerTasksProcessed,
		m.WorkerProcessingDuration,
	)

	return m
}
