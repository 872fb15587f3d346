// Package metrics provides Prometheus metrics collection for the chat
// service. It tracks request counts, region dispatch outcomes, store
// operations, and latencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "parley"
)

// LatencyBuckets defines histogram buckets for latency metrics (in seconds).
var LatencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// Dispatch attempt outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeThrottled    = "throttled"
	OutcomeAccessDenied = "access_denied"
	OutcomeInvalid      = "invalid_request"
	OutcomeError        = "error"
)

var (
	// RequestsTotal counts HTTP requests by route and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	// RequestLatency tracks end-to-end HTTP request latency.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"route"},
	)

	// DispatchAttempts counts Bedrock region attempts by outcome.
	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_attempts_total",
			Help:      "Total Bedrock dispatch attempts by region and outcome",
		},
		[]string{"region", "outcome"},
	)

	// RegionsExhausted counts requests that ran out of regions.
	RegionsExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_exhausted_total",
			Help:      "Total requests for which every region was throttled",
		},
	)

	// ConverseLatency tracks per-region Converse call latency.
	ConverseLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "converse_latency_seconds",
			Help:      "Bedrock Converse call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"region"},
	)

	// StoreOperations counts conversation store operations.
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total conversation store operations by backend and status",
		},
		[]string{"backend", "operation", "status"},
	)

	// StoreLatency tracks conversation store operation latency.
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_latency_seconds",
			Help:      "Conversation store operation latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"backend", "operation"},
	)

	// PersonaReloads counts persona file reloads.
	PersonaReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persona_reloads_total",
			Help:      "Total persona file reloads",
		},
	)
)

// RecordAttempt records one region attempt and its latency.
func RecordAttempt(region, outcome string, seconds float64) {
	DispatchAttempts.WithLabelValues(region, outcome).Inc()
	ConverseLatency.WithLabelValues(region).Observe(seconds)
}

// RecordStoreOperation records one store operation and its latency.
func RecordStoreOperation(backend, operation string, err error, seconds float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StoreOperations.WithLabelValues(backend, operation, status).Inc()
	StoreLatency.WithLabelValues(backend, operation).Observe(seconds)
}
