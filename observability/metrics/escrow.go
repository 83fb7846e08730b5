package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics aggregates the Prometheus collectors for the escrow service.
type EscrowMetrics struct {
	transitions        *prometheus.CounterVec
	verdicts           *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	disbursements      *prometheus.CounterVec
	fetchFailures      prometheus.Counter
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

// Escrow returns the process-wide escrow metrics registry.
func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_transitions_total",
				Help: "Count of lifecycle operations by operation and outcome.",
			}, []string{"operation", "outcome"}),
			verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_verdicts_total",
				Help: "Count of evaluation verdicts by result.",
			}, []string{"verdict"}),
			evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "escrow_evaluation_duration_seconds",
				Help:    "End-to-end duration of the evaluation pipeline.",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			}),
			disbursements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_disbursements_total",
				Help: "Count of terminal fund disbursements by recipient role.",
			}, []string{"recipient"}),
			fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "escrow_fetch_failures_total",
				Help: "Count of submission fetches that failed and refunded the client.",
			}),
			httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_http_requests_total",
				Help: "Count of HTTP requests by route and status class.",
			}, []string{"route", "status"}),
			httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "escrow_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			escrowRegistry.transitions,
			escrowRegistry.verdicts,
			escrowRegistry.evaluationDuration,
			escrowRegistry.disbursements,
			escrowRegistry.fetchFailures,
			escrowRegistry.httpRequests,
			escrowRegistry.httpDuration,
		)
	})
	return escrowRegistry
}

// ObserveTransition records one lifecycle operation attempt.
func (m *EscrowMetrics) ObserveTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
}

// ObserveVerdict records one extracted evaluation verdict.
func (m *EscrowMetrics) ObserveVerdict(verdict string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(verdict).Inc()
}

// ObserveEvaluationDuration records one evaluation pipeline run.
func (m *EscrowMetrics) ObserveEvaluationDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.evaluationDuration.Observe(d.Seconds())
}

// ObserveDisbursement records one terminal fund transfer.
func (m *EscrowMetrics) ObserveDisbursement(recipient string) {
	if m == nil {
		return
	}
	m.disbursements.WithLabelValues(recipient).Inc()
}

// ObserveFetchFailure records one inaccessible submission.
func (m *EscrowMetrics) ObserveFetchFailure() {
	if m == nil {
		return
	}
	m.fetchFailures.Inc()
}

// ObserveHTTPRequest records one served HTTP request.
func (m *EscrowMetrics) ObserveHTTPRequest(route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, status).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
