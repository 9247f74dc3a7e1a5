package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// Metrics implements atscheck.Metrics using Prometheus.
type Metrics struct {
	gateDecisionsTotal         *prometheus.CounterVec
	submissionsTotal           *prometheus.CounterVec
	submissionDuration         *prometheus.HistogramVec
	usageRefreshTotal          *prometheus.CounterVec
	usageRefreshDuration       prometheus.Histogram
	sessionRestoresTotal       *prometheus.CounterVec
	paymentStepsTotal          *prometheus.CounterVec
	backendCallDuration        *prometheus.HistogramVec
	backendCallErrors          *prometheus.CounterVec
	circuitBreakerStateChanges *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gateDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Total number of entitlement gate decisions.",
		}, []string{"decision"}),

		submissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of analysis submissions by outcome.",
		}, []string{"action", "outcome"}),

		submissionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Latency of analysis submissions, limit check included.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"action"}),

		usageRefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_refresh_total",
			Help:      "Total number of usage refreshes.",
		}, []string{"success"}),

		usageRefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "usage_refresh_duration_seconds",
			Help:      "Latency of usage refreshes.",
			Buckets:   prometheus.DefBuckets,
		}),

		sessionRestoresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_restores_total",
			Help:      "Total number of startup session restores by outcome.",
		}, []string{"outcome"}),

		paymentStepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_steps_total",
			Help:      "Total number of payment flow steps by status.",
		}, []string{"step", "status"}),

		backendCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Latency of backend requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		backendCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_call_errors_total",
			Help:      "Total number of failed backend requests by error kind.",
		}, []string{"operation", "kind"}),

		circuitBreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of circuit breaker state changes.",
		}, []string{"state"}),
	}
}

func (m *Metrics) RecordGateDecision(decision string) {
	m.gateDecisionsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) RecordSubmission(action, outcome string, duration time.Duration) {
	m.submissionsTotal.WithLabelValues(action, outcome).Inc()
	m.submissionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func (m *Metrics) RecordUsageRefresh(success bool, duration time.Duration) {
	m.usageRefreshTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
	m.usageRefreshDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordSessionRestore(outcome string) {
	m.sessionRestoresTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordPayment(step, status string) {
	m.paymentStepsTotal.WithLabelValues(step, status).Inc()
}

func (m *Metrics) RecordBackendCall(operation string, duration time.Duration, err error) {
	m.backendCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.backendCallErrors.WithLabelValues(operation, string(atscheck.Classify(err))).Inc()
	}
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerStateChanges.WithLabelValues(state).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
