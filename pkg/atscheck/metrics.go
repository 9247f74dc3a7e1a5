package atscheck

import "time"

// Metrics defines the interface for tracking client-side session and entitlement activity.
type Metrics interface {
	// RecordGateDecision records an entitlement gate outcome ("allow", "require_login", "require_upgrade").
	RecordGateDecision(decision string)

	// RecordSubmission records an analysis submission and how it ended.
	RecordSubmission(action, outcome string, duration time.Duration)

	// RecordUsageRefresh records a usage refresh and whether it succeeded.
	RecordUsageRefresh(success bool, duration time.Duration)

	// RecordSessionRestore records the outcome of a startup credential check
	// ("anonymous", "restored", "rejected").
	RecordSessionRestore(outcome string)

	// RecordPayment records a payment flow step ("initiate", "confirm") and its status.
	RecordPayment(step, status string)

	// RecordBackendCall records the duration and status of a backend request.
	RecordBackendCall(operation string, duration time.Duration, err error)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordGateDecision(decision string)                                    {}
func (n *NoopMetrics) RecordSubmission(action, outcome string, duration time.Duration)       {}
func (n *NoopMetrics) RecordUsageRefresh(success bool, duration time.Duration)               {}
func (n *NoopMetrics) RecordSessionRestore(outcome string)                                   {}
func (n *NoopMetrics) RecordPayment(step, status string)                                     {}
func (n *NoopMetrics) RecordBackendCall(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)                          {}

func orNoopMetrics(m Metrics) Metrics {
	if m == nil {
		return &NoopMetrics{}
	}
	return m
}
