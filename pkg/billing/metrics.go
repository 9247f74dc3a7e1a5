package billing

import "time"

// Metrics defines the interface for tracking payment gateway operations.
type Metrics interface {
	// RecordCheckout records a checkout session creation for a plan.
	RecordCheckout(provider, plan, status string)

	// RecordVerification records a payment verification outcome
	// ("paid", "unpaid", "mismatch", "error").
	RecordVerification(provider, status string)

	// RecordAPICall records an outbound API call to the provider.
	RecordAPICall(provider, endpoint, status string)

	// RecordAPICallDuration records the duration of an outbound API call.
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordCheckout(provider, plan, status string)    {}
func (n *NoopMetrics) RecordVerification(provider, status string)      {}
func (n *NoopMetrics) RecordAPICall(provider, endpoint, status string) {}
func (n *NoopMetrics) RecordAPICallDuration(provider, endpoint string, duration time.Duration) {
}
