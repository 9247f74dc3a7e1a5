// Package billing defines payment gateways that open checkout sessions
// with a payment provider directly. Paid sessions are still recorded with the
// backend, which owns entitlements.
package billing

import (
	"context"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// Gateway is a payment provider usable by atscheck.PaymentFlow
type Gateway interface {
	atscheck.PaymentGateway

	// Name returns the provider name (e.g. "stripe")
	Name() string
}

// Recorder hands a verified purchase to the system that owns entitlements.
// The backend client implements it with its verify-payment endpoint.
type Recorder interface {
	VerifyPayment(ctx context.Context, credential, sessionID string) (atscheck.Plan, error)
}
