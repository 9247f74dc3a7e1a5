package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is not properly configured
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrProviderAPIError is returned when the provider's API returns an error
	ErrProviderAPIError = errors.New("billing provider API error")

	// ErrPlanNotConfigured is returned when a plan has neither a price mapping nor an amount
	ErrPlanNotConfigured = errors.New("plan not configured for billing")

	// ErrPaymentNotCompleted is returned when a checkout session has not been paid
	ErrPaymentNotCompleted = errors.New("payment not completed")

	// ErrSessionMismatch is returned when a checkout session belongs to another user
	ErrSessionMismatch = errors.New("checkout session belongs to another user")

	// ErrPaymentNotRecorded is returned when a paid session could not be handed
	// to the entitlement owner
	ErrPaymentNotRecorded = errors.New("payment not recorded")
)
