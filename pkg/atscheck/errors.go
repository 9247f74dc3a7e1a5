package atscheck

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned by a Store when the key is absent
	ErrKeyNotFound = errors.New("key not found")

	// ErrStorageUnavailable is returned when the persistent store cannot be written
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidPlan is returned for an unknown plan name
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrInvalidAmount is returned for negative payment amounts
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrCredentialRequired is returned when a paid action is attempted while logged out
	ErrCredentialRequired = errors.New("credential required")

	// ErrPaymentInProgress is returned when a payment session is already being created
	ErrPaymentInProgress = errors.New("payment already in progress")

	// ErrSubmissionInFlight is returned when a submission is already running
	ErrSubmissionInFlight = errors.New("submission already in flight")

	// ErrLoginRequired is returned when the gate asks an anonymous user to sign in
	ErrLoginRequired = errors.New("login required")

	// ErrUpgradeRequired is returned when the gate asks a signed-in user to upgrade
	ErrUpgradeRequired = errors.New("upgrade required")

	// ErrTransport is returned when the backend cannot be reached
	ErrTransport = errors.New("connection failed")

	// ErrTimeout is returned when a backend request exceeds its deadline
	ErrTimeout = errors.New("request timed out")

	// ErrCancelled is returned when an in-flight operation was dismissed
	ErrCancelled = errors.New("operation cancelled")

	// ErrCircuitOpen is returned when the circuit breaker rejects a call
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Validation failures. They are wrapped in *ValidationError.
var (
	ErrNoFile                = errors.New("no file selected")
	ErrTooManyFiles          = errors.New("only one file can be uploaded")
	ErrInvalidFileType       = errors.New("only PDF files are accepted")
	ErrMissingJobDescription = errors.New("job description is required")
	ErrMissingCompanyName    = errors.New("position or company name is required")
	ErrInvalidMode           = errors.New("invalid analysis mode")
	ErrInvalidAction         = errors.New("invalid analysis action")
	ErrMissingField          = errors.New("required field is empty")
	ErrInvalidEmail          = errors.New("invalid email address")
	ErrPasswordMismatch      = errors.New("passwords do not match")
)

// ValidationError is a user input problem caught before any network call
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

// APIError is an error reported by the backend through an {"error": ...} payload
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// ErrorKind classifies errors for presentation
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindValidation ErrorKind = "validation"
	KindBackend    ErrorKind = "backend"
	KindTransport  ErrorKind = "transport"
	KindTimeout    ErrorKind = "timeout"
	KindCancelled  ErrorKind = "cancelled"
	KindGate       ErrorKind = "gate"
	KindInternal   ErrorKind = "internal"
)

// Classify maps an error onto the error taxonomy
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var verr *ValidationError
	var aerr *APIError
	switch {
	case errors.As(err, &verr):
		return KindValidation
	case errors.Is(err, ErrLoginRequired), errors.Is(err, ErrUpgradeRequired):
		return KindGate
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &aerr):
		return KindBackend
	case errors.Is(err, ErrTransport), errors.Is(err, ErrCircuitOpen):
		return KindTransport
	default:
		return KindInternal
	}
}

// UserMessage returns the text a client shows for err
func UserMessage(err error) string {
	var verr *ValidationError
	var aerr *APIError
	switch Classify(err) {
	case KindNone:
		return ""
	case KindValidation:
		errors.As(err, &verr)
		return verr.Reason
	case KindBackend:
		errors.As(err, &aerr)
		if aerr.Message != "" {
			return aerr.Message
		}
		return "Something went wrong"
	case KindTransport:
		return "Connection failed. Please try again."
	case KindTimeout:
		return "The request timed out. Please try again."
	case KindGate:
		if errors.Is(err, ErrLoginRequired) {
			return "You have reached the free upload limit. Please login to continue with more uploads."
		}
		return "You have reached your plan's upload limit. Upgrade to continue."
	case KindCancelled:
		return "Cancelled."
	default:
		return err.Error()
	}
}
