package atscheck

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Return-URL query parameters written by the payment redirect
const (
	ParamPayment   = "payment"
	ParamPlan      = "plan"
	ParamSessionID = "session_id"

	PaymentSuccess   = "success"
	PaymentCancelled = "cancelled"
)

// PaymentState is the state of the payment flow
type PaymentState string

const (
	PaymentIdle        PaymentState = "idle"
	PaymentProcessing  PaymentState = "processing"
	PaymentRedirecting PaymentState = "redirecting"
	PaymentFailed      PaymentState = "failed"
)

// PaymentConfig holds PaymentFlow configuration
type PaymentConfig struct {
	// ReturnURL is where the payment provider sends the browser back to (required)
	ReturnURL string

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking payment steps (default: NoopMetrics)
	Metrics Metrics
}

// Checkout is the result of initiating a payment
type Checkout struct {
	// Free is set when the plan costs nothing and no payment session was opened
	Free bool

	PaymentURL string
	SessionID  string
}

// PaymentFlow opens payment sessions and verifies their completion
type PaymentFlow struct {
	gateway   PaymentGateway
	returnURL *url.URL
	logger    Logger
	metrics   Metrics

	mu      sync.Mutex
	state   PaymentState
	lastErr error
}

// NewPaymentFlow creates a payment flow using gateway
func NewPaymentFlow(gateway PaymentGateway, config PaymentConfig) (*PaymentFlow, error) {
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	u, err := url.Parse(config.ReturnURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid return URL %q", config.ReturnURL)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return &PaymentFlow{
		gateway:   gateway,
		returnURL: u,
		logger:    orNoopLogger(config.Logger),
		metrics:   orNoopMetrics(config.Metrics),
		state:     PaymentIdle,
	}, nil
}

// Initiate opens a payment session for planName.
// A zero amount needs no payment; a positive amount needs a credential.
func (p *PaymentFlow) Initiate(ctx context.Context, planName string, amount float64, currency, credential string) (*Checkout, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	if amount == 0 {
		p.metrics.RecordPayment("initiate", "free")
		return &Checkout{Free: true}, nil
	}
	if credential == "" {
		p.metrics.RecordPayment("initiate", "no_credential")
		return nil, ErrCredentialRequired
	}

	p.mu.Lock()
	if p.state == PaymentProcessing {
		p.mu.Unlock()
		return nil, ErrPaymentInProgress
	}
	p.state = PaymentProcessing
	p.lastErr = nil
	p.mu.Unlock()

	intent := PaymentIntent{
		PlanName:   strings.ToLower(planName),
		Amount:     amount,
		Currency:   currency,
		SuccessURL: p.successURL(planName),
		CancelURL:  p.cancelURL(),
	}

	session, err := p.gateway.CreatePaymentSession(ctx, credential, intent)
	if err == nil && (session == nil || session.PaymentURL == "") {
		err = fmt.Errorf("payment session has no payment URL")
	}
	if err != nil {
		p.finish(PaymentFailed, err)
		p.metrics.RecordPayment("initiate", "error")
		p.logger.Error("payment initialization failed", F("plan", planName), F("error", err))
		return nil, fmt.Errorf("initiating payment: %w", err)
	}

	p.finish(PaymentRedirecting, nil)
	p.metrics.RecordPayment("initiate", "success")
	p.logger.Info("payment session created", F("plan", planName), F("session_id", session.SessionID))

	return &Checkout{PaymentURL: session.PaymentURL, SessionID: session.SessionID}, nil
}

// Confirm verifies a completed payment session and returns the purchased plan
func (p *PaymentFlow) Confirm(ctx context.Context, sessionID, credential string) (Plan, error) {
	if sessionID == "" {
		return "", invalid(ParamSessionID, ErrMissingField, "missing payment session id")
	}
	if credential == "" {
		return "", ErrCredentialRequired
	}

	plan, err := p.gateway.VerifyPayment(ctx, credential, sessionID)
	if err != nil {
		p.metrics.RecordPayment("confirm", "error")
		p.logger.Warn("payment verification failed", F("session_id", sessionID), F("error", err))
		return "", fmt.Errorf("verifying payment: %w", err)
	}

	p.metrics.RecordPayment("confirm", "success")
	return plan, nil
}

// State returns the current flow state and the last failure, if any
func (p *PaymentFlow) State() (PaymentState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.lastErr
}

// Reset returns the flow to Idle, e.g. when the upgrade dialog is closed
func (p *PaymentFlow) Reset() {
	p.finish(PaymentIdle, nil)
}

func (p *PaymentFlow) finish(state PaymentState, err error) {
	p.mu.Lock()
	p.state = state
	p.lastErr = err
	p.mu.Unlock()
}

func (p *PaymentFlow) successURL(planName string) string {
	u := *p.returnURL
	q := url.Values{}
	q.Set(ParamPayment, PaymentSuccess)
	q.Set(ParamPlan, planName)
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *PaymentFlow) cancelURL() string {
	u := *p.returnURL
	q := url.Values{}
	q.Set(ParamPayment, PaymentCancelled)
	u.RawQuery = q.Encode()
	return u.String()
}

// HasPaymentParams reports whether u carries any payment return parameter
func HasPaymentParams(u *url.URL) bool {
	if u == nil {
		return false
	}
	q := u.Query()
	for _, k := range []string{ParamPayment, ParamPlan, ParamSessionID} {
		if _, ok := q[k]; ok {
			return true
		}
	}
	return false
}

// ParseReturnURL extracts a payment confirmation from a return URL.
// It only succeeds for payment=success with both plan and session_id present.
func ParseReturnURL(u *url.URL) (PaymentConfirmation, bool) {
	if u == nil {
		return PaymentConfirmation{}, false
	}
	q := u.Query()
	if q.Get(ParamPayment) != PaymentSuccess {
		return PaymentConfirmation{}, false
	}
	c := PaymentConfirmation{
		Plan:      q.Get(ParamPlan),
		SessionID: q.Get(ParamSessionID),
	}
	if c.Plan == "" || c.SessionID == "" {
		return PaymentConfirmation{}, false
	}
	return c, true
}

// StripPaymentParams returns a copy of u without the payment return parameters.
// Other query parameters and the fragment are kept.
func StripPaymentParams(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	clean := *u
	q := clean.Query()
	q.Del(ParamPayment)
	q.Del(ParamPlan)
	q.Del(ParamSessionID)
	clean.RawQuery = q.Encode()
	clean.ForceQuery = false
	return &clean
}
