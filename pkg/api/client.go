// Package api is the HTTP client for the resume checker backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// Backend paths
const (
	PathLogin                = "/login/"
	PathRegister             = "/register/"
	PathGoogleLogin          = "/auth/google/"
	PathVerifyEmail          = "/verify-email/"
	PathResendVerification   = "/resend-verification/"
	PathLogout               = "/logout/"
	PathUserPlan             = "/api/get-user-plan/"
	PathResumeChecker        = "/resume_checker/"
	PathProfile              = "/api/profile/"
	PathProfileVerification  = "/api/resend-verification/"
	PathCreatePaymentSession = "/api/payments/create-payment-session/"
	PathVerifyPayment        = "/api/payments/verify-payment/"
)

const (
	schemeToken      = "Token"
	schemeBearer     = "Bearer"
	contentTypeJSON  = "application/json"
	defaultUserAgent = "atscheck-client"
	maxResponseBytes = 4 << 20
)

// Client talks to the backend. It implements every backend capability the
// atscheck package needs.
type Client struct {
	base      *url.URL
	http      *http.Client
	retryMax  int
	waitMin   time.Duration
	waitMax   time.Duration
	breaker   *CircuitBreaker
	userAgent string
	logger    atscheck.Logger
	metrics   atscheck.Metrics
}

var (
	_ atscheck.SessionBackend  = (*Client)(nil)
	_ atscheck.AuthBackend     = (*Client)(nil)
	_ atscheck.AnalysisBackend = (*Client)(nil)
	_ atscheck.ProfileBackend  = (*Client)(nil)
	_ atscheck.PaymentGateway  = (*Client)(nil)
)

// NewClient creates a backend client
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.CircuitBreaker != nil {
		cb := *config.CircuitBreaker
		config.CircuitBreaker = &cb
	}
	config.applyDefaults()

	base, _ := url.Parse(strings.TrimRight(config.BaseURL, "/"))

	c := &Client{
		base:      base,
		http:      config.HTTPClient,
		retryMax:  config.RetryMax,
		waitMin:   config.RetryWaitMin,
		waitMax:   config.RetryWaitMax,
		userAgent: config.UserAgent,
		logger:    config.Logger,
		metrics:   config.Metrics,
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if cb := config.CircuitBreaker; cb != nil && cb.Enabled {
		c.breaker = NewCircuitBreaker(cb.FailureThreshold, cb.ResetTimeout, func(s CircuitBreakerState) {
			c.logger.Warn("backend circuit breaker state changed", atscheck.F("state", string(s)))
			c.metrics.RecordCircuitBreakerStateChange(string(s))
		})
	}
	return c, nil
}

// BreakerState returns the circuit breaker state, StateClosed when disabled
func (c *Client) BreakerState() CircuitBreakerState {
	if c.breaker == nil {
		return StateClosed
	}
	return c.breaker.State()
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Plan     string `json:"plan"`
	Message  string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type planResponse struct {
	Username string `json:"username"`
	Plan     string `json:"plan"`
}

type analyzeResponse struct {
	atscheck.UsageInfo
	Response string `json:"response"`
}

// Login signs in with username and password
func (c *Client) Login(ctx context.Context, username, password string) (*atscheck.LoginResult, error) {
	var out loginResponse
	err := c.do(ctx, request{
		op:     "login",
		method: http.MethodPost,
		path:   PathLogin,
		json:   map[string]string{"username": username, "password": password},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.result(), nil
}

// Register creates an account
func (c *Client) Register(ctx context.Context, req atscheck.RegisterRequest) (string, error) {
	var out messageResponse
	err := c.do(ctx, request{
		op:     "register",
		method: http.MethodPost,
		path:   PathRegister,
		json:   req,
	}, &out)
	return out.Message, err
}

// GoogleLogin exchanges a Google ID token for a backend credential
func (c *Client) GoogleLogin(ctx context.Context, idToken string) (*atscheck.LoginResult, error) {
	var out loginResponse
	err := c.do(ctx, request{
		op:     "google_login",
		method: http.MethodPost,
		path:   PathGoogleLogin,
		json:   map[string]string{"credential": idToken},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.result(), nil
}

func (r loginResponse) result() *atscheck.LoginResult {
	return &atscheck.LoginResult{
		Credential: r.Token,
		Username:   r.Username,
		Plan:       atscheck.Plan(r.Plan),
		Message:    r.Message,
	}
}

// VerifyEmail submits an email verification code
func (c *Client) VerifyEmail(ctx context.Context, email, code string) (string, error) {
	var out messageResponse
	err := c.do(ctx, request{
		op:     "verify_email",
		method: http.MethodPost,
		path:   PathVerifyEmail,
		json:   map[string]string{"email": email, "code": code},
	}, &out)
	return out.Message, err
}

// ResendVerification asks for a new verification code
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	return c.do(ctx, request{
		op:     "resend_verification",
		method: http.MethodPost,
		path:   PathResendVerification,
		json:   map[string]string{"email": email},
	}, nil)
}

// Logout invalidates credential
func (c *Client) Logout(ctx context.Context, credential string) error {
	return c.do(ctx, request{
		op:         "logout",
		method:     http.MethodPost,
		path:       PathLogout,
		scheme:     schemeToken,
		credential: credential,
	}, nil)
}

// GetUserPlan checks a persisted credential and returns the user's plan.
// An unknown plan is an error so that the caller drops the session.
func (c *Client) GetUserPlan(ctx context.Context, credential, username string) (string, atscheck.Plan, error) {
	var out planResponse
	err := c.do(ctx, request{
		op:         "get_user_plan",
		method:     http.MethodPost,
		path:       PathUserPlan,
		scheme:     schemeToken,
		credential: credential,
		json:       map[string]string{"username": username},
	}, &out)
	if err != nil {
		return "", "", err
	}
	plan, err := atscheck.ParsePlan(out.Plan)
	if err != nil {
		return "", "", err
	}
	return out.Username, plan, nil
}

// CheckUsage reads the quota state. Anonymous callers pass an empty credential.
func (c *Client) CheckUsage(ctx context.Context, credential string) (*atscheck.UsageInfo, error) {
	var out atscheck.UsageInfo
	err := c.do(ctx, request{
		op:         "check_usage",
		method:     http.MethodGet,
		path:       PathResumeChecker,
		scheme:     schemeToken,
		credential: credential,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Analyze uploads the resume for analysis. It is never retried.
func (c *Client) Analyze(ctx context.Context, credential string, req atscheck.AnalyzeRequest) (*atscheck.AnalyzeResult, error) {
	body, contentType, err := encodeAnalyzeForm(req)
	if err != nil {
		return nil, err
	}
	var out analyzeResponse
	err = c.do(ctx, request{
		op:          "analyze",
		method:      http.MethodPost,
		path:        PathResumeChecker,
		scheme:      schemeToken,
		credential:  credential,
		body:        body,
		contentType: contentType,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &atscheck.AnalyzeResult{Usage: out.UsageInfo, Response: out.Response}, nil
}

// GetProfile fetches the signed-in user's profile
func (c *Client) GetProfile(ctx context.Context, credential string) (*atscheck.Profile, error) {
	var out atscheck.Profile
	err := c.do(ctx, request{
		op:         "get_profile",
		method:     http.MethodGet,
		path:       PathProfile,
		scheme:     schemeToken,
		credential: credential,
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile saves profile fields and returns the stored profile
func (c *Client) UpdateProfile(ctx context.Context, credential string, update atscheck.ProfileUpdate) (*atscheck.Profile, error) {
	var out atscheck.Profile
	err := c.do(ctx, request{
		op:         "update_profile",
		method:     http.MethodPut,
		path:       PathProfile,
		scheme:     schemeToken,
		credential: credential,
		json:       update,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendProfileVerification sends a verification email to the profile address
func (c *Client) SendProfileVerification(ctx context.Context, credential string) error {
	return c.do(ctx, request{
		op:         "profile_verification",
		method:     http.MethodPost,
		path:       PathProfileVerification,
		scheme:     schemeToken,
		credential: credential,
	}, nil)
}

// CreatePaymentSession opens a payment session through the backend
func (c *Client) CreatePaymentSession(ctx context.Context, credential string, intent atscheck.PaymentIntent) (*atscheck.PaymentSession, error) {
	var out atscheck.PaymentSession
	err := c.do(ctx, request{
		op:         "create_payment_session",
		method:     http.MethodPost,
		path:       PathCreatePaymentSession,
		scheme:     schemeBearer,
		credential: credential,
		json:       intent,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPayment confirms a payment session and returns the purchased plan.
// An empty plan means the backend did not name one.
func (c *Client) VerifyPayment(ctx context.Context, credential, sessionID string) (atscheck.Plan, error) {
	var out planResponse
	err := c.do(ctx, request{
		op:         "verify_payment",
		method:     http.MethodPost,
		path:       PathVerifyPayment,
		scheme:     schemeBearer,
		credential: credential,
		json:       map[string]string{"session_id": sessionID},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Plan == "" {
		return "", nil
	}
	return atscheck.ParsePlan(out.Plan)
}

type request struct {
	op          string
	method      string
	path        string
	scheme      string
	credential  string
	json        any
	body        []byte
	contentType string

	// idempotent requests are retried on transport failures
	idempotent bool
}

type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

func (c *Client) do(ctx context.Context, r request, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordBackendCall(r.op, time.Since(start), err)
	}()

	if r.json != nil {
		if r.body, err = json.Marshal(r.json); err != nil {
			return fmt.Errorf("%s: encoding request: %w", r.op, err)
		}
		r.contentType = contentTypeJSON
	}

	attempts := 1
	if r.idempotent {
		attempts += c.retryMax
	}

	for attempt := 0; ; attempt++ {
		var retry bool
		retry, err = c.attempt(ctx, r, out)
		if !retry || attempt+1 >= attempts {
			return err
		}
		wait := c.backoff(attempt)
		c.logger.Warn("retrying backend request", atscheck.F("operation", r.op),
			atscheck.F("attempt", attempt+1), atscheck.F("wait", wait.String()), atscheck.F("error", err))
		select {
		case <-ctx.Done():
			return contextError(r.op, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// attempt performs one round trip. retry reports whether the failure is
// worth retrying for idempotent requests.
func (c *Client) attempt(ctx context.Context, r request, out any) (retry bool, err error) {
	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			return false, fmt.Errorf("%s: %w", r.op, err)
		}
	}

	var body io.Reader = http.NoBody
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.base.String()+r.path, body)
	if err != nil {
		c.release()
		return false, fmt.Errorf("%s: building request: %w", r.op, err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", c.userAgent)
	if r.credential != "" {
		req.Header.Set("Authorization", r.scheme+" "+r.credential)
	}

	c.logger.Debug("backend request", atscheck.F("operation", r.op), atscheck.F("method", r.method), atscheck.F("path", r.path))

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.release()
			return false, contextError(r.op, ctxErr)
		}
		c.failure()
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true, fmt.Errorf("%s: %w: %v", r.op, atscheck.ErrTimeout, err)
		}
		return true, fmt.Errorf("%s: %w: %v", r.op, atscheck.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.release()
			return false, contextError(r.op, ctxErr)
		}
		c.failure()
		return true, fmt.Errorf("%s: %w: reading response: %v", r.op, atscheck.ErrTransport, err)
	}

	if unavailable(resp.StatusCode) {
		c.failure()
		return true, apiError(r.op, resp.StatusCode, data)
	}
	c.success()

	if msg, ok := errorMessage(data); ok {
		return false, &atscheck.APIError{Op: r.op, StatusCode: resp.StatusCode, Message: msg}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, apiError(r.op, resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%s: decoding response: %w", r.op, err)
	}
	return false, nil
}

// unavailable reports gateway statuses that say nothing about the request itself
func unavailable(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) backoff(attempt int) time.Duration {
	wait := c.waitMin
	for i := 0; i < attempt && wait < c.waitMax; i++ {
		wait *= 2
	}
	if wait > c.waitMax {
		wait = c.waitMax
	}
	return wait
}

func (c *Client) success() {
	if c.breaker != nil {
		c.breaker.Success()
	}
}

func (c *Client) failure() {
	if c.breaker != nil {
		c.breaker.Failure()
	}
}

func (c *Client) release() {
	if c.breaker != nil {
		c.breaker.Release()
	}
}

// errorMessage extracts the {"error": ...} payload. The backend sends either
// a string or a structured value.
func errorMessage(data []byte) (string, bool) {
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil || len(env.Error) == 0 || string(env.Error) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(env.Error, &s); err == nil {
		return s, s != ""
	}
	return string(env.Error), true
}

func apiError(op string, status int, data []byte) *atscheck.APIError {
	msg, _ := errorMessage(data)
	return &atscheck.APIError{Op: op, StatusCode: status, Message: msg}
}

func contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, atscheck.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %v", op, atscheck.ErrCancelled, err)
}
