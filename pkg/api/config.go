package api

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// Defaults
const (
	DefaultTimeout          = 30 * time.Second
	DefaultRetryMax         = 2
	DefaultRetryWaitMin     = 200 * time.Millisecond
	DefaultRetryWaitMax     = 2 * time.Second
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	// Enabled determines if the circuit breaker is active
	Enabled bool

	// FailureThreshold is the number of consecutive transport failures before opening the circuit (default: 5)
	FailureThreshold int

	// ResetTimeout is the duration to wait before transitioning from Open to Half-Open (default: 30 seconds)
	ResetTimeout time.Duration
}

// Config holds configuration for the backend client
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000" (required)
	BaseURL string

	// HTTPClient is used for all requests (default: http.Client with Timeout)
	HTTPClient *http.Client

	// Timeout bounds a single request when HTTPClient is not set (default: 30s)
	Timeout time.Duration

	// RetryMax is how many times idempotent GETs are retried on transport failure (default: 2).
	// Set to a negative value to disable retries.
	RetryMax int

	// RetryWaitMin and RetryWaitMax bound the exponential backoff between retries
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// CircuitBreaker configures fail-fast behaviour on repeated transport failures (optional)
	CircuitBreaker *CircuitBreakerConfig

	// UserAgent is sent with every request (optional)
	UserAgent string

	// Logger is used for structured logging (default: NoopLogger)
	Logger atscheck.Logger

	// Metrics records backend call durations and errors (default: NoopMetrics)
	Metrics atscheck.Metrics
}

// DefaultConfig returns a configuration for baseURL with a circuit breaker enabled
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		Timeout:      DefaultTimeout,
		RetryMax:     DefaultRetryMax,
		RetryWaitMin: DefaultRetryWaitMin,
		RetryWaitMax: DefaultRetryWaitMax,
		CircuitBreaker: &CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: DefaultFailureThreshold,
			ResetTimeout:     DefaultResetTimeout,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid base URL %q", c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if c.RetryWaitMin < 0 || c.RetryWaitMax < 0 {
		return fmt.Errorf("retry waits cannot be negative")
	}
	if c.RetryWaitMax > 0 && c.RetryWaitMin > c.RetryWaitMax {
		return fmt.Errorf("retry wait min (%v) exceeds max (%v)", c.RetryWaitMin, c.RetryWaitMax)
	}
	if cb := c.CircuitBreaker; cb != nil && cb.Enabled {
		if cb.FailureThreshold < 0 {
			return fmt.Errorf("circuit breaker failure threshold cannot be negative")
		}
		if cb.ResetTimeout < 0 {
			return fmt.Errorf("circuit breaker reset timeout cannot be negative")
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.RetryMax == 0 {
		c.RetryMax = DefaultRetryMax
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryWaitMin == 0 {
		c.RetryWaitMin = DefaultRetryWaitMin
	}
	if c.RetryWaitMax == 0 {
		c.RetryWaitMax = DefaultRetryWaitMax
	}
	if cb := c.CircuitBreaker; cb != nil && cb.Enabled {
		if cb.FailureThreshold == 0 {
			cb.FailureThreshold = DefaultFailureThreshold
		}
		if cb.ResetTimeout == 0 {
			cb.ResetTimeout = DefaultResetTimeout
		}
	}
	if c.Logger == nil {
		c.Logger = &atscheck.NoopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &atscheck.NoopMetrics{}
	}
}
