package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// DefaultCurrency is used when a payment intent carries none
const DefaultCurrency = "usd"

// Config defines the standard configuration all gateways accept
type Config struct {
	// APIKey is the provider secret key (required)
	APIKey string

	// PriceMapping maps plans to provider price IDs.
	// Plans without an entry are charged the intent amount.
	PriceMapping map[atscheck.Plan]string

	// UserResolver turns a client credential into the user reference stored on
	// the checkout session (default: CredentialFingerprint)
	UserResolver func(ctx context.Context, credential string) (string, error)

	// Logger is used for structured logging (default: NoopLogger)
	Logger atscheck.Logger

	// Metrics is an optional metrics collector for tracking gateway operations.
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for Prometheus metrics.
	Metrics Metrics
}

// PriceFor returns the configured price ID for plan, if any
func (c *Config) PriceFor(plan atscheck.Plan) string {
	if c.PriceMapping == nil {
		return ""
	}
	return strings.TrimSpace(c.PriceMapping[plan])
}

// CredentialFingerprint identifies a credential without revealing it
func CredentialFingerprint(_ context.Context, credential string) (string, error) {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:8]), nil
}
