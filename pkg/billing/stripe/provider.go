// Package stripe opens Stripe Checkout sessions for plan purchases and
// verifies them when the browser returns.
package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
	"github.com/mihaimyh/atscheck/pkg/billing"
)

const (
	providerName = "stripe"

	endpointCheckoutSessions = "/checkout/sessions"

	metadataPlan = "plan"
	metadataUser = "user"

	// sessionIDTemplate is replaced by Stripe with the checkout session id
	sessionIDTemplate = "{CHECKOUT_SESSION_ID}"
)

// checkoutSessions is the part of the Stripe client the gateway uses
type checkoutSessions interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	Retrieve(ctx context.Context, id string, params *stripe.CheckoutSessionRetrieveParams) (*stripe.CheckoutSession, error)
}

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config

	// ProductName is the line item label for plans charged by amount (default: "<Plan> plan")
	ProductName func(plan atscheck.Plan) string

	// Recorder receives every paid session so the backend applies the plan
	// (required). Sessions must belong to the backend's Stripe account.
	Recorder billing.Recorder
}

// Gateway implements billing.Gateway with Stripe Checkout
type Gateway struct {
	sessions     checkoutSessions
	config       Config
	userResolver func(context.Context, string) (string, error)
	logger       atscheck.Logger
	metrics      billing.Metrics
}

var _ billing.Gateway = (*Gateway)(nil)

// NewGateway creates a Stripe gateway
func NewGateway(config Config) (*Gateway, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}
	if config.Recorder == nil {
		return nil, fmt.Errorf("%w: recorder is required", billing.ErrProviderNotConfigured)
	}
	return newGateway(stripe.NewClient(apiKey).V1CheckoutSessions, config), nil
}

func newGateway(sessions checkoutSessions, config Config) *Gateway {
	g := &Gateway{
		sessions:     sessions,
		config:       config,
		userResolver: config.UserResolver,
		logger:       config.Logger,
		metrics:      config.Metrics,
	}
	if g.userResolver == nil {
		g.userResolver = billing.CredentialFingerprint
	}
	if g.logger == nil {
		g.logger = &atscheck.NoopLogger{}
	}
	if g.metrics == nil {
		g.metrics = &billing.NoopMetrics{}
	}
	if g.config.ProductName == nil {
		g.config.ProductName = func(p atscheck.Plan) string { return p.Title() + " plan" }
	}
	return g
}

// Name returns the provider name
func (g *Gateway) Name() string {
	return providerName
}
