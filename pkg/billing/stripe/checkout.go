package stripe

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
	"github.com/mihaimyh/atscheck/pkg/billing"
)

// CreatePaymentSession creates a one-time Stripe Checkout Session for the
// intent's plan. The plan is charged its mapped price, or the intent amount
// when no price is mapped.
func (g *Gateway) CreatePaymentSession(ctx context.Context, credential string, intent atscheck.PaymentIntent) (*atscheck.PaymentSession, error) {
	plan, err := atscheck.ParsePlan(intent.PlanName)
	if err != nil {
		return nil, err
	}
	if credential == "" {
		return nil, atscheck.ErrCredentialRequired
	}

	lineItem, err := g.lineItem(plan, intent)
	if err != nil {
		g.metrics.RecordCheckout(providerName, string(plan), "plan_not_configured")
		return nil, err
	}

	user, err := g.userResolver(ctx, credential)
	if err != nil {
		g.metrics.RecordCheckout(providerName, string(plan), "user_resolution_failed")
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         []*stripe.CheckoutSessionCreateLineItemParams{lineItem},
		SuccessURL:        stripe.String(withSessionID(intent.SuccessURL)),
		CancelURL:         stripe.String(intent.CancelURL),
		ClientReferenceID: stripe.String(user),
		Metadata: map[string]string{
			metadataPlan: string(plan),
			metadataUser: user,
		},
	}

	startTime := time.Now()
	session, err := g.sessions.Create(ctx, params)
	g.metrics.RecordAPICallDuration(providerName, endpointCheckoutSessions, time.Since(startTime))
	if err != nil {
		g.metrics.RecordAPICall(providerName, endpointCheckoutSessions, "error")
		g.metrics.RecordCheckout(providerName, string(plan), "error")
		return nil, fmt.Errorf("%w: failed to create checkout session: %v", billing.ErrProviderAPIError, err)
	}
	g.metrics.RecordAPICall(providerName, endpointCheckoutSessions, "success")
	g.metrics.RecordCheckout(providerName, string(plan), "success")

	g.logger.Info("checkout session created", atscheck.F("plan", string(plan)), atscheck.F("session_id", session.ID))
	return &atscheck.PaymentSession{PaymentURL: session.URL, SessionID: session.ID}, nil
}

// VerifyPayment checks that the checkout session was paid by the caller,
// records it with the backend and returns the plan the backend applied.
func (g *Gateway) VerifyPayment(ctx context.Context, credential, sessionID string) (atscheck.Plan, error) {
	user, err := g.userResolver(ctx, credential)
	if err != nil {
		g.metrics.RecordVerification(providerName, "error")
		return "", fmt.Errorf("failed to resolve user: %w", err)
	}

	startTime := time.Now()
	session, err := g.sessions.Retrieve(ctx, sessionID, nil)
	g.metrics.RecordAPICallDuration(providerName, endpointCheckoutSessions, time.Since(startTime))
	if err != nil {
		g.metrics.RecordAPICall(providerName, endpointCheckoutSessions, "error")
		g.metrics.RecordVerification(providerName, "error")
		return "", fmt.Errorf("%w: failed to retrieve checkout session: %v", billing.ErrProviderAPIError, err)
	}
	g.metrics.RecordAPICall(providerName, endpointCheckoutSessions, "success")

	if session.Metadata[metadataUser] != user {
		g.metrics.RecordVerification(providerName, "mismatch")
		g.logger.Warn("checkout session user mismatch", atscheck.F("session_id", sessionID))
		return "", billing.ErrSessionMismatch
	}
	if !paid(session) {
		g.metrics.RecordVerification(providerName, "unpaid")
		return "", fmt.Errorf("%w: status=%s payment_status=%s",
			billing.ErrPaymentNotCompleted, session.Status, session.PaymentStatus)
	}

	plan, err := atscheck.ParsePlan(session.Metadata[metadataPlan])
	if err != nil {
		g.metrics.RecordVerification(providerName, "error")
		return "", err
	}

	if g.config.Recorder != nil {
		recorded, err := g.config.Recorder.VerifyPayment(ctx, credential, sessionID)
		if err != nil {
			g.metrics.RecordVerification(providerName, "unrecorded")
			g.logger.Error("paid session not recorded", atscheck.F("session_id", sessionID), atscheck.F("error", err))
			return "", fmt.Errorf("%w: %w", billing.ErrPaymentNotRecorded, err)
		}
		if recorded != "" && recorded != plan {
			g.logger.Warn("recorded plan differs from checkout metadata",
				atscheck.F("session_id", sessionID), atscheck.F("paid", string(plan)), atscheck.F("recorded", string(recorded)))
			plan = recorded
		}
	}

	g.metrics.RecordVerification(providerName, "paid")
	return plan, nil
}

func (g *Gateway) lineItem(plan atscheck.Plan, intent atscheck.PaymentIntent) (*stripe.CheckoutSessionCreateLineItemParams, error) {
	if price := g.config.PriceFor(plan); price != "" {
		return &stripe.CheckoutSessionCreateLineItemParams{
			Price:    stripe.String(price),
			Quantity: stripe.Int64(1),
		}, nil
	}

	cents := int64(math.Round(intent.Amount * 100))
	if cents <= 0 {
		return nil, fmt.Errorf("%w: %s", billing.ErrPlanNotConfigured, plan)
	}
	currency := strings.ToLower(strings.TrimSpace(intent.Currency))
	if currency == "" {
		currency = billing.DefaultCurrency
	}
	return &stripe.CheckoutSessionCreateLineItemParams{
		PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
			Currency: stripe.String(currency),
			ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
				Name: stripe.String(g.config.ProductName(plan)),
			},
			UnitAmount: stripe.Int64(cents),
		},
		Quantity: stripe.Int64(1),
	}, nil
}

func paid(s *stripe.CheckoutSession) bool {
	if s.Status != stripe.CheckoutSessionStatusComplete {
		return false
	}
	return s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}

// withSessionID appends the session id template to a return URL
func withSessionID(u string) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + atscheck.ParamSessionID + "=" + sessionIDTemplate
}
