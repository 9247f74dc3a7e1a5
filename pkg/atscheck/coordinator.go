package atscheck

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
)

// DefaultContactURL is offered to anonymous users picking a paid plan
const DefaultContactURL = "https://quotientone-getintouch.carrd.co/"

// ReturnHandler consumes payment return parameters and returns the URL to
// show instead. Coordinator implements it.
type ReturnHandler interface {
	HandleReturn(ctx context.Context, u *url.URL) (*url.URL, error)
}

// Modal identifies a dialog owned by the coordinator
type Modal string

const (
	ModalAuth           Modal = "auth"
	ModalUpgrade        Modal = "upgrade"
	ModalCreateResume   Modal = "create_resume"
	ModalLoginWarning   Modal = "login_warning"
	ModalProfile        Modal = "profile"
	ModalPaymentSuccess Modal = "payment_success"
)

// Modals is the visibility of every dialog
type Modals struct {
	Auth           bool
	Upgrade        bool
	CreateResume   bool
	LoginWarning   bool
	Profile        bool
	PaymentSuccess bool
}

func (m *Modals) flag(modal Modal) *bool {
	switch modal {
	case ModalAuth:
		return &m.Auth
	case ModalUpgrade:
		return &m.Upgrade
	case ModalCreateResume:
		return &m.CreateResume
	case ModalLoginWarning:
		return &m.LoginWarning
	case ModalProfile:
		return &m.Profile
	case ModalPaymentSuccess:
		return &m.PaymentSuccess
	default:
		return nil
	}
}

// UpgradeKind is what the caller must do after picking a plan
type UpgradeKind string

const (
	// UpgradeCurrent means the plan is already active
	UpgradeCurrent UpgradeKind = "current"
	// UpgradeFree means the plan needs no payment; the dialog was closed
	UpgradeFree UpgradeKind = "free"
	// UpgradeContact means the caller should open URL (contact channel)
	UpgradeContact UpgradeKind = "contact"
	// UpgradeRedirect means the caller should navigate to URL (payment page)
	UpgradeRedirect UpgradeKind = "redirect"
)

// UpgradeOutcome is the result of picking a plan in the upgrade dialog
type UpgradeOutcome struct {
	Kind      UpgradeKind
	Plan      Plan
	URL       string
	SessionID string
}

// CoordinatorConfig holds Coordinator configuration
type CoordinatorConfig struct {
	// Catalog lists the offers (default: DefaultCatalog())
	Catalog Catalog

	// ContactURL is used for paid plans when nobody is signed in (default: DefaultContactURL)
	ContactURL string

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger
}

// Coordinator wires session, usage, payment and upload flows together and
// owns dialog visibility.
type Coordinator struct {
	sessions *SessionStore
	usage    *UsageTracker
	payments *PaymentFlow
	uploads  *Orchestrator
	catalog  Catalog
	contact  string
	logger   Logger

	mu        sync.Mutex
	modals    Modals
	confirmed Plan
	consumed  map[string]bool
}

// NewCoordinator creates a coordinator. It registers itself as the
// orchestrator's prompter and subscribes to usage updates to reconcile plans.
func NewCoordinator(sessions *SessionStore, usage *UsageTracker, payments *PaymentFlow, uploads *Orchestrator, config CoordinatorConfig) (*Coordinator, error) {
	if sessions == nil || usage == nil || payments == nil || uploads == nil {
		return nil, fmt.Errorf("sessions, usage, payments and uploads are required")
	}
	if config.Catalog == nil {
		config.Catalog = DefaultCatalog()
	}
	if err := config.Catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	if config.ContactURL == "" {
		config.ContactURL = DefaultContactURL
	}

	c := &Coordinator{
		sessions: sessions,
		usage:    usage,
		payments: payments,
		uploads:  uploads,
		catalog:  config.Catalog,
		contact:  config.ContactURL,
		logger:   orNoopLogger(config.Logger),
		consumed: make(map[string]bool),
	}
	uploads.SetPrompter(c)
	usage.Subscribe(c.reconcile)
	return c, nil
}

var _ ReturnHandler = (*Coordinator)(nil)

// Sessions returns the session store
func (c *Coordinator) Sessions() *SessionStore { return c.sessions }

// Usage returns the usage tracker
func (c *Coordinator) Usage() *UsageTracker { return c.usage }

// Uploads returns the upload orchestrator
func (c *Coordinator) Uploads() *Orchestrator { return c.uploads }

// Catalog returns the plan offers
func (c *Coordinator) Catalog() Catalog { return c.catalog }

// Start restores the persisted session, then consumes payment return
// parameters from u. The returned URL is the one to show.
func (c *Coordinator) Start(ctx context.Context, u *url.URL) (*url.URL, error) {
	c.sessions.Restore(ctx)
	return c.HandleReturn(ctx, u)
}

// HandleReturn confirms a completed payment carried by u, at most once per
// session id. Payment parameters are stripped from the returned URL whatever
// the outcome.
func (c *Coordinator) HandleReturn(ctx context.Context, u *url.URL) (*url.URL, error) {
	if !HasPaymentParams(u) {
		return u, nil
	}
	clean := StripPaymentParams(u)

	conf, ok := ParseReturnURL(u)
	if !ok {
		c.logger.Debug("payment return without confirmation", F("payment", u.Query().Get(ParamPayment)))
		return clean, nil
	}

	// Confirmation needs the restored credential
	select {
	case <-c.sessions.Ready():
	case <-ctx.Done():
		return clean, fmt.Errorf("%w: waiting for session restore: %v", ErrCancelled, ctx.Err())
	}

	session := c.sessions.Current()
	if !session.Authenticated() {
		c.logger.Info("payment return ignored, no session", F("session_id", conf.SessionID))
		return clean, nil
	}

	c.mu.Lock()
	if c.consumed[conf.SessionID] {
		c.mu.Unlock()
		return clean, nil
	}
	c.consumed[conf.SessionID] = true
	c.mu.Unlock()

	plan, err := c.payments.Confirm(ctx, conf.SessionID, session.Credential)
	if err != nil {
		return clean, err
	}
	if plan == "" {
		if plan, err = ParsePlan(conf.Plan); err != nil {
			return clean, err
		}
	}

	if err := c.sessions.SetPlan(ctx, plan); err != nil {
		c.logger.Error("failed to persist confirmed plan", F("plan", string(plan)), F("error", err))
	}

	c.mu.Lock()
	c.confirmed = plan
	c.modals.Upgrade = false
	c.modals.PaymentSuccess = true
	c.mu.Unlock()

	c.logger.Info("payment confirmed", F("username", session.Username), F("plan", string(plan)))
	return clean, nil
}

// ConfirmedPlan returns the plan announced by the payment success dialog
func (c *Coordinator) ConfirmedPlan() Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmed
}

// LoginRequired opens the login warning
func (c *Coordinator) LoginRequired() {
	c.Open(ModalLoginWarning)
}

// UpgradeRequired opens the upgrade dialog
func (c *Coordinator) UpgradeRequired() {
	c.Open(ModalUpgrade)
}

// Upgrade handles picking planName in the upgrade dialog
func (c *Coordinator) Upgrade(ctx context.Context, planName string) (UpgradeOutcome, error) {
	offer, err := c.catalog.Lookup(planName)
	if err != nil {
		return UpgradeOutcome{}, err
	}

	session := c.sessions.Current()
	if session.Authenticated() && session.Plan == offer.Plan {
		return UpgradeOutcome{Kind: UpgradeCurrent, Plan: offer.Plan}, nil
	}

	checkout, err := c.payments.Initiate(ctx, offer.Plan.Title(), offer.Amount, offer.Currency, session.Credential)
	switch {
	case errors.Is(err, ErrCredentialRequired):
		return UpgradeOutcome{Kind: UpgradeContact, Plan: offer.Plan, URL: c.contact}, nil
	case err != nil:
		return UpgradeOutcome{}, err
	case checkout.Free:
		c.Close(ModalUpgrade)
		return UpgradeOutcome{Kind: UpgradeFree, Plan: offer.Plan}, nil
	}

	return UpgradeOutcome{
		Kind:      UpgradeRedirect,
		Plan:      offer.Plan,
		URL:       checkout.PaymentURL,
		SessionID: checkout.SessionID,
	}, nil
}

// RequestCreateResume opens the resume builder for signed-in users and the
// login warning otherwise.
func (c *Coordinator) RequestCreateResume() {
	if c.sessions.Authenticated() {
		c.Open(ModalCreateResume)
		return
	}
	c.Open(ModalLoginWarning)
}

// ProceedToLogin moves from the login warning to the sign-in dialog
func (c *Coordinator) ProceedToLogin() {
	c.mu.Lock()
	c.modals.LoginWarning = false
	c.modals.Auth = true
	c.mu.Unlock()
}

// SignedIn is called after a successful sign-in; it closes the auth dialog
// and drops usage read under the previous identity.
func (c *Coordinator) SignedIn(s Session) {
	c.usage.Reset()
	c.Close(ModalAuth)
	c.logger.Info("signed in", F("username", s.Username), F("plan", string(s.Plan)))
}

// Logout ends the session and closes dialogs that need one
func (c *Coordinator) Logout(ctx context.Context) error {
	err := c.sessions.Logout(ctx)
	c.usage.Reset()

	c.mu.Lock()
	c.modals.Profile = false
	c.modals.CreateResume = false
	c.mu.Unlock()
	return err
}

// Open shows a dialog
func (c *Coordinator) Open(m Modal) {
	c.setModal(m, true)
}

// Close hides a dialog
func (c *Coordinator) Close(m Modal) {
	c.setModal(m, false)
	switch m {
	case ModalUpgrade:
		c.payments.Reset()
	case ModalPaymentSuccess:
		c.mu.Lock()
		c.confirmed = ""
		c.mu.Unlock()
	}
}

// Modals returns the current dialog visibility
func (c *Coordinator) Modals() Modals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modals
}

func (c *Coordinator) setModal(m Modal, open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f := c.modals.flag(m); f != nil {
		*f = open
	}
}

// reconcile makes the usage plan the session plan
func (c *Coordinator) reconcile(info UsageInfo) {
	session := c.sessions.Current()
	if !session.Authenticated() || info.Plan == "" || info.Plan == session.Plan {
		return
	}
	plan, err := ParsePlan(string(info.Plan))
	if err != nil {
		c.logger.Warn("usage reported unknown plan", F("plan", string(info.Plan)))
		return
	}
	if err := c.sessions.SetPlan(context.Background(), plan); err != nil {
		c.logger.Error("failed to persist reconciled plan", F("plan", string(plan)), F("error", err))
		return
	}
	c.logger.Info("session plan reconciled", F("from", string(session.Plan)), F("to", string(plan)))
}
