package atscheck

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// AuthConfig holds Authenticator configuration
type AuthConfig struct {
	// OnSignIn is called after a session was established (optional)
	OnSignIn func(Session)

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger
}

// Authenticator runs the account flows and hands resulting credentials to the session store
type Authenticator struct {
	backend  AuthBackend
	sessions *SessionStore
	validate *validator.Validate
	onSignIn func(Session)
	logger   Logger
}

type loginForm struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

type verifyForm struct {
	Email string `validate:"required,email"`
	Code  string `validate:"required"`
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(backend AuthBackend, sessions *SessionStore, config AuthConfig) (*Authenticator, error) {
	if backend == nil {
		return nil, fmt.Errorf("auth backend is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	return &Authenticator{
		backend:  backend,
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		onSignIn: config.OnSignIn,
		logger:   orNoopLogger(config.Logger),
	}, nil
}

// Login signs in with username and password
func (a *Authenticator) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if err := a.check(loginForm{Username: username, Password: password}); err != nil {
		return Session{}, err
	}

	res, err := a.backend.Login(ctx, username, password)
	if err != nil {
		a.logger.Warn("login failed", F("username", username), F("error", err))
		return Session{}, err
	}
	if res.Username == "" {
		res.Username = username
	}
	return a.establish(ctx, res)
}

// GoogleLogin exchanges a Google ID token for a session
func (a *Authenticator) GoogleLogin(ctx context.Context, idToken string) (Session, error) {
	if strings.TrimSpace(idToken) == "" {
		return Session{}, invalid("credential", ErrMissingField, "Google sign-in did not return a credential")
	}
	res, err := a.backend.GoogleLogin(ctx, idToken)
	if err != nil {
		a.logger.Warn("google login failed", F("error", err))
		return Session{}, err
	}
	if res.Username == "" {
		return Session{}, fmt.Errorf("google login: backend returned no username")
	}
	return a.establish(ctx, res)
}

// Register creates an account. The backend then expects email verification.
func (a *Authenticator) Register(ctx context.Context, req RegisterRequest) (string, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := a.check(req); err != nil {
		return "", err
	}

	msg, err := a.backend.Register(ctx, req)
	if err != nil {
		a.logger.Warn("registration failed", F("username", req.Username), F("error", err))
		return "", err
	}
	a.logger.Info("account registered", F("username", req.Username))
	return msg, nil
}

// VerifyEmail submits the code sent to email
func (a *Authenticator) VerifyEmail(ctx context.Context, email, code string) (string, error) {
	form := verifyForm{Email: strings.TrimSpace(email), Code: strings.TrimSpace(code)}
	if err := a.check(form); err != nil {
		return "", err
	}
	return a.backend.VerifyEmail(ctx, form.Email, form.Code)
}

// ResendVerification asks the backend to send a new code to email
func (a *Authenticator) ResendVerification(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("email", ErrMissingField, "email is required")
	}
	if err := a.validate.Var(email, "email"); err != nil {
		return invalid("email", ErrInvalidEmail, "Please enter a valid email address")
	}
	return a.backend.ResendVerification(ctx, email)
}

func (a *Authenticator) establish(ctx context.Context, res *LoginResult) (Session, error) {
	if res.Credential == "" {
		return Session{}, fmt.Errorf("sign-in: backend returned no credential")
	}
	plan := PlanBasic
	if res.Plan != "" {
		p, err := ParsePlan(string(res.Plan))
		if err != nil {
			return Session{}, err
		}
		plan = p
	}

	// Persistence failure still leaves a usable in-memory session
	err := a.sessions.Login(ctx, res.Credential, res.Username, plan)
	session := a.sessions.Current()
	if a.onSignIn != nil {
		a.onSignIn(session)
	}
	if err != nil {
		a.logger.Error("session not persisted", F("username", res.Username), F("error", err))
		return session, err
	}
	return session, nil
}

func (a *Authenticator) check(form any) error {
	if err := a.validate.Struct(form); err != nil {
		return translate(err)
	}
	return nil
}

// translate turns the first validator failure into a *ValidationError
func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return invalid(field, ErrMissingField, fmt.Sprintf("%s is required", field))
	case "email":
		return invalid(field, ErrInvalidEmail, "Please enter a valid email address")
	case "eqfield":
		return invalid(field, ErrPasswordMismatch, "Passwords do not match")
	default:
		return invalid(field, ErrMissingField, fmt.Sprintf("%s is invalid", field))
	}
}
