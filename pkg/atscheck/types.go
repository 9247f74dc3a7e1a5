package atscheck

import (
	"context"
	"fmt"
	"strings"
)

// Plan is a subscription tier
type Plan string

const (
	// PlanBasic is the free tier
	PlanBasic Plan = "basic"
	// PlanPremium is the mid tier
	PlanPremium Plan = "premium"
	// PlanPro is the top tier
	PlanPro Plan = "pro"
)

// ParsePlan normalizes a plan name coming from the backend or a return URL.
// Matching is case-insensitive ("Premium" and "premium" are the same plan).
func ParsePlan(s string) (Plan, error) {
	switch p := Plan(strings.ToLower(strings.TrimSpace(s))); p {
	case PlanBasic, PlanPremium, PlanPro:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPlan, s)
	}
}

// Title returns the display form of the plan ("Premium")
func (p Plan) Title() string {
	if p == "" {
		return ""
	}
	return strings.ToUpper(string(p[:1])) + string(p[1:])
}

// Session is the current authenticated identity.
// The zero value is the anonymous (logged out) session.
type Session struct {
	Username   string
	Plan       Plan
	Credential string
}

// Authenticated reports whether the session carries a credential
func (s Session) Authenticated() bool {
	return s.Credential != ""
}

// UsageInfo is the server's view of the user's quota for the active plan
type UsageInfo struct {
	UploadsUsed int  `json:"uploads_used"`
	Limit       int  `json:"limit"`
	Plan        Plan `json:"plan"`
}

// Remaining returns how many uploads are left, never negative
func (u UsageInfo) Remaining() int {
	if u.UploadsUsed >= u.Limit {
		return 0
	}
	return u.Limit - u.UploadsUsed
}

// Mode selects whether an analysis is matched against a job description
type Mode string

const (
	// ModeWithJobDescription requires a pasted job description
	ModeWithJobDescription Mode = "with_jd"
	// ModeWithoutJobDescription requires a position or company name
	ModeWithoutJobDescription Mode = "without_jd"
)

// Action discriminates the kind of analysis the backend produces
type Action string

const (
	// ActionScore asks for a short ATS score
	ActionScore Action = "percentage"
	// ActionReview asks for a detailed review
	ActionReview Action = "review"
)

// File is a user-selected file
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// PendingUpload is the resume waiting to be submitted with its analysis inputs
type PendingUpload struct {
	File           File
	Mode           Mode
	JobDescription string
	CompanyName    string
}

// AnalyzeRequest is a single analysis submission
type AnalyzeRequest struct {
	File   File
	Action Action

	// Exactly one of JobDescription or CompanyName is set.
	JobDescription string
	CompanyName    string
}

// AnalyzeResult is the backend's answer to an analysis submission.
// Usage is the authoritative post-submission quota echo.
type AnalyzeResult struct {
	Usage    UsageInfo
	Response string
}

// LoginResult is returned by password and OAuth sign-in
type LoginResult struct {
	Credential string
	Username   string
	Plan       Plan
	Message    string
}

// RegisterRequest is the sign-up form
type RegisterRequest struct {
	Username  string `json:"username" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password1 string `json:"password1" validate:"required"`
	Password2 string `json:"password2" validate:"required,eqfield=Password1"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Profile is the account data shown on the profile dashboard
type Profile struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Plan           Plan   `json:"plan"`
	UploadsUsed    int    `json:"uploads_used"`
	UploadLimit    int    `json:"upload_limit"`
	DateJoined     string `json:"date_joined"`
	EmailVerified  bool   `json:"is_email_verified"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// PaymentIntent is the outgoing request to open a payment session
type PaymentIntent struct {
	PlanName   string  `json:"plan_name"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	SuccessURL string  `json:"success_url"`
	CancelURL  string  `json:"cancel_url"`
}

// PaymentSession is where the browser must be sent to pay
type PaymentSession struct {
	PaymentURL string `json:"payment_url"`
	SessionID  string `json:"session_id"`
}

// PaymentConfirmation is derived from the payment return URL
type PaymentConfirmation struct {
	Plan      string
	SessionID string
}

// Store is a small durable key/value capability used to persist the credential
// across restarts. Get returns ErrKeyNotFound for missing keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Persisted keys
const (
	KeyCredential = "credential"
	KeyUsername   = "username"
)

// SessionBackend verifies persisted credentials and invalidates them
type SessionBackend interface {
	GetUserPlan(ctx context.Context, credential, username string) (string, Plan, error)
	Logout(ctx context.Context, credential string) error
}

// AuthBackend performs account operations
type AuthBackend interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Register(ctx context.Context, req RegisterRequest) (string, error)
	GoogleLogin(ctx context.Context, idToken string) (*LoginResult, error)
	VerifyEmail(ctx context.Context, email, code string) (string, error)
	ResendVerification(ctx context.Context, email string) error
}

// UsageBackend reads quota state
type UsageBackend interface {
	CheckUsage(ctx context.Context, credential string) (*UsageInfo, error)
}

// AnalysisBackend runs resume analyses
type AnalysisBackend interface {
	UsageBackend
	Analyze(ctx context.Context, credential string, req AnalyzeRequest) (*AnalyzeResult, error)
}

// ProfileBackend reads and edits the account profile
type ProfileBackend interface {
	GetProfile(ctx context.Context, credential string) (*Profile, error)
	UpdateProfile(ctx context.Context, credential string, update ProfileUpdate) (*Profile, error)
	SendProfileVerification(ctx context.Context, credential string) error
}

// PaymentGateway opens and verifies payment sessions
type PaymentGateway interface {
	CreatePaymentSession(ctx context.Context, credential string, intent PaymentIntent) (*PaymentSession, error)
	VerifyPayment(ctx context.Context, credential, sessionID string) (Plan, error)
}

// Prompter surfaces blocking prompts when the entitlement gate refuses an upload
type Prompter interface {
	LoginRequired()
	UpgradeRequired()
}

// PrompterFuncs adapts two functions to a Prompter
type PrompterFuncs struct {
	OnLoginRequired   func()
	OnUpgradeRequired func()
}

func (p PrompterFuncs) LoginRequired() {
	if p.OnLoginRequired != nil {
		p.OnLoginRequired()
	}
}

func (p PrompterFuncs) UpgradeRequired() {
	if p.OnUpgradeRequired != nil {
		p.OnUpgradeRequired()
	}
}
