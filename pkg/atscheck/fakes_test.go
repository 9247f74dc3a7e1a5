package atscheck_test

import (
	"context"
	"sync"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

func pdfFile() atscheck.File {
	return atscheck.File{Name: "resume.pdf", ContentType: "application/pdf", Content: samplePDF}
}

// fakeBackend is a scriptable in-process backend
type fakeBackend struct {
	mu sync.Mutex

	plans     map[string]atscheck.Plan // username -> plan for GetUserPlan
	planErr   error
	logoutErr error
	logouts   []string

	usage     atscheck.UsageInfo
	usageErr  error
	usageHits int

	analyze     func(atscheck.AnalyzeRequest) (*atscheck.AnalyzeResult, error)
	analyzeReqs []atscheck.AnalyzeRequest

	login       *atscheck.LoginResult
	loginErr    error
	registered  []atscheck.RegisterRequest
	resentTo    []string
	verifyCodes map[string]string

	profile      atscheck.Profile
	profileSends int

	intents    []atscheck.PaymentIntent
	createErr  error
	verified   []string
	verifyPlan atscheck.Plan
	verifyErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		plans:       make(map[string]atscheck.Plan),
		verifyCodes: make(map[string]string),
	}
}

func (f *fakeBackend) GetUserPlan(_ context.Context, credential, username string) (string, atscheck.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.planErr != nil {
		return "", "", f.planErr
	}
	plan, ok := f.plans[username]
	if !ok {
		return "", "", &atscheck.APIError{Op: "get user plan", StatusCode: 401}
	}
	return username, plan, nil
}

func (f *fakeBackend) Logout(_ context.Context, credential string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, credential)
	return f.logoutErr
}

func (f *fakeBackend) CheckUsage(_ context.Context, _ string) (*atscheck.UsageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usageHits++
	if f.usageErr != nil {
		return nil, f.usageErr
	}
	u := f.usage
	return &u, nil
}

func (f *fakeBackend) Analyze(_ context.Context, _ string, req atscheck.AnalyzeRequest) (*atscheck.AnalyzeResult, error) {
	f.mu.Lock()
	f.analyzeReqs = append(f.analyzeReqs, req)
	fn := f.analyze
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &atscheck.AnalyzeResult{Usage: f.usage, Response: "ok"}, nil
}

func (f *fakeBackend) analyzeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.analyzeReqs)
}

func (f *fakeBackend) Login(_ context.Context, username, password string) (*atscheck.LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	res := *f.login
	return &res, nil
}

func (f *fakeBackend) Register(_ context.Context, req atscheck.RegisterRequest) (string, error) {
	f.registered = append(f.registered, req)
	return "Registration successful. Please verify your email.", nil
}

func (f *fakeBackend) GoogleLogin(_ context.Context, idToken string) (*atscheck.LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	res := *f.login
	return &res, nil
}

func (f *fakeBackend) VerifyEmail(_ context.Context, email, code string) (string, error) {
	if f.verifyCodes[email] != code {
		return "", &atscheck.APIError{Op: "verify email", StatusCode: 400, Message: "Invalid code"}
	}
	return "Email verified", nil
}

func (f *fakeBackend) ResendVerification(_ context.Context, email string) error {
	f.resentTo = append(f.resentTo, email)
	return nil
}

func (f *fakeBackend) GetProfile(_ context.Context, _ string) (*atscheck.Profile, error) {
	p := f.profile
	return &p, nil
}

func (f *fakeBackend) UpdateProfile(_ context.Context, _ string, u atscheck.ProfileUpdate) (*atscheck.Profile, error) {
	if u.Email != nil {
		f.profile.Email = *u.Email
	}
	if u.FirstName != nil {
		f.profile.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		f.profile.LastName = *u.LastName
	}
	p := f.profile
	return &p, nil
}

func (f *fakeBackend) SendProfileVerification(_ context.Context, _ string) error {
	f.profileSends++
	return nil
}

func (f *fakeBackend) CreatePaymentSession(_ context.Context, _ string, intent atscheck.PaymentIntent) (*atscheck.PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, intent)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &atscheck.PaymentSession{PaymentURL: "https://pay.example.com/cs_123", SessionID: "cs_123"}, nil
}

func (f *fakeBackend) VerifyPayment(_ context.Context, _ string, sessionID string) (atscheck.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, sessionID)
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	return f.verifyPlan, nil
}
