package atscheck_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
	"github.com/mihaimyh/atscheck/storage/memory"
)

func newAuthenticator(t *testing.T, backend *fakeBackend, onSignIn func(atscheck.Session)) (*atscheck.Authenticator, *atscheck.SessionStore, *memory.Storage) {
	t.Helper()
	store := memory.New()
	sessions, err := atscheck.NewSessionStore(store, backend, atscheck.SessionConfig{})
	require.NoError(t, err)
	auth, err := atscheck.NewAuthenticator(backend, sessions, atscheck.AuthConfig{OnSignIn: onSignIn})
	require.NoError(t, err)
	return auth, sessions, store
}

func TestAuthenticator_Login(t *testing.T) {
	backend := newFakeBackend()
	backend.login = &atscheck.LoginResult{Credential: "tok", Plan: "Premium", Message: "Login successful"}

	var signedIn []atscheck.Session
	auth, sessions, store := newAuthenticator(t, backend, func(s atscheck.Session) { signedIn = append(signedIn, s) })

	session, err := auth.Login(context.Background(), " ana ", "secret")
	require.NoError(t, err)
	want := atscheck.Session{Username: "ana", Plan: atscheck.PlanPremium, Credential: "tok"}
	assert.Equal(t, want, session)
	assert.Equal(t, want, sessions.Current())
	assert.Equal(t, []atscheck.Session{want}, signedIn)
	assert.ElementsMatch(t, []string{atscheck.KeyCredential, atscheck.KeyUsername}, store.Keys())
}

func TestAuthenticator_LoginValidation(t *testing.T) {
	auth, _, _ := newAuthenticator(t, newFakeBackend(), nil)

	_, err := auth.Login(context.Background(), "", "secret")
	assert.ErrorIs(t, err, atscheck.ErrMissingField)
	var verr *atscheck.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "username", verr.Field)

	_, err = auth.Login(context.Background(), "ana", "")
	assert.ErrorIs(t, err, atscheck.ErrMissingField)
}

func TestAuthenticator_LoginBackendError(t *testing.T) {
	backend := newFakeBackend()
	backend.loginErr = &atscheck.APIError{Op: "login", StatusCode: 400, Message: "Invalid credentials"}
	auth, sessions, _ := newAuthenticator(t, backend, nil)

	_, err := auth.Login(context.Background(), "ana", "wrong")
	assert.Equal(t, "Invalid credentials", atscheck.UserMessage(err))
	assert.False(t, sessions.Authenticated())
}

func TestAuthenticator_GoogleLogin(t *testing.T) {
	backend := newFakeBackend()
	backend.login = &atscheck.LoginResult{Credential: "g-tok", Username: "ana.g"}
	auth, sessions, _ := newAuthenticator(t, backend, nil)

	_, err := auth.GoogleLogin(context.Background(), "")
	assert.ErrorIs(t, err, atscheck.ErrMissingField)

	session, err := auth.GoogleLogin(context.Background(), "id-token")
	require.NoError(t, err)
	assert.Equal(t, atscheck.PlanBasic, session.Plan, "missing plan defaults to basic")
	assert.Equal(t, "ana.g", sessions.Current().Username)
}

func TestAuthenticator_Register(t *testing.T) {
	valid := atscheck.RegisterRequest{
		Username:  "ana",
		Email:     "ana@example.com",
		Password1: "s3cret!",
		Password2: "s3cret!",
	}

	tests := []struct {
		name    string
		mutate  func(*atscheck.RegisterRequest)
		wantErr error
	}{
		{name: "valid"},
		{name: "missing username", mutate: func(r *atscheck.RegisterRequest) { r.Username = "  " }, wantErr: atscheck.ErrMissingField},
		{name: "bad email", mutate: func(r *atscheck.RegisterRequest) { r.Email = "ana-at-example" }, wantErr: atscheck.ErrInvalidEmail},
		{name: "password mismatch", mutate: func(r *atscheck.RegisterRequest) { r.Password2 = "other" }, wantErr: atscheck.ErrPasswordMismatch},
		{name: "missing confirmation", mutate: func(r *atscheck.RegisterRequest) { r.Password2 = "" }, wantErr: atscheck.ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			auth, _, _ := newAuthenticator(t, backend, nil)

			req := valid
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			msg, err := auth.Register(context.Background(), req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, atscheck.KindValidation, atscheck.Classify(err))
				assert.Empty(t, backend.registered)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, msg)
			require.Len(t, backend.registered, 1)
		})
	}
}

func TestAuthenticator_VerifyEmail(t *testing.T) {
	backend := newFakeBackend()
	backend.verifyCodes["ana@example.com"] = "123456"
	auth, _, _ := newAuthenticator(t, backend, nil)
	ctx := context.Background()

	_, err := auth.VerifyEmail(ctx, "ana@example.com", "")
	assert.ErrorIs(t, err, atscheck.ErrMissingField)

	_, err = auth.VerifyEmail(ctx, "ana@example.com", "000000")
	assert.Equal(t, atscheck.KindBackend, atscheck.Classify(err))

	msg, err := auth.VerifyEmail(ctx, "ana@example.com", " 123456 ")
	require.NoError(t, err)
	assert.Equal(t, "Email verified", msg)
}

func TestAuthenticator_ResendVerification(t *testing.T) {
	backend := newFakeBackend()
	auth, _, _ := newAuthenticator(t, backend, nil)
	ctx := context.Background()

	assert.ErrorIs(t, auth.ResendVerification(ctx, ""), atscheck.ErrMissingField)
	assert.ErrorIs(t, auth.ResendVerification(ctx, "nope"), atscheck.ErrInvalidEmail)
	require.NoError(t, auth.ResendVerification(ctx, "ana@example.com"))
	assert.Equal(t, []string{"ana@example.com"}, backend.resentTo)
}
