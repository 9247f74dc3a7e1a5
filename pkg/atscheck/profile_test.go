package atscheck_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
	"github.com/mihaimyh/atscheck/storage/memory"
)

func TestProfileService(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.profile = atscheck.Profile{Username: "ana", Email: "ana@example.com", Plan: atscheck.PlanPremium, UploadLimit: 10}

	sessions, err := atscheck.NewSessionStore(memory.New(), backend, atscheck.SessionConfig{})
	require.NoError(t, err)
	svc, err := atscheck.NewProfileService(backend, sessions, nil)
	require.NoError(t, err)

	_, err = svc.Get(ctx)
	assert.ErrorIs(t, err, atscheck.ErrCredentialRequired)
	assert.ErrorIs(t, svc.ResendVerification(ctx), atscheck.ErrCredentialRequired)

	require.NoError(t, sessions.Login(ctx, "tok", "ana", atscheck.PlanPremium))

	p, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", p.Email)

	bad := "not-an-email"
	_, err = svc.Update(ctx, atscheck.ProfileUpdate{Email: &bad})
	assert.ErrorIs(t, err, atscheck.ErrInvalidEmail)

	email, first := " new@example.com ", "Ana"
	p, err = svc.Update(ctx, atscheck.ProfileUpdate{Email: &email, FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", p.Email)
	assert.Equal(t, "Ana", p.FirstName)

	require.NoError(t, svc.ResendVerification(ctx))
	assert.Equal(t, 1, backend.profileSends)
}
