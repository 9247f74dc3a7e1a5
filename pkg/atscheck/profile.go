package atscheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ProfileService reads and edits the signed-in user's profile
type ProfileService struct {
	backend  ProfileBackend
	sessions SessionView
	validate *validator.Validate
	logger   Logger
}

// NewProfileService creates a profile service
func NewProfileService(backend ProfileBackend, sessions SessionView, logger Logger) (*ProfileService, error) {
	if backend == nil {
		return nil, fmt.Errorf("profile backend is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session view is required")
	}
	return &ProfileService{
		backend:  backend,
		sessions: sessions,
		validate: validator.New(),
		logger:   orNoopLogger(logger),
	}, nil
}

// Get fetches the profile. The profile plan is informational; the session
// plan follows usage responses.
func (p *ProfileService) Get(ctx context.Context) (*Profile, error) {
	credential, err := p.credential()
	if err != nil {
		return nil, err
	}
	return p.backend.GetProfile(ctx, credential)
}

// Update saves the non-nil fields of update and returns the stored profile
func (p *ProfileService) Update(ctx context.Context, update ProfileUpdate) (*Profile, error) {
	credential, err := p.credential()
	if err != nil {
		return nil, err
	}
	if update.Email != nil {
		email := strings.TrimSpace(*update.Email)
		if err := p.validate.Var(email, "required,email"); err != nil {
			return nil, invalid("email", ErrInvalidEmail, "Please enter a valid email address")
		}
		update.Email = &email
	}

	profile, err := p.backend.UpdateProfile(ctx, credential, update)
	if err != nil {
		p.logger.Warn("profile update failed", F("error", err))
		return nil, err
	}
	return profile, nil
}

// ResendVerification sends a new verification email to the profile address
func (p *ProfileService) ResendVerification(ctx context.Context) error {
	credential, err := p.credential()
	if err != nil {
		return err
	}
	return p.backend.SendProfileVerification(ctx, credential)
}

func (p *ProfileService) credential() (string, error) {
	s := p.sessions.Current()
	if !s.Authenticated() {
		return "", ErrCredentialRequired
	}
	return s.Credential, nil
}
