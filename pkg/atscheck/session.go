package atscheck

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// SessionConfig holds SessionStore configuration
type SessionConfig struct {
	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking restores (default: NoopMetrics)
	Metrics Metrics
}

// SessionStore holds the current identity and keeps its credential in a Store
type SessionStore struct {
	store   Store
	backend SessionBackend
	logger  Logger
	metrics Metrics

	mu      sync.RWMutex
	session Session

	restoreOnce sync.Once
	ready       chan struct{}
}

// NewSessionStore creates a session store backed by store
func NewSessionStore(store Store, backend SessionBackend, config SessionConfig) (*SessionStore, error) {
	if store == nil {
		return nil, ErrStorageUnavailable
	}
	if backend == nil {
		return nil, fmt.Errorf("session backend is required")
	}

	return &SessionStore{
		store:   store,
		backend: backend,
		logger:  orNoopLogger(config.Logger),
		metrics: orNoopMetrics(config.Metrics),
		ready:   make(chan struct{}),
	}, nil
}

// Restore re-establishes a persisted session on startup.
// Only the first call does any work; later calls return the same outcome.
// Verification failures silently downgrade to the anonymous session.
func (s *SessionStore) Restore(ctx context.Context) (Session, bool) {
	s.restoreOnce.Do(func() {
		defer close(s.ready)
		s.restore(ctx)
	})
	cur := s.Current()
	return cur, cur.Authenticated()
}

func (s *SessionStore) restore(ctx context.Context) {
	credential, credErr := s.store.Get(ctx, KeyCredential)
	username, userErr := s.store.Get(ctx, KeyUsername)
	if credErr != nil || userErr != nil || credential == "" || username == "" {
		readable := true
		for _, err := range []error{credErr, userErr} {
			if err != nil && !errors.Is(err, ErrKeyNotFound) {
				s.logger.Warn("failed to read persisted session", F("error", err))
				readable = false
			}
		}
		// Half a session can never be restored, so it is dropped
		if readable && (credential == "") != (username == "") {
			s.logger.Warn("persisted session incomplete, clearing")
			s.clearPersisted(ctx)
		}
		s.metrics.RecordSessionRestore("anonymous")
		return
	}

	name, plan, err := s.backend.GetUserPlan(ctx, credential, username)
	if err != nil {
		s.logger.Warn("persisted credential rejected, clearing session",
			F("username", username), F("error", err))
		s.clearPersisted(ctx)
		s.metrics.RecordSessionRestore("rejected")
		return
	}
	if name == "" {
		name = username
	}

	s.mu.Lock()
	s.session = Session{Username: name, Plan: plan, Credential: credential}
	s.mu.Unlock()

	s.logger.Info("session restored", F("username", name), F("plan", string(plan)))
	s.metrics.RecordSessionRestore("restored")
}

// Ready is closed once Restore has finished
func (s *SessionStore) Ready() <-chan struct{} {
	return s.ready
}

// Loading reports whether restoration has not completed yet
func (s *SessionStore) Loading() bool {
	select {
	case <-s.ready:
		return false
	default:
		return true
	}
}

// Login establishes a session and persists its credential.
// The in-memory session is set even if persistence fails.
func (s *SessionStore) Login(ctx context.Context, credential, username string, plan Plan) error {
	if credential == "" || username == "" {
		return invalid("credential", ErrMissingField, "credential and username are required")
	}

	s.mu.Lock()
	s.session = Session{Username: username, Plan: plan, Credential: credential}
	s.mu.Unlock()

	if err := s.store.Set(ctx, KeyCredential, credential); err != nil {
		return fmt.Errorf("%w: persisting credential: %v", ErrStorageUnavailable, err)
	}
	if err := s.store.Set(ctx, KeyUsername, username); err != nil {
		// Keep credential present iff username present
		if rmErr := s.store.Remove(ctx, KeyCredential); rmErr != nil {
			s.logger.Error("failed to roll back credential", F("error", rmErr))
		}
		return fmt.Errorf("%w: persisting username: %v", ErrStorageUnavailable, err)
	}

	s.logger.Debug("session established", F("username", username), F("plan", string(plan)))
	return nil
}

// SetPlan replaces the plan of the current session.
// It is a no-op when nobody is signed in.
func (s *SessionStore) SetPlan(ctx context.Context, plan Plan) error {
	cur := s.Current()
	if !cur.Authenticated() || cur.Plan == plan {
		return nil
	}
	return s.Login(ctx, cur.Credential, cur.Username, plan)
}

// Logout invalidates the credential on the backend (best effort) and clears
// both the persisted and in-memory session.
func (s *SessionStore) Logout(ctx context.Context) error {
	cur := s.Current()
	if cur.Authenticated() {
		if err := s.backend.Logout(ctx, cur.Credential); err != nil {
			s.logger.Warn("backend logout failed", F("username", cur.Username), F("error", err))
		}
	}

	s.mu.Lock()
	s.session = Session{}
	s.mu.Unlock()

	return s.clearPersisted(ctx)
}

// Current returns a copy of the current session
func (s *SessionStore) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Authenticated reports whether a credential is present
func (s *SessionStore) Authenticated() bool {
	return s.Current().Authenticated()
}

func (s *SessionStore) clearPersisted(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeyCredential, KeyUsername} {
		if err := s.store.Remove(ctx, key); err != nil && !errors.Is(err, ErrKeyNotFound) {
			errs = append(errs, fmt.Errorf("removing %s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		s.logger.Error("failed to clear persisted session", F("error", errors.Join(errs...)))
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, errors.Join(errs...))
	}
	return nil
}
