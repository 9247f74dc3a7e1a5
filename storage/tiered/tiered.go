// Package tiered provides a Hot/Cold store that pairs a fast store (Hot) with
// a durable one (Cold). Reads go through Hot and repair it from Cold; writes
// go to Cold first, then Hot.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// Config configures the tiered store
type Config struct {
	// Hot is the L1 store (e.g., Memory, Redis)
	Hot atscheck.Store

	// Cold is the L2 store and the source of truth (e.g., File, Postgres, Firestore)
	Cold atscheck.Store

	// HotErrorHandler is called when a Hot write fails after Cold succeeded.
	// Such failures do not fail the operation.
	HotErrorHandler func(error)

	// HotTTL bounds how long a Hot entry is served before Cold is asked
	// again. Set it to the Cold tier's TTL so expired values are not served
	// from cache. Zero keeps Hot entries until they are overwritten.
	HotTTL time.Duration
}

// Storage implements atscheck.Store over two tiers
type Storage struct {
	hot  atscheck.Store
	cold atscheck.Store
	conf Config

	mu     sync.Mutex
	filled map[string]time.Time
	now    func() time.Time
}

// New creates a new tiered store
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}
	if config.HotTTL < 0 {
		return nil, errors.New("tiered storage: hot TTL cannot be negative")
	}
	return &Storage{
		hot:    config.Hot,
		cold:   config.Cold,
		conf:   config,
		filled: make(map[string]time.Time),
		now:    time.Now,
	}, nil
}

// Get implements atscheck.Store with read-through
func (s *Storage) Get(ctx context.Context, key string) (string, error) {
	if s.fresh(key) {
		if v, err := s.hot.Get(ctx, key); err == nil {
			return v, nil
		}
	}

	v, err := s.cold.Get(ctx, key)
	if err != nil {
		if errors.Is(err, atscheck.ErrKeyNotFound) {
			s.forget(key)
			s.hotFailed(ignoreMissing(s.hot.Remove(ctx, key)), "evict", key)
		}
		return "", err
	}

	// Read-repair; a cache fill failure is not the caller's problem
	s.fill(ctx, key, v, "populate")
	return v, nil
}

// Set implements atscheck.Store with write-through
func (s *Storage) Set(ctx context.Context, key, value string) error {
	if err := s.cold.Set(ctx, key, value); err != nil {
		return err
	}
	s.fill(ctx, key, value, "set")
	return nil
}

// Remove implements atscheck.Store. Hot is cleared even when Cold fails so a
// stale credential cannot be served from cache.
func (s *Storage) Remove(ctx context.Context, key string) error {
	s.forget(key)
	hotErr := s.hot.Remove(ctx, key)
	if err := s.cold.Remove(ctx, key); err != nil {
		return err
	}
	s.hotFailed(hotErr, "remove", key)
	return nil
}

func (s *Storage) hotFailed(err error, op, key string) {
	if err == nil || s.conf.HotErrorHandler == nil {
		return
	}
	s.conf.HotErrorHandler(fmt.Errorf("tiered %s %s on hot tier: %w", op, key, err))
}

func (s *Storage) fill(ctx context.Context, key, value, op string) {
	if err := s.hot.Set(ctx, key, value); err != nil {
		s.hotFailed(err, op, key)
		return
	}
	s.mu.Lock()
	s.filled[key] = s.now()
	s.mu.Unlock()
}

// fresh reports whether the Hot entry for key may be served
func (s *Storage) fresh(key string) bool {
	if s.conf.HotTTL == 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.filled[key]
	return ok && s.now().Sub(at) < s.conf.HotTTL
}

func (s *Storage) forget(key string) {
	s.mu.Lock()
	delete(s.filled, key)
	s.mu.Unlock()
}

func ignoreMissing(err error) error {
	if errors.Is(err, atscheck.ErrKeyNotFound) {
		return nil
	}
	return err
}
