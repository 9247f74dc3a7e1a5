// Package memory provides an in-memory implementation of the atscheck.Store interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"sync"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// Storage implements atscheck.Store using a map
type Storage struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		values: make(map[string]string),
	}
}

// Get implements atscheck.Store
func (s *Storage) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", atscheck.ErrKeyNotFound
	}
	return v, nil
}

// Set implements atscheck.Store
func (s *Storage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

// Remove implements atscheck.Store. Removing a missing key is not an error.
func (s *Storage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Keys returns the stored keys
func (s *Storage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = make(map[string]string)
}
