// Package file provides a JSON-file implementation of the atscheck.Store interface.
// It is what the terminal client uses to keep a session across runs.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// Storage implements atscheck.Store on top of a single JSON document
type Storage struct {
	path string
	perm fs.FileMode

	mu sync.Mutex
}

// Config holds file storage configuration
type Config struct {
	// Path is the JSON file holding the values (required)
	Path string

	// Perm is the file mode used when creating the file (default: 0600)
	Perm fs.FileMode
}

// New creates a new file storage adapter. The file is created on first write.
func New(config Config) (*Storage, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	if config.Perm == 0 {
		config.Perm = 0o600
	}
	return &Storage{path: config.Path, perm: config.Perm}, nil
}

// Path returns the backing file
func (s *Storage) Path() string {
	return s.path
}

// Get implements atscheck.Store
func (s *Storage) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", atscheck.ErrKeyNotFound
	}
	return v, nil
}

// Set implements atscheck.Store
func (s *Storage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

// Remove implements atscheck.Store
func (s *Storage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.save(values)
}

func (s *Storage) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return values, nil
}

// save writes through a temp file and rename so a crash never leaves half a document
func (s *Storage) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode values: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".atscheck-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(s.perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
