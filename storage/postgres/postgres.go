// Package postgres provides a PostgreSQL implementation of the atscheck.Store interface.
// Values live in a single table keyed by (namespace, key) and may expire.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// Schema creates the table used by Storage
const Schema = `CREATE TABLE IF NOT EXISTS client_sessions (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ,
	PRIMARY KEY (namespace, key)
)`

// Storage implements atscheck.Store using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config

	// stopCleanup cancels the background cleanup goroutine
	stopCleanup func()
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Namespace separates the sessions of different clients (default: "default")
	Namespace string

	// TTL sets expires_at on every write (0 = no expiration)
	TTL time.Duration

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Cleanup configuration
	CleanupEnabled  bool
	CleanupInterval time.Duration // How often expired rows are deleted

	// CreateSchema runs Schema on startup
	CreateSchema bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Namespace:       "default",
		TTL:             30 * 24 * time.Hour,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		CleanupEnabled:  true,
		CleanupInterval: time.Hour,
		CreateSchema:    true,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.Namespace == "" {
		config.Namespace = "default"
	}
	if config.CleanupEnabled && config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if config.CreateSchema {
		if _, err := pool.Exec(ctx, Schema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s := &Storage{
		pool:        pool,
		config:      config,
		stopCleanup: cancel,
	}
	if config.CleanupEnabled {
		go s.startCleanup(cleanupCtx)
	}
	return s, nil
}

// Close closes the PostgreSQL connection pool and stops background cleanup
func (s *Storage) Close() {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// Get implements atscheck.Store. Expired rows read as missing.
func (s *Storage) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM client_sessions
			WHERE namespace = $1 AND key = $2
			AND (expires_at IS NULL OR expires_at > $3)`,
		s.config.Namespace, key, time.Now().UTC(),
	).Scan(&value)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", atscheck.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

// Set implements atscheck.Store
func (s *Storage) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC()
	var expiresAt *time.Time
	if s.config.TTL > 0 {
		t := now.Add(s.config.TTL)
		expiresAt = &t
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO client_sessions (namespace, key, value, updated_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (namespace, key) DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = EXCLUDED.updated_at,
				expires_at = EXCLUDED.expires_at`,
		s.config.Namespace, key, value, now, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Remove implements atscheck.Store
func (s *Storage) Remove(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM client_sessions WHERE namespace = $1 AND key = $2`,
		s.config.Namespace, key)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// startCleanup runs periodic deletion of expired rows until Close
func (s *Storage) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Cleanup(ctx)
		}
	}
}

// Cleanup deletes expired rows and returns how many were removed
func (s *Storage) Cleanup(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM client_sessions WHERE expires_at IS NOT NULL AND expires_at < $1`,
		time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the PostgreSQL connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
