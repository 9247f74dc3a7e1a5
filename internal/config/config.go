// Package config loads the client configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store backends
const (
	StoreFile      = "file"
	StoreMemory    = "memory"
	StoreRedis     = "redis"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
)

// Payment gateways
const (
	PaymentsBackend = "backend"
	PaymentsStripe  = "stripe"
)

type Config struct {
	Env      string `envconfig:"ENV" default:"production"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Backend
	APIURL           string        `envconfig:"ATSCHECK_API_URL" default:"http://localhost:8000"`
	RequestTimeout   time.Duration `envconfig:"ATSCHECK_REQUEST_TIMEOUT" default:"30s"`
	RetryMax         int           `envconfig:"ATSCHECK_RETRY_MAX" default:"2"`
	BreakerThreshold int           `envconfig:"ATSCHECK_BREAKER_THRESHOLD" default:"5"`
	BreakerReset     time.Duration `envconfig:"ATSCHECK_BREAKER_RESET" default:"30s"`

	// Application URLs
	AppURL     string `envconfig:"ATSCHECK_APP_URL" default:"http://localhost:8080"`
	ContactURL string `envconfig:"ATSCHECK_CONTACT_URL" default:"https://quotientone-getintouch.carrd.co/"`

	// Credential persistence
	Store            string        `envconfig:"ATSCHECK_STORE" default:"file"`
	StorePath        string        `envconfig:"ATSCHECK_STORE_PATH"`
	StoreCache       bool          `envconfig:"ATSCHECK_STORE_CACHE" default:"true"`
	Namespace        string        `envconfig:"ATSCHECK_NAMESPACE" default:"default"`
	SessionTTL       time.Duration `envconfig:"ATSCHECK_SESSION_TTL" default:"720h"`
	RedisAddr        string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword    string        `envconfig:"REDIS_PASSWORD"`
	RedisDB          int           `envconfig:"REDIS_DB" default:"0"`
	PostgresDSN      string        `envconfig:"POSTGRES_DSN"`
	FirestoreProject string        `envconfig:"FIRESTORE_PROJECT"`

	// Payments
	Payments           string `envconfig:"ATSCHECK_PAYMENTS" default:"backend"`
	StripeSecretKey    string `envconfig:"STRIPE_SECRET_KEY"`
	StripePricePremium string `envconfig:"STRIPE_PRICE_PREMIUM"`
	StripePricePro     string `envconfig:"STRIPE_PRICE_PRO"`

	// Servers
	ListenAddr  string `envconfig:"ATSCHECK_LISTEN_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"ATSCHECK_METRICS_ADDR"`
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.Store == StoreFile && cfg.StorePath == "" {
		cfg.StorePath = DefaultStorePath()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option combinations envconfig cannot express
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"ATSCHECK_API_URL": c.APIURL, "ATSCHECK_APP_URL": c.AppURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%s: invalid URL %q", name, raw)
		}
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("ATSCHECK_REQUEST_TIMEOUT must be positive")
	}

	switch c.Store {
	case StoreFile:
		if c.StorePath == "" {
			return fmt.Errorf("ATSCHECK_STORE_PATH is required for the file store")
		}
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres store")
		}
	case StoreFirestore:
		if c.FirestoreProject == "" {
			return fmt.Errorf("FIRESTORE_PROJECT is required for the firestore store")
		}
	default:
		return fmt.Errorf("ATSCHECK_STORE: unknown store %q", c.Store)
	}

	switch c.Payments {
	case PaymentsBackend:
	case PaymentsStripe:
		if strings.TrimSpace(c.StripeSecretKey) == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required for stripe payments")
		}
	default:
		return fmt.Errorf("ATSCHECK_PAYMENTS: unknown gateway %q", c.Payments)
	}
	return nil
}

// Development reports whether human-readable logs are wanted
func (c *Config) Development() bool {
	return c.Env == "development"
}

// DefaultStorePath is the session file under the user config directory
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "atscheck", "session.json")
}
