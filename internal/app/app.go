// Package app wires the client components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mihaimyh/atscheck/internal/config"
	"github.com/mihaimyh/atscheck/pkg/api"
	"github.com/mihaimyh/atscheck/pkg/atscheck"
	zerologadapter "github.com/mihaimyh/atscheck/pkg/atscheck/logger/zerolog"
	prommetrics "github.com/mihaimyh/atscheck/pkg/atscheck/metrics/prometheus"
	"github.com/mihaimyh/atscheck/pkg/billing"
	billingmetrics "github.com/mihaimyh/atscheck/pkg/billing/metrics/prometheus"
	"github.com/mihaimyh/atscheck/pkg/billing/stripe"
	"github.com/mihaimyh/atscheck/storage/file"
	fsstore "github.com/mihaimyh/atscheck/storage/firestore"
	"github.com/mihaimyh/atscheck/storage/memory"
	"github.com/mihaimyh/atscheck/storage/postgres"
	"github.com/mihaimyh/atscheck/storage/redis"
	"github.com/mihaimyh/atscheck/storage/tiered"
)

const metricsNamespace = "atscheck"

// App holds the wired client
type App struct {
	Config      *config.Config
	Client      *api.Client
	Store       atscheck.Store
	Coordinator *atscheck.Coordinator
	Auth        *atscheck.Authenticator
	Profile     *atscheck.ProfileService
	Registry    *prometheus.Registry

	log     zerolog.Logger
	closers []func() error
}

// New builds the client from cfg. Close releases the store connections.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
		log:      log,
	}
	logger := zerologadapter.NewLogger(log)
	metrics := prommetrics.NewMetrics(a.Registry, metricsNamespace)

	store, err := a.openStore(ctx, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	clientCfg := api.DefaultConfig(cfg.APIURL)
	clientCfg.Timeout = cfg.RequestTimeout
	clientCfg.RetryMax = cfg.RetryMax
	if cfg.RetryMax == 0 {
		clientCfg.RetryMax = -1
	}
	clientCfg.CircuitBreaker = &api.CircuitBreakerConfig{
		Enabled:          cfg.BreakerThreshold > 0,
		FailureThreshold: cfg.BreakerThreshold,
		ResetTimeout:     cfg.BreakerReset,
	}
	clientCfg.Logger = logger
	clientCfg.Metrics = metrics
	if a.Client, err = api.NewClient(clientCfg); err != nil {
		a.Close()
		return nil, err
	}

	gateway, err := a.gateway(logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	sessions, err := atscheck.NewSessionStore(store, a.Client, atscheck.SessionConfig{Logger: logger, Metrics: metrics})
	if err != nil {
		a.Close()
		return nil, err
	}
	usage, err := atscheck.NewUsageTracker(a.Client, atscheck.UsageConfig{
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	payments, err := atscheck.NewPaymentFlow(gateway, atscheck.PaymentConfig{
		ReturnURL: cfg.AppURL,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	uploads, err := atscheck.NewOrchestrator(a.Client, usage, sessions, atscheck.OrchestratorConfig{
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.Coordinator, err = atscheck.NewCoordinator(sessions, usage, payments, uploads, atscheck.CoordinatorConfig{
		ContactURL: cfg.ContactURL,
		Logger:     logger,
	}); err != nil {
		a.Close()
		return nil, err
	}
	if a.Auth, err = atscheck.NewAuthenticator(a.Client, sessions, atscheck.AuthConfig{
		OnSignIn: a.Coordinator.SignedIn,
		Logger:   logger,
	}); err != nil {
		a.Close()
		return nil, err
	}
	if a.Profile, err = atscheck.NewProfileService(a.Client, sessions, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, logger atscheck.Logger) (atscheck.Store, error) {
	cfg := a.Config
	var cold atscheck.Store

	switch cfg.Store {
	case config.StoreMemory:
		return memory.New(), nil

	case config.StoreFile:
		return file.New(file.Config{Path: cfg.StorePath})

	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rcfg := redis.DefaultConfig()
		rcfg.Namespace = cfg.Namespace
		rcfg.TTL = cfg.SessionTTL
		s, err := redis.New(client, rcfg)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		cold = s

	case config.StorePostgres:
		pcfg := postgres.DefaultConfig()
		pcfg.ConnectionString = cfg.PostgresDSN
		pcfg.Namespace = cfg.Namespace
		pcfg.TTL = cfg.SessionTTL
		pcfg.CreateSchema = true
		s, err := postgres.New(ctx, pcfg)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		cold = s

	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("firestore store: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		s, err := fsstore.New(client, fsstore.Config{Namespace: cfg.Namespace})
		if err != nil {
			return nil, err
		}
		cold = s

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if !cfg.StoreCache {
		return cold, nil
	}
	return tiered.New(tiered.Config{
		Hot:    memory.New(),
		Cold:   cold,
		HotTTL: cfg.SessionTTL,
		HotErrorHandler: func(err error) {
			logger.Warn("session cache error", atscheck.F("error", err))
		},
	})
}

func (a *App) gateway(logger atscheck.Logger) (atscheck.PaymentGateway, error) {
	if a.Config.Payments != config.PaymentsStripe {
		return a.Client, nil
	}
	prices := map[atscheck.Plan]string{}
	if a.Config.StripePricePremium != "" {
		prices[atscheck.PlanPremium] = a.Config.StripePricePremium
	}
	if a.Config.StripePricePro != "" {
		prices[atscheck.PlanPro] = a.Config.StripePricePro
	}
	g, err := stripe.NewGateway(stripe.Config{
		Config: billing.Config{
			APIKey:       a.Config.StripeSecretKey,
			PriceMapping: prices,
			Logger:       logger,
			Metrics:      billingmetrics.NewMetrics(a.Registry, metricsNamespace),
		},
		Recorder: a.Client,
	})
	if err != nil {
		return nil, err
	}
	return named(g, a.log), nil
}

func named(g billing.Gateway, log zerolog.Logger) billing.Gateway {
	log.Info().Str("gateway", g.Name()).Msg("checkout sessions go to the provider directly")
	return g
}

// MetricsHandler serves the app registry
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
}

// ServeMetrics serves /metrics on addr until ctx is done
func (a *App) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases store connections
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
