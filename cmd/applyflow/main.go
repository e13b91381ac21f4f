// Package main runs the ApplyFlow API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/applyflow/internal/auth"
	"github.com/R3E-Network/applyflow/internal/config"
	"github.com/R3E-Network/applyflow/internal/httpapi"
	"github.com/R3E-Network/applyflow/internal/logging"
	"github.com/R3E-Network/applyflow/internal/metrics"
	"github.com/R3E-Network/applyflow/internal/middleware"
	"github.com/R3E-Network/applyflow/internal/store/postgres"
	"github.com/R3E-Network/applyflow/internal/store/supabasestore"
	"github.com/R3E-Network/applyflow/supabase/client"
)

func main() {
	envFile := flag.String("env", ".env", "Optional dotenv file loaded before the environment is read")
	configFile := flag.String("config", "", "YAML config file (overrides "+config.FileEnvVar+")")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load env (%s): %v\n", *envFile, err)
		os.Exit(1)
	}

	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.LoadFromPath(*configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(httpapi.ServiceName, cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(true)

	factory, closeStore, err := newFactory(ctx, cfg, logger, m)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize store")
	}
	defer closeStore()

	cookieName := cfg.SessionCookieName
	if cookieName == "" {
		cookieName, err = auth.CookieNameForProject(cfg.Supabase.URL)
		if err != nil {
			logger.WithError(err).Warn("Session cookie name unavailable, cookie sessions will be rejected")
		}
	}

	resolver := auth.NewResolver(logger, m,
		auth.NewBearerStrategy(factory),
		auth.NewSessionStrategy(factory, cookieName),
	)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger)
		limiter.StartCleanup(ctx, time.Minute)
	}
	var ipLimiter *middleware.RateLimiter
	if cfg.RateLimit.IPRPS > 0 {
		ipLimiter = middleware.NewKeyedRateLimiter(cfg.RateLimit.IPRPS, cfg.RateLimit.IPBurst, middleware.IPKey, logger)
		ipLimiter.StartCleanup(ctx, time.Minute)
	}

	srv := httpapi.New(httpapi.Config{
		Resolver:      resolver,
		Logger:        logger,
		Metrics:       m,
		RateLimiter:   limiter,
		IPRateLimiter: ipLimiter,
		CORSOrigins:   cfg.CORS.AllowedOrigins,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).WithField("backend", cfg.StoreBackend).Info("ApplyFlow API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
	logger.Info("Server stopped")
}

// newFactory builds the token-bound store factory for the configured backend.
func newFactory(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (auth.HandleFactory, func(), error) {
	var verifier *auth.Verifier
	if cfg.Supabase.JWTSecret != "" {
		v, err := auth.NewVerifier(cfg.Supabase.JWTSecret)
		if err != nil {
			return nil, nil, err
		}
		verifier = v
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewFactory(db, verifier, m), func() { db.Close() }, nil

	default:
		retry := client.DefaultRetryConfig()
		retry.MaxRetries = cfg.Store.MaxRetries
		breaker := client.DefaultCircuitBreakerConfig()
		breaker.OnStateChange = func(from, to client.CircuitState) {
			logger.WithField("from", from.String()).WithField("to", to.String()).Warn("Store circuit breaker changed state")
		}
		httpClient := client.NewResilientHTTPClient(client.ResilientConfig{
			RetryConfig:          retry,
			CircuitBreakerConfig: breaker,
		}, cfg.Store.Timeout)

		return supabasestore.NewFactory(supabasestore.Config{
			URL:        cfg.Supabase.URL,
			APIKey:     cfg.Supabase.APIKey(),
			HTTPClient: httpClient,
			Verifier:   verifier,
			Metrics:    m,
		}), func() {}, nil
	}
}
