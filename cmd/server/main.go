package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storefront/backend/internal/cache"
	"storefront/backend/internal/cart"
	"storefront/backend/internal/config"
	"storefront/backend/internal/httpapi"
	"storefront/backend/internal/pricing"
	"storefront/backend/internal/reconcile"
	"storefront/backend/internal/sage"
	"storefront/backend/internal/store"
	"storefront/backend/internal/store/memory"
	pgstore "storefront/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(logger)
		logger.Info("repository: in-memory")
	}

	pricingCache := cache.PricingCache(cache.NoopPricingCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisPricingCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop pricing cache", zap.Error(err))
		} else {
			pricingCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("pricing cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Info("pricing cache: noop")
	}

	sageClient := sage.New(sage.Config{
		BaseURL: cfg.SageAPIURL,
		APIKey:  cfg.SageAPIKey,
		Timeout: time.Duration(cfg.SageAPITimeoutSeconds) * time.Second,
	}, logger.Named("sage"))
	if cfg.SageAPIURL == "" {
		logger.Warn("SAGE_API_URL is not set; cart refresh from Sage is disabled")
	}

	resolver := pricing.NewResolver(repo, pricingCache, time.Duration(cfg.PricingCacheTTLSeconds)*time.Second, logger.Named("pricing"))
	carts := cart.New(repo, resolver, logger.Named("cart"))
	engine := reconcile.NewEngine(repo, sageClient, logger.Named("reconcile"))
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(carts, engine, auth, cfg.AllowedOrigin, logger.Named("http"))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Sage refreshes can take up to the client timeout.
		WriteTimeout: time.Duration(cfg.SageAPITimeoutSeconds+10) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("storefront backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.LogLevel == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.Production() && cfg.AllowedOrigin == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name the storefront origin in production")
	}
	return nil
}
