package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/lexassist/internal"
	"github.com/DukeRupert/lexassist/internal/cache"
	"github.com/DukeRupert/lexassist/internal/handler"
	"github.com/DukeRupert/lexassist/internal/metrics"
	"github.com/DukeRupert/lexassist/internal/middleware"
	"github.com/DukeRupert/lexassist/internal/repository"
	"github.com/DukeRupert/lexassist/internal/service"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	store := repository.NewStore(db)

	// Resolution cache is optional
	var resolutionCache service.ResolutionCache = cache.Nop{}
	var cachePinger handler.Pinger
	if cfg.CacheEnabled() {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("cache initialization failed: %w", err)
		}
		defer client.Close()

		resolutions := cache.NewResolutions(client)
		resolutionCache = resolutions
		cachePinger = resolutions
		logger.Info("Resolution cache enabled", "ttl", cfg.ResolutionCacheTTL)
	} else {
		logger.Info("Resolution cache disabled")
	}

	// Initialize services
	services := service.New(store, service.Options{
		Cache:    resolutionCache,
		CacheTTL: cfg.ResolutionCacheTTL,
		Retry: service.RetryPolicy{
			Attempts:  cfg.StoreRetryAttempts,
			BaseDelay: cfg.StoreRetryBaseDelay,
		},
		Now: time.Now,
	}, logger)

	// Initialize middleware
	isSecure := cfg.Env != "development"
	identityMw := middleware.NewIdentityMiddleware(cfg.IdentityHeader, logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger, cfg.IdentityHeader)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, logger)

	requireIdentity := identityMw.RequireIdentity
	if cfg.RateLimitRequests > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
		defer limiter.Stop()
		rateLimitMw := middleware.NewRateLimitMiddleware(limiter, logger)
		requireIdentity = middleware.Stack(identityMw.RequireIdentity, rateLimitMw.Limit)
	}

	// Initialize handlers
	accessHandler := handler.NewAccessHandler(services.Gate, services.Resolver, logger)
	usageHandler := handler.NewUsageHandler(services.Usage, logger)
	tierHandler := handler.NewTierHandler(services.Catalog, services.Admin, logger)
	adminHandler := handler.NewAdminHandler(services.Admin, logger)
	healthHandler := handler.NewHealthHandler(store, cachePinger, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	healthHandler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	accessHandler.RegisterRoutes(mux, requireIdentity)
	usageHandler.RegisterRoutes(mux, requireIdentity)
	tierHandler.RegisterRoutes(mux, requireIdentity)
	adminHandler.RegisterRoutes(mux, requireIdentity)

	// Unmatched paths get a JSON 404
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handler.NotFoundResponse(w, r, logger)
	})

	root := middleware.Stack(
		loggingMw.Handler,
		securityMw.Handler,
		metrics.Middleware,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
