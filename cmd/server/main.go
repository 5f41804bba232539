/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the cooperative savings and lending server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment config, apply command-line overrides
  2. Build logger and lending policy
  3. Initialize SQLite store and quote cache
  4. Create service, API handler and router
  5. Start penalty scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  -port    HTTP server port (PORT, default: 8080)
  -db      SQLite database path (DATABASE_PATH, default: cooperative.db)
           Use ":memory:" for in-memory database
  -policy  Lending policy file, .json or .yaml (POLICY_FILE)
  -redis   Redis address for the quote cache (REDIS_ADDR)

ENVIRONMENT:
  APP_ENV, LOG_LEVEL, PENALTY_INTERVAL, QUOTE_CACHE_TTL, CORS_ORIGINS,
  RATE_LIMIT, RATE_LIMIT_WINDOW
  See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the penalty scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close cache and database connections

EXAMPLES:
  ./server -db="./data/coop.db" -policy=policy.yaml
  REDIS_ADDR=localhost:6379 ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Penalty scheduler
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farmlink/cooperative/api"
	"github.com/farmlink/cooperative/cache"
	"github.com/farmlink/cooperative/config"
	"github.com/farmlink/cooperative/cooperative"
	"github.com/farmlink/cooperative/factory"
	"github.com/farmlink/cooperative/lending"
	"github.com/farmlink/cooperative/observability"
	"github.com/farmlink/cooperative/store/sqlite"
)

func main() {
	cfg := config.Load()

	// Flags
	flag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database path")
	flag.StringVar(&cfg.PolicyFile, "policy", cfg.PolicyFile, "Lending policy file (.json or .yaml)")
	flag.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for the quote cache")
	flag.Parse()

	logger := observability.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	// Lending policy
	policy := lending.DefaultPolicy()
	if cfg.PolicyFile != "" {
		p, err := factory.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			logger.Error("failed to load policy", "path", cfg.PolicyFile, "error", err)
			os.Exit(1)
		}
		policy = p
		logger.Info("policy loaded", "path", cfg.PolicyFile)
	}
	engine, err := lending.NewEngine(policy, nil)
	if err != nil {
		logger.Error("invalid policy", "error", err)
		os.Exit(1)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Service
	svc := cooperative.NewService(store, engine, logger)
	svc.QuoteTTL = cfg.QuoteCacheTTL
	svc.Cache = newQuoteCache(cfg, logger)
	if closer, ok := svc.Cache.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// Router
	handler := api.NewHandler(svc, logger)
	if cfg.RateLimit > 0 {
		handler.Limiter = api.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
		defer handler.Limiter.Stop()
	}
	router := api.NewRouter(handler, cfg.CORSOrigins)

	// Penalty scheduler
	scheduler := api.NewPenaltyScheduler(svc, logger)
	scheduler.CheckInterval = cfg.PenaltyInterval
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "addr", cfg.Addr(), "env", cfg.Env, "database", cfg.DatabasePath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

// newQuoteCache connects to Redis when configured and falls back to an
// in-process cache when it is unreachable.
func newQuoteCache(cfg config.Config, logger *slog.Logger) cooperative.QuoteCache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rc, err := cache.NewRedis(ctx, cfg.RedisAddr, "coop:")
	if err != nil {
		logger.Warn("redis unavailable, using in-memory quote cache", "addr", cfg.RedisAddr, "error", err)
		return cache.NewMemory()
	}
	logger.Info("quote cache connected", "addr", cfg.RedisAddr)
	return rc
}
