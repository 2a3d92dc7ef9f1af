package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anagpal/clubhouse-zulip-bridge/internal/api"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/config"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/engine"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/store"
	ws "github.com/anagpal/clubhouse-zulip-bridge/internal/websocket"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/worker"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/zulip"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	// Dispatch engine
	queue := engine.NewQueue(redisStore.Client(), logger)
	circuitBreaker := engine.NewCircuitBreaker(redisStore.Client(), logger)
	rateLimiter := engine.NewRateLimiter(redisStore.Client(), logger)

	// WebSocket hub for the live dispatch feed
	hub := ws.NewHub(logger)
	go hub.Run()

	// Zulip client and dispatch workers
	zulipClient := zulip.NewClient(cfg.ZulipSite, cfg.ZulipBotEmail, cfg.ZulipAPIKey, logger)
	dispatcher := worker.NewDispatcher(zulipClient, pgStore, circuitBreaker, rateLimiter, hub, logger,
		cfg.DispatchMaxAttempts, time.Duration(cfg.DispatchTimeoutSeconds)*time.Second)
	pool := worker.NewPool(cfg.NumWorkers, dispatcher, logger)
	poller := worker.NewPoller(redisStore.Client(), pool, logger)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	pool.Start(workerCtx)
	go poller.Start(workerCtx)

	// Setup router
	router := api.NewRouter(pgStore, queue, circuitBreaker, hub, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Stop accepting new jobs, then drain the in-flight ones
	stopWorkers()
	pool.Stop()

	logger.Info("server stopped")
}
