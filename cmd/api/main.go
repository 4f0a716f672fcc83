package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imovelhub_backend/internal/config"
	"imovelhub_backend/internal/conversations"
	"imovelhub_backend/internal/events"
	apphttp "imovelhub_backend/internal/http"
	"imovelhub_backend/internal/http/router"
	"imovelhub_backend/internal/realtime"
	"imovelhub_backend/internal/scheduler"
	"imovelhub_backend/internal/webhook"
	"imovelhub_backend/internal/whatsapp"
	"imovelhub_backend/platform/db"
	"imovelhub_backend/platform/logger"
	"imovelhub_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting api", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg.DatabaseURL, cfg.MigrationsDir)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules. The worker
	// runs in its own process, so its events arrive over the Redis bridge.
	eventBus := events.NewInMemoryBus(log)

	bridge, err := events.NewRedisBridge(cfg.RedisURL, eventBus, log)
	if err != nil {
		log.Error("failed to initialize event bridge", "error", err)
		panic("failed to initialize event bridge: " + err.Error())
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	turnQueue, err := scheduler.NewClient(cfg.RedisURL, cfg.AsynqQueue, cfg.TurnMaxRetry)
	if err != nil {
		log.Error("failed to initialize turn queue", "error", err)
		panic("failed to initialize turn queue: " + err.Error())
	}
	defer func() { _ = turnQueue.Close() }()

	whatsappClient := whatsapp.NewClient(whatsapp.Config{
		BaseURL:  cfg.WhatsAppURL,
		APIKey:   cfg.WhatsAppKey,
		DeviceID: cfg.WhatsAppDeviceID,
	}, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	conversationsModule := conversations.NewModule(pool, whatsappClient, eventBus, val, log)
	webhookModule := webhook.NewModule(turnQueue, conversationsModule.Repository, cfg.WebhookToken, log)
	realtimeModule := realtime.NewModule(eventBus, log)
	defer realtimeModule.Hub().Close()

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	engine := router.New(cfg, log, []apphttp.Module{
		webhookModule,
		conversationsModule,
		realtimeModule,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := bridge.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%s: %w", name, lastErr)
}
