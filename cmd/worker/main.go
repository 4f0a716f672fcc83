package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imovelhub_backend/internal/agent"
	"imovelhub_backend/internal/config"
	"imovelhub_backend/internal/conversations/repository"
	"imovelhub_backend/internal/conversations/service"
	"imovelhub_backend/internal/events"
	"imovelhub_backend/internal/notification"
	"imovelhub_backend/internal/scheduler"
	"imovelhub_backend/internal/transcription"
	"imovelhub_backend/internal/whatsapp"
	"imovelhub_backend/platform/ai/completion"
	"imovelhub_backend/platform/db"
	"imovelhub_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting turn worker", "env", cfg.Env, "queue", cfg.AsynqQueue)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := connectWithRetry(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)

	// Forward events to the api process so its SSE hub sees what this
	// worker produces.
	bridge, err := events.NewRedisBridge(cfg.RedisURL, eventBus, log)
	if err != nil {
		log.Error("failed to initialize event bridge", "error", err)
		panic("failed to initialize event bridge: " + err.Error())
	}
	bridge.ForwardLocal(events.BridgedEventNames()...)

	repo := repository.New(pool)

	whatsappClient := whatsapp.NewClient(whatsapp.Config{
		BaseURL:  cfg.WhatsAppURL,
		APIKey:   cfg.WhatsAppKey,
		DeviceID: cfg.WhatsAppDeviceID,
	}, log)

	responder := agent.New(completion.NewClient(completion.Config{
		APIKey:  cfg.CompletionAPIKey,
		BaseURL: cfg.CompletionBaseURL,
		Model:   cfg.CompletionModel,
	}))

	transcriber := transcription.NewClient(transcription.Config{
		BaseURL:  cfg.TranscriptionURL,
		APIKey:   cfg.TranscriptionKey,
		Language: cfg.TranscriptionLanguage,
	}, log)

	var mailer notification.Mailer
	if cfg.EmailEnabled {
		mailer = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}
	notification.New(repo, mailer, log).BindBus(eventBus)

	engine := service.NewEngine(repo, whatsappClient, responder, transcriber, eventBus, log)
	engine.BindBus(eventBus)

	worker, err := scheduler.NewWorker(scheduler.WorkerConfig{
		RedisURL:    cfg.RedisURL,
		Queue:       cfg.AsynqQueue,
		Concurrency: cfg.AsynqConcurrency,
	}, engine, eventBus, log)
	if err != nil {
		log.Error("failed to initialize turn worker", "error", err)
		panic("failed to initialize turn worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("turn worker stopped")
}

// connectWithRetry gives the database a short grace period on boot so the
// worker survives starting before Postgres in compose setups.
func connectWithRetry(ctx context.Context, databaseURL string, log *logger.Logger) (*pgxpool.Pool, error) {
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		pool, err := db.NewPool(ctx, databaseURL)
		if err == nil {
			return pool, nil
		}
		lastErr = err
		log.Warn("retryable operation failed", "operation", "database connection", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 2 * time.Second):
		}
	}
	return nil, lastErr
}
