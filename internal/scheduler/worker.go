package scheduler

import (
	"context"
	"errors"
	"fmt"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/internal/events"
	"imovelhub_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// TurnProcessor runs one conversation turn.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, in domain.InboundMessage) error
}

// Worker consumes the turn queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	engine TurnProcessor
	bus    events.Bus
	log    *logger.Logger
}

// WorkerConfig carries queue settings.
type WorkerConfig struct {
	RedisURL    string
	Queue       string
	Concurrency int
}

// NewWorker builds the queue consumer.
func NewWorker(cfg WorkerConfig, engine TurnProcessor, bus events.Bus, log *logger.Logger) (*Worker, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opt, err := redisClientOpt(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.Queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		engine: engine,
		bus:    bus,
		log:    log,
	}
	mux.HandleFunc(TaskConversationTurn, w.handleConversationTurn)
	return w, nil
}

// handleConversationTurn runs a queued turn. A returned error makes asynq
// retry with backoff; when retries run out the conversation is flagged for
// human follow-up instead of the message vanishing.
func (w *Worker) handleConversationTurn(ctx context.Context, task *asynq.Task) error {
	in, err := ParseConversationTurnPayload(task)
	if err != nil {
		w.log.Error("unparseable turn task dropped", "error", err)
		return nil
	}

	err = w.engine.ProcessTurn(ctx, in)
	if err == nil {
		return nil
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retried >= maxRetry {
		w.log.Error("turn abandoned after retries", "phone", in.Phone, "error", err)
		w.bus.Publish(ctx, events.TurnAbandoned{
			BaseEvent: events.NewBaseEvent(),
			Phone:     in.Phone,
			Reason:    err.Error(),
		})
		return errors.Join(err, asynq.SkipRetry)
	}
	return err
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}
	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()
	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("turn worker stopped", "error", err)
	}
}
