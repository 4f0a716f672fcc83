package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"

	"imovelhub_backend/internal/conversations/domain"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues conversation turns.
type Client struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

// NewClient connects the enqueue side of the queue.
func NewClient(redisURL, queue string, maxRetry int) (*Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}
	if queue == "" {
		queue = "default"
	}
	if maxRetry < 0 {
		maxRetry = 3
	}
	return &Client{
		client:   asynq.NewClient(opt),
		queue:    queue,
		maxRetry: maxRetry,
	}, nil
}

// Close releases the redis connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueTurn queues one inbound message for processing.
func (c *Client) EnqueueTurn(ctx context.Context, in domain.InboundMessage) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("task queue not configured")
	}
	task, err := NewConversationTurnTask(in)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(c.maxRetry),
	)
	return err
}

func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		tlsConfig = opt.TLSConfig.Clone()
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
