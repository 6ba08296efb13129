package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/video-relay/youtube-reddit-relay/internal/parser"
)

// Client enqueues dispatch tasks.
type Client struct {
	asynqClient *asynq.Client
	logger      *zap.Logger
}

// NewClient creates a queue client for the given Redis URL.
func NewClient(redisURL string, logger *zap.Logger) (*Client, error) {
	redisOpt, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		asynqClient: asynq.NewClient(redisOpt),
		logger:      logger,
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.asynqClient.Close()
}

// EnqueueDispatch queues one feed event for the dispatch workers. The
// dedup ledger makes redelivery safe, so retries are generous.
func (c *Client) EnqueueDispatch(ctx context.Context, subscriptionID string, event parser.Event) error {
	payload, err := NewDispatchPayload(subscriptionID, event)
	if err != nil {
		return fmt.Errorf("failed to create task payload: %w", err)
	}

	payloadBytes, err := payload.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	task := asynq.NewTask(TypeDispatch, payloadBytes)

	info, err := c.asynqClient.EnqueueContext(ctx, task,
		asynq.MaxRetry(5),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("default"),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("enqueued dispatch task",
		zap.String("task_id", info.ID),
		zap.String("subscription_id", subscriptionID),
		zap.String("video_id", event.VideoID),
	)

	return nil
}
