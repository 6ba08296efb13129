package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/video-relay/youtube-reddit-relay/internal/service"
)

// DispatchHandler processes dispatch tasks by fanning events out through
// the dispatcher.
type DispatchHandler struct {
	dispatcher *service.Dispatcher
	logger     *zap.Logger
}

// NewDispatchHandler creates a dispatch task handler.
func NewDispatchHandler(dispatcher *service.Dispatcher, logger *zap.Logger) *DispatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DispatchHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ProcessTask implements asynq.Handler. Per-target failures stay inside the
// dispatcher's outcomes; only a dispatch-level error fails the task. A
// retried task re-runs against the dedup ledger, so redelivery is safe.
func (h *DispatchHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := UnmarshalDispatchPayload(task.Payload())
	if err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", asynq.SkipRetry)
	}

	outcomes, err := h.dispatcher.Dispatch(ctx, payload.SubscriptionID, payload.Event)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			// Subscription removed between enqueue and processing.
			h.logger.Warn("dropping dispatch task for missing subscription",
				zap.String("subscription_id", payload.SubscriptionID),
			)
			return fmt.Errorf("subscription missing: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	h.logger.Info("dispatch task processed",
		zap.String("subscription_id", payload.SubscriptionID),
		zap.String("video_id", payload.Event.VideoID),
		zap.Int("targets", len(outcomes)),
	)

	return nil
}

// Server wraps the asynq server that processes dispatch tasks.
type Server struct {
	asynqServer *asynq.Server
	mux         *asynq.ServeMux
	logger      *zap.Logger
}

// NewServer creates a task processing server.
func NewServer(redisURL string, concurrency int, handler *DispatchHandler, logger *zap.Logger) (*Server, error) {
	redisOpt, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 10,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
				logger.Error("task failed",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(TypeDispatch, handler)

	return &Server{
		asynqServer: srv,
		mux:         mux,
		logger:      logger,
	}, nil
}

// Start starts the server.
func (s *Server) Start() error {
	s.logger.Info("starting dispatch worker server")
	return s.asynqServer.Start(s.mux)
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.logger.Info("shutting down dispatch worker server")
	s.asynqServer.Shutdown()
}
