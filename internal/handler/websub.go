// Package handler provides HTTP request handlers for the application.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/video-relay/youtube-reddit-relay/internal/db/models"
	"github.com/video-relay/youtube-reddit-relay/internal/metrics"
	"github.com/video-relay/youtube-reddit-relay/internal/parser"
	"github.com/video-relay/youtube-reddit-relay/internal/service"
	"github.com/video-relay/youtube-reddit-relay/pkg/logger"
)

// Verifier authenticates callback traffic. Implemented by service.Verifier.
type Verifier interface {
	VerifyNotification(ctx context.Context, subscriptionID string, body []byte, signatureHeader string) (*models.Subscription, error)
	ConfirmHandshake(ctx context.Context, subscriptionID, mode, topic, challenge string, leaseSeconds int) (string, error)
}

// Dispatcher fans one event out to the subscription's targets.
type Dispatcher interface {
	Dispatch(ctx context.Context, subscriptionID string, event parser.Event) ([]service.Outcome, error)
}

// Enqueuer hands events to the worker queue instead of dispatching inline.
type Enqueuer interface {
	EnqueueDispatch(ctx context.Context, subscriptionID string, event parser.Event) error
}

// WebSubHandler serves the per-subscription callback URL: hub verification
// handshakes on GET and content notifications on POST.
type WebSubHandler struct {
	verifier        Verifier
	dispatcher      Dispatcher
	queue           Enqueuer
	maxPayloadSize  int64
	dispatchTimeout time.Duration
}

// NewWebSubHandler creates a WebSubHandler that dispatches inline.
func NewWebSubHandler(verifier Verifier, dispatcher Dispatcher, maxPayloadSize int64, dispatchTimeout time.Duration) *WebSubHandler {
	return &WebSubHandler{
		verifier:        verifier,
		dispatcher:      dispatcher,
		maxPayloadSize:  maxPayloadSize,
		dispatchTimeout: dispatchTimeout,
	}
}

// SetQueueClient switches the handler to queued dispatch. Call before the
// server starts serving.
func (h *WebSubHandler) SetQueueClient(queue Enqueuer) {
	h.queue = queue
}

// HandleVerification answers the hub's GET handshake by echoing the
// challenge. The subscribe branch records the granted lease.
func (h *WebSubHandler) HandleVerification(c *gin.Context) {
	subscriptionID := c.Param("subscription_id")
	mode := c.Query("hub.mode")
	topic := c.Query("hub.topic")
	challenge := c.Query("hub.challenge")

	leaseSeconds := 0
	if raw := c.Query("hub.lease_seconds"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.String(http.StatusBadRequest, "invalid hub.lease_seconds")
			return
		}
		leaseSeconds = parsed
	}

	echoed, err := h.verifier.ConfirmHandshake(c.Request.Context(), subscriptionID, mode, topic, challenge, leaseSeconds)
	if err != nil {
		h.handleError(c, err)
		return
	}

	metrics.HandshakesConfirmed.WithLabelValues(mode).Inc()
	c.String(http.StatusOK, echoed)
}

// HandleNotification verifies and processes a content notification. The body
// is read in full before verification because the signature covers the raw
// bytes.
func (h *WebSubHandler) HandleNotification(c *gin.Context) {
	subscriptionID := c.Param("subscription_id")

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxPayloadSize))
	if err != nil {
		logger.Log.Warn("failed to read notification body",
			zap.String("subscription_id", subscriptionID),
			zap.Error(err),
		)
		metrics.NotificationsRejected.WithLabelValues("body").Inc()
		c.String(http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	sub, err := h.verifier.VerifyNotification(c.Request.Context(), subscriptionID, body, c.GetHeader("X-Hub-Signature"))
	if err != nil {
		metrics.NotificationsRejected.WithLabelValues(rejectionReason(err)).Inc()
		h.handleError(c, err)
		return
	}

	events, err := parser.Parse(body)
	if err != nil {
		logger.Log.Warn("dropping malformed notification",
			zap.String("subscription_id", sub.ID),
			zap.Error(err),
		)
		metrics.NotificationsRejected.WithLabelValues("malformed").Inc()
		c.String(http.StatusBadRequest, "malformed feed")
		return
	}

	metrics.NotificationsReceived.Inc()

	for _, event := range events {
		h.process(c.Request.Context(), sub.ID, event)
	}

	c.Status(http.StatusNoContent)
}

// process routes one event to the queue when configured, otherwise
// dispatches inline under the dispatch timeout.
func (h *WebSubHandler) process(ctx context.Context, subscriptionID string, event parser.Event) {
	if h.queue != nil {
		if err := h.queue.EnqueueDispatch(ctx, subscriptionID, event); err != nil {
			logger.Log.Error("failed to enqueue dispatch, falling back to inline",
				zap.String("subscription_id", subscriptionID),
				zap.String("video_id", event.VideoID),
				zap.Error(err),
			)
		} else {
			return
		}
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, h.dispatchTimeout)
	defer cancel()

	if _, err := h.dispatcher.Dispatch(dispatchCtx, subscriptionID, event); err != nil {
		logger.Log.Error("inline dispatch failed",
			zap.String("subscription_id", subscriptionID),
			zap.String("video_id", event.VideoID),
			zap.Error(err),
		)
	}
}

func (h *WebSubHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.String(http.StatusNotFound, "unknown subscription")
	case errors.Is(err, service.ErrAuthentication):
		c.String(http.StatusForbidden, "signature verification failed")
	case errors.Is(err, service.ErrMalformedRequest):
		c.String(http.StatusBadRequest, "malformed request")
	default:
		logger.Log.Error("callback handler error",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.String(http.StatusInternalServerError, "internal error")
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, service.ErrAuthentication):
		return "signature"
	case errors.Is(err, service.ErrNotFound):
		return "unknown_subscription"
	case errors.Is(err, service.ErrMalformedRequest):
		return "malformed"
	default:
		return "internal"
	}
}
