package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/video-relay/youtube-reddit-relay/internal/db/models"
)

var (
	// ErrHubRejected is returned when the hub rejects a subscription request.
	ErrHubRejected = errors.New("hub rejected request")

	// ErrInvalidHubResponse is returned when the hub returns an unexpected response.
	ErrInvalidHubResponse = errors.New("invalid hub response")
)

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Hub defines the interface for interacting with a WebSub hub.
type Hub interface {
	Subscribe(ctx context.Context, sub *models.Subscription, leaseSeconds int) error
	Unsubscribe(ctx context.Context, sub *models.Subscription) error
}

// HubClient sends subscribe and unsubscribe requests to a WebSub hub on
// behalf of stored subscriptions. The hub confirms asynchronously via the
// callback handshake; an accepted request here only means the hub queued it.
type HubClient struct {
	client HTTPClient
	hubURL string
	logger *zap.Logger
}

// NewHubClient creates a hub client pointed at hubURL.
func NewHubClient(client HTTPClient, hubURL string, logger *zap.Logger) *HubClient {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HubClient{
		client: client,
		hubURL: hubURL,
		logger: logger,
	}
}

// Subscribe requests a new lease for the subscription's topic. The stored
// HMAC secret is sent as hub.secret so notifications on the renewed lease
// keep verifying against it.
func (h *HubClient) Subscribe(ctx context.Context, sub *models.Subscription, leaseSeconds int) error {
	if leaseSeconds <= 0 {
		return fmt.Errorf("lease seconds must be positive, got %d", leaseSeconds)
	}

	form := url.Values{}
	form.Set("hub.mode", ModeSubscribe)
	form.Set("hub.topic", sub.TopicURL)
	form.Set("hub.callback", sub.CallbackURL)
	form.Set("hub.lease_seconds", strconv.Itoa(leaseSeconds))
	form.Set("hub.secret", sub.HmacSecret)

	h.logger.Info("sending subscribe request to hub",
		zap.String("subscription_id", sub.ID),
		zap.String("topic_url", sub.TopicURL),
		zap.Int("lease_seconds", leaseSeconds),
	)

	return h.post(ctx, form)
}

// Unsubscribe asks the hub to drop the subscription's topic.
func (h *HubClient) Unsubscribe(ctx context.Context, sub *models.Subscription) error {
	form := url.Values{}
	form.Set("hub.mode", ModeUnsubscribe)
	form.Set("hub.topic", sub.TopicURL)
	form.Set("hub.callback", sub.CallbackURL)

	h.logger.Info("sending unsubscribe request to hub",
		zap.String("subscription_id", sub.ID),
		zap.String("topic_url", sub.TopicURL),
	)

	return h.post(ctx, form)
}

func (h *HubClient) post(ctx context.Context, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.hubURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusNoContent:
		// 202 means queued for async verification, 204 means verified inline.
		return nil
	case http.StatusBadRequest, http.StatusNotFound:
		h.logger.Warn("hub rejected request",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_body", string(body)),
		)
		return fmt.Errorf("%w: status %d: %s", ErrHubRejected, resp.StatusCode, string(body))
	default:
		h.logger.Error("unexpected response from hub",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_body", string(body)),
		)
		return fmt.Errorf("%w: status %d: %s", ErrInvalidHubResponse, resp.StatusCode, string(body))
	}
}
