package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/video-relay/youtube-reddit-relay/internal/db"
	"github.com/video-relay/youtube-reddit-relay/internal/db/models"
	"github.com/video-relay/youtube-reddit-relay/internal/db/repository"
)

// Hub verification modes.
const (
	ModeSubscribe   = "subscribe"
	ModeUnsubscribe = "unsubscribe"
)

// Verifier authenticates inbound WebSub traffic against stored subscriptions.
type Verifier struct {
	subscriptions repository.SubscriptionRepository
	logger        *zap.Logger
	now           func() time.Time
}

// NewVerifier creates a Verifier backed by the subscription store.
func NewVerifier(subscriptions repository.SubscriptionRepository, logger *zap.Logger) *Verifier {
	return &Verifier{
		subscriptions: subscriptions,
		logger:        logger,
		now:           time.Now,
	}
}

// VerifyNotification checks the X-Hub-Signature of a content notification
// against the subscription's HMAC secret and returns the subscription on
// success. Read-only: no state is touched.
func (v *Verifier) VerifyNotification(ctx context.Context, subscriptionID string, body []byte, signatureHeader string) (*models.Subscription, error) {
	sub, err := v.subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("subscription %s: %w", subscriptionID, ErrNotFound)
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	if signatureHeader == "" {
		return nil, fmt.Errorf("missing X-Hub-Signature header: %w", ErrMalformedRequest)
	}

	// Format is "sha1={hex-encoded-signature}".
	provided, ok := strings.CutPrefix(signatureHeader, "sha1=")
	if !ok {
		return nil, fmt.Errorf("signature must start with 'sha1=': %w", ErrMalformedRequest)
	}

	mac := hmac.New(sha1.New, []byte(sub.HmacSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(provided)) {
		return nil, fmt.Errorf("signature mismatch for subscription %s: %w", subscriptionID, ErrAuthentication)
	}

	return sub, nil
}

// ConfirmHandshake handles the hub's verification request. On subscribe it
// records the granted lease as the new expiry; on unsubscribe it removes the
// subscription. The returned string must be echoed back verbatim as the
// response body.
func (v *Verifier) ConfirmHandshake(ctx context.Context, subscriptionID, mode, topic, challenge string, leaseSeconds int) (string, error) {
	if challenge == "" {
		return "", fmt.Errorf("missing hub.challenge: %w", ErrMalformedRequest)
	}

	sub, err := v.subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		if db.IsNotFound(err) {
			return "", fmt.Errorf("subscription %s: %w", subscriptionID, ErrNotFound)
		}
		return "", fmt.Errorf("load subscription: %w", err)
	}

	if topic != "" && topic != sub.TopicURL {
		return "", fmt.Errorf("topic %q does not match subscription %s: %w", topic, subscriptionID, ErrNotFound)
	}

	switch mode {
	case ModeSubscribe:
		if leaseSeconds > 0 {
			expires := v.now().Add(time.Duration(leaseSeconds) * time.Second)
			if err := v.subscriptions.UpdateExpiry(ctx, sub.ID, &expires); err != nil {
				return "", fmt.Errorf("record lease: %w", err)
			}
			v.logger.Info("subscription lease confirmed",
				zap.String("subscription_id", sub.ID),
				zap.String("channel_id", sub.ChannelID),
				zap.Int("lease_seconds", leaseSeconds),
				zap.Time("expires_at", expires),
			)
		}
	case ModeUnsubscribe:
		// Lease seconds MUST be ignored for unsubscribe confirmations.
		if err := v.subscriptions.Delete(ctx, sub.ID); err != nil && !db.IsNotFound(err) {
			return "", fmt.Errorf("remove subscription: %w", err)
		}
		v.logger.Info("subscription removed after unsubscribe confirmation",
			zap.String("subscription_id", sub.ID),
			zap.String("channel_id", sub.ChannelID),
		)
	default:
		return "", fmt.Errorf("unsupported hub.mode %q: %w", mode, ErrMalformedRequest)
	}

	return challenge, nil
}
