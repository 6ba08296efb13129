package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/video-relay/youtube-reddit-relay/internal/db/models"
	"github.com/video-relay/youtube-reddit-relay/internal/db/repository"
	"github.com/video-relay/youtube-reddit-relay/internal/metrics"
)

// Renewer re-subscribes leases that are about to expire. It never writes
// expiry itself: the hub's verification handshake is the only place a new
// lease is recorded, so a renewal that silently fails simply comes back in
// the next batch until the lease lapses.
type Renewer struct {
	subscriptions repository.SubscriptionRepository
	hub           Hub
	logger        *zap.Logger
	window        time.Duration
	batchSize     int
	leaseSeconds  int
	now           func() time.Time
}

// NewRenewer creates a Renewer that renews subscriptions expiring within
// window, at most batchSize per run, requesting leaseSeconds leases.
func NewRenewer(
	subscriptions repository.SubscriptionRepository,
	hub Hub,
	window time.Duration,
	batchSize int,
	leaseSeconds int,
	logger *zap.Logger,
) *Renewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renewer{
		subscriptions: subscriptions,
		hub:           hub,
		logger:        logger,
		window:        window,
		batchSize:     batchSize,
		leaseSeconds:  leaseSeconds,
		now:           time.Now,
	}
}

// RenewExpiring runs one renewal pass. Per-subscription failures are logged
// and counted but never abort the batch.
func (r *Renewer) RenewExpiring(ctx context.Context) error {
	subs, err := r.subscriptions.GetExpiringWithin(ctx, r.window, r.batchSize)
	if err != nil {
		return fmt.Errorf("load expiring subscriptions: %w", err)
	}

	if len(subs) == 0 {
		r.logger.Debug("no subscriptions need renewal")
		return nil
	}

	r.logger.Info("found subscriptions to renew", zap.Int("count", len(subs)))

	succeeded, failed := 0, 0
	for _, sub := range subs {
		if err := r.renewOne(ctx, sub); err != nil {
			metrics.RenewalAttempts.WithLabelValues("failure").Inc()
			r.logger.Error("failed to renew subscription",
				zap.String("subscription_id", sub.ID),
				zap.String("channel_id", sub.ChannelID),
				zap.Error(err),
			)
			failed++
			continue
		}
		metrics.RenewalAttempts.WithLabelValues("success").Inc()
		succeeded++
	}

	r.logger.Info("renewal batch completed",
		zap.Int("total", len(subs)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)

	return nil
}

// renewOne sends a subscribe request for one subscription. The stored HMAC
// secret is reused so in-flight notifications keep verifying across the
// lease boundary.
func (r *Renewer) renewOne(ctx context.Context, sub *models.Subscription) error {
	if sub.IsLapsed(r.now()) {
		r.logger.Warn("subscription lease already lapsed, re-subscribing",
			zap.String("subscription_id", sub.ID),
			zap.String("channel_id", sub.ChannelID),
			zap.Timep("expired_at", sub.ExpiresAt),
		)
	}

	if err := r.hub.Subscribe(ctx, sub, r.leaseSeconds); err != nil {
		return fmt.Errorf("hub subscribe: %w", err)
	}

	r.logger.Info("renewal requested, awaiting hub verification",
		zap.String("subscription_id", sub.ID),
		zap.String("channel_id", sub.ChannelID),
		zap.Int("lease_seconds", r.leaseSeconds),
	)

	return nil
}

// Run executes renewal passes on a fixed interval until the context is
// cancelled. A pass runs immediately on startup so a restarted service
// catches leases that drifted close to expiry while it was down.
func (r *Renewer) Run(ctx context.Context, interval time.Duration) error {
	if err := r.RenewExpiring(ctx); err != nil {
		r.logger.Error("initial renewal pass failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.RenewExpiring(ctx); err != nil {
				r.logger.Error("scheduled renewal pass failed", zap.Error(err))
			}
		case <-ctx.Done():
			r.logger.Info("renewer stopping")
			return ctx.Err()
		}
	}
}
