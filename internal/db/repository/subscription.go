package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/video-relay/youtube-reddit-relay/internal/db"
	"github.com/video-relay/youtube-reddit-relay/internal/db/models"
)

// SubscriptionRepository defines operations for managing WebSub subscriptions.
type SubscriptionRepository interface {
	// Create creates a new subscription.
	Create(ctx context.Context, sub *models.Subscription) error

	// GetByID retrieves a subscription by ID.
	GetByID(ctx context.Context, id string) (*models.Subscription, error)

	// GetByChannelID retrieves all subscriptions for a channel.
	GetByChannelID(ctx context.Context, channelID string) ([]*models.Subscription, error)

	// UpdateExpiry writes a new lease expiry. Only the verification
	// handshake path calls this.
	UpdateExpiry(ctx context.Context, id string, expiresAt *time.Time) error

	// Delete removes a subscription (hub-confirmed unsubscribe).
	Delete(ctx context.Context, id string) error

	// GetExpiringWithin retrieves subscriptions whose lease expires within
	// the window, lapsed ones included, soonest first.
	GetExpiringWithin(ctx context.Context, window time.Duration, limit int) ([]*models.Subscription, error)
}

type subscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepository{pool: pool}
}

const subscriptionColumns = `id, channel_id, channel_name, hmac_secret, callback_url, topic_url,
       expires_at, post_shorts, created_at, updated_at`

func (r *subscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, channel_id, channel_name, hmac_secret, callback_url, topic_url,
			expires_at, post_shorts, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		sub.ID,
		sub.ChannelID,
		sub.ChannelName,
		sub.HmacSecret,
		sub.CallbackURL,
		sub.TopicURL,
		sub.ExpiresAt,
		sub.PostShorts,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		return db.WrapError(err, "create subscription")
	}

	return nil
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE id = $1
	`

	sub := &models.Subscription{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&sub.ID,
		&sub.ChannelID,
		&sub.ChannelName,
		&sub.HmacSecret,
		&sub.CallbackURL,
		&sub.TopicURL,
		&sub.ExpiresAt,
		&sub.PostShorts,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)

	if err != nil {
		return nil, db.WrapError(err, "get subscription by id")
	}

	return sub, nil
}

func (r *subscriptionRepository) GetByChannelID(ctx context.Context, channelID string) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE channel_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, channelID)
	if err != nil {
		return nil, db.WrapError(err, "get subscriptions by channel id")
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

func (r *subscriptionRepository) UpdateExpiry(ctx context.Context, id string, expiresAt *time.Time) error {
	query := `
		UPDATE subscriptions
		SET expires_at = $1,
		    updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.pool.Exec(ctx, query, expiresAt, id)
	if err != nil {
		return db.WrapError(err, "update subscription expiry")
	}

	if result.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "update subscription expiry")
	}

	return nil
}

func (r *subscriptionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM subscriptions WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return db.WrapError(err, "delete subscription")
	}

	if result.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "delete subscription")
	}

	return nil
}

func (r *subscriptionRepository) GetExpiringWithin(ctx context.Context, window time.Duration, limit int) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE expires_at IS NOT NULL
		  AND expires_at <= NOW() + $1
		ORDER BY expires_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, window, limit)
	if err != nil {
		return nil, db.WrapError(err, "get expiring subscriptions")
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

func scanSubscriptions(rows pgx.Rows) ([]*models.Subscription, error) {
	var subscriptions []*models.Subscription

	for rows.Next() {
		sub := &models.Subscription{}
		err := rows.Scan(
			&sub.ID,
			&sub.ChannelID,
			&sub.ChannelName,
			&sub.HmacSecret,
			&sub.CallbackURL,
			&sub.TopicURL,
			&sub.ExpiresAt,
			&sub.PostShorts,
			&sub.CreatedAt,
			&sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subscriptions = append(subscriptions, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}

	return subscriptions, nil
}
