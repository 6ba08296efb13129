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

// RedditAccountRepository defines operations for Reddit account credentials.
type RedditAccountRepository interface {
	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id int64) (*models.RedditAccount, error)

	// GetForSubscription retrieves all accounts bound to a subscription.
	GetForSubscription(ctx context.Context, subscriptionID string) ([]*models.RedditAccount, error)

	// UpdateToken persists a refreshed token with compare-and-swap on the
	// token version. Returns db.ErrStaleVersion when a concurrent refresh
	// already advanced the version; callers should reload the account.
	UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time, expectedVersion int64) error
}

type redditAccountRepository struct {
	pool *pgxpool.Pool
}

// NewRedditAccountRepository creates a new RedditAccountRepository.
func NewRedditAccountRepository(pool *pgxpool.Pool) RedditAccountRepository {
	return &redditAccountRepository{pool: pool}
}

const accountColumns = `id, username, client_id, client_secret, moderate_submissions,
       access_token, refresh_token, token_expires_at, token_version, created_at, updated_at`

func (r *redditAccountRepository) GetByID(ctx context.Context, id int64) (*models.RedditAccount, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM reddit_accounts
		WHERE id = $1
	`

	acct := &models.RedditAccount{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&acct.ID,
		&acct.Username,
		&acct.ClientID,
		&acct.ClientSecret,
		&acct.ModerateSubmissions,
		&acct.AccessToken,
		&acct.RefreshToken,
		&acct.TokenExpiresAt,
		&acct.TokenVersion,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)

	if err != nil {
		return nil, db.WrapError(err, "get reddit account by id")
	}

	return acct, nil
}

func (r *redditAccountRepository) GetForSubscription(ctx context.Context, subscriptionID string) ([]*models.RedditAccount, error) {
	query := `
		SELECT ra.id, ra.username, ra.client_id, ra.client_secret, ra.moderate_submissions,
		       ra.access_token, ra.refresh_token, ra.token_expires_at, ra.token_version,
		       ra.created_at, ra.updated_at
		FROM reddit_accounts ra
		INNER JOIN subscription_reddit_accounts sra ON sra.reddit_account_id = ra.id
		WHERE sra.subscription_id = $1
		ORDER BY ra.id ASC
	`

	rows, err := r.pool.Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, db.WrapError(err, "get reddit accounts for subscription")
	}
	defer rows.Close()

	return scanRedditAccounts(rows)
}

func (r *redditAccountRepository) UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time, expectedVersion int64) error {
	query := `
		UPDATE reddit_accounts
		SET access_token = $1,
		    refresh_token = $2,
		    token_expires_at = $3,
		    token_version = token_version + 1,
		    updated_at = NOW()
		WHERE id = $4 AND token_version = $5
	`

	result, err := r.pool.Exec(ctx, query, accessToken, refreshToken, expiresAt, id, expectedVersion)
	if err != nil {
		return db.WrapError(err, "update reddit account token")
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("update reddit account token: %w", db.ErrStaleVersion)
	}

	return nil
}

func scanRedditAccounts(rows pgx.Rows) ([]*models.RedditAccount, error) {
	var accounts []*models.RedditAccount

	for rows.Next() {
		acct := &models.RedditAccount{}
		err := rows.Scan(
			&acct.ID,
			&acct.Username,
			&acct.ClientID,
			&acct.ClientSecret,
			&acct.ModerateSubmissions,
			&acct.AccessToken,
			&acct.RefreshToken,
			&acct.TokenExpiresAt,
			&acct.TokenVersion,
			&acct.CreatedAt,
			&acct.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan reddit account: %w", err)
		}
		accounts = append(accounts, acct)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reddit accounts: %w", err)
	}

	return accounts, nil
}
