package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/video-relay/youtube-reddit-relay/internal/db"
	"github.com/video-relay/youtube-reddit-relay/internal/db/models"
)

// SubredditRepository defines read operations for subreddit configuration.
type SubredditRepository interface {
	// GetByID retrieves a subreddit by ID.
	GetByID(ctx context.Context, id int64) (*models.Subreddit, error)

	// GetForAccount retrieves all subreddits bound to a Reddit account.
	GetForAccount(ctx context.Context, accountID int64) ([]*models.Subreddit, error)
}

type subredditRepository struct {
	pool *pgxpool.Pool
}

// NewSubredditRepository creates a new SubredditRepository.
func NewSubredditRepository(pool *pgxpool.Pool) SubredditRepository {
	return &subredditRepository{pool: pool}
}

func (r *subredditRepository) GetByID(ctx context.Context, id int64) (*models.Subreddit, error) {
	query := `
		SELECT id, name, title_prefix, title_suffix, flair_id, created_at
		FROM subreddits
		WHERE id = $1
	`

	sub := &models.Subreddit{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&sub.ID,
		&sub.Name,
		&sub.TitlePrefix,
		&sub.TitleSuffix,
		&sub.FlairID,
		&sub.CreatedAt,
	)

	if err != nil {
		return nil, db.WrapError(err, "get subreddit by id")
	}

	return sub, nil
}

func (r *subredditRepository) GetForAccount(ctx context.Context, accountID int64) ([]*models.Subreddit, error) {
	query := `
		SELECT s.id, s.name, s.title_prefix, s.title_suffix, s.flair_id, s.created_at
		FROM subreddits s
		INNER JOIN reddit_account_subreddits ras ON ras.subreddit_id = s.id
		WHERE ras.reddit_account_id = $1
		ORDER BY s.id ASC
	`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, db.WrapError(err, "get subreddits for account")
	}
	defer rows.Close()

	var subreddits []*models.Subreddit
	for rows.Next() {
		sub := &models.Subreddit{}
		err := rows.Scan(
			&sub.ID,
			&sub.Name,
			&sub.TitlePrefix,
			&sub.TitleSuffix,
			&sub.FlairID,
			&sub.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan subreddit: %w", err)
		}
		subreddits = append(subreddits, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subreddits: %w", err)
	}

	return subreddits, nil
}
