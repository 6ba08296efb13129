package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/video-relay/youtube-reddit-relay/internal/db"
	"github.com/video-relay/youtube-reddit-relay/internal/db/models"
)

// SubmissionRepository is the dedup ledger: it records which
// (video, account, subreddit) triples have already produced a post.
type SubmissionRepository interface {
	// CreateIfAbsent conditionally inserts a submission. It returns false
	// without error when a row for the same (video_id, reddit_account_id,
	// subreddit_id) triple already exists; the insert itself is the
	// serialization point under concurrent redelivery.
	CreateIfAbsent(ctx context.Context, sub *models.Submission) (bool, error)

	// Exists reports whether the triple already has a submission.
	Exists(ctx context.Context, videoID string, accountID, subredditID int64) (bool, error)

	// LinkSubscription records which subscription produced a submission.
	LinkSubscription(ctx context.Context, subscriptionID, submissionID string) error

	// UpdateStickied updates the stickied flag, the only mutable column.
	UpdateStickied(ctx context.Context, submissionID string, stickied bool) error
}

type submissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) SubmissionRepository {
	return &submissionRepository{pool: pool}
}

func (r *submissionRepository) CreateIfAbsent(ctx context.Context, sub *models.Submission) (bool, error) {
	query := `
		INSERT INTO submissions (id, video_id, stickied, reddit_account_id, subreddit_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (video_id, reddit_account_id, subreddit_id) DO NOTHING
	`

	result, err := r.pool.Exec(ctx, query,
		sub.ID,
		sub.VideoID,
		sub.Stickied,
		sub.RedditAccountID,
		sub.SubredditID,
		sub.CreatedAt,
	)
	if err != nil {
		return false, db.WrapError(err, "create submission")
	}

	return result.RowsAffected() == 1, nil
}

func (r *submissionRepository) Exists(ctx context.Context, videoID string, accountID, subredditID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM submissions
			WHERE video_id = $1 AND reddit_account_id = $2 AND subreddit_id = $3
		)
	`

	var exists bool
	err := r.pool.QueryRow(ctx, query, videoID, accountID, subredditID).Scan(&exists)
	if err != nil {
		return false, db.WrapError(err, "check submission exists")
	}

	return exists, nil
}

func (r *submissionRepository) LinkSubscription(ctx context.Context, subscriptionID, submissionID string) error {
	query := `
		INSERT INTO subscription_submissions (subscription_id, submission_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, subscriptionID, submissionID)
	if err != nil {
		return db.WrapError(err, "link subscription submission")
	}

	return nil
}

func (r *submissionRepository) UpdateStickied(ctx context.Context, submissionID string, stickied bool) error {
	query := `
		UPDATE submissions
		SET stickied = $1
		WHERE id = $2
	`

	result, err := r.pool.Exec(ctx, query, stickied, submissionID)
	if err != nil {
		return db.WrapError(err, "update submission stickied")
	}

	if result.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "update submission stickied")
	}

	return nil
}
