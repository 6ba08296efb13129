package models

import "time"

// Submission records a Reddit post created for a video. Rows are immutable
// after creation except for the stickied flag; the unique index on
// (video_id, reddit_account_id, subreddit_id) is the dedup serialization point.
type Submission struct {
	ID              string    `db:"id" json:"id"` // Reddit fullname, e.g. t3_abc123
	VideoID         string    `db:"video_id" json:"video_id"`
	Stickied        bool      `db:"stickied" json:"stickied"`
	RedditAccountID int64     `db:"reddit_account_id" json:"reddit_account_id"`
	SubredditID     int64     `db:"subreddit_id" json:"subreddit_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// NewSubmission creates a Submission for a freshly posted video.
func NewSubmission(id, videoID string, accountID, subredditID int64, stickied bool) *Submission {
	return &Submission{
		ID:              id,
		VideoID:         videoID,
		Stickied:        stickied,
		RedditAccountID: accountID,
		SubredditID:     subredditID,
		CreatedAt:       time.Now(),
	}
}
