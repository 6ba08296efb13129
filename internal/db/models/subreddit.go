package models

import (
	"strings"
	"time"
)

// Subreddit is pure posting configuration for one subreddit.
type Subreddit struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	TitlePrefix *string   `db:"title_prefix" json:"title_prefix,omitempty"`
	TitleSuffix *string   `db:"title_suffix" json:"title_suffix,omitempty"`
	FlairID     *string   `db:"flair_id" json:"flair_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ComposeTitle decorates a video title with the subreddit's prefix and
// suffix. Empty or absent decorations are dropped; the joined parts are
// separated by single spaces with no leading or trailing whitespace.
func (s *Subreddit) ComposeTitle(videoTitle string) string {
	parts := make([]string, 0, 3)
	if s.TitlePrefix != nil {
		if p := strings.TrimSpace(*s.TitlePrefix); p != "" {
			parts = append(parts, p)
		}
	}
	if t := strings.TrimSpace(videoTitle); t != "" {
		parts = append(parts, t)
	}
	if s.TitleSuffix != nil {
		if sfx := strings.TrimSpace(*s.TitleSuffix); sfx != "" {
			parts = append(parts, sfx)
		}
	}
	return strings.Join(parts, " ")
}
