package models

import "time"

// RedditAccount holds the OAuth credentials used to submit posts.
// The access token is shared mutable state: it is refreshed under a
// per-account single-flight and persisted with a compare-and-swap on
// TokenVersion so a losing refresher never clobbers the winner's token.
type RedditAccount struct {
	ID                  int64     `db:"id" json:"id"`
	Username            string    `db:"username" json:"username"`
	ClientID            string    `db:"client_id" json:"-"`
	ClientSecret        string    `db:"client_secret" json:"-"`
	ModerateSubmissions bool      `db:"moderate_submissions" json:"moderate_submissions"`
	AccessToken         string    `db:"access_token" json:"-"`
	RefreshToken        string    `db:"refresh_token" json:"-"`
	TokenExpiresAt      time.Time `db:"token_expires_at" json:"token_expires_at"`
	TokenVersion        int64     `db:"token_version" json:"-"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// TokenExpired reports whether the access token must be refreshed before use.
func (a *RedditAccount) TokenExpired(now time.Time) bool {
	return !now.Before(a.TokenExpiresAt)
}
