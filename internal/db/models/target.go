package models

// PostTarget is one (Reddit account, subreddit) pair eligible to receive a
// post. Targets are immutable values; the dispatch engine treats every
// target uniformly regardless of per-subreddit decoration.
type PostTarget struct {
	Account   *RedditAccount
	Subreddit *Subreddit
}

// Key identifies the target for logging and outcome reporting.
type TargetKey struct {
	AccountID   int64
	SubredditID int64
}

// Key returns the identifying pair for the target.
func (t PostTarget) Key() TargetKey {
	return TargetKey{AccountID: t.Account.ID, SubredditID: t.Subreddit.ID}
}
