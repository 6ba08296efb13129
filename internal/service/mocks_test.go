package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/video-relay/youtube-reddit-relay/internal/db"
	"github.com/video-relay/youtube-reddit-relay/internal/db/models"
)

// In-memory fakes for the repository interfaces. They reproduce the
// contracts the pgx implementations provide, including the conditional
// insert serialization on submissions and the CAS token update.

type fakeSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[string]*models.Subscription
}

func newFakeSubscriptionRepo(subs ...*models.Subscription) *fakeSubscriptionRepo {
	r := &fakeSubscriptionRepo{subs: make(map[string]*models.Subscription)}
	for _, s := range subs {
		copied := *s
		r.subs[s.ID] = &copied
	}
	return r
}

func (r *fakeSubscriptionRepo) Create(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.ID]; ok {
		return db.ErrDuplicateKey
	}
	copied := *sub
	r.subs[sub.ID] = &copied
	return nil
}

func (r *fakeSubscriptionRepo) GetByID(_ context.Context, id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, db.WrapError(pgx.ErrNoRows, "get subscription by id")
	}
	copied := *sub
	return &copied, nil
}

func (r *fakeSubscriptionRepo) GetByChannelID(_ context.Context, channelID string) ([]*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range r.subs {
		if sub.ChannelID == channelID {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSubscriptionRepo) UpdateExpiry(_ context.Context, id string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return db.WrapError(pgx.ErrNoRows, "update subscription expiry")
	}
	sub.ExpiresAt = expiresAt
	sub.UpdatedAt = time.Now()
	return nil
}

func (r *fakeSubscriptionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return db.WrapError(pgx.ErrNoRows, "delete subscription")
	}
	delete(r.subs, id)
	return nil
}

func (r *fakeSubscriptionRepo) GetExpiringWithin(_ context.Context, window time.Duration, limit int) ([]*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(window)
	var out []*models.Subscription
	for _, sub := range r.subs {
		if sub.ExpiresAt != nil && sub.ExpiresAt.Before(cutoff) && len(out) < limit {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*models.RedditAccount
	bindings map[string][]int64 // subscription id -> account ids
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		accounts: make(map[int64]*models.RedditAccount),
		bindings: make(map[string][]int64),
	}
}

func (r *fakeAccountRepo) add(acct *models.RedditAccount, subscriptionIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *acct
	r.accounts[acct.ID] = &copied
	for _, subID := range subscriptionIDs {
		r.bindings[subID] = append(r.bindings[subID], acct.ID)
	}
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id int64) (*models.RedditAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok {
		return nil, db.WrapError(pgx.ErrNoRows, "get reddit account by id")
	}
	copied := *acct
	return &copied, nil
}

func (r *fakeAccountRepo) GetForSubscription(_ context.Context, subscriptionID string) ([]*models.RedditAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.RedditAccount
	for _, id := range r.bindings[subscriptionID] {
		copied := *r.accounts[id]
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeAccountRepo) UpdateToken(_ context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok {
		return db.WrapError(pgx.ErrNoRows, "update reddit account token")
	}
	if acct.TokenVersion != expectedVersion {
		return fmt.Errorf("update reddit account token: %w", db.ErrStaleVersion)
	}
	acct.AccessToken = accessToken
	acct.RefreshToken = refreshToken
	acct.TokenExpiresAt = expiresAt
	acct.TokenVersion++
	return nil
}

type fakeSubredditRepo struct {
	mu         sync.Mutex
	subreddits map[int64]*models.Subreddit
	bindings   map[int64][]int64 // account id -> subreddit ids
}

func newFakeSubredditRepo() *fakeSubredditRepo {
	return &fakeSubredditRepo{
		subreddits: make(map[int64]*models.Subreddit),
		bindings:   make(map[int64][]int64),
	}
}

func (r *fakeSubredditRepo) add(sub *models.Subreddit, accountIDs ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *sub
	r.subreddits[sub.ID] = &copied
	for _, acctID := range accountIDs {
		r.bindings[acctID] = append(r.bindings[acctID], sub.ID)
	}
}

func (r *fakeSubredditRepo) GetByID(_ context.Context, id int64) (*models.Subreddit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subreddits[id]
	if !ok {
		return nil, db.WrapError(pgx.ErrNoRows, "get subreddit by id")
	}
	copied := *sub
	return &copied, nil
}

func (r *fakeSubredditRepo) GetForAccount(_ context.Context, accountID int64) ([]*models.Subreddit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Subreddit
	for _, id := range r.bindings[accountID] {
		copied := *r.subreddits[id]
		out = append(out, &copied)
	}
	return out, nil
}

type submissionKey struct {
	videoID     string
	accountID   int64
	subredditID int64
}

type fakeSubmissionRepo struct {
	mu          sync.Mutex
	submissions map[submissionKey]*models.Submission
	links       map[string][]string // submission id -> subscription ids
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		submissions: make(map[submissionKey]*models.Submission),
		links:       make(map[string][]string),
	}
}

func (r *fakeSubmissionRepo) CreateIfAbsent(_ context.Context, sub *models.Submission) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := submissionKey{sub.VideoID, sub.RedditAccountID, sub.SubredditID}
	if _, ok := r.submissions[key]; ok {
		return false, nil
	}
	copied := *sub
	r.submissions[key] = &copied
	return true, nil
}

func (r *fakeSubmissionRepo) Exists(_ context.Context, videoID string, accountID, subredditID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.submissions[submissionKey{videoID, accountID, subredditID}]
	return ok, nil
}

func (r *fakeSubmissionRepo) LinkSubscription(_ context.Context, subscriptionID, submissionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[submissionID] = append(r.links[submissionID], subscriptionID)
	return nil
}

func (r *fakeSubmissionRepo) UpdateStickied(_ context.Context, submissionID string, stickied bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.submissions {
		if sub.ID == submissionID {
			sub.Stickied = stickied
			return nil
		}
	}
	return db.WrapError(pgx.ErrNoRows, "update submission stickied")
}

func (r *fakeSubmissionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submissions)
}
