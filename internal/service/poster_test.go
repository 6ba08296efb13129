package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/video-relay/youtube-reddit-relay/internal/db/models"
	"github.com/video-relay/youtube-reddit-relay/internal/parser"
	"github.com/video-relay/youtube-reddit-relay/internal/service/reddit"
)

type fakeRedditAPI struct {
	mu           sync.Mutex
	refreshCalls int
	submitCalls  int
	approved     []string
	stickied     []string
	refreshErr   error
	submitErr    error
	stickyErr    error
	token        *reddit.Token
	fullname     string
	refreshGate  chan struct{} // when set, refresh blocks until closed
}

func (f *fakeRedditAPI) RefreshToken(_ context.Context, _, _, _ string) (*reddit.Token, error) {
	f.mu.Lock()
	f.refreshCalls++
	gate := f.refreshGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.token, nil
}

func (f *fakeRedditAPI) SubmitLink(_ context.Context, _ string, _ reddit.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.fullname, nil
}

func (f *fakeRedditAPI) Approve(_ context.Context, _, fullname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = append(f.approved, fullname)
	return nil
}

func (f *fakeRedditAPI) Sticky(_ context.Context, _, fullname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stickyErr != nil {
		return f.stickyErr
	}
	f.stickied = append(f.stickied, fullname)
	return nil
}

func freshAccount(id int64) *models.RedditAccount {
	return &models.RedditAccount{
		ID:             id,
		Username:       "poster_bot",
		ClientID:       "cid",
		ClientSecret:   "csecret",
		AccessToken:    "valid-token",
		RefreshToken:   "refresh-token",
		TokenExpiresAt: time.Now().Add(time.Hour),
	}
}

func expiredAccount(id int64) *models.RedditAccount {
	acct := freshAccount(id)
	acct.AccessToken = "stale-token"
	acct.TokenExpiresAt = time.Now().Add(-time.Minute)
	return acct
}

func testVideo() parser.Event {
	return parser.Event{
		Kind:     parser.EventVideoUpdated,
		VideoID:  "vid123",
		Title:    "New Upload",
		VideoURL: "https://www.youtube.com/watch?v=vid123",
	}
}

func posterFixture(acct *models.RedditAccount, api *fakeRedditAPI) (*Poster, *fakeAccountRepo, *fakeSubmissionRepo, models.PostTarget) {
	accounts := newFakeAccountRepo()
	accounts.add(acct)
	submissions := newFakeSubmissionRepo()
	target := models.PostTarget{
		Account:   acct,
		Subreddit: &models.Subreddit{ID: 7, Name: "videos"},
	}
	return NewPoster(accounts, submissions, api, zap.NewNop()), accounts, submissions, target
}

func TestPostWithValidToken(t *testing.T) {
	acct := freshAccount(1)
	api := &fakeRedditAPI{fullname: "t3_abc"}
	p, _, submissions, target := posterFixture(acct, api)
	sub := testSubscription(false)

	got, err := p.Post(context.Background(), sub, testVideo(), target)
	require.NoError(t, err)
	assert.Equal(t, "t3_abc", got.ID)
	assert.Equal(t, 0, api.refreshCalls, "fresh token must not trigger a refresh")
	assert.Equal(t, 1, submissions.count())
	assert.Equal(t, []string{sub.ID}, submissions.links["t3_abc"])
	assert.Empty(t, api.approved, "non-moderating account must not approve")
}

func TestPostRefreshesExpiredToken(t *testing.T) {
	acct := expiredAccount(1)
	api := &fakeRedditAPI{
		fullname: "t3_abc",
		token:    &reddit.Token{AccessToken: "new-token", ExpiresIn: 3600},
	}
	p, accounts, _, target := posterFixture(acct, api)

	_, err := p.Post(context.Background(), testSubscription(false), testVideo(), target)
	require.NoError(t, err)
	assert.Equal(t, 1, api.refreshCalls)

	stored, err := accounts.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "new-token", stored.AccessToken)
	assert.Equal(t, int64(1), stored.TokenVersion)
	assert.True(t, stored.TokenExpiresAt.After(time.Now()))
}

func TestPostTokenStillValidIsNotRefreshed(t *testing.T) {
	acct := freshAccount(1)
	acct.TokenExpiresAt = time.Now().Add(30 * time.Second)
	api := &fakeRedditAPI{fullname: "t3_abc"}
	p, _, submissions, target := posterFixture(acct, api)

	_, err := p.Post(context.Background(), testSubscription(false), testVideo(), target)
	require.NoError(t, err)
	assert.Equal(t, 0, api.refreshCalls, "token valid until its expiry must not be refreshed early")
	assert.Equal(t, 1, submissions.count())
}

func TestPostRefreshesExactlyAtExpiry(t *testing.T) {
	at := time.Now()
	acct := freshAccount(1)
	acct.TokenExpiresAt = at
	api := &fakeRedditAPI{
		fullname: "t3_abc",
		token:    &reddit.Token{AccessToken: "new-token", ExpiresIn: 3600},
	}
	p, _, _, target := posterFixture(acct, api)
	p.now = func() time.Time { return at }

	_, err := p.Post(context.Background(), testSubscription(false), testVideo(), target)
	require.NoError(t, err)
	assert.Equal(t, 1, api.refreshCalls)
}

func TestPostConcurrentRefreshCollapses(t *testing.T) {
	acct := expiredAccount(1)
	gate := make(chan struct{})
	api := &fakeRedditAPI{
		fullname:    "t3_abc",
		token:       &reddit.Token{AccessToken: "new-token", ExpiresIn: 3600},
		refreshGate: gate,
	}
	p, _, submissions, target := posterFixture(acct, api)
	sub := testSubscription(false)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	videos := []parser.Event{testVideo(), {Kind: parser.EventVideoUpdated, VideoID: "vid456", Title: "Other", VideoURL: "u"}}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Post(context.Background(), sub, videos[i], target)
		}(i)
	}

	// Let both goroutines reach ensureToken before the refresh resolves.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, api.refreshCalls, "concurrent posts must share one refresh")
	assert.Equal(t, 2, submissions.count())
}

// racingAccountRepo makes another process win the token write just before
// the poster persists its own refresh.
type racingAccountRepo struct {
	*fakeAccountRepo
	raced bool
}

func (r *racingAccountRepo) UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time, expectedVersion int64) error {
	if !r.raced {
		r.raced = true
		if err := r.fakeAccountRepo.UpdateToken(ctx, id, "theirs", refreshToken, time.Now().Add(time.Hour), expectedVersion); err != nil {
			return err
		}
	}
	return r.fakeAccountRepo.UpdateToken(ctx, id, accessToken, refreshToken, expiresAt, expectedVersion)
}

func TestPostLosingVersionRaceUsesStoredToken(t *testing.T) {
	acct := expiredAccount(1)
	inner := newFakeAccountRepo()
	inner.add(acct)
	accounts := &racingAccountRepo{fakeAccountRepo: inner}
	api := &fakeRedditAPI{
		fullname: "t3_abc",
		token:    &reddit.Token{AccessToken: "mine", ExpiresIn: 3600},
	}
	submissions := newFakeSubmissionRepo()
	p := NewPoster(accounts, submissions, api, zap.NewNop())
	target := models.PostTarget{Account: acct, Subreddit: &models.Subreddit{ID: 7, Name: "videos"}}

	_, err := p.Post(context.Background(), testSubscription(false), testVideo(), target)
	require.NoError(t, err)
	assert.Equal(t, 1, api.refreshCalls)
	assert.Equal(t, 1, submissions.count())

	final, err := accounts.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "theirs", final.AccessToken, "the concurrent writer's token wins")
	assert.Equal(t, int64(1), final.TokenVersion)
}

func TestPostAuthenticationFailureSurfaces(t *testing.T) {
	acct := expiredAccount(1)
	api := &fakeRedditAPI{refreshErr: reddit.ErrUnauthorized}
	p, _, submissions, target := posterFixture(acct, api)

	_, err := p.Post(context.Background(), testSubscription(false), testVideo(), target)
	assert.True(t, errors.Is(err, ErrAuthentication))
	assert.Equal(t, 0, submissions.count())
}

func TestPostTransientFailureSurfaces(t *testing.T) {
	acct := freshAccount(1)
	api := &fakeRedditAPI{submitErr: reddit.ErrTransient}
	p, _, submissions, target := posterFixture(acct, api)

	_, err := p.Post(context.Background(), testSubscription(false), testVideo(), target)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Equal(t, 0, submissions.count())
}

func TestPostDuplicateAfterSubmit(t *testing.T) {
	acct := freshAccount(1)
	api := &fakeRedditAPI{fullname: "t3_abc"}
	p, _, submissions, target := posterFixture(acct, api)

	existing := models.NewSubmission("t3_earlier", "vid123", 1, 7, false)
	inserted, err := submissions.CreateIfAbsent(context.Background(), existing)
	require.NoError(t, err)
	require.True(t, inserted)

	_, err = p.Post(context.Background(), testSubscription(false), testVideo(), target)
	assert.True(t, errors.Is(err, ErrDuplicateSubmission))
	assert.Equal(t, 1, submissions.count(), "ledger keeps the first row")
}

func TestPostModeratesOwnSubreddit(t *testing.T) {
	acct := freshAccount(1)
	acct.ModerateSubmissions = true
	api := &fakeRedditAPI{fullname: "t3_abc"}
	p, _, submissions, target := posterFixture(acct, api)
	target.Account = acct

	got, err := p.Post(context.Background(), testSubscription(false), testVideo(), target)
	require.NoError(t, err)
	assert.Equal(t, []string{"t3_abc"}, api.approved)
	assert.Equal(t, []string{"t3_abc"}, api.stickied)
	assert.True(t, got.Stickied)

	exists, err := submissions.Exists(context.Background(), "vid123", 1, 7)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPostStickyFailureIsBestEffort(t *testing.T) {
	acct := freshAccount(1)
	acct.ModerateSubmissions = true
	api := &fakeRedditAPI{fullname: "t3_abc", stickyErr: reddit.ErrTransient}
	p, _, _, target := posterFixture(acct, api)
	target.Account = acct

	got, err := p.Post(context.Background(), testSubscription(false), testVideo(), target)
	require.NoError(t, err, "moderation failures must not fail the post")
	assert.False(t, got.Stickied)
}
