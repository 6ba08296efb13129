package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/video-relay/youtube-reddit-relay/internal/db"
	"github.com/video-relay/youtube-reddit-relay/internal/db/models"
	"github.com/video-relay/youtube-reddit-relay/internal/db/repository"
	"github.com/video-relay/youtube-reddit-relay/internal/parser"
	"github.com/video-relay/youtube-reddit-relay/internal/service/reddit"
)

// RedditAPI is the slice of the Reddit client the poster needs.
type RedditAPI interface {
	RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*reddit.Token, error)
	SubmitLink(ctx context.Context, accessToken string, req reddit.SubmitRequest) (string, error)
	Approve(ctx context.Context, accessToken, fullname string) error
	Sticky(ctx context.Context, accessToken, fullname string) error
}

// Poster submits one video to one account/subreddit target. It owns token
// freshness: concurrent posts through the same account share a single
// refresh, and the refreshed token is persisted with a version check so
// parallel workers never clobber each other's writes.
type Poster struct {
	accounts    repository.RedditAccountRepository
	submissions repository.SubmissionRepository
	reddit      RedditAPI
	logger      *zap.Logger
	refreshes   singleflight.Group
	now         func() time.Time
}

// NewPoster creates a Poster.
func NewPoster(
	accounts repository.RedditAccountRepository,
	submissions repository.SubmissionRepository,
	redditClient RedditAPI,
	logger *zap.Logger,
) *Poster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poster{
		accounts:    accounts,
		submissions: submissions,
		reddit:      redditClient,
		logger:      logger,
		now:         time.Now,
	}
}

// Post submits the video to the target and records the submission. The
// subscription is only used to attribute the resulting row; all posting
// state lives on the target's account.
//
// A conditional-insert conflict after a successful submit is reported as
// ErrDuplicateSubmission so the caller can count it as a skip.
func (p *Poster) Post(ctx context.Context, sub *models.Subscription, video parser.Event, target models.PostTarget) (*models.Submission, error) {
	token, account, err := p.ensureToken(ctx, target.Account)
	if err != nil {
		return nil, err
	}

	title := target.Subreddit.ComposeTitle(video.Title)
	fullname, err := p.reddit.SubmitLink(ctx, token, reddit.SubmitRequest{
		Subreddit: target.Subreddit.Name,
		Title:     title,
		URL:       video.VideoURL,
		FlairID:   flairID(target.Subreddit),
	})
	if err != nil {
		return nil, mapRedditError(err, "submit link")
	}

	submission := models.NewSubmission(fullname, video.VideoID, account.ID, target.Subreddit.ID, false)
	inserted, err := p.submissions.CreateIfAbsent(ctx, submission)
	if err != nil {
		return nil, fmt.Errorf("record submission: %w", err)
	}
	if !inserted {
		// Another worker won the insert race after we already posted. The
		// duplicate post stays on Reddit; the ledger keeps the winner.
		p.logger.Warn("submission already recorded by concurrent worker",
			zap.String("video_id", video.VideoID),
			zap.Int64("reddit_account_id", account.ID),
			zap.Int64("subreddit_id", target.Subreddit.ID),
			zap.String("fullname", fullname),
		)
		return nil, fmt.Errorf("video %s for account %d in subreddit %d: %w",
			video.VideoID, account.ID, target.Subreddit.ID, ErrDuplicateSubmission)
	}

	if err := p.submissions.LinkSubscription(ctx, sub.ID, fullname); err != nil {
		p.logger.Warn("failed to link submission to subscription",
			zap.String("subscription_id", sub.ID),
			zap.String("fullname", fullname),
			zap.Error(err),
		)
	}

	if account.ModerateSubmissions {
		p.moderate(ctx, token, submission)
	}

	p.logger.Info("submission created",
		zap.String("video_id", video.VideoID),
		zap.String("fullname", fullname),
		zap.String("username", account.Username),
		zap.String("subreddit", target.Subreddit.Name),
	)

	return submission, nil
}

// moderate approves and stickies the fresh submission. Both calls are best
// effort; the submission already exists either way.
func (p *Poster) moderate(ctx context.Context, token string, submission *models.Submission) {
	if err := p.reddit.Approve(ctx, token, submission.ID); err != nil {
		p.logger.Warn("failed to approve submission",
			zap.String("fullname", submission.ID),
			zap.Error(err),
		)
	}

	if err := p.reddit.Sticky(ctx, token, submission.ID); err != nil {
		p.logger.Warn("failed to sticky submission",
			zap.String("fullname", submission.ID),
			zap.Error(err),
		)
		return
	}

	submission.Stickied = true
	if err := p.submissions.UpdateStickied(ctx, submission.ID, true); err != nil {
		p.logger.Warn("failed to record sticky state",
			zap.String("fullname", submission.ID),
			zap.Error(err),
		)
	}
}

// ensureToken returns a usable access token for the account, refreshing it
// if expired. Concurrent callers for the same account id collapse into a
// single refresh request.
func (p *Poster) ensureToken(ctx context.Context, account *models.RedditAccount) (string, *models.RedditAccount, error) {
	if !account.TokenExpired(p.now()) {
		return account.AccessToken, account, nil
	}

	v, err, _ := p.refreshes.Do(strconv.FormatInt(account.ID, 10), func() (interface{}, error) {
		return p.refreshAccount(ctx, account.ID)
	})
	if err != nil {
		return "", nil, err
	}

	refreshed := v.(*models.RedditAccount)
	return refreshed.AccessToken, refreshed, nil
}

// refreshAccount reloads the account, refreshes its token if still needed
// and persists the result with a version check. Losing the version race
// means another process refreshed concurrently, so the reloaded row wins.
func (p *Poster) refreshAccount(ctx context.Context, accountID int64) (*models.RedditAccount, error) {
	account, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("reddit account %d: %w", accountID, ErrNotFound)
		}
		return nil, fmt.Errorf("load reddit account: %w", err)
	}

	if !account.TokenExpired(p.now()) {
		return account, nil
	}

	token, err := p.reddit.RefreshToken(ctx, account.ClientID, account.ClientSecret, account.RefreshToken)
	if err != nil {
		return nil, mapRedditError(err, "refresh token")
	}

	refreshToken := account.RefreshToken
	if token.RefreshToken != "" {
		refreshToken = token.RefreshToken
	}
	expiresAt := p.now().Add(time.Duration(token.ExpiresIn) * time.Second)

	err = p.accounts.UpdateToken(ctx, account.ID, token.AccessToken, refreshToken, expiresAt, account.TokenVersion)
	if err != nil {
		if db.IsStaleVersion(err) {
			p.logger.Info("token refreshed concurrently, using stored token",
				zap.Int64("reddit_account_id", account.ID),
			)
			return p.accounts.GetByID(ctx, account.ID)
		}
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}

	account.AccessToken = token.AccessToken
	account.RefreshToken = refreshToken
	account.TokenExpiresAt = expiresAt
	account.TokenVersion++

	p.logger.Info("access token refreshed",
		zap.Int64("reddit_account_id", account.ID),
		zap.String("username", account.Username),
		zap.Time("token_expires_at", expiresAt),
	)

	return account, nil
}

func flairID(sub *models.Subreddit) string {
	if sub.FlairID == nil {
		return ""
	}
	return *sub.FlairID
}

// mapRedditError translates client sentinels into service error kinds.
func mapRedditError(err error, op string) error {
	switch {
	case errors.Is(err, reddit.ErrUnauthorized):
		return fmt.Errorf("%s: %v: %w", op, err, ErrAuthentication)
	case errors.Is(err, reddit.ErrTransient):
		return fmt.Errorf("%s: %v: %w", op, err, ErrTransient)
	case errors.Is(err, reddit.ErrRejected):
		return fmt.Errorf("%s: %v: %w", op, err, ErrPosting)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
