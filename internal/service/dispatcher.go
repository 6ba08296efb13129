package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/video-relay/youtube-reddit-relay/internal/db"
	"github.com/video-relay/youtube-reddit-relay/internal/db/models"
	"github.com/video-relay/youtube-reddit-relay/internal/db/repository"
	"github.com/video-relay/youtube-reddit-relay/internal/metrics"
	"github.com/video-relay/youtube-reddit-relay/internal/parser"
)

// OutcomeStatus classifies what happened to one target during dispatch.
type OutcomeStatus string

const (
	StatusPosted           OutcomeStatus = "posted"
	StatusSkippedDuplicate OutcomeStatus = "skipped-duplicate"
	StatusSkippedShort     OutcomeStatus = "skipped-short"
	StatusFailed           OutcomeStatus = "failed"
)

// Outcome records the result for a single account/subreddit target.
type Outcome struct {
	Target       models.TargetKey
	Status       OutcomeStatus
	SubmissionID string
	Err          error
}

// EventPublisher broadcasts successful submissions to interested consumers.
// Optional; a nil publisher disables broadcasting.
type EventPublisher interface {
	PublishSubmissionCreated(ctx context.Context, submission *models.Submission, video parser.Event) error
}

// Dispatcher fans one verified video event out to every target bound to the
// subscription. Targets are isolated: one target failing never blocks the
// rest, and duplicates are skipped rather than reported as errors.
type Dispatcher struct {
	subscriptions repository.SubscriptionRepository
	accounts      repository.RedditAccountRepository
	subreddits    repository.SubredditRepository
	submissions   repository.SubmissionRepository
	poster        *Poster
	publisher     EventPublisher
	logger        *zap.Logger
}

// NewDispatcher creates a Dispatcher. publisher may be nil.
func NewDispatcher(
	subscriptions repository.SubscriptionRepository,
	accounts repository.RedditAccountRepository,
	subreddits repository.SubredditRepository,
	submissions repository.SubmissionRepository,
	poster *Poster,
	publisher EventPublisher,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		subscriptions: subscriptions,
		accounts:      accounts,
		subreddits:    subreddits,
		submissions:   submissions,
		poster:        poster,
		publisher:     publisher,
		logger:        logger,
	}
}

// Dispatch processes one feed event for the given subscription. Deleted and
// unrecognized events are logged and dropped. For video updates it resolves
// the subscription's targets and posts to each, returning one outcome per
// target.
func (d *Dispatcher) Dispatch(ctx context.Context, subscriptionID string, event parser.Event) ([]Outcome, error) {
	switch event.Kind {
	case parser.EventVideoUpdated:
	case parser.EventVideoDeleted:
		d.logger.Info("video deleted upstream, nothing to dispatch",
			zap.String("subscription_id", subscriptionID),
			zap.String("video_id", event.VideoID),
		)
		return nil, nil
	default:
		d.logger.Warn("dropping unrecognized feed event",
			zap.String("subscription_id", subscriptionID),
		)
		return nil, nil
	}

	sub, err := d.subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("subscription %s: %w", subscriptionID, ErrNotFound)
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	targets, err := d.resolveTargets(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		d.logger.Warn("subscription has no targets",
			zap.String("subscription_id", sub.ID),
			zap.String("channel_id", sub.ChannelID),
		)
		return nil, nil
	}

	skipShort := event.IsShort && !sub.PostShorts

	outcomes := make([]Outcome, 0, len(targets))
	for _, target := range targets {
		outcome := d.dispatchOne(ctx, sub, event, target, skipShort)
		outcomes = append(outcomes, outcome)
		d.record(sub, event, target, outcome)
	}

	return outcomes, nil
}

// resolveTargets expands the subscription into its account/subreddit pairs.
func (d *Dispatcher) resolveTargets(ctx context.Context, subscriptionID string) ([]models.PostTarget, error) {
	accounts, err := d.accounts.GetForSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load accounts for subscription: %w", err)
	}

	var targets []models.PostTarget
	for _, account := range accounts {
		subreddits, err := d.subreddits.GetForAccount(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("load subreddits for account %d: %w", account.ID, err)
		}
		for _, subreddit := range subreddits {
			targets = append(targets, models.PostTarget{Account: account, Subreddit: subreddit})
		}
	}
	return targets, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sub *models.Subscription, event parser.Event, target models.PostTarget, skipShort bool) Outcome {
	outcome := Outcome{Target: target.Key()}

	if skipShort {
		outcome.Status = StatusSkippedShort
		return outcome
	}

	// Fast path before touching the Reddit API. The conditional insert in
	// the poster is still the authoritative check.
	exists, err := d.submissions.Exists(ctx, event.VideoID, target.Account.ID, target.Subreddit.ID)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = fmt.Errorf("check existing submission: %w", err)
		return outcome
	}
	if exists {
		outcome.Status = StatusSkippedDuplicate
		return outcome
	}

	submission, err := d.poster.Post(ctx, sub, event, target)
	switch {
	case err == nil:
		outcome.Status = StatusPosted
		outcome.SubmissionID = submission.ID
		d.publish(ctx, submission, event)
	case errors.Is(err, ErrDuplicateSubmission):
		outcome.Status = StatusSkippedDuplicate
	default:
		outcome.Status = StatusFailed
		outcome.Err = err
	}
	return outcome
}

func (d *Dispatcher) publish(ctx context.Context, submission *models.Submission, event parser.Event) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.PublishSubmissionCreated(ctx, submission, event); err != nil {
		d.logger.Warn("failed to publish submission event",
			zap.String("fullname", submission.ID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) record(sub *models.Subscription, event parser.Event, target models.PostTarget, outcome Outcome) {
	fields := []zap.Field{
		zap.String("subscription_id", sub.ID),
		zap.String("video_id", event.VideoID),
		zap.Int64("reddit_account_id", target.Account.ID),
		zap.Int64("subreddit_id", target.Subreddit.ID),
		zap.String("status", string(outcome.Status)),
	}

	switch outcome.Status {
	case StatusPosted:
		metrics.SubmissionsCreated.Inc()
		d.logger.Info("dispatch target posted", fields...)
	case StatusSkippedDuplicate:
		metrics.DuplicatesSkipped.Inc()
		d.logger.Info("dispatch target skipped duplicate", fields...)
	case StatusSkippedShort:
		metrics.ShortsSkipped.Inc()
		d.logger.Info("dispatch target skipped short", fields...)
	case StatusFailed:
		metrics.PostingFailures.Inc()
		d.logger.Error("dispatch target failed", append(fields, zap.Error(outcome.Err))...)
	}
}
