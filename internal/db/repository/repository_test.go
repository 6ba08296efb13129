package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/video-relay/youtube-reddit-relay/internal/db/models"
	"github.com/video-relay/youtube-reddit-relay/internal/db/testutil"
)

// Shared fixtures for the repository integration tests.

func seedSubscription(t *testing.T, td *testutil.TestDatabase, channelID string, postShorts bool) *models.Subscription {
	t.Helper()

	sub := models.NewSubscription(channelID, "Test Channel", "https://relay.example.com/websub/callback", postShorts)
	err := NewSubscriptionRepository(td.Pool).Create(context.Background(), sub)
	require.NoError(t, err)
	return sub
}

func seedAccount(t *testing.T, td *testutil.TestDatabase, username string, moderate bool) *models.RedditAccount {
	t.Helper()

	acct := &models.RedditAccount{}
	err := td.Pool.QueryRow(context.Background(), `
		INSERT INTO reddit_accounts (username, client_id, client_secret, moderate_submissions,
			access_token, refresh_token, token_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, username, client_id, client_secret, moderate_submissions,
			access_token, refresh_token, token_expires_at, token_version, created_at, updated_at
	`, username, "client-id", "client-secret", moderate,
		"token", "refresh", time.Now().Add(time.Hour)).Scan(
		&acct.ID, &acct.Username, &acct.ClientID, &acct.ClientSecret, &acct.ModerateSubmissions,
		&acct.AccessToken, &acct.RefreshToken, &acct.TokenExpiresAt, &acct.TokenVersion,
		&acct.CreatedAt, &acct.UpdatedAt,
	)
	require.NoError(t, err)
	return acct
}

func seedSubreddit(t *testing.T, td *testutil.TestDatabase, name string) *models.Subreddit {
	t.Helper()

	sub := &models.Subreddit{}
	err := td.Pool.QueryRow(context.Background(), `
		INSERT INTO subreddits (name)
		VALUES ($1)
		RETURNING id, name, title_prefix, title_suffix, flair_id, created_at
	`, name).Scan(&sub.ID, &sub.Name, &sub.TitlePrefix, &sub.TitleSuffix, &sub.FlairID, &sub.CreatedAt)
	require.NoError(t, err)
	return sub
}

func bindAccountToSubscription(t *testing.T, td *testutil.TestDatabase, subscriptionID string, accountID int64) {
	t.Helper()

	_, err := td.Pool.Exec(context.Background(), `
		INSERT INTO subscription_reddit_accounts (subscription_id, reddit_account_id)
		VALUES ($1, $2)
	`, subscriptionID, accountID)
	require.NoError(t, err)
}

func bindSubredditToAccount(t *testing.T, td *testutil.TestDatabase, accountID, subredditID int64) {
	t.Helper()

	_, err := td.Pool.Exec(context.Background(), `
		INSERT INTO reddit_account_subreddits (reddit_account_id, subreddit_id)
		VALUES ($1, $2)
	`, accountID, subredditID)
	require.NoError(t, err)
}
