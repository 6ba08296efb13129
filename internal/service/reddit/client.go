// Package reddit implements the small slice of the Reddit API the relay
// needs: token refresh, link submission and moderation of own posts.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized is returned when credentials are rejected and a
	// refresh cannot recover them.
	ErrUnauthorized = errors.New("reddit: unauthorized")

	// ErrRejected is returned when the API accepted the request but
	// refused the action (e.g. submission errors in the response body).
	ErrRejected = errors.New("reddit: request rejected")

	// ErrTransient is returned for rate limits, 5xx responses and network
	// failures once the retry budget is exhausted.
	ErrTransient = errors.New("reddit: transient failure")
)

const (
	defaultAuthBaseURL = "https://www.reddit.com"
	defaultAPIBaseURL  = "https://oauth.reddit.com"
)

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Reddit API on behalf of one or more accounts.
// Credentials are passed per call; the client itself is stateless and safe
// for concurrent use.
type Client struct {
	http        HTTPClient
	logger      *zap.Logger
	userAgent   string
	authBaseURL string
	apiBaseURL  string
	maxRetries  uint64
	minBackoff  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs overrides the OAuth and API endpoints, used in tests.
func WithBaseURLs(authBaseURL, apiBaseURL string) Option {
	return func(c *Client) {
		c.authBaseURL = strings.TrimSuffix(authBaseURL, "/")
		c.apiBaseURL = strings.TrimSuffix(apiBaseURL, "/")
	}
}

// WithMaxRetries bounds the retry budget for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = uint64(n) }
}

// WithMinBackoff sets the initial backoff interval, shortened in tests.
func WithMinBackoff(d time.Duration) Option {
	return func(c *Client) { c.minBackoff = d }
}

// NewClient creates a Reddit API client.
func NewClient(httpClient HTTPClient, userAgent string, logger *zap.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		http:        httpClient,
		logger:      logger,
		userAgent:   userAgent,
		authBaseURL: defaultAuthBaseURL,
		apiBaseURL:  defaultAPIBaseURL,
		maxRetries:  3,
		minBackoff:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token is the response of a token refresh exchange.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken exchanges a refresh token for a fresh access token using the
// account's app credentials.
func (c *Client) RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	var token Token
	err := c.withRetry(ctx, "refresh token", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.authBaseURL+"/api/v1/access_token", strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.SetBasicAuth(clientID, clientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", c.userAgent)

		body, err := c.send(req)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &token); err != nil {
			return backoff.Permanent(fmt.Errorf("decode token response: %w", err))
		}
		if token.AccessToken == "" {
			return backoff.Permanent(fmt.Errorf("empty access token in response: %w", ErrUnauthorized))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &token, nil
}

// SubmitRequest describes a link post.
type SubmitRequest struct {
	Subreddit string
	Title     string
	URL       string
	FlairID   string
}

type submitResponse struct {
	JSON struct {
		Errors [][]string `json:"errors"`
		Data   struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"data"`
	} `json:"json"`
}

// SubmitLink creates a link post and returns the submission fullname
// (e.g. "t3_abc123").
func (c *Client) SubmitLink(ctx context.Context, accessToken string, req SubmitRequest) (string, error) {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("kind", "link")
	form.Set("sr", req.Subreddit)
	form.Set("title", req.Title)
	form.Set("url", req.URL)
	form.Set("resubmit", "false")
	if req.FlairID != "" {
		form.Set("flair_id", req.FlairID)
	}

	var resp submitResponse
	err := c.withRetry(ctx, "submit link", func() error {
		body, err := c.postForm(ctx, accessToken, "/api/submit", form)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return backoff.Permanent(fmt.Errorf("decode submit response: %w", err))
		}
		if len(resp.JSON.Errors) > 0 {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrRejected, resp.JSON.Errors))
		}
		if resp.JSON.Data.Name == "" {
			return backoff.Permanent(fmt.Errorf("%w: submit response missing fullname", ErrRejected))
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return resp.JSON.Data.Name, nil
}

// Approve approves a submission in a subreddit the account moderates.
func (c *Client) Approve(ctx context.Context, accessToken, fullname string) error {
	form := url.Values{}
	form.Set("id", fullname)

	return c.withRetry(ctx, "approve", func() error {
		_, err := c.postForm(ctx, accessToken, "/api/approve", form)
		return err
	})
}

// Sticky pins a submission to the subreddit's sticky slots.
func (c *Client) Sticky(ctx context.Context, accessToken, fullname string) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("id", fullname)
	form.Set("state", "true")

	return c.withRetry(ctx, "sticky", func() error {
		_, err := c.postForm(ctx, accessToken, "/api/set_subreddit_sticky", form)
		return err
	})
}

func (c *Client) postForm(ctx context.Context, accessToken, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	return c.send(req)
}

// send executes a request and classifies the response: 2xx passes through,
// 401/403 is permanent unauthorized, 429/5xx is retryable, anything else is
// a permanent rejection.
func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncate(body, 256)))
	}
}

func (c *Client) withRetry(ctx context.Context, operation string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.minBackoff

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err != nil && attempt <= int(c.maxRetries) {
			var perm *backoff.PermanentError
			if !errors.As(err, &perm) {
				c.logger.Warn("reddit call failed, retrying",
					zap.String("operation", operation),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
			}
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
