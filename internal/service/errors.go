package service

import "errors"

var (
	// ErrAuthentication covers signature mismatches and credentials that a
	// refresh could not recover.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotFound is returned for unknown subscriptions, accounts or subreddits.
	ErrNotFound = errors.New("not found")

	// ErrMalformedRequest is returned for missing or unparseable request parts.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrPosting is returned when the Reddit API rejected a post after retries.
	ErrPosting = errors.New("posting failed")

	// ErrTransient covers timeouts and 5xx responses. Retried internally and
	// only surfaced when retries are exhausted.
	ErrTransient = errors.New("transient network error")

	// ErrDuplicateSubmission marks a conditional-insert conflict. Treated as
	// a normal skip, never surfaced as a failure.
	ErrDuplicateSubmission = errors.New("duplicate submission")
)
