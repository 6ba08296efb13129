// Package metrics exposes the service's Prometheus collectors. All counters
// are registered with the default registry and served via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsReceived counts content notifications that passed
	// signature verification.
	NotificationsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_notifications_received_total",
		Help: "Content notifications accepted after signature verification.",
	})

	// NotificationsRejected counts notifications dropped before dispatch,
	// partitioned by reason.
	NotificationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_notifications_rejected_total",
		Help: "Content notifications rejected before dispatch.",
	}, []string{"reason"})

	// HandshakesConfirmed counts hub verification requests answered,
	// partitioned by hub.mode.
	HandshakesConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_handshakes_confirmed_total",
		Help: "Hub verification handshakes answered with the challenge.",
	}, []string{"mode"})

	// SubmissionsCreated counts link posts successfully created on Reddit.
	SubmissionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_submissions_created_total",
		Help: "Reddit link submissions created.",
	})

	// DuplicatesSkipped counts dispatch targets skipped because the video
	// was already posted for that account and subreddit.
	DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_duplicates_skipped_total",
		Help: "Dispatch targets skipped as already-posted duplicates.",
	})

	// ShortsSkipped counts dispatch targets skipped by the shorts filter.
	ShortsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_shorts_skipped_total",
		Help: "Dispatch targets skipped because the video is a short.",
	})

	// PostingFailures counts dispatch targets that failed after retries.
	PostingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_posting_failures_total",
		Help: "Dispatch targets that failed to post.",
	})

	// RenewalAttempts counts lease renewal requests sent to the hub,
	// partitioned by result.
	RenewalAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_renewal_attempts_total",
		Help: "Subscription lease renewal requests, by result.",
	}, []string{"result"})
)
