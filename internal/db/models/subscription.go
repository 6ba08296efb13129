package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Subscription represents a PubSubHubbub lease for a YouTube channel.
// The HMAC secret signs every notification the hub delivers for the channel;
// ExpiresAt is nil until the hub has confirmed the first lease.
type Subscription struct {
	ID          string     `db:"id" json:"id"`
	ChannelID   string     `db:"channel_id" json:"channel_id"`
	ChannelName string     `db:"channel_name" json:"channel_name"`
	HmacSecret  string     `db:"hmac_secret" json:"-"`
	CallbackURL string     `db:"callback_url" json:"callback_url"`
	TopicURL    string     `db:"topic_url" json:"topic_url"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	PostShorts  bool       `db:"post_shorts" json:"post_shorts"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// TopicURLForChannel builds the YouTube feed topic URL for a channel.
func TopicURLForChannel(channelID string) string {
	return fmt.Sprintf("https://www.youtube.com/xml/feeds/videos.xml?channel_id=%s", channelID)
}

// NewSubscription creates a pending Subscription with a generated id and
// HMAC secret. The lease expiry stays nil until the hub confirms it.
func NewSubscription(channelID, channelName, callbackBaseURL string, postShorts bool) *Subscription {
	now := time.Now()
	id := uuid.NewString()

	return &Subscription{
		ID:          id,
		ChannelID:   channelID,
		ChannelName: channelName,
		HmacSecret:  uuid.NewString(),
		CallbackURL: fmt.Sprintf("%s/%s", callbackBaseURL, id),
		TopicURL:    TopicURLForChannel(channelID),
		PostShorts:  postShorts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsLapsed returns true if the lease had an expiry that has already passed.
func (s *Subscription) IsLapsed(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// ConfirmLease records a hub-granted lease duration.
func (s *Subscription) ConfirmLease(leaseSeconds int, now time.Time) {
	expires := now.Add(time.Duration(leaseSeconds) * time.Second)
	s.ExpiresAt = &expires
	s.UpdatedAt = now
}
