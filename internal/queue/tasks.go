// Package queue moves verified feed events from the webhook handler to the
// dispatch workers through asynq. When no Redis is configured the handler
// dispatches inline instead.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/video-relay/youtube-reddit-relay/internal/parser"
)

// TypeDispatch is the task type for dispatching one feed event.
const TypeDispatch = "relay:dispatch"

// DispatchPayload carries one verified event and the subscription it
// arrived on. The worker reloads the subscription, so only the id travels.
type DispatchPayload struct {
	SubscriptionID string       `json:"subscription_id"`
	Event          parser.Event `json:"event"`
}

// NewDispatchPayload validates and builds a dispatch payload.
func NewDispatchPayload(subscriptionID string, event parser.Event) (*DispatchPayload, error) {
	if subscriptionID == "" {
		return nil, fmt.Errorf("subscription ID is required")
	}
	if event.Kind == parser.EventVideoUpdated && event.VideoID == "" {
		return nil, fmt.Errorf("video ID is required")
	}

	return &DispatchPayload{
		SubscriptionID: subscriptionID,
		Event:          event,
	}, nil
}

// Marshal serializes the payload to JSON.
func (p *DispatchPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalDispatchPayload deserializes JSON to a payload.
func UnmarshalDispatchPayload(data []byte) (*DispatchPayload, error) {
	var payload DispatchPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &payload, nil
}
