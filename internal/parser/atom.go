// Package parser extracts normalized video events from YouTube Atom feed
// notifications delivered over PubSubHubbub.
package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedFeed is returned when the notification body is not a parseable
// Atom feed. The notification is dropped; the handler must not crash.
var ErrMalformedFeed = errors.New("malformed atom feed")

// EventKind tags the variant of a feed event. Downstream logic never sees
// the raw parsed tree, only this small tagged type.
type EventKind int

const (
	// EventVideoUpdated covers both newly published and updated videos.
	EventVideoUpdated EventKind = iota
	// EventVideoDeleted marks a tombstone entry for a removed video.
	EventVideoDeleted
	// EventUnrecognized marks an entry the parser could not classify.
	EventUnrecognized
)

func (k EventKind) String() string {
	switch k {
	case EventVideoUpdated:
		return "video_updated"
	case EventVideoDeleted:
		return "video_deleted"
	default:
		return "unrecognized"
	}
}

// Event is one normalized video event.
type Event struct {
	Kind      EventKind
	VideoID   string
	ChannelID string
	Title     string
	VideoURL  string
	Published time.Time
	Updated   time.Time
	IsShort   bool
}

// atomFeed mirrors the YouTube Atom notification format (Atom 1.0 with the
// YouTube 2015 namespace).
type atomFeed struct {
	XMLName xml.Name       `xml:"http://www.w3.org/2005/Atom feed"`
	Entries []atomEntry    `xml:"entry"`
	Deleted []deletedEntry `xml:"http://purl.org/atompub/tombstones/1.0 deleted-entry"`
}

type atomEntry struct {
	VideoID   string     `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	ChannelID string     `xml:"http://www.youtube.com/xml/schemas/2015 channelId"`
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Published time.Time  `xml:"published"`
	Updated   time.Time  `xml:"updated"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type deletedEntry struct {
	Ref  string `xml:"ref,attr"`
	When string `xml:"when,attr"`
}

// Parse parses a notification body into zero or more events. Tombstones are
// delivered as EventVideoDeleted; entries missing a video or channel id come
// back as EventUnrecognized rather than failing the whole notification.
func Parse(raw []byte) ([]Event, error) {
	var feed atomFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	events := make([]Event, 0, len(feed.Entries)+len(feed.Deleted))

	for _, del := range feed.Deleted {
		events = append(events, Event{
			Kind:    EventVideoDeleted,
			VideoID: videoIDFromRef(del.Ref),
		})
	}

	for _, entry := range feed.Entries {
		if entry.VideoID == "" || entry.ChannelID == "" {
			events = append(events, Event{Kind: EventUnrecognized})
			continue
		}

		videoURL := entryLink(entry.Links)
		if videoURL == "" {
			videoURL = fmt.Sprintf("https://www.youtube.com/watch?v=%s", entry.VideoID)
		}

		events = append(events, Event{
			Kind:      EventVideoUpdated,
			VideoID:   entry.VideoID,
			ChannelID: entry.ChannelID,
			Title:     entry.Title,
			VideoURL:  videoURL,
			Published: entry.Published,
			Updated:   entry.Updated,
			IsShort:   classifyShort(entry.Title, videoURL),
		})
	}

	return events, nil
}

// entryLink picks the alternate link, falling back to the first link present.
func entryLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "alternate" && l.Href != "" {
			return l.Href
		}
	}
	for _, l := range links {
		if l.Href != "" {
			return l.Href
		}
	}
	return ""
}

// classifyShort applies the shorts heuristic. The WebSub feed carries no
// duration, so only explicit markers count; everything else is a regular video.
func classifyShort(title, videoURL string) bool {
	if strings.Contains(videoURL, "/shorts/") {
		return true
	}
	return strings.Contains(strings.ToLower(title), "#shorts")
}

// videoIDFromRef extracts the video id from a tombstone ref such as
// "yt:video:abc123".
func videoIDFromRef(ref string) string {
	if idx := strings.LastIndex(ref, ":"); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}
