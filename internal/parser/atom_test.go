package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const notificationXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <link rel="hub" href="https://pubsubhubbub.appspot.com"/>
  <link rel="self" href="https://www.youtube.com/xml/feeds/videos.xml?channel_id=UC_test"/>
  <title>YouTube video feed</title>
  <updated>2024-03-10T10:05:00+00:00</updated>
  <entry>
    <id>yt:video:dQw4w9WgXcQ</id>
    <yt:videoId>dQw4w9WgXcQ</yt:videoId>
    <yt:channelId>UC_test</yt:channelId>
    <title>Test Video Title</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=dQw4w9WgXcQ"/>
    <author>
      <name>Test Channel</name>
      <uri>https://www.youtube.com/channel/UC_test</uri>
    </author>
    <published>2024-03-10T10:00:00+00:00</published>
    <updated>2024-03-10T10:05:00+00:00</updated>
  </entry>
</feed>`

const tombstoneXML = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:at="http://purl.org/atompub/tombstones/1.0">
  <at:deleted-entry ref="yt:video:dQw4w9WgXcQ" when="2024-03-10T11:00:00+00:00">
    <link href="https://www.youtube.com/watch?v=dQw4w9WgXcQ"/>
  </at:deleted-entry>
</feed>`

func TestParseVideoUpdated(t *testing.T) {
	events, err := Parse([]byte(notificationXML))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, EventVideoUpdated, ev.Kind)
	assert.Equal(t, "dQw4w9WgXcQ", ev.VideoID)
	assert.Equal(t, "UC_test", ev.ChannelID)
	assert.Equal(t, "Test Video Title", ev.Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", ev.VideoURL)
	assert.Equal(t, time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC), ev.Published.UTC())
	assert.False(t, ev.IsShort)
}

func TestParseTombstone(t *testing.T) {
	events, err := Parse([]byte(tombstoneXML))
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, EventVideoDeleted, events[0].Kind)
	assert.Equal(t, "dQw4w9WgXcQ", events[0].VideoID)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not xml", "this is not xml"},
		{"truncated", "<feed><entry>"},
		{"empty body", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFeed))
		})
	}
}

func TestParseEntryMissingIDs(t *testing.T) {
	body := `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry><title>No identifiers</title></entry>
</feed>`

	events, err := Parse([]byte(body))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventUnrecognized, events[0].Kind)
}

func TestParseMissingLinkFallsBackToWatchURL(t *testing.T) {
	body := `<?xml version="1.0"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <yt:videoId>abc123</yt:videoId>
    <yt:channelId>UC_test</yt:channelId>
    <title>No Link</title>
  </entry>
</feed>`

	events, err := Parse([]byte(body))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", events[0].VideoURL)
}

func TestClassifyShort(t *testing.T) {
	tests := []struct {
		name  string
		title string
		url   string
		want  bool
	}{
		{"shorts url", "A clip", "https://www.youtube.com/shorts/abc123", true},
		{"hashtag in title", "Crazy moment #Shorts", "https://www.youtube.com/watch?v=abc", true},
		{"regular video", "Full episode", "https://www.youtube.com/watch?v=abc", false},
		{"shorts mentioned mid-word", "Shortsighted review", "https://www.youtube.com/watch?v=abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyShort(tt.title, tt.url))
		})
	}
}
