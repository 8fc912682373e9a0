package feeds_test

import (
	"rssnotify/feeds"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashEntry(t *testing.T) {
	a := feeds.HashEntry("Hello", "https://example.com/1")
	b := feeds.HashEntry("Hello", "https://example.com/2")

	assert.Len(t, a, 56)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, feeds.HashEntry("Hello", "https://example.com/1"))
	// title and link are concatenated before hashing
	assert.Equal(t, feeds.HashEntry("ab", "c"), feeds.HashEntry("a", "bc"))
}

func TestHashEntryKnownDigest(t *testing.T) {
	// sha224 of the empty string
	assert.Equal(t, "d14a028c2a3a2bc9476102bb288234c415a2b01f828ea62ac5b3e42f", feeds.HashEntry("", ""))
}

func TestHashFeedURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "http", url: "http://example.com/rss"},
		{name: "https", url: "https://example.com/rss"},
		{name: "unicode", url: "https://example.com/æøå.xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := feeds.HashFeedURL(tt.url)
			assert.Len(t, id, feeds.FeedIDLength)
			assert.Equal(t, id, feeds.HashFeedURL(tt.url))
			assert.Equal(t, feeds.HashEntry(tt.url, "")[:feeds.FeedIDLength], id)
		})
	}
}
