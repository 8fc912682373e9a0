// Package feeds holds the change detection state: entry identity, the bounded
// per-feed history of seen entries and the feed/subscription registry.
package feeds

import (
	"crypto/sha256"
	"encoding/hex"
)

// FeedIDLength is the number of hex characters kept from the URL digest
const FeedIDLength = 6

// HashEntry returns the hex SHA-224 digest of title followed by link
func HashEntry(title, link string) string {
	sum := sha256.Sum224([]byte(title + link))
	return hex.EncodeToString(sum[:])
}

// HashFeedURL returns the short feed identifier for url. Collisions between
// different URLs are not detected.
func HashFeedURL(url string) string {
	sum := sha256.Sum224([]byte(url))
	return hex.EncodeToString(sum[:])[:FeedIDLength]
}
