package feeds

import "slices"

// History keeps, per feed, the hashes of entries already notified, most recent first.
// It is not safe for concurrent use; the poller worker owns it.
type History struct {
	entries map[string][]string
}

func NewHistory() *History {
	return &History{entries: make(map[string][]string)}
}

// Restore replaces the sequence for feedID with a copy of hashes
func (h *History) Restore(feedID string, hashes []string) {
	h.entries[feedID] = slices.Clone(hashes)
}

// EnsureFeed creates an empty sequence for feedID if there is none
func (h *History) EnsureFeed(feedID string) {
	if _, ok := h.entries[feedID]; !ok {
		h.entries[feedID] = []string{}
	}
}

// Contains reports whether hash was recorded for feedID. Unknown feeds have an empty history.
func (h *History) Contains(feedID, hash string) bool {
	return slices.Contains(h.entries[feedID], hash)
}

// Insert records hash as the most recent entry of feedID. The cap is applied by Trim.
func (h *History) Insert(feedID, hash string) {
	h.entries[feedID] = slices.Insert(h.entries[feedID], 0, hash)
}

// Trim drops the oldest hashes of feedID beyond maxSize
func (h *History) Trim(feedID string, maxSize int) {
	seq, ok := h.entries[feedID]
	if !ok || len(seq) <= maxSize {
		return
	}
	if maxSize < 0 {
		maxSize = 0
	}
	h.entries[feedID] = slices.Clip(seq[:maxSize])
}

// Remove forgets the history of feedID
func (h *History) Remove(feedID string) {
	delete(h.entries, feedID)
}

// Entries returns a copy of the sequence for feedID
func (h *History) Entries(feedID string) []string {
	return slices.Clone(h.entries[feedID])
}

func (h *History) Len(feedID string) int {
	return len(h.entries[feedID])
}

// Reset forgets every feed
func (h *History) Reset() {
	clear(h.entries)
}
