package feeds

import (
	"maps"
	"slices"

	"github.com/samber/lo"
)

// Registry maps feed IDs to URLs and to the ordered list of channels subscribed to them.
// It is not safe for concurrent use; the poller worker owns it.
type Registry struct {
	feeds         map[string]string
	subscriptions map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		feeds:         make(map[string]string),
		subscriptions: make(map[string][]string),
	}
}

// AddFeed registers url under its derived ID and returns the ID. Adding the same
// URL again keeps existing subscriptions.
func (r *Registry) AddFeed(url string) string {
	id := HashFeedURL(url)
	r.Restore(id, url)
	return id
}

// Restore registers url under an explicit id, used for persisted state and seeds
func (r *Registry) Restore(id, url string) {
	r.feeds[id] = url
	if _, ok := r.subscriptions[id]; !ok {
		r.subscriptions[id] = []string{}
	}
}

// RemoveFeed drops the feed and its subscriptions. It returns false for an unknown id.
func (r *Registry) RemoveFeed(id string) bool {
	if _, ok := r.feeds[id]; !ok {
		return false
	}
	delete(r.feeds, id)
	delete(r.subscriptions, id)
	return true
}

func (r *Registry) HasFeed(id string) bool {
	_, ok := r.feeds[id]
	return ok
}

func (r *Registry) URL(id string) (string, bool) {
	url, ok := r.feeds[id]
	return url, ok
}

// Subscribe appends every channel to the feed's list. Repeated channels accumulate.
func (r *Registry) Subscribe(id string, channels []string) bool {
	if !r.HasFeed(id) {
		return false
	}
	r.subscriptions[id] = append(r.subscriptions[id], channels...)
	return true
}

// SetSubscriptions replaces the channel list of a registered feed
func (r *Registry) SetSubscriptions(id string, channels []string) bool {
	if !r.HasFeed(id) {
		return false
	}
	r.subscriptions[id] = slices.Clone(channels)
	if r.subscriptions[id] == nil {
		r.subscriptions[id] = []string{}
	}
	return true
}

// Unsubscribe removes the first occurrence of each channel. It reports the channels
// that were removed and those that were not subscribed, ok is false for an unknown id.
func (r *Registry) Unsubscribe(id string, channels []string) (removed, notSubscribed []string, ok bool) {
	if !r.HasFeed(id) {
		return nil, nil, false
	}
	subs := r.subscriptions[id]
	for _, channel := range channels {
		idx := slices.Index(subs, channel)
		if idx < 0 {
			notSubscribed = append(notSubscribed, channel)
			continue
		}
		subs = slices.Delete(subs, idx, idx+1)
		removed = append(removed, channel)
	}
	r.subscriptions[id] = subs
	return removed, notSubscribed, true
}

// Channels returns a copy of the channels subscribed to id
func (r *Registry) Channels(id string) []string {
	return slices.Clone(r.subscriptions[id])
}

// Feeds returns a copy of the feed ID to URL mapping
func (r *Registry) Feeds() map[string]string {
	return maps.Clone(r.feeds)
}

// Subscriptions returns a copy of the feed ID to channels mapping
func (r *Registry) Subscriptions() map[string][]string {
	out := make(map[string][]string, len(r.subscriptions))
	for id, channels := range r.subscriptions {
		out[id] = slices.Clone(channels)
	}
	return out
}

// FeedIDs returns the registered IDs in sorted order
func (r *Registry) FeedIDs() []string {
	ids := lo.Keys(r.feeds)
	slices.Sort(ids)
	return ids
}

// Reset drops every feed and subscription
func (r *Registry) Reset() {
	clear(r.feeds)
	clear(r.subscriptions)
}
