package models

import "time"

// Feed is a registered syndication source
type Feed struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Entry is one item of a fetched feed, only the fields used for identity and formatting
type Entry struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// FeedDocument is a fetched and parsed feed. Entries keep the order of the source document.
type FeedDocument struct {
	Title   string  `json:"title"`
	Entries []Entry `json:"entries"`
}

// Message is a formatted entry delivered to one channel
type Message struct {
	Channel    string    `json:"channel"`
	FeedID     string    `json:"feedId"`
	FeedTitle  string    `json:"feedTitle"`
	EntryTitle string    `json:"entryTitle"`
	Link       string    `json:"link"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sentAt"`
}

// State is everything persisted between restarts
type State struct {
	Feeds         map[string]string
	Subscriptions map[string][]string
	History       map[string][]string
}

func NewState() State {
	return State{
		Feeds:         make(map[string]string),
		Subscriptions: make(map[string][]string),
		History:       make(map[string][]string),
	}
}

// CheckResult summarises one feed within a poll cycle
type CheckResult struct {
	FeedID     string
	Dispatched int
	Err        error
}
