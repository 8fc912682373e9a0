package poller_test

import (
	"context"
	"errors"
	"fmt"
	"rssnotify/config"
	"rssnotify/feeds"
	"rssnotify/models"
	"rssnotify/poller"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	state   models.State
	failing bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{state: models.NewState()}
}

var errStore = errors.New("store unavailable")

func (s *memoryStore) Load(ctx context.Context) (models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := models.NewState()
	for id, url := range s.state.Feeds {
		out.Feeds[id] = url
	}
	for id, channels := range s.state.Subscriptions {
		out.Subscriptions[id] = slices.Clone(channels)
	}
	for id, hashes := range s.state.History {
		out.History[id] = slices.Clone(hashes)
	}
	return out, nil
}

func (s *memoryStore) SaveFeed(ctx context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStore
	}
	s.state.Feeds[id] = url
	return nil
}

func (s *memoryStore) DeleteFeed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStore
	}
	delete(s.state.Feeds, id)
	delete(s.state.Subscriptions, id)
	delete(s.state.History, id)
	return nil
}

func (s *memoryStore) SaveSubscriptions(ctx context.Context, id string, channels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStore
	}
	s.state.Subscriptions[id] = slices.Clone(channels)
	return nil
}

func (s *memoryStore) SaveHistory(ctx context.Context, id string, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStore
	}
	s.state.History[id] = slices.Clone(hashes)
	return nil
}

func (s *memoryStore) history(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.History[id])
}

type fakeFetcher struct {
	mu   sync.Mutex
	docs map[string]models.FeedDocument
	errs map[string]error
}

func (f *fakeFetcher) FetchFeed(ctx context.Context, url string) (models.FeedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return models.FeedDocument{}, err
	}
	return f.docs[url], nil
}

func (f *fakeFetcher) set(url string, doc models.FeedDocument) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[url] = doc
}

type dispatched struct {
	FeedID string
	Title  string
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatched
	err   error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, feedTitle, entryTitle, entryLink, feedID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatched{FeedID: feedID, Title: entryTitle})
	return d.err
}

func (d *recordingDispatcher) titles() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.calls))
	for _, c := range d.calls {
		out = append(out, c.Title)
	}
	return out
}

// entries returns E1..En as a feed lists them, E1 being the newest
func entries(n int) []models.Entry {
	out := make([]models.Entry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, models.Entry{
			Title: fmt.Sprintf("E%d", i),
			Link:  fmt.Sprintf("https://example.com/%d", i),
		})
	}
	return out
}

const feedURL = "https://example.com/rss"

type fixture struct {
	cfg        config.Config
	store      *memoryStore
	fetcher    *fakeFetcher
	dispatcher *recordingDispatcher
	worker     *poller.Worker
}

func newFixture(mutate func(c *config.Config)) *fixture {
	cfg := config.Defaults()
	if mutate != nil {
		mutate(&cfg)
	}
	f := &fixture{
		cfg:        cfg,
		store:      newMemoryStore(),
		fetcher:    &fakeFetcher{docs: map[string]models.FeedDocument{}, errs: map[string]error{}},
		dispatcher: &recordingDispatcher{},
	}
	f.worker = poller.New(cfg, f.store, f.fetcher, f.dispatcher, feeds.NewRegistry())
	return f
}

// run starts the worker and returns once the initial cycle has completed
func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.worker.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errc)
	})
	// Requests are served only after the initial cycle
	_, err := f.worker.Feeds(context.Background())
	require.NoError(t, err)
}

func TestBurstCapDispatchesOldestFirst(t *testing.T) {
	f := newFixture(func(c *config.Config) { c.MaxStories = 2 })
	id := feeds.HashFeedURL(feedURL)
	f.store.state.Feeds[id] = feedURL
	f.fetcher.set(feedURL, models.FeedDocument{Title: "Example", Entries: entries(5)})

	results, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Dispatched)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, []string{"E5", "E4"}, f.dispatcher.titles())

	// Most recent dispatched entry is at the front of the history
	assert.Equal(t, []string{
		feeds.HashEntry("E4", "https://example.com/4"),
		feeds.HashEntry("E5", "https://example.com/5"),
	}, f.store.history(id))
}

func TestSkippedEntriesSurfaceOnLaterCycles(t *testing.T) {
	f := newFixture(func(c *config.Config) { c.MaxStories = 2 })
	id := feeds.HashFeedURL(feedURL)
	f.store.state.Feeds[id] = feedURL
	f.fetcher.set(feedURL, models.FeedDocument{Title: "Example", Entries: entries(5)})
	f.run(t)

	_, err := f.worker.Check(context.Background())
	require.NoError(t, err)
	_, err = f.worker.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"E5", "E4", "E3", "E2", "E1"}, f.dispatcher.titles())
}

func TestNoDuplicateNotifications(t *testing.T) {
	f := newFixture(nil)
	id := feeds.HashFeedURL(feedURL)
	f.store.state.Feeds[id] = feedURL
	f.fetcher.set(feedURL, models.FeedDocument{Title: "Example", Entries: entries(3)})
	f.run(t)

	for i := 0; i < 3; i++ {
		results, err := f.worker.Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, results[0].Dispatched)
	}
	assert.Equal(t, []string{"E3", "E2", "E1"}, f.dispatcher.titles())

	// A new entry at the top of the feed is the only one dispatched
	fresh := models.Entry{Title: "E0", Link: "https://example.com/0"}
	f.fetcher.set(feedURL, models.FeedDocument{Title: "Example", Entries: append([]models.Entry{fresh}, entries(3)...)})
	results, err := f.worker.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Dispatched)
	assert.Equal(t, []string{"E3", "E2", "E1", "E0"}, f.dispatcher.titles())
}

func TestHistoryIsBounded(t *testing.T) {
	f := newFixture(func(c *config.Config) {
		c.MaxStories = 10
		c.EntryCacheSize = 4
	})
	id := feeds.HashFeedURL(feedURL)
	f.store.state.Feeds[id] = feedURL
	f.fetcher.set(feedURL, models.FeedDocument{Entries: entries(6)})

	_, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)

	history := f.store.history(id)
	assert.Len(t, history, 4)
	assert.Equal(t, feeds.HashEntry("E1", "https://example.com/1"), history[0])
}

func TestFetchFailureIsFeedLocal(t *testing.T) {
	f := newFixture(nil)
	brokenURL := "https://broken.example.com/rss"
	goodID := feeds.HashFeedURL(feedURL)
	brokenID := feeds.HashFeedURL(brokenURL)
	f.store.state.Feeds[goodID] = feedURL
	f.store.state.Feeds[brokenID] = brokenURL
	f.store.state.History[brokenID] = []string{"kept"}
	f.fetcher.set(feedURL, models.FeedDocument{Entries: entries(2)})
	f.fetcher.errs[brokenURL] = errors.New("connection refused")

	results, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[string]models.CheckResult{}
	for _, r := range results {
		byID[r.FeedID] = r
	}
	assert.Error(t, byID[brokenID].Err)
	assert.NoError(t, byID[goodID].Err)
	assert.Equal(t, 2, byID[goodID].Dispatched)
	assert.Equal(t, []string{"kept"}, f.store.history(brokenID))
}

func TestSendFailureStillRecordsEntry(t *testing.T) {
	f := newFixture(nil)
	id := feeds.HashFeedURL(feedURL)
	f.store.state.Feeds[id] = feedURL
	f.fetcher.set(feedURL, models.FeedDocument{Entries: entries(1)})
	f.dispatcher.err = errors.New("destination unavailable")

	results, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Dispatched)
	assert.Len(t, f.store.history(id), 1)
}

func TestSeedsAreAppliedOnce(t *testing.T) {
	seedID := "abc123"
	f := newFixture(func(c *config.Config) {
		c.Feeds = map[string]string{seedID: feedURL}
		c.Subscriptions = map[string][]string{seedID: {"#news"}}
	})
	f.store.state.Feeds["def456"] = "https://example.org/atom"
	f.store.state.Subscriptions["def456"] = []string{"#other"}
	f.run(t)

	feedsOut, err := f.worker.Feeds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		seedID:   feedURL,
		"def456": "https://example.org/atom",
	}, feedsOut)

	subs, err := f.worker.Subscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"#news"}, subs[seedID])
	assert.Equal(t, []string{"#news"}, f.store.state.Subscriptions[seedID])
}

func TestSeedSubscriptionsDoNotOverrideExisting(t *testing.T) {
	seedID := "abc123"
	f := newFixture(func(c *config.Config) {
		c.Feeds = map[string]string{seedID: feedURL}
		c.Subscriptions = map[string][]string{seedID: {"#news"}}
	})
	f.store.state.Feeds[seedID] = feedURL
	f.store.state.Subscriptions[seedID] = []string{"#mine"}
	f.run(t)

	subs, err := f.worker.Subscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"#mine"}, subs[seedID])
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	f.run(t)

	added, err := f.worker.AddFeeds(ctx, []string{feedURL, feedURL})
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, added[0].ID, added[1].ID)
	id := added[0].ID

	ok, err := f.worker.Subscribe(ctx, id, []string{"#a", "#b", "#a"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.worker.Subscribe(ctx, "zzzzzz", []string{"#a"})
	require.NoError(t, err)
	assert.False(t, ok)

	removed, notSubscribed, ok, err := f.worker.Unsubscribe(ctx, id, []string{"#a", "#c"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"#a"}, removed)
	assert.Equal(t, []string{"#c"}, notSubscribed)
	assert.Equal(t, []string{"#b", "#a"}, f.store.state.Subscriptions[id])

	gone, notFound, err := f.worker.RemoveFeeds(ctx, []string{"zzzzzz", id})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, gone)
	assert.Equal(t, []string{"zzzzzz"}, notFound)

	feedsOut, err := f.worker.Feeds(ctx)
	require.NoError(t, err)
	assert.Empty(t, feedsOut)
	assert.Empty(t, f.store.state.Feeds)
	assert.NotContains(t, f.store.state.Subscriptions, id)
}

func TestPersistFailureRestoresState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	f.run(t)

	f.store.mu.Lock()
	f.store.failing = true
	f.store.mu.Unlock()

	_, err := f.worker.AddFeeds(ctx, []string{feedURL})
	assert.ErrorIs(t, err, errStore)

	feedsOut, err := f.worker.Feeds(ctx)
	require.NoError(t, err)
	assert.Empty(t, feedsOut)
}

func TestStoppedWorker(t *testing.T) {
	f := newFixture(nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.worker.Run(ctx) }()

	_, err := f.worker.Feeds(context.Background())
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-errc)

	_, err = f.worker.Feeds(context.Background())
	assert.ErrorIs(t, err, poller.ErrStopped)
}

func TestRequestHonoursCallerContext(t *testing.T) {
	f := newFixture(nil)
	// Worker never started
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.worker.Feeds(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
