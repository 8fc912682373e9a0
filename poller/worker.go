// Package poller owns the feed registry and entry history. A single goroutine runs
// poll cycles and admin commands one at a time, so no cycle ever overlaps a command
// or another cycle.
package poller

import (
	"context"
	"errors"
	"fmt"
	"rssnotify/config"
	"rssnotify/feeds"
	"rssnotify/models"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrStopped is returned for requests made after the worker has stopped
var ErrStopped = errors.New("poller stopped")

// Store persists the state owned by the worker
type Store interface {
	Load(ctx context.Context) (models.State, error)
	SaveFeed(ctx context.Context, id, url string) error
	DeleteFeed(ctx context.Context, id string) error
	SaveSubscriptions(ctx context.Context, id string, channels []string) error
	SaveHistory(ctx context.Context, id string, hashes []string) error
}

// Dispatcher delivers one new entry to the channels subscribed to feedID
type Dispatcher interface {
	Dispatch(ctx context.Context, feedTitle, entryTitle, entryLink, feedID string) error
}

type request struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	errc chan error
}

type Worker struct {
	cfg        config.Config
	store      Store
	fetcher    Fetcher
	dispatcher Dispatcher
	registry   *feeds.Registry
	history    *feeds.History

	requests chan request
	done     chan struct{}
}

// New creates a worker. registry is shared with the dispatcher, which reads it only
// from within a poll cycle and therefore on the worker goroutine.
func New(cfg config.Config, store Store, fetcher Fetcher, dispatcher Dispatcher, registry *feeds.Registry) *Worker {
	return &Worker{
		cfg:        cfg,
		store:      store,
		fetcher:    fetcher,
		dispatcher: dispatcher,
		registry:   registry,
		history:    feeds.NewHistory(),
		requests:   make(chan request),
		done:       make(chan struct{}),
	}
}

// Run loads the persisted state, applies the configured seeds and polls every
// interval until ctx is cancelled. The first cycle runs immediately.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)

	if err := w.start(ctx); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"interval": w.cfg.Interval(),
		"feeds":    len(w.registry.FeedIDs()),
	}).Info("Feed poller started")

	w.cycle(ctx)

	// A tick that fires during a long cycle is dropped by the ticker
	ticker := time.NewTicker(w.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Feed poller stopping")
			return nil
		case <-ticker.C:
			w.cycle(ctx)
		case req := <-w.requests:
			req.errc <- req.fn(req.ctx)
		}
	}
}

// RunOnce loads state, applies seeds and runs a single cycle on the calling
// goroutine. It must not be used together with Run.
func (w *Worker) RunOnce(ctx context.Context) ([]models.CheckResult, error) {
	if err := w.start(ctx); err != nil {
		return nil, err
	}
	return w.cycle(ctx), nil
}

func (w *Worker) start(ctx context.Context) error {
	if w.cfg.EntryCacheSize < w.cfg.MaxStories {
		log.WithFields(log.Fields{
			"entryCacheSize": w.cfg.EntryCacheSize,
			"maxStories":     w.cfg.MaxStories,
		}).Warn("ENTRY_CACHE_SIZE is smaller than MAX_STORIES, entries may be notified more than once")
	}

	if err := w.load(ctx); err != nil {
		return err
	}
	return w.applySeeds(ctx)
}

func (w *Worker) load(ctx context.Context) error {
	state, err := w.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	w.registry.Reset()
	w.history.Reset()
	for id, url := range state.Feeds {
		w.registry.Restore(id, url)
	}
	for id, channels := range state.Subscriptions {
		w.registry.SetSubscriptions(id, channels)
	}
	for id, hashes := range state.History {
		w.history.Restore(id, hashes)
	}
	registeredFeeds.Set(float64(len(state.Feeds)))
	return nil
}

// applySeeds registers configured feeds that are not known yet and their
// subscriptions when the feed has none
func (w *Worker) applySeeds(ctx context.Context) error {
	for id, url := range w.cfg.Feeds {
		if w.registry.HasFeed(id) {
			continue
		}
		w.registry.Restore(id, url)
		if err := w.store.SaveFeed(ctx, id, url); err != nil {
			return fmt.Errorf("saving seed feed %s: %w", id, err)
		}
		log.WithFields(log.Fields{"feed": id, "url": url}).Info("Registered seed feed")
	}

	for id, channels := range w.cfg.Subscriptions {
		if !w.registry.HasFeed(id) || len(w.registry.Channels(id)) > 0 || len(channels) == 0 {
			continue
		}
		w.registry.SetSubscriptions(id, channels)
		if err := w.store.SaveSubscriptions(ctx, id, channels); err != nil {
			return fmt.Errorf("saving seed subscriptions %s: %w", id, err)
		}
	}

	registeredFeeds.Set(float64(len(w.registry.FeedIDs())))
	return nil
}

// do runs fn on the worker goroutine and waits for its result. ctx only bounds the
// wait for the worker to accept the request; fn receives it as well.
func (w *Worker) do(ctx context.Context, fn func(ctx context.Context) error) error {
	req := request{ctx: ctx, fn: fn, errc: make(chan error, 1)}

	select {
	case w.requests <- req:
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// fn writes into its caller's variables, so wait for it even if ctx ends
	return <-req.errc
}

// persistFailed reloads the in-memory state from the store after a failed write
func (w *Worker) persistFailed(ctx context.Context, err error) error {
	persistErrors.Inc()
	if reloadErr := w.load(ctx); reloadErr != nil {
		log.WithFields(log.Fields{"error": reloadErr}).Error("Failed to reload state after persistence error")
	}
	return fmt.Errorf("persisting state: %w", err)
}

// Check runs one poll cycle, queued behind any running cycle or command
func (w *Worker) Check(ctx context.Context) ([]models.CheckResult, error) {
	var results []models.CheckResult
	err := w.do(ctx, func(ctx context.Context) error {
		results = w.cycle(ctx)
		return nil
	})
	return results, err
}

// AddFeeds registers every url and returns the resulting feeds in argument order
func (w *Worker) AddFeeds(ctx context.Context, urls []string) ([]models.Feed, error) {
	var added []models.Feed
	err := w.do(ctx, func(ctx context.Context) error {
		for _, url := range urls {
			id := w.registry.AddFeed(url)
			if err := w.store.SaveFeed(ctx, id, url); err != nil {
				return w.persistFailed(ctx, err)
			}
			added = append(added, models.Feed{ID: id, URL: url})
			log.WithFields(log.Fields{"feed": id, "url": url}).Info("Added feed")
		}
		registeredFeeds.Set(float64(len(w.registry.FeedIDs())))
		return nil
	})
	return added, err
}

// RemoveFeeds unregisters every id, dropping its subscriptions and history.
// Unknown ids are reported in notFound and do not stop the batch.
func (w *Worker) RemoveFeeds(ctx context.Context, ids []string) (removed, notFound []string, err error) {
	err = w.do(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			if !w.registry.RemoveFeed(id) {
				notFound = append(notFound, id)
				continue
			}
			w.history.Remove(id)
			if err := w.store.DeleteFeed(ctx, id); err != nil {
				return w.persistFailed(ctx, err)
			}
			removed = append(removed, id)
			log.WithFields(log.Fields{"feed": id}).Info("Removed feed")
		}
		registeredFeeds.Set(float64(len(w.registry.FeedIDs())))
		return nil
	})
	return removed, notFound, err
}

// Subscribe appends channels to the feed's subscriptions. ok is false for an unknown id.
func (w *Worker) Subscribe(ctx context.Context, id string, channels []string) (ok bool, err error) {
	err = w.do(ctx, func(ctx context.Context) error {
		if ok = w.registry.Subscribe(id, channels); !ok {
			return nil
		}
		if err := w.store.SaveSubscriptions(ctx, id, w.registry.Channels(id)); err != nil {
			return w.persistFailed(ctx, err)
		}
		return nil
	})
	return ok, err
}

// Unsubscribe removes the first occurrence of each channel from the feed's subscriptions
func (w *Worker) Unsubscribe(ctx context.Context, id string, channels []string) (removed, notSubscribed []string, ok bool, err error) {
	err = w.do(ctx, func(ctx context.Context) error {
		removed, notSubscribed, ok = w.registry.Unsubscribe(id, channels)
		if !ok || len(removed) == 0 {
			return nil
		}
		if err := w.store.SaveSubscriptions(ctx, id, w.registry.Channels(id)); err != nil {
			return w.persistFailed(ctx, err)
		}
		return nil
	})
	return removed, notSubscribed, ok, err
}

func (w *Worker) Feeds(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := w.do(ctx, func(ctx context.Context) error {
		out = w.registry.Feeds()
		return nil
	})
	return out, err
}

func (w *Worker) Subscriptions(ctx context.Context) (map[string][]string, error) {
	var out map[string][]string
	err := w.do(ctx, func(ctx context.Context) error {
		out = w.registry.Subscriptions()
		return nil
	})
	return out, err
}
