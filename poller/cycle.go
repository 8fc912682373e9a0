package poller

import (
	"context"
	"rssnotify/feeds"
	"rssnotify/models"
	"time"

	log "github.com/sirupsen/logrus"
)

// cycle checks every registered feed in turn. A failing feed does not stop the cycle.
func (w *Worker) cycle(ctx context.Context) []models.CheckResult {
	start := time.Now()
	ids := w.registry.FeedIDs()
	results := make([]models.CheckResult, 0, len(ids))

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		url, ok := w.registry.URL(id)
		if !ok {
			continue
		}
		results = append(results, w.checkFeed(ctx, id, url))
	}

	duration := time.Since(start)
	pollCycles.Inc()
	pollCycleDuration.Observe(duration.Seconds())

	var dispatched, failed int
	for _, r := range results {
		dispatched += r.Dispatched
		if r.Err != nil {
			failed++
		}
	}
	log.WithFields(log.Fields{
		"feeds":      len(results),
		"dispatched": dispatched,
		"errors":     failed,
		"duration":   duration,
	}).Info("Poll cycle completed")

	return results
}

// checkFeed dispatches the entries of one feed that are not in its history, oldest
// first, at most MaxStories of them. Entries beyond the cap are left unrecorded so
// a later cycle picks them up. Once ctx is done no further entry is dispatched, but
// the history of the entries already sent is still saved.
func (w *Worker) checkFeed(ctx context.Context, id, url string) models.CheckResult {
	result := models.CheckResult{FeedID: id}

	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeoutDuration())
	doc, err := w.fetcher.FetchFeed(fetchCtx, url)
	cancel()
	if err != nil {
		fetchErrors.WithLabelValues(id).Inc()
		log.WithFields(log.Fields{
			"feed":  id,
			"url":   url,
			"error": err,
		}).Error("Failed to fetch feed")
		result.Err = err
		return result
	}

	w.history.EnsureFeed(id)

	for i := len(doc.Entries) - 1; i >= 0; i-- {
		entry := doc.Entries[i]
		hash := feeds.HashEntry(entry.Title, entry.Link)
		if w.history.Contains(id, hash) {
			continue
		}
		if result.Dispatched >= w.cfg.MaxStories || ctx.Err() != nil {
			break
		}

		if err := w.dispatcher.Dispatch(ctx, doc.Title, entry.Title, entry.Link, id); err != nil {
			log.WithFields(log.Fields{
				"feed":  id,
				"entry": entry.Title,
				"error": err,
			}).Warn("Entry was not delivered to every channel")
		}
		w.history.Insert(id, hash)
		result.Dispatched++
	}

	overflow := w.history.Len(id) > w.cfg.EntryCacheSize
	w.history.Trim(id, w.cfg.EntryCacheSize)
	entriesDispatched.WithLabelValues(id).Add(float64(result.Dispatched))

	if result.Dispatched == 0 && !overflow {
		return result
	}

	if err := w.store.SaveHistory(context.WithoutCancel(ctx), id, w.history.Entries(id)); err != nil {
		persistErrors.Inc()
		log.WithFields(log.Fields{
			"feed":  id,
			"error": err,
		}).Error("Failed to save history")
		result.Err = err
	}

	return result
}
