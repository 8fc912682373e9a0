package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"rssnotify/models"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"
)

// Fetcher turns a feed URL into a parsed document
type Fetcher interface {
	FetchFeed(ctx context.Context, url string) (models.FeedDocument, error)
}

type GofeedFetcher struct {
	parser  *gofeed.Parser
	retries uint64
}

// NewGofeedFetcher creates a fetcher that retries transient failures up to retries
// times with exponential backoff. A 4xx response is not retried.
func NewGofeedFetcher(userAgent string, timeout time.Duration, retries int) *GofeedFetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: timeout}

	if retries < 0 {
		retries = 0
	}
	return &GofeedFetcher{parser: parser, retries: uint64(retries)}
}

func (f *GofeedFetcher) FetchFeed(ctx context.Context, url string) (models.FeedDocument, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.Multiplier = 2

	var feed *gofeed.Feed
	operation := func() error {
		var err error
		feed, err = f.parser.ParseURLWithContext(url, ctx)
		if err == nil {
			return nil
		}

		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		log.WithFields(log.Fields{
			"url":   url,
			"error": err,
			"retry": wait,
		}).Warn("Feed fetch failed, retrying")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, f.retries), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return models.FeedDocument{}, fmt.Errorf("fetching %s: %w", url, err)
	}

	return toDocument(feed), nil
}

func toDocument(feed *gofeed.Feed) models.FeedDocument {
	doc := models.FeedDocument{
		Title:   feed.Title,
		Entries: make([]models.Entry, 0, len(feed.Items)),
	}
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		doc.Entries = append(doc.Entries, models.Entry{
			Title: item.Title,
			Link:  item.Link,
		})
	}
	return doc
}
