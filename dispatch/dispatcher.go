// Package dispatch formats new entries and delivers them to subscribed channels.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"rssnotify/config"
	"rssnotify/models"
	"time"

	log "github.com/sirupsen/logrus"
)

// Subscriptions lists the channels currently subscribed to a feed
type Subscriptions interface {
	Channels(feedID string) []string
}

type Dispatcher struct {
	msgFormat     string
	maxLinkLength int
	subscriptions Subscriptions
	shortener     Shortener
	host          Host
	now           func() time.Time
}

// New creates a dispatcher. A nil shortener leaves links untouched.
func New(cfg config.Config, subscriptions Subscriptions, shortener Shortener, host Host) *Dispatcher {
	return &Dispatcher{
		msgFormat:     cfg.MsgFormat,
		maxLinkLength: cfg.MaxLinkLength,
		subscriptions: subscriptions,
		shortener:     shortener,
		host:          host,
		now:           time.Now,
	}
}

// Dispatch formats the entry and sends it to every channel subscribed to feedID at
// the time of the call. A failing channel does not stop delivery to the others; the
// returned error joins every failure.
func (d *Dispatcher) Dispatch(ctx context.Context, feedTitle, entryTitle, entryLink, feedID string) error {
	channels := d.subscriptions.Channels(feedID)
	if len(channels) == 0 {
		return nil
	}

	link := d.link(ctx, entryLink)
	text := Format(d.msgFormat, feedTitle, entryTitle, link)
	sentAt := d.now().UTC()

	var errs []error
	for _, channel := range channels {
		dest, err := d.host.ResolveDestination(channel)
		if err != nil {
			sendErrors.WithLabelValues("unresolved").Inc()
			log.WithFields(log.Fields{
				"feed":    feedID,
				"channel": channel,
				"error":   err,
			}).Warn("Could not resolve destination")
			errs = append(errs, err)
			continue
		}

		msg := models.Message{
			Channel:    channel,
			FeedID:     feedID,
			FeedTitle:  feedTitle,
			EntryTitle: entryTitle,
			Link:       link,
			Text:       text,
			SentAt:     sentAt,
		}
		if err := d.host.Send(ctx, dest, msg); err != nil {
			sendErrors.WithLabelValues(schemeLabel(dest)).Inc()
			log.WithFields(log.Fields{
				"feed":    feedID,
				"channel": channel,
				"error":   err,
			}).Error("Failed to send message")
			errs = append(errs, fmt.Errorf("sending to %s: %w", channel, err))
			continue
		}
		messagesSent.WithLabelValues(schemeLabel(dest)).Inc()
	}

	return errors.Join(errs...)
}

// link shortens entryLink when it is longer than the configured maximum. A failing
// shortener leaves the link as it is.
func (d *Dispatcher) link(ctx context.Context, entryLink string) string {
	if d.shortener == nil || len(entryLink) <= d.maxLinkLength {
		return entryLink
	}

	short, err := d.shortener.Shorten(ctx, entryLink)
	if err != nil {
		shortenFailures.Inc()
		log.WithFields(log.Fields{
			"link":  entryLink,
			"error": err,
		}).Warn("Failed to shorten link, sending it in full")
		return entryLink
	}
	return short
}

func schemeLabel(dest Destination) string {
	if dest.Scheme == "" {
		return "default"
	}
	return dest.Scheme
}
