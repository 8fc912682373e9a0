// Package commands implements the text command surface used by chat hosts and the
// command line client.
package commands

import (
	"context"
	"errors"
	"fmt"
	"rssnotify/models"
	"slices"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrNotAdmin       = errors.New("command requires admin")
	ErrUsage          = errors.New("usage")
)

// Backend is the state owner the commands operate on, implemented by poller.Worker
type Backend interface {
	Feeds(ctx context.Context) (map[string]string, error)
	Subscriptions(ctx context.Context) (map[string][]string, error)
	AddFeeds(ctx context.Context, urls []string) ([]models.Feed, error)
	RemoveFeeds(ctx context.Context, ids []string) (removed, notFound []string, err error)
	Subscribe(ctx context.Context, id string, channels []string) (bool, error)
	Unsubscribe(ctx context.Context, id string, channels []string) (removed, notSubscribed []string, ok bool, err error)
	Check(ctx context.Context) ([]models.CheckResult, error)
}

type Command struct {
	Name    string
	Args    string
	Help    string
	Admin   bool
	MinArgs int
	run     func(ctx context.Context, b Backend, args []string) (string, error)
}

func (c Command) Usage() string {
	if c.Args == "" {
		return c.Name
	}
	return c.Name + " " + c.Args
}

type Handler struct {
	backend  Backend
	commands map[string]Command
}

func NewHandler(backend Backend) *Handler {
	h := &Handler{backend: backend, commands: make(map[string]Command)}
	for _, c := range []Command{
		{Name: "list-feeds", Help: "List registered feeds", run: listFeeds},
		{Name: "list-subscriptions", Help: "List the channels subscribed to each feed", run: listSubscriptions},
		{Name: "add-feed", Args: "<url>...", Help: "Register feeds", Admin: true, MinArgs: 1, run: addFeed},
		{Name: "remove-feed", Args: "<feed-id>...", Help: "Unregister feeds and their subscriptions", Admin: true, MinArgs: 1, run: removeFeed},
		{Name: "subscribe", Args: "<feed-id> <channel>...", Help: "Subscribe channels to a feed", Admin: true, MinArgs: 2, run: subscribe},
		{Name: "unsubscribe", Args: "<feed-id> <channel>...", Help: "Unsubscribe channels from a feed", Admin: true, MinArgs: 2, run: unsubscribe},
		{Name: "check", Help: "Poll every feed now", Admin: true, run: check},
	} {
		h.commands[c.Name] = c
	}
	return h
}

// Commands returns the registered commands sorted by name
func (h *Handler) Commands() []Command {
	out := lo.Values(h.commands)
	slices.SortFunc(out, func(a, b Command) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Execute runs the named command. admin reports whether the caller passed the
// host's admin check.
func (h *Handler) Execute(ctx context.Context, name string, args []string, admin bool) (string, error) {
	if name == "help" {
		return h.help(), nil
	}

	c, ok := h.commands[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if c.Admin && !admin {
		return "", fmt.Errorf("%w: %s", ErrNotAdmin, name)
	}
	if len(args) < c.MinArgs {
		return "", fmt.Errorf("%w: %s", ErrUsage, c.Usage())
	}

	log.WithFields(log.Fields{
		"command": name,
		"args":    args,
	}).Info("Executing command")

	return c.run(ctx, h.backend, args)
}

func (h *Handler) help() string {
	var b strings.Builder
	for _, c := range h.Commands() {
		admin := ""
		if c.Admin {
			admin = " (admin)"
		}
		fmt.Fprintf(&b, "%s - %s%s\n", c.Usage(), c.Help, admin)
	}
	return strings.TrimRight(b.String(), "\n")
}

func listFeeds(ctx context.Context, b Backend, args []string) (string, error) {
	feeds, err := b.Feeds(ctx)
	if err != nil {
		return "", err
	}
	if len(feeds) == 0 {
		return "No feeds registered.", nil
	}

	ids := lo.Keys(feeds)
	slices.Sort(ids)
	lines := lo.Map(ids, func(id string, _ int) string {
		return fmt.Sprintf("%s: %s", id, feeds[id])
	})
	return strings.Join(lines, "\n"), nil
}

func listSubscriptions(ctx context.Context, b Backend, args []string) (string, error) {
	subs, err := b.Subscriptions(ctx)
	if err != nil {
		return "", err
	}
	if len(subs) == 0 {
		return "No feeds registered.", nil
	}

	ids := lo.Keys(subs)
	slices.Sort(ids)
	lines := lo.Map(ids, func(id string, _ int) string {
		if len(subs[id]) == 0 {
			return fmt.Sprintf("%s: (no subscriptions)", id)
		}
		return fmt.Sprintf("%s: %s", id, strings.Join(subs[id], ", "))
	})
	return strings.Join(lines, "\n"), nil
}

func addFeed(ctx context.Context, b Backend, args []string) (string, error) {
	added, err := b.AddFeeds(ctx, args)
	if err != nil {
		return "", err
	}

	lines := []string{"Added feeds:"}
	for _, feed := range added {
		lines = append(lines, fmt.Sprintf("%s: %s", feed.ID, feed.URL))
	}
	return strings.Join(lines, "\n"), nil
}

func removeFeed(ctx context.Context, b Backend, args []string) (string, error) {
	removed, notFound, err := b.RemoveFeeds(ctx, args)
	if err != nil {
		return "", err
	}

	lines := lo.Map(notFound, func(id string, _ int) string {
		return fmt.Sprintf("Feed %s not found.", id)
	})
	if len(removed) > 0 {
		lines = append(lines, "Removed feeds: "+strings.Join(removed, ", "))
	}
	return strings.Join(lines, "\n"), nil
}

func subscribe(ctx context.Context, b Backend, args []string) (string, error) {
	id, channels := args[0], args[1:]
	ok, err := b.Subscribe(ctx, id, channels)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("Feed %s not found.", id), nil
	}
	return fmt.Sprintf("Subscribed %s to %s.", strings.Join(channels, ", "), id), nil
}

func unsubscribe(ctx context.Context, b Backend, args []string) (string, error) {
	id, channels := args[0], args[1:]
	removed, notSubscribed, ok, err := b.Unsubscribe(ctx, id, channels)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("Feed %s not found.", id), nil
	}

	lines := lo.Map(notSubscribed, func(channel string, _ int) string {
		return fmt.Sprintf("%s is not subscribed to %s.", channel, id)
	})
	if len(removed) > 0 {
		lines = append(lines, fmt.Sprintf("Unsubscribed %s from %s.", strings.Join(removed, ", "), id))
	}
	return strings.Join(lines, "\n"), nil
}

func check(ctx context.Context, b Backend, args []string) (string, error) {
	results, err := b.Check(ctx)
	if err != nil {
		return "", err
	}

	dispatched := lo.SumBy(results, func(r models.CheckResult) int { return r.Dispatched })
	lines := []string{fmt.Sprintf("Checked %d feeds, dispatched %d entries.", len(results), dispatched)}
	for _, r := range results {
		if r.Err != nil {
			lines = append(lines, fmt.Sprintf("%s: %s", r.FeedID, r.Err))
		}
	}
	return strings.Join(lines, "\n"), nil
}
