package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"rssnotify/models"
	"strings"
	"sync"
)

// ErrUnknownDestination is returned when no sender handles a channel's scheme
var ErrUnknownDestination = errors.New("unknown destination")

// Destination is a resolved channel. Channels are written scheme:target; a channel
// without a scheme goes to the default sender.
type Destination struct {
	Channel string
	Scheme  string
	Target  string
}

// Host resolves channel names and delivers messages to them
type Host interface {
	ResolveDestination(channel string) (Destination, error)
	Send(ctx context.Context, dest Destination, msg models.Message) error
}

// Sender delivers messages for one destination scheme
type Sender interface {
	Send(ctx context.Context, target string, msg models.Message) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, target string, msg models.Message) error

func (f SenderFunc) Send(ctx context.Context, target string, msg models.Message) error {
	return f(ctx, target, msg)
}

// Router is a Host that picks a Sender by channel scheme
type Router struct {
	senders  map[string]Sender
	fallback Sender
}

// NewRouter creates a router whose unprefixed channels go to fallback. A nil
// fallback makes such channels unknown.
func NewRouter(fallback Sender) *Router {
	return &Router{senders: make(map[string]Sender), fallback: fallback}
}

// Handle registers sender for channels written scheme:target
func (r *Router) Handle(scheme string, sender Sender) {
	r.senders[scheme] = sender
}

func (r *Router) ResolveDestination(channel string) (Destination, error) {
	if scheme, target, ok := strings.Cut(channel, ":"); ok {
		if _, known := r.senders[scheme]; !known || target == "" {
			return Destination{}, fmt.Errorf("%w: %q", ErrUnknownDestination, channel)
		}
		return Destination{Channel: channel, Scheme: scheme, Target: target}, nil
	}
	if r.fallback == nil || channel == "" {
		return Destination{}, fmt.Errorf("%w: %q", ErrUnknownDestination, channel)
	}
	return Destination{Channel: channel, Target: channel}, nil
}

func (r *Router) Send(ctx context.Context, dest Destination, msg models.Message) error {
	if dest.Scheme == "" {
		if r.fallback == nil {
			return fmt.Errorf("%w: %q", ErrUnknownDestination, dest.Channel)
		}
		return r.fallback.Send(ctx, dest.Target, msg)
	}
	sender, ok := r.senders[dest.Scheme]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDestination, dest.Channel)
	}
	return sender.Send(ctx, dest.Target, msg)
}

// JSONLineSender writes every message as a single JSON line
type JSONLineSender struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONLineSender(w io.Writer) *JSONLineSender {
	return &JSONLineSender{w: w}
}

func (s *JSONLineSender) Send(ctx context.Context, target string, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintln(s.w, string(data))
	return err
}
