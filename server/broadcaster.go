package server

import (
	"context"
	"rssnotify/models"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	sseClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rssnotify_sse_clients",
		Help: "The number of connected SSE clients",
	})
	sseDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rssnotify_sse_dropped_total",
		Help: "The total number of messages dropped because a client channel was full",
	})
)

type client struct {
	channel string
	events  chan models.Message
}

// Broadcaster fans messages for a channel out to the SSE clients listening on it.
// It is the default destination of the dispatcher when serving.
type Broadcaster struct {
	sync.RWMutex
	clients map[string]client
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]client),
	}
}

// Send implements the dispatcher's Sender. Delivery to a slow client is skipped.
func (b *Broadcaster) Send(ctx context.Context, channel string, msg models.Message) error {
	b.Broadcast(channel, msg)
	return nil
}

// Broadcast delivers msg to every client of channel and returns how many got it
func (b *Broadcaster) Broadcast(channel string, msg models.Message) int {
	b.RLock()
	defer b.RUnlock()

	delivered := 0
	for key, c := range b.clients {
		if c.channel != channel {
			continue
		}
		select {
		case c.events <- msg: // Non-blocking send
			delivered++
		default:
			sseDropped.Inc()
			log.Warnf("Client channel full, skipping message for client: %v", key)
		}
	}
	return delivered
}

// AddClient registers events to receive the messages of channel under key
func (b *Broadcaster) AddClient(key, channel string, events chan models.Message) {
	b.Lock()
	defer b.Unlock()
	b.clients[key] = client{channel: channel, events: events}
	sseClients.Set(float64(len(b.clients)))
	log.WithFields(log.Fields{
		"key":     key,
		"channel": channel,
		"count":   len(b.clients),
	}).Info("Adding client to broadcaster")
}

// RemoveClient closes and forgets the client. Unknown keys are ignored.
func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	c, ok := b.clients[key]
	if !ok {
		return
	}
	close(c.events)
	delete(b.clients, key)
	sseClients.Set(float64(len(b.clients)))

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Removed client from broadcaster")
}

// Clients returns the number of clients listening on channel
func (b *Broadcaster) Clients(channel string) int {
	b.RLock()
	defer b.RUnlock()
	n := 0
	for _, c := range b.clients {
		if c.channel == channel {
			n++
		}
	}
	return n
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, c := range b.clients {
		close(c.events)
		delete(b.clients, key)
	}
	sseClients.Set(0)
}
