package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rssnotify_messages_sent_total",
		Help: "The total number of messages delivered, by destination scheme",
	}, []string{"scheme"})
	sendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rssnotify_send_errors_total",
		Help: "The total number of messages that could not be delivered",
	}, []string{"scheme"})
	shortenFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rssnotify_shorten_failures_total",
		Help: "The total number of links sent unshortened after a shortener failure",
	})
)
