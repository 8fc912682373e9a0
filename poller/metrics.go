package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rssnotify_poll_cycles_total",
		Help: "The total number of completed poll cycles",
	})
	pollCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rssnotify_poll_cycle_duration_seconds",
		Help:    "Duration of a full poll cycle over all feeds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	fetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rssnotify_fetch_errors_total",
		Help: "The total number of failed feed fetches",
	}, []string{"feed"})
	entriesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rssnotify_entries_dispatched_total",
		Help: "The total number of new entries dispatched",
	}, []string{"feed"})
	persistErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rssnotify_persist_errors_total",
		Help: "The total number of failed state writes",
	})
	registeredFeeds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rssnotify_registered_feeds",
		Help: "The number of registered feeds",
	})
)
