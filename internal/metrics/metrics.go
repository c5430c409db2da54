// Package metrics exposes the detection core's operational counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors bundles every metric the detection pipeline records. A nil
// *Collectors is safe to pass around; callers guard their increments.
type Collectors struct {
	EmailsAnalyzed prometheus.Counter
	LayerDuration  *prometheus.HistogramVec
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	FeedTimeouts   *prometheus.CounterVec
	FeedErrors     *prometheus.CounterVec
	AlertsRaised   *prometheus.CounterVec
}

// NewCollectors builds and registers the collectors on the given registerer.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		EmailsAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inboxguard",
			Name:      "emails_analyzed_total",
			Help:      "Emails run through the detection pipeline.",
		}),
		LayerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inboxguard",
			Name:      "layer_duration_seconds",
			Help:      "Per-layer analysis latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"layer"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inboxguard",
			Name:      "cache_hits_total",
			Help:      "Cache hits by cache name.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inboxguard",
			Name:      "cache_misses_total",
			Help:      "Cache misses by cache name.",
		}, []string{"cache"}),
		FeedTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inboxguard",
			Name:      "feed_timeouts_total",
			Help:      "Threat feed lookups that exceeded their deadline.",
		}, []string{"feed"}),
		FeedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inboxguard",
			Name:      "feed_errors_total",
			Help:      "Threat feed lookups that failed.",
		}, []string{"feed"}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inboxguard",
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by detector and severity.",
		}, []string{"detector", "severity"}),
	}

	if reg != nil {
		reg.MustRegister(
			c.EmailsAnalyzed, c.LayerDuration,
			c.CacheHits, c.CacheMisses,
			c.FeedTimeouts, c.FeedErrors,
			c.AlertsRaised,
		)
	}
	return c
}
