// Package metrics collects and exposes Prometheus metrics for the feed
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector registers and records the engine's metrics. It satisfies the
// recorder interfaces of the realtime and media packages.
type Collector struct {
	eventsReceived *prometheus.CounterVec
	eventsDeduped  prometheus.Counter
	eventsDropped  prometheus.Counter
	reconnects     prometheus.Counter
	mediaResolved  prometheus.Counter
	mediaGone      prometheus.Counter
	backfillPages  prometheus.Counter
	feedSize       prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorfeed_push_events_total",
			Help: "Push events dequeued for dispatch, by event type.",
		}, []string{"type"}),
		eventsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirrorfeed_push_events_deduplicated_total",
			Help: "Push events suppressed by the dedup cache.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirrorfeed_push_events_dropped_total",
			Help: "Push events dropped as malformed or of unknown type.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirrorfeed_push_reconnects_total",
			Help: "Reconnect attempts against the push channel.",
		}),
		mediaResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirrorfeed_media_resolved_total",
			Help: "Media resolutions that produced a URL.",
		}),
		mediaGone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirrorfeed_media_unavailable_total",
			Help: "Media resolutions that exhausted their attempt budget.",
		}),
		backfillPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirrorfeed_backfill_pages_total",
			Help: "Backfill pages fetched from the mirror backend.",
		}),
		feedSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mirrorfeed_feed_posts",
			Help: "Posts currently held in the feed store.",
		}),
	}

	reg.MustRegister(
		c.eventsReceived,
		c.eventsDeduped,
		c.eventsDropped,
		c.reconnects,
		c.mediaResolved,
		c.mediaGone,
		c.backfillPages,
		c.feedSize,
	)
	return c
}

// RecordEventReceived counts a dequeued push event.
func (c *Collector) RecordEventReceived(kind string) {
	c.eventsReceived.WithLabelValues(kind).Inc()
}

// RecordEventDeduplicated counts a dedup-cache suppression.
func (c *Collector) RecordEventDeduplicated() {
	c.eventsDeduped.Inc()
}

// RecordEventDropped counts a malformed or unknown event.
func (c *Collector) RecordEventDropped() {
	c.eventsDropped.Inc()
}

// RecordReconnect counts a reconnect attempt.
func (c *Collector) RecordReconnect() {
	c.reconnects.Inc()
}

// RecordMediaResolved counts a successful media resolution.
func (c *Collector) RecordMediaResolved() {
	c.mediaResolved.Inc()
}

// RecordMediaUnavailable counts an exhausted media resolution.
func (c *Collector) RecordMediaUnavailable() {
	c.mediaGone.Inc()
}

// RecordBackfillPage counts a fetched backfill page.
func (c *Collector) RecordBackfillPage() {
	c.backfillPages.Inc()
}

// SetFeedSize records the current feed store size.
func (c *Collector) SetFeedSize(n int) {
	c.feedSize.Set(float64(n))
}
