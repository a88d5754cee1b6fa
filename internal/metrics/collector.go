package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RelayStats provides the metrics collector access to live relay state.
type RelayStats interface {
	SessionActive() bool
	BufferedFragments() int
	SummaryQueuePending() int
}

// SubscriberStats reports how many clients are attached to the event bus.
type SubscriberStats interface {
	SubscriberCount() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	relay RelayStats
	subs  SubscriberStats

	sessionActive     *prometheus.Desc
	bufferedFragments *prometheus.Desc
	summaryPending    *prometheus.Desc
	subscribers       *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Either source may be nil (metrics will report 0).
func NewCollector(relay RelayStats, subs SubscriberStats) *Collector {
	return &Collector{
		relay: relay,
		subs:  subs,
		sessionActive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "session_active"),
			"1 if a transcription engine session is running.",
			nil, nil,
		),
		bufferedFragments: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "transcript", "buffered_fragments"),
			"Fragments currently held in the transcript window.",
			nil, nil,
		),
		summaryPending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "summary", "queue_pending"),
			"Summary requests waiting for a worker.",
			nil, nil,
		),
		subscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "event_subscribers_active"),
			"Current number of event subscribers (SSE, websocket, mqtt).",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessionActive
	ch <- c.bufferedFragments
	ch <- c.summaryPending
	ch <- c.subscribers
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var active, fragments, pending, subs float64
	if c.relay != nil {
		if c.relay.SessionActive() {
			active = 1
		}
		fragments = float64(c.relay.BufferedFragments())
		pending = float64(c.relay.SummaryQueuePending())
	}
	if c.subs != nil {
		subs = float64(c.subs.SubscriberCount())
	}
	ch <- prometheus.MustNewConstMetric(c.sessionActive, prometheus.GaugeValue, active)
	ch <- prometheus.MustNewConstMetric(c.bufferedFragments, prometheus.GaugeValue, fragments)
	ch <- prometheus.MustNewConstMetric(c.summaryPending, prometheus.GaugeValue, pending)
	ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, subs)
}
