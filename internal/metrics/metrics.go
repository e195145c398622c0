// Package metrics provides Prometheus metrics for the real-time core.
//
// Key metrics:
//   - Live connections, rooms and notification streams
//   - Messages published, delivered, coalesced and dropped (by reason)
//   - Rate-limit rejections
//   - Cross-instance bridge failures and echo drops
//   - Draft picks by source and time spent on the clock
//   - Failed persistence calls
//
// Every method is safe to call on a nil *Collector, which records nothing.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fantasy_realtime"

// Drop reasons.
const (
	DropQueueFull    = "queue_full"
	DropWriteFailed  = "write_failed"
	DropDisconnected = "disconnected"
	DropRateLimited  = "rate_limited"
)

type Collector struct {
	registry *prometheus.Registry

	connectionsActive prometheus.Gauge
	roomsActive       prometheus.Gauge
	published         *prometheus.CounterVec
	delivered         prometheus.Counter
	dropped           *prometheus.CounterVec
	coalesced         prometheus.Counter
	rateLimited       prometheus.Counter
	bridgeFailures    prometheus.Counter
	bridgeEchoes      prometheus.Counter
	bridgeReceived    prometheus.Counter
	picks             *prometheus.CounterVec
	timeOnClock       prometheus.Histogram
	storeFailures     *prometheus.CounterVec
	streamsOpen       prometheus.Gauge
	frames            *prometheus.CounterVec
}

// New builds a Collector on its own registry, so several can coexist in tests.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections_active",
			Help: "Connections currently registered on this instance.",
		}),
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rooms_active",
			Help: "Rooms with at least one local member.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_published_total",
			Help: "Messages published to rooms, by room kind.",
		}, []string{"kind"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_delivered_total",
			Help: "Frames written to sockets.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_dropped_total",
			Help: "Outbound messages discarded before delivery, by reason.",
		}, []string{"reason"}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_coalesced_total",
			Help: "Pending messages replaced by a newer message with the same key.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ratelimit_rejected_total",
			Help: "Inbound events rejected by the rate limiter.",
		}),
		bridgeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bridge_publish_failures_total",
			Help: "Remote publishes that fell back to local-only fan-out.",
		}),
		bridgeEchoes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bridge_echo_dropped_total",
			Help: "Broker messages dropped because this instance originated them.",
		}),
		bridgeReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bridge_received_total",
			Help: "Broker messages from other instances delivered locally.",
		}),
		picks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "draft_picks_total",
			Help: "Committed draft picks, by source.",
		}, []string{"source"}),
		timeOnClock: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "draft_time_on_clock_seconds",
			Help:    "Time between a team going on the clock and its pick.",
			Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 90, 120, 180},
		}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_failures_total",
			Help: "Persistence calls that failed, by operation.",
		}, []string{"op"}),
		streamsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "notification_streams_open",
			Help: "Open one-way notification streams.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notification_frames_total",
			Help: "Notification stream frames written, by event.",
		}, []string{"event"}),
	}

	c.registry.MustRegister(
		c.connectionsActive, c.roomsActive, c.published, c.delivered, c.dropped,
		c.coalesced, c.rateLimited, c.bridgeFailures, c.bridgeEchoes, c.bridgeReceived,
		c.picks, c.timeOnClock, c.storeFailures, c.streamsOpen, c.frames,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Inc()
}

func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Dec()
}

func (c *Collector) RoomCreated() {
	if c == nil {
		return
	}
	c.roomsActive.Inc()
}

func (c *Collector) RoomDestroyed() {
	if c == nil {
		return
	}
	c.roomsActive.Dec()
}

// Published counts a publish to room, labelled by the room's prefix.
func (c *Collector) Published(room string) {
	if c == nil {
		return
	}
	kind, _, ok := strings.Cut(room, ":")
	if !ok {
		kind = "other"
	}
	c.published.WithLabelValues(kind).Inc()
}

func (c *Collector) Delivered(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.delivered.Add(float64(n))
}

func (c *Collector) Dropped(reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.dropped.WithLabelValues(reason).Add(float64(n))
}

func (c *Collector) Coalesced() {
	if c == nil {
		return
	}
	c.coalesced.Inc()
}

func (c *Collector) RateLimited() {
	if c == nil {
		return
	}
	c.rateLimited.Inc()
}

func (c *Collector) BridgePublishFailed() {
	if c == nil {
		return
	}
	c.bridgeFailures.Inc()
}

func (c *Collector) BridgeEchoDropped() {
	if c == nil {
		return
	}
	c.bridgeEchoes.Inc()
}

func (c *Collector) BridgeReceived() {
	if c == nil {
		return
	}
	c.bridgeReceived.Inc()
}

// PickCommitted records a pick; source is "manual" or "auto".
func (c *Collector) PickCommitted(source string, onClock time.Duration) {
	if c == nil {
		return
	}
	c.picks.WithLabelValues(source).Inc()
	if onClock >= 0 {
		c.timeOnClock.Observe(onClock.Seconds())
	}
}

// StoreFailed counts a failed persistence call such as "append_pick" or "archive".
func (c *Collector) StoreFailed(op string) {
	if c == nil {
		return
	}
	c.storeFailures.WithLabelValues(op).Inc()
}

func (c *Collector) StreamOpened() {
	if c == nil {
		return
	}
	c.streamsOpen.Inc()
}

func (c *Collector) StreamClosed() {
	if c == nil {
		return
	}
	c.streamsOpen.Dec()
}

func (c *Collector) FrameSent(event string) {
	if c == nil {
		return
	}
	c.frames.WithLabelValues(event).Inc()
}

// Accessors for assertions with prometheus/testutil.

func (c *Collector) ConnectionsActive() prometheus.Collector { return c.connectionsActive }
func (c *Collector) RoomsActive() prometheus.Collector { return c.roomsActive }
func (c *Collector) DeliveredTotal() prometheus.Collector { return c.delivered }
func (c *Collector) CoalescedTotal() prometheus.Collector { return c.coalesced }
func (c *Collector) BridgeFailuresTotal() prometheus.Collector { return c.bridgeFailures }
func (c *Collector) BridgeEchoesTotal() prometheus.Collector { return c.bridgeEchoes }
func (c *Collector) StreamsOpen() prometheus.Collector { return c.streamsOpen }

func (c *Collector) DroppedTotal(reason string) prometheus.Collector {
	return c.dropped.WithLabelValues(reason)
}

func (c *Collector) StoreFailuresTotal(op string) prometheus.Collector {
	return c.storeFailures.WithLabelValues(op)
}

func (c *Collector) PicksTotal(source string) prometheus.Collector {
	return c.picks.WithLabelValues(source)
}
