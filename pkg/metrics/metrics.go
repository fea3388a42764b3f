// Package metrics exposes Prometheus collectors for the pub/sub server.
//
// Metrics collected (with the default namespace):
//   - nsbus_connections_total: Counter of handshakes by kind (new, reconnect)
//   - nsbus_open_connections: Gauge of connections currently open
//   - nsbus_frames_received_total: Counter of inbound frames by kind
//     (sub, unsub, event, dropped)
//   - nsbus_published_total: Counter of Publish calls
//   - nsbus_deliveries_total: Counter of frames sent by Publish
//   - nsbus_publish_duration_seconds: Histogram of Publish fan-out duration
//   - nsbus_send_errors_total: Counter of failed transport sends
//   - nsbus_evictions_total: Counter of registry entries evicted
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame kinds recorded by FrameReceived.
const (
	FrameSub     = "sub"
	FrameUnsub   = "unsub"
	FrameEvent   = "event"
	FrameDropped = "dropped"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "nsbus").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for publish duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "nsbus",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the server collectors.
type Metrics struct {
	connectionsTotal *prometheus.CounterVec
	openConnections  prometheus.Gauge
	framesReceived   *prometheus.CounterVec
	publishedTotal   prometheus.Counter
	deliveriesTotal  prometheus.Counter
	publishDuration  prometheus.Histogram
	sendErrors       prometheus.Counter
	evictionsTotal   prometheus.Counter
}

// New registers the collectors and returns them. Registering twice against
// the same registry panics, as with any promauto collector.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if len(config.Buckets) == 0 {
		config.Buckets = prometheus.DefBuckets
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_total",
			Help:        "Total number of connection handshakes by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		openConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "open_connections",
			Help:        "Number of open WebSocket connections",
			ConstLabels: config.ConstLabels,
		}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_received_total",
			Help:        "Total number of inbound frames by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		publishedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "published_total",
			Help:        "Total number of frames published",
			ConstLabels: config.ConstLabels,
		}),

		deliveriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "deliveries_total",
			Help:        "Total number of frames delivered to subscribers",
			ConstLabels: config.ConstLabels,
		}),

		publishDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "publish_duration_seconds",
			Help:        "Publish fan-out duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		sendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "send_errors_total",
			Help:        "Total number of failed transport sends",
			ConstLabels: config.ConstLabels,
		}),

		evictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "evictions_total",
			Help:        "Total number of closed connections evicted from the registry",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// ConnectionOpened records a completed handshake.
func (m *Metrics) ConnectionOpened(isNew bool) {
	if m == nil {
		return
	}
	kind := "reconnect"
	if isNew {
		kind = "new"
	}
	m.connectionsTotal.WithLabelValues(kind).Inc()
	m.openConnections.Inc()
}

// ConnectionClosed records a connection leaving the open state.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.openConnections.Dec()
}

// FrameReceived records an inbound frame of the given kind.
func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind).Inc()
}

// Published records one Publish call that reached deliveries subscribers.
func (m *Metrics) Published(deliveries int, duration time.Duration) {
	if m == nil {
		return
	}
	m.publishedTotal.Inc()
	m.deliveriesTotal.Add(float64(deliveries))
	m.publishDuration.Observe(duration.Seconds())
}

// SendError records a failed transport send.
func (m *Metrics) SendError() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

// Evicted records n registry evictions.
func (m *Metrics) Evicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictionsTotal.Add(float64(n))
}
