package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus instrumentation.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "hivesync").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus instrumentation.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics holds the Prometheus metrics for a sync client. A nil
// *Metrics disables instrumentation; every method is nil-safe.
type Metrics struct {
	connectsTotal      prometheus.Counter
	connectErrorsTotal prometheus.Counter
	reconnectsTotal    prometheus.Counter
	disconnectsTotal   prometheus.Counter
	envelopesReceived  *prometheus.CounterVec
	actionsSent        *prometheus.CounterVec
	actionsQueued      prometheus.Counter
	queueDepth         prometheus.Gauge
}

// NewMetrics creates and registers the client metrics.
//
// Metrics collected:
//   - hivesync_connects_total: successful handshakes
//   - hivesync_connect_errors_total: failed handshakes
//   - hivesync_reconnects_total: successful automatic reconnections
//   - hivesync_disconnects_total: connection drops
//   - hivesync_envelopes_received_total: inbound envelopes by type
//   - hivesync_actions_sent_total: outbound actions by type
//   - hivesync_actions_queued_total: actions buffered while offline
//   - hivesync_queue_depth: current outbound queue depth
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "hivesync",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		connectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "connects_total",
			Help:        "Total number of successful handshakes",
			ConstLabels: config.ConstLabels,
		}),
		connectErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "connect_errors_total",
			Help:        "Total number of failed connection attempts",
			ConstLabels: config.ConstLabels,
		}),
		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "reconnects_total",
			Help:        "Total number of successful reconnections",
			ConstLabels: config.ConstLabels,
		}),
		disconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "disconnects_total",
			Help:        "Total number of connection drops",
			ConstLabels: config.ConstLabels,
		}),
		envelopesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "envelopes_received_total",
			Help:        "Total inbound envelopes by type tag",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
		actionsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "actions_sent_total",
			Help:        "Total outbound actions transmitted by type tag",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
		actionsQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "actions_queued_total",
			Help:        "Total actions buffered while disconnected",
			ConstLabels: config.ConstLabels,
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "queue_depth",
			Help:        "Current outbound queue depth",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// RecordConnect records a successful handshake.
func (m *Metrics) RecordConnect(reconnect bool) {
	if m == nil {
		return
	}
	m.connectsTotal.Inc()
	if reconnect {
		m.reconnectsTotal.Inc()
	}
}

// RecordConnectError records a failed connection attempt.
func (m *Metrics) RecordConnectError() {
	if m == nil {
		return
	}
	m.connectErrorsTotal.Inc()
}

// RecordDisconnect records a connection drop.
func (m *Metrics) RecordDisconnect() {
	if m == nil {
		return
	}
	m.disconnectsTotal.Inc()
}

// RecordEnvelope records an inbound envelope.
func (m *Metrics) RecordEnvelope(typ string) {
	if m == nil {
		return
	}
	m.envelopesReceived.WithLabelValues(typ).Inc()
}

// RecordSend records a transmitted action.
func (m *Metrics) RecordSend(typ string) {
	if m == nil {
		return
	}
	m.actionsSent.WithLabelValues(typ).Inc()
}

// RecordQueued records an action buffered while disconnected.
func (m *Metrics) RecordQueued(depth int) {
	if m == nil {
		return
	}
	m.actionsQueued.Inc()
	m.queueDepth.Set(float64(depth))
}

// RecordQueueDepth updates the queue depth gauge.
func (m *Metrics) RecordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
