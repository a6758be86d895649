package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roomcast"

// Metrics holds the collectors exported by a server instance.
// All methods are safe to call on a nil receiver so core code can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	connections     prometheus.Gauge
	rooms           prometheus.Gauge
	broadcasts      prometheus.Counter
	deliveries      prometheus.Counter
	evictions       prometheus.Counter
	invalidPayloads prometheus.Counter
	rateLimited     prometheus.Counter
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Messages fanned out to a room.",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Events queued to member connections.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Connections dropped because their outbound queue overflowed.",
		}),
		invalidPayloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_payloads_total",
			Help:      "Inbound events dropped as malformed.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Inbound events dropped by the per-connection rate limit.",
		}),
	}
	reg.MustRegister(
		m.connections,
		m.rooms,
		m.broadcasts,
		m.deliveries,
		m.evictions,
		m.invalidPayloads,
		m.rateLimited,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler returns an http.Handler for Prometheus scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

// SetRooms records the current number of live rooms.
func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.rooms.Set(float64(n))
	}
}

// Broadcast records one fan-out that reached delivered members.
func (m *Metrics) Broadcast(delivered int) {
	if m != nil {
		m.broadcasts.Inc()
		m.deliveries.Add(float64(delivered))
	}
}

func (m *Metrics) Evicted() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Metrics) InvalidPayload() {
	if m != nil {
		m.invalidPayloads.Inc()
	}
}

func (m *Metrics) RateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}
