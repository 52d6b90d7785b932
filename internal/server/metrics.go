package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/roomchat/internal/registry"
)

// Metrics holds the Prometheus collectors for one server instance.
type Metrics struct {
	reg         *prometheus.Registry
	connections *prometheus.CounterVec
	active      *prometheus.GaugeVec
	rejections  *prometheus.CounterVec
	dropped     prometheus.Counter
}

// NewMetrics registers process, Go runtime and room registry collectors on a
// private Prometheus registry.
func NewMetrics(rooms *registry.Registry) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "connections_total",
			Help:      "WebSocket connections accepted, by endpoint.",
		}, []string{"endpoint"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "roomchat",
			Name:      "active_connections",
			Help:      "WebSocket connections currently open, by endpoint.",
		}, []string{"endpoint"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "rejections_total",
			Help:      "Error frames sent to clients, by error code.",
		}, []string{"code"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "throttled_messages_total",
			Help:      "Chat messages dropped by the per-connection rate limit.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.active,
		m.rejections,
		m.dropped,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "roomchat",
			Name:      "rooms",
			Help:      "Rooms currently registered.",
		}, func() float64 { return float64(rooms.Stats().Rooms) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "roomchat",
			Name:      "room_occupants",
			Help:      "Connections currently joined to a room.",
		}, func() float64 { return float64(rooms.Stats().Occupants) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "roomchat",
			Name:      "lobby_subscribers",
			Help:      "Connections currently subscribed to the lobby.",
		}, func() float64 { return float64(rooms.Stats().LobbySubscribers) }),
	)
	return m
}

// Handler exposes the collected metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) connectionOpened(endpoint string) {
	m.connections.WithLabelValues(endpoint).Inc()
	m.active.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) connectionClosed(endpoint string) {
	m.active.WithLabelValues(endpoint).Dec()
}

func (m *Metrics) rejected(code string) {
	m.rejections.WithLabelValues(code).Inc()
}

func (m *Metrics) throttled() {
	m.dropped.Inc()
}
