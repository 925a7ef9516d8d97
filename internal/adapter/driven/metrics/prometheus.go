package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devmeet"

// Prometheus implements port.Metrics on top of a dedicated registry so
// several relays (and tests) can coexist in one process.
type Prometheus struct {
	registry *prometheus.Registry

	connections  prometheus.Gauge
	connsTotal   prometheus.Counter
	joins        prometheus.Counter
	rooms        prometheus.Gauge
	relayed      prometheus.Counter
	dropped      *prometheus.CounterVec
	notifyFailed *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live signaling connections.",
		}),
		connsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Signaling connections accepted since start.",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_joins_total",
			Help:      "Successful room joins.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_relayed_total",
			Help:      "Signals delivered to their recipient's send queue.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_dropped_total",
			Help:      "Signals dropped before delivery, by reason.",
		}, []string{"reason"}),
		notifyFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Room notifications that could not be queued, by event.",
		}, []string{"event"}),
	}

	p.registry.MustRegister(
		p.connections,
		p.connsTotal,
		p.joins,
		p.rooms,
		p.relayed,
		p.dropped,
		p.notifyFailed,
		collectors.NewGoCollector(),
	)
	return p
}

func (p *Prometheus) ConnectionOpened() {
	p.connections.Inc()
	p.connsTotal.Inc()
}

func (p *Prometheus) ConnectionClosed() {
	p.connections.Dec()
}

func (p *Prometheus) RoomJoined() {
	p.joins.Inc()
}

func (p *Prometheus) SignalRelayed() {
	p.relayed.Inc()
}

func (p *Prometheus) SignalDropped(reason string) {
	p.dropped.WithLabelValues(reason).Inc()
}

func (p *Prometheus) NotificationFailed(event string) {
	p.notifyFailed.WithLabelValues(event).Inc()
}

func (p *Prometheus) RoomsActive(n int) {
	p.rooms.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
