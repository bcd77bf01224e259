package chatclient

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the client-side counters. A nil Registerer leaves them
// unregistered, which is what tests and multi-client processes want.
type Metrics struct {
	framesDispatched *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	reconnects       prometheus.Counter
	state            prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "client",
			Name:      "frames_dispatched_total",
			Help:      "Inbound frames delivered to a subscription handler.",
		}, []string{"kind"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "client",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped before reaching a handler.",
		}, []string{"reason"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "client",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after a failure or lost connection.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Subsystem: "client",
			Name:      "connection_state",
			Help:      "Current session state (0 disconnected, 1 connecting, 2 connected, 3 reconnect pending).",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.framesDispatched, m.framesDropped, m.reconnects, m.state)
	}
	return m
}

const (
	dropUnroutable   = "unroutable"
	dropUnregistered = "unregistered"
	dropDecode       = "decode"
	dropPanic        = "handler_panic"
	dropStale        = "stale_connection"
)
