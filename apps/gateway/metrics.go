package main

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	clients     prometheus.Gauge
	frames      *prometheus.CounterVec
	delivered   prometheus.Counter
	slowClients prometheus.Counter
	authFailed  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat", Subsystem: "gateway", Name: "connected_clients",
			Help: "Websocket clients currently connected.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "gateway", Name: "frames_received_total",
			Help: "Frames received from clients by command and outcome.",
		}, []string{"command", "outcome"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "gateway", Name: "frames_delivered_total",
			Help: "MESSAGE frames queued to subscribers.",
		}),
		slowClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "gateway", Name: "slow_clients_total",
			Help: "Clients dropped because their send buffer was full.",
		}),
		authFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat", Subsystem: "gateway", Name: "auth_failures_total",
			Help: "Connections rejected for a missing or invalid token.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.clients, m.frames, m.delivered, m.slowClients, m.authFailed)
	}
	return m
}
