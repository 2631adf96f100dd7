package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 连接指标
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections_active",
		Help: "The current number of active realtime connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_connections_total",
		Help: "The total number of realtime connections accepted.",
	})

	// 事件指标
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_received_total",
		Help: "The total number of client events received, by event name.",
	}, []string{"event"})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_events_dropped_total",
		Help: "The total number of client events dropped (malformed or backpressure).",
	})

	// 认证指标
	AuthSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_auth_success_total",
		Help: "The total number of successful handshakes.",
	})
	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_auth_failures_total",
		Help: "The total number of rejected handshakes.",
	})

	// 在线状态指标
	PresenceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_presence_transitions_total",
		Help: "The total number of presence transitions broadcast, by state.",
	}, []string{"state"})
	ReconcileFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_presence_reconcile_failures_total",
		Help: "The total number of disconnect reconciliations that hit a store failure.",
	})
)
