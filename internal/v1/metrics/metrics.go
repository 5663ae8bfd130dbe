package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the signaling hub.
//
// Naming convention: namespace_subsystem_name
// - namespace: signaling (application-level grouping)
// - subsystem: websocket, room, ratelimit (feature-level grouping)
//
// Metric Types:
// - Gauge: current state (connections, rooms)
// - Counter: cumulative events (messages routed, drops, refusals)

var (
	// ActiveConnections tracks the current number of live WebSocket sessions.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ConnectionsTotal counts every admitted connection since process start.
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "connections_total",
		Help:      "Total WebSocket connections admitted",
	})

	// ActiveRooms tracks the current number of rendezvous rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomsExpired counts rooms removed by the expiry sweeper.
	RoomsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "room",
		Name:      "rooms_expired_total",
		Help:      "Total rooms removed after exceeding their lifetime",
	})

	// MessagesRouted counts messages the hub enqueued for delivery.
	MessagesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "messages_routed_total",
		Help:      "Total signaling messages routed to client outboxes",
	}, []string{"type"})

	// MessagesDropped counts per-recipient drops (full outbox, unknown target).
	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "messages_dropped_total",
		Help:      "Total signaling messages dropped before delivery",
	}, []string{"reason"})

	// RateLimitExceeded counts refused admissions.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "ratelimit",
		Name:      "refusals_total",
		Help:      "Total requests refused by rate limiting",
	}, []string{"surface"})
)

func IncConnection() {
	ActiveConnections.Inc()
	ConnectionsTotal.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
