package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_active_connections",
			Help: "Current number of connected websocket clients.",
		},
	)
	activeRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_active_rooms",
			Help: "Current number of rooms with at least one member.",
		},
	)
	eventsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signaling_events_delivered_total",
			Help: "Total events delivered to client send buffers.",
		},
	)
	framesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signaling_frames_dropped_total",
			Help: "Total outbound frames dropped because a client send buffer was full.",
		},
	)
)

func init() {
	prometheus.MustRegister(activeConnections, activeRooms, eventsDelivered, framesDropped)
}
