package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Live channel collectors live on the default registry; the api /metrics handler merges it.
var (
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_chat_ws_connections",
		Help: "Current number of active websocket connections.",
	})
	wsRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_chat_ws_rooms",
		Help: "Current number of websocket rooms with at least one member.",
	})
	wsFramesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_chat_ws_frames_delivered_total",
		Help: "Frames queued to client send buffers.",
	})
	wsSlowClientsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_chat_ws_slow_clients_dropped_total",
		Help: "Connections closed because their send buffer was full.",
	})
	wsEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_chat_ws_events_received_total",
		Help: "Client events received on the live channel, by event name.",
	}, []string{"event"})
	wsEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_chat_ws_events_published_total",
		Help: "Server events published to rooms, by event name and transport.",
	}, []string{"event", "transport"})
	wsFramesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_chat_ws_frames_relayed_total",
		Help: "Room frames received from Redis pub/sub and handed to the local hub.",
	})
)

func incConnections() { wsConnections.Inc() }
func decConnections() { wsConnections.Dec() }

func setRooms(count int) {
	wsRooms.Set(float64(count))
}

func addDelivered(count int) {
	wsFramesDelivered.Add(float64(count))
}

func countDropped() {
	wsSlowClientsDropped.Inc()
}

func countEvent(event string) {
	wsEventsReceived.WithLabelValues(event).Inc()
}

func countPublished(event, transport string, rooms int) {
	wsEventsPublished.WithLabelValues(event, transport).Add(float64(rooms))
}

func countRelayed() {
	wsFramesRelayed.Inc()
}
