package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_chat_sessions_created_total",
			Help: "Total chat sessions created.",
		},
	)
	messagesStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_chat_messages_stored_total",
			Help: "Total chat messages persisted, by sender type.",
		},
		[]string{"sender"},
	)
	messagesDeduplicated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_chat_messages_deduplicated_total",
			Help: "Message posts answered from the idempotency store instead of persisting again.",
		},
	)
)

func init() {
	prometheus.MustRegister(sessionsCreated, messagesStored, messagesDeduplicated)
}
