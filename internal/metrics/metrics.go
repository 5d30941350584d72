package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdvp_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fdvp_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Real-time metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fdvp_ws_connections",
			Help: "Open websocket connections",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fdvp_online_users",
			Help: "Distinct users with at least one open connection",
		},
	)

	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdvp_presence_transitions_total",
			Help: "Online/offline edge transitions",
		},
		[]string{"direction"}, // "online" or "offline"
	)

	// Business metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fdvp_messages_sent_total",
			Help: "Messages accepted by the send pipeline",
		},
	)

	MessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdvp_messages_failed_total",
			Help: "Sends aborted by the pipeline",
		},
		[]string{"step"}, // "validate", "persist", "index"
	)

	NotificationsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdvp_notifications_emitted_total",
			Help: "Notifications emitted to absent recipients",
		},
		[]string{"channel"}, // "room" or "push"
	)

	ReadReceipts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fdvp_read_receipts_total",
			Help: "Messages marked as read",
		},
	)

	TypingEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fdvp_typing_events_total",
			Help: "Typing indicator relays",
		},
	)
)
