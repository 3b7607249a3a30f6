package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabsphere_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collabsphere_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collabsphere_users_registered_total",
			Help: "Total users registered",
		},
	)

	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collabsphere_messages_posted_total",
			Help: "Total messages posted",
		},
	)

	// Live channel metrics
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collabsphere_live_connections",
			Help: "Open live channel connections",
		},
	)

	LiveRelays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabsphere_live_relays_total",
			Help: "sendMessage relays by outcome",
		},
		[]string{"outcome"}, // "relayed" or "rejected"
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collabsphere_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collabsphere_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	// Client chat session metrics
	ChatMessagesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collabsphere_chat_messages_stored_total",
			Help: "Messages inserted into client message stores",
		},
	)

	ChatDuplicatesCollapsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collabsphere_chat_duplicates_collapsed_total",
			Help: "Messages ignored because their id was already stored",
		},
	)

	ChatValidationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collabsphere_chat_validation_failures_total",
			Help: "Malformed messages rejected by client message stores",
		},
	)

	ChatReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collabsphere_chat_reconnect_attempts_total",
			Help: "Failed live channel reconnect attempts",
		},
	)

	ChatSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collabsphere_chat_sessions_active",
			Help: "Open chat sessions",
		},
	)
)
