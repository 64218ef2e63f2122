package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aviya_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "aviya_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	ChatTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aviya_chat_transitions_total",
			Help: "Chat turns by moderation transition",
		},
		[]string{"transition"},
	)

	CompletionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aviya_completion_outcomes_total",
			Help: "Completion calls by outcome",
		},
		[]string{"outcome"},
	)

	CompletionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aviya_completion_latency_seconds",
			Help:    "Completion latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 9),
		},
	)

	MemoryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aviya_memory_errors_total",
			Help: "Long-term memory operations that failed and were skipped",
		},
		[]string{"op"},
	)

	IdentityErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aviya_identity_errors_total",
			Help: "Identity lookups or role updates that failed; the request continued",
		},
		[]string{"op"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aviya_rate_limited_total",
			Help: "Chat requests rejected by the rate limiter",
		},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aviya_ws_active_connections",
			Help: "Number of open realtime chat connections",
		},
	)
)
