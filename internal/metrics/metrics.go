package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages run through the processing pipeline, by outcome
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmailbot_messages_processed_total",
			Help: "Total number of Gmail messages processed",
		},
		[]string{"outcome"}, // notified, suppressed, awaiting_chat, duplicate, failed
	)

	// History syncs, by result
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmailbot_sync_runs_total",
			Help: "Total number of history sync runs",
		},
		[]string{"result"}, // ok, cursor_reset, failed
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gmailbot_sync_duration_seconds",
			Help:    "History sync duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)

	// Watch renewals, by result
	WatchRenewals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmailbot_watch_renewals_total",
			Help: "Total number of Gmail watch renewal attempts",
		},
		[]string{"result"}, // ok, auth_error, failed, skipped
	)

	// Pub/Sub envelopes, by result
	StreamMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmailbot_stream_messages_total",
			Help: "Total number of Pub/Sub messages received",
		},
		[]string{"result"}, // dispatched, malformed, failed
	)

	StreamReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gmailbot_stream_reconnects_total",
			Help: "Total number of Pub/Sub resubscriptions",
		},
	)

	// Lifecycle actions from Telegram, by action
	UserActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmailbot_user_actions_total",
			Help: "Total number of notification actions",
		},
		[]string{"action", "result"}, // result: ok, rejected, failed
	)

	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gmailbot_llm_call_latency_ms",
			Help:    "Classification call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"status"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmailbot_llm_tokens_total",
			Help: "Total number of classification tokens",
		},
		[]string{"kind"}, // input, cached_input, output
	)
)

// RecordSync records one sync run
func RecordSync(result string, duration time.Duration) {
	SyncRuns.WithLabelValues(result).Inc()
	SyncDuration.Observe(duration.Seconds())
}

// RecordLLMCall records one classification call
func RecordLLMCall(status string, duration time.Duration) {
	LLMCallLatency.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

// RecordTokens adds token counts of one call
func RecordTokens(input, cachedInput, output int64) {
	LLMTokens.WithLabelValues("input").Add(float64(input))
	LLMTokens.WithLabelValues("cached_input").Add(float64(cachedInput))
	LLMTokens.WithLabelValues("output").Add(float64(output))
}
