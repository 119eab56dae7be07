package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	httpRequestsTotal         *prometheus.CounterVec
	httpLatencySeconds        *prometheus.HistogramVec
	httpErrorsTotal           *prometheus.CounterVec
	conversationMessagesTotal *prometheus.CounterVec
	conversationOperations    *prometheus.CounterVec
	conversationEventsTotal   *prometheus.CounterVec
	conversationStreamsActive prometheus.Gauge
	voiceRejectedTotal        *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conversation_http_requests_total",
			Help: "Total number of conversation API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conversation_http_latency_seconds",
			Help:    "Latency distribution for conversation API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conversation_http_errors_total",
			Help: "Total number of error responses returned by conversation endpoints.",
		}, []string{"method", "route", "status"})

		conversationMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conversation_messages_total",
			Help: "Messages appended to conversations by sender role and kind.",
		}, []string{"role", "kind"})

		conversationOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conversation_operations_total",
			Help: "Conversation store operations by name and outcome.",
		}, []string{"operation", "outcome"})

		conversationEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conversation_events_published_total",
			Help: "Conversation change events fanned out per transport.",
		}, []string{"transport"})

		conversationStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conversation_streams_active",
			Help: "Open websocket conversation streams.",
		})

		voiceRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conversation_voice_rejected_total",
			Help: "Voice notes rejected by reason.",
		}, []string{"reason"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			conversationMessagesTotal,
			conversationOperations,
			conversationEventsTotal,
			conversationStreamsActive,
			voiceRejectedTotal,
		)
	})
}

// HTTPRequests exposes the counter for conversation requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for conversation requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for conversation error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ConversationMessages counts appended messages.
func ConversationMessages() *prometheus.CounterVec {
	RegisterMetrics()
	return conversationMessagesTotal
}

// ConversationOperations counts store operations by outcome.
func ConversationOperations() *prometheus.CounterVec {
	RegisterMetrics()
	return conversationOperations
}

// ConversationEventsPublished counts fanned out change events.
func ConversationEventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return conversationEventsTotal
}

// ConversationStreams tracks open websocket streams.
func ConversationStreams() prometheus.Gauge {
	RegisterMetrics()
	return conversationStreamsActive
}

// VoiceRejected counts rejected voice notes.
func VoiceRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return voiceRejectedTotal
}
