// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks bridge request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_request_duration_seconds",
			Help:    "Bridge request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total bridge requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_requests_total",
			Help: "Total bridge requests",
		},
		[]string{"method", "path", "status"},
	)

	// CompletionDuration tracks completion call duration.
	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "completion_duration_seconds",
			Help:    "Completion endpoint round-trip duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"model", "outcome"},
	)

	// CompletionTokensTotal tracks tokens reported by the provider.
	CompletionTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_tokens_total",
			Help: "Total tokens reported by the completion endpoint",
		},
		[]string{"model", "direction"},
	)

	// TurnsTotal tracks turns appended to the conversation log.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Total turns appended to the conversation log",
		},
		[]string{"role"},
	)

	// ConversationLength tracks the current number of turns in the log.
	ConversationLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conversation_length_turns",
			Help: "Number of turns in the current conversation session",
		},
	)

	// ClearsTotal tracks conversation clears.
	ClearsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_clears_total",
			Help: "Total conversation clears",
		},
	)

	// SettingsOpsTotal tracks settings file loads and saves.
	SettingsOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settings_operations_total",
			Help: "Settings file operations",
		},
		[]string{"op", "outcome"},
	)

	// TranscriptMirrorFailures tracks failed publishes to the transcript stream.
	TranscriptMirrorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_mirror_failures_total",
			Help: "Failed transcript stream publishes",
		},
		[]string{"kind"},
	)
)

// RecordRequest records metrics for a bridge request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCompletion records metrics for a completion round-trip.
func RecordCompletion(model, outcome string, duration float64, tokensIn, tokensOut int) {
	CompletionDuration.WithLabelValues(model, outcome).Observe(duration)
	if tokensIn > 0 {
		CompletionTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		CompletionTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
	}
}
