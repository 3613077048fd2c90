// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Turns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habitvoice_turns_total",
			Help: "Completed turns by input source, command kind and outcome",
		},
		[]string{"source", "kind", "outcome"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "habitvoice_turn_duration_seconds",
			Help:    "Time from classified text to composed response",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	TranscribeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "habitvoice_transcribe_duration_seconds",
			Help:    "Transcription latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	TranscribeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habitvoice_transcribe_errors_total",
			Help: "Failed transcriptions by cause",
		},
		[]string{"cause"},
	)

	ModelReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "habitvoice_stt_model_ready",
			Help: "1 when the speech model is loaded, 0 otherwise",
		},
	)

	ConversationFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habitvoice_conversation_fallbacks_total",
			Help: "Canned replies used instead of the language model",
		},
		[]string{"reason"},
	)

	DataChangedPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "habitvoice_data_changed_published_total",
			Help: "habitDataChanged events published",
		},
	)

	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "habitvoice_event_subscribers",
			Help: "Open /events websocket connections",
		},
	)

	RemindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "habitvoice_reminders_sent_total",
			Help: "Habit reminder pushes delivered",
		},
	)
)
