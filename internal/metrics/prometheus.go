// Package metrics defines the Prometheus instrumentation for the voice
// pipeline, exposed over the debug HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice pipeline.
type Metrics struct {
	// Capture metrics
	FramesCaptured prometheus.Counter
	SamplesDropped prometheus.Counter
	CaptureErrors  prometheus.Counter

	// Recognition metrics
	ActiveSessions     prometheus.Gauge
	SessionsFinalized  prometheus.Counter
	SessionsFailed     prometheus.Counter
	SessionDuration    prometheus.Histogram
	FramesSent         prometheus.Counter
	EmptyTranscripts   prometheus.Counter
	TranscriptLength   prometheus.Histogram

	// Turn metrics
	TurnsCompleted  prometheus.Counter
	TurnsErrored    prometheus.Counter
	TurnDuration    prometheus.Histogram
	ChunkEvents     prometheus.Counter
	AudioEvents     prometheus.Counter
	MalformedEvents prometheus.Counter

	// Playback metrics
	PayloadsPlayed   prometheus.Counter
	PlaybackFailures prometheus.Counter
	PlaybackPending  prometheus.Gauge

	// Backend client metrics
	BackendRequests *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec

	// Debug HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Capture metrics
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_frames_captured_total",
			Help: "Total number of audio frames assembled from the capture device",
		}),
		SamplesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_capture_samples_dropped_total",
			Help: "Total number of samples dropped by the capture ring buffer",
		}),
		CaptureErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_capture_errors_total",
			Help: "Total number of capture device failures",
		}),

		// Recognition metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roleverse_active_recognition_sessions",
			Help: "Current number of live recognition sessions",
		}),
		SessionsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_recognition_sessions_finalized_total",
			Help: "Total number of recognition sessions that delivered a transcript",
		}),
		SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_recognition_sessions_failed_total",
			Help: "Total number of recognition sessions that failed",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "roleverse_recognition_session_duration_seconds",
			Help:    "Duration of recognition sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~8.5 minutes
		}),
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_recognition_frames_sent_total",
			Help: "Total number of audio frames delivered to the recognizer",
		}),
		EmptyTranscripts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_recognition_empty_transcripts_total",
			Help: "Total number of sessions that finalized with an empty transcript",
		}),
		TranscriptLength: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "roleverse_recognition_transcript_length_chars",
			Help:    "Length of final transcripts in characters",
			Buckets: prometheus.ExponentialBuckets(4, 2, 10), // 4 to ~2k chars
		}),

		// Turn metrics
		TurnsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_turns_completed_total",
			Help: "Total number of conversation turns that completed",
		}),
		TurnsErrored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_turns_errored_total",
			Help: "Total number of conversation turns that errored",
		}),
		TurnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "roleverse_turn_duration_seconds",
			Help:    "Wall time from turn submission to terminal status",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~2 minutes
		}),
		ChunkEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_stream_chunk_events_total",
			Help: "Total number of text chunk events applied",
		}),
		AudioEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_stream_audio_events_total",
			Help: "Total number of audio events applied",
		}),
		MalformedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_stream_malformed_events_total",
			Help: "Total number of malformed stream events skipped",
		}),

		// Playback metrics
		PayloadsPlayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_playback_payloads_played_total",
			Help: "Total number of audio payloads played to completion",
		}),
		PlaybackFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roleverse_playback_failures_total",
			Help: "Total number of payloads that failed to decode or play",
		}),
		PlaybackPending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roleverse_playback_pending",
			Help: "Current number of payloads waiting to play",
		}),

		// Backend client metrics
		BackendRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roleverse_backend_requests_total",
			Help: "Total number of backend requests by endpoint and outcome",
		}, []string{"endpoint", "status"}),
		BackendDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roleverse_backend_request_duration_seconds",
			Help:    "Backend request latency by endpoint",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}, []string{"endpoint"}),

		// Debug HTTP metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roleverse_http_requests_total",
			Help: "Total number of debug HTTP requests by path and status",
		}, []string{"path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roleverse_http_request_duration_seconds",
			Help:    "Debug HTTP request latency by path",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}, []string{"path"}),
	}
}
