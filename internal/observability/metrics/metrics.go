// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_workflow_recorder"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsStopped *prometheus.CounterVec

	// Voice segmentation metrics
	SegmentsEmitted  prometheus.Counter
	SegmentsRejected *prometheus.CounterVec
	SegmentDuration  prometheus.Histogram
	AudioBytesRead   prometheus.Counter
	LevelSamples     prometheus.Counter

	// Transport metrics
	TransportSends         prometheus.Counter
	TransportSendErrors    *prometheus.CounterVec
	TransportReconnects    prometheus.Counter
	TransportUnavailable   prometheus.Counter
	TranscriptionsReceived prometheus.Counter

	// Correlation metrics
	CorrelationRuns       prometheus.Counter
	CorrelatedEvents      prometheus.Counter
	OrphanVoiceEvents     prometheus.Counter
	CorrelationScore      prometheus.Histogram
	BrowserEventsAdded    prometheus.Counter
	BrowserEventsRejected *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of recording sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active recording sessions",
		}),
		SessionsStopped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_stopped_total",
			Help:      "Total number of recording sessions stopped",
		}, []string{"outcome"}),

		SegmentsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_emitted_total",
			Help:      "Total number of voice segments emitted by the segmenter",
		}),
		SegmentsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_rejected_total",
			Help:      "Total number of voice segments rejected before transmission",
		}, []string{"reason"}),
		SegmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_duration_seconds",
			Help:      "Duration of emitted voice segments in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 60},
		}),
		AudioBytesRead: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_read_total",
			Help:      "Total audio bytes read from the input stream",
		}),
		LevelSamples: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_samples_total",
			Help:      "Total audio level samples produced by the monitor",
		}),

		TransportSends: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_sends_total",
			Help:      "Total voice segments sent to the transcription collaborator",
		}),
		TransportSendErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_send_errors_total",
			Help:      "Total failed sends to the transcription collaborator",
		}, []string{"reason"}),
		TransportReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_reconnects_total",
			Help:      "Total reconnect attempts made by the transport",
		}),
		TransportUnavailable: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_unavailable_total",
			Help:      "Total times the transport gave up reconnecting",
		}),
		TranscriptionsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_received_total",
			Help:      "Total transcriptions received from the collaborator",
		}),

		CorrelationRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlation_runs_total",
			Help:      "Total correlate() invocations",
		}),
		CorrelatedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlated_events_total",
			Help:      "Total correlated events produced",
		}),
		OrphanVoiceEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_voice_events_total",
			Help:      "Total transcriptions with no browser event within the window",
		}),
		CorrelationScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "correlation_score",
			Help:      "Distribution of correlation scores on produced events",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1},
		}),
		BrowserEventsAdded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "browser_events_added_total",
			Help:      "Total browser events accepted into sessions",
		}),
		BrowserEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "browser_events_rejected_total",
			Help:      "Total browser events rejected by validation",
		}, []string{"reason"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a recording session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionStop records a recording session stopping.
// Outcome is "ok", or "error" when teardown failed partway.
func (m *Metrics) RecordSessionStop(outcome string) {
	m.SessionsActive.Dec()
	m.SessionsStopped.WithLabelValues(outcome).Inc()
}

// RecordSegmentEmitted records an emitted voice segment.
func (m *Metrics) RecordSegmentEmitted(durationSeconds float64) {
	m.SegmentsEmitted.Inc()
	m.SegmentDuration.Observe(durationSeconds)
}

// RecordSegmentRejected records a rejected voice segment.
// Reason is "too_short" or "too_small".
func (m *Metrics) RecordSegmentRejected(reason string) {
	m.SegmentsRejected.WithLabelValues(reason).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
