// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the voice pipeline and correlation policy.
const (
	DefaultSilenceThreshold   = 0.01
	DefaultSilenceDuration    = 1500 * time.Millisecond
	DefaultMinSegmentDuration = 500 * time.Millisecond
	DefaultMinSegmentBytes    = 8 * 1024
	DefaultCorrelationWindow  = 5 * time.Second
	DefaultMinScore           = 0.5
	DefaultReconnectBackoff   = 2 * time.Second
	DefaultMaxReconnects      = 5
	DefaultPollInterval       = 16 * time.Millisecond
)

// Config holds all service configuration.
type Config struct {
	// HTTP API
	HTTPPort string
	// Observability server (metrics + health)
	MetricsPort string

	// Voice segmentation
	SilenceThreshold   float64
	SilenceDuration    time.Duration
	MinSegmentDuration time.Duration
	MinSegmentBytes    int
	PollInterval       time.Duration

	// Audio format advertised to the transcription collaborator
	SampleRate int
	MimeType   string

	// Transcription collaborator
	STTProvider   string // websocket, google, mock
	TranscriberWS string
	// Transport reconnect policy
	ReconnectBackoff     time.Duration
	MaxReconnectAttempts int

	// Correlation policy
	CorrelationWindow time.Duration
	MinScore          float64
	StrictURLMatch    bool

	// Kafka output
	Kafka KafkaConfig
}

// KafkaConfig holds the publisher settings for correlated output.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicCorrelated string
	TopicOrphan     string
	Principal       string
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		HTTPPort:    envOrDefault("HTTP_PORT", "7331"),
		MetricsPort: envOrDefault("METRICS_PORT", "9090"),

		SilenceThreshold:   envFloat("SILENCE_THRESHOLD", DefaultSilenceThreshold),
		SilenceDuration:    envDurationMs("SILENCE_DURATION_MS", DefaultSilenceDuration),
		MinSegmentDuration: envDurationMs("MIN_SEGMENT_DURATION_MS", DefaultMinSegmentDuration),
		MinSegmentBytes:    envInt("MIN_SEGMENT_SIZE_BYTES", DefaultMinSegmentBytes),
		PollInterval:       envDurationMs("AUDIO_POLL_INTERVAL_MS", DefaultPollInterval),

		SampleRate: envInt("AUDIO_SAMPLE_RATE", 16000),
		MimeType:   envOrDefault("AUDIO_MIME_TYPE", "audio/wav"),

		STTProvider:          envOrDefault("STT_PROVIDER", "websocket"),
		TranscriberWS:        envOrDefault("TRANSCRIBER_WS_URL", "ws://localhost:8765/voice-stream"),
		ReconnectBackoff:     envDurationMs("RECONNECT_BACKOFF_MS", DefaultReconnectBackoff),
		MaxReconnectAttempts: envInt("MAX_RECONNECT_ATTEMPTS", DefaultMaxReconnects),

		CorrelationWindow: envDurationMs("CORRELATION_WINDOW_MS", DefaultCorrelationWindow),
		MinScore:          envFloat("MIN_CORRELATION_SCORE", DefaultMinScore),
		StrictURLMatch:    envBool("STRICT_URL_MATCH", false),

		Kafka: KafkaConfig{
			Enabled:         envBool("KAFKA_ENABLED", false),
			Brokers:         envList("KAFKA_BROKERS", nil),
			TopicCorrelated: envOrDefault("KAFKA_TOPIC_CORRELATED", "workflow.correlated"),
			TopicOrphan:     envOrDefault("KAFKA_TOPIC_ORPHAN", "workflow.orphan"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", "svc-voice-workflow-recorder"),
		},
	}
}

// Validate checks for values the service cannot run with.
func (c *Config) Validate() error {
	if c.SilenceThreshold < 0 || c.SilenceThreshold > 1 {
		return fmt.Errorf("SILENCE_THRESHOLD must be in [0,1], got %v", c.SilenceThreshold)
	}
	if c.SilenceDuration <= 0 {
		return fmt.Errorf("SILENCE_DURATION_MS must be positive, got %v", c.SilenceDuration)
	}
	if c.MinSegmentDuration <= 0 {
		return fmt.Errorf("MIN_SEGMENT_DURATION_MS must be positive, got %v", c.MinSegmentDuration)
	}
	if c.MinSegmentBytes < 0 {
		return fmt.Errorf("MIN_SEGMENT_SIZE_BYTES must be non-negative, got %d", c.MinSegmentBytes)
	}
	if c.CorrelationWindow <= 0 {
		return fmt.Errorf("CORRELATION_WINDOW_MS must be positive, got %v", c.CorrelationWindow)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("MIN_CORRELATION_SCORE must be in [0,1], got %v", c.MinScore)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must be non-negative, got %d", c.MaxReconnectAttempts)
	}
	switch c.STTProvider {
	case "websocket", "google", "mock":
	default:
		return fmt.Errorf("STT_PROVIDER must be websocket, google or mock, got %q", c.STTProvider)
	}
	if c.STTProvider == "websocket" && c.TranscriberWS == "" {
		return fmt.Errorf("TRANSCRIBER_WS_URL is required when STT_PROVIDER=websocket")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDurationMs(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
