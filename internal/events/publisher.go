// Package events publishes correlation results downstream.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"voice-workflow-recorder/internal/models"
	"voice-workflow-recorder/internal/observability/metrics"
)

// Publisher ships correlated events and orphan transcriptions to separate
// Kafka topics, keyed by sessionId. With Kafka disabled it degrades to
// log-only mode so the recorder still works standalone.
type Publisher struct {
	writerCorrelated *kafka.Writer
	writerOrphan     *kafka.Writer
	principal        string
	topicCorrelated  string
	topicOrphan      string
	enabled          bool
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicCorrelated string
	TopicOrphan     string
	Principal       string
	Enabled         bool
}

// New creates a publisher. A nil or disabled config yields log-only mode.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{enabled: false, metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicCorrelated: cfg.TopicCorrelated,
			topicOrphan:     cfg.TopicOrphan,
			enabled:         false,
			metrics:         m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerCorrelated := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicCorrelated,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
	writerOrphan := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicOrphan,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicCorrelated", cfg.TopicCorrelated).
		Str("topicOrphan", cfg.TopicOrphan).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerCorrelated: writerCorrelated,
		writerOrphan:     writerOrphan,
		principal:        cfg.Principal,
		topicCorrelated:  cfg.TopicCorrelated,
		topicOrphan:      cfg.TopicOrphan,
		enabled:          true,
		metrics:          m,
	}
}

// PublishCorrelated publishes one correlated event, keyed by its sessionId.
func (p *Publisher) PublishCorrelated(ctx context.Context, ev models.CorrelatedEvent) error {
	return p.publish(ctx, p.writerCorrelated, p.topicCorrelated, "correlated", ev.BrowserEvent.SessionID, ev)
}

// PublishOrphan publishes one orphan transcription, keyed by its sessionId.
func (p *Publisher) PublishOrphan(ctx context.Context, tr models.Transcription) error {
	return p.publish(ctx, p.writerOrphan, p.topicOrphan, "orphan", tr.SessionID, tr)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerCorrelated != nil {
		if e := p.writerCorrelated.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing correlated writer")
			err = e
		}
	}
	if p.writerOrphan != nil {
		if e := p.writerOrphan.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing orphan writer")
			err = e
		}
	}
	return err
}
