package events

import (
	"context"
	"testing"

	"voice-workflow-recorder/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"nil brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerCorrelated != nil || p.writerOrphan != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:         false,
		Brokers:         []string{"localhost:9092"},
		TopicCorrelated: "workflow.correlated",
		TopicOrphan:     "workflow.orphan",
		Principal:       "voice-workflow-recorder",
	})

	if p.principal != "voice-workflow-recorder" {
		t.Errorf("principal = %s", p.principal)
	}
	if p.topicCorrelated != "workflow.correlated" {
		t.Errorf("topicCorrelated = %s", p.topicCorrelated)
	}
	if p.topicOrphan != "workflow.orphan" {
		t.Errorf("topicOrphan = %s", p.topicOrphan)
	}
}

func TestPublisher_PublishCorrelated_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	ev := models.CorrelatedEvent{
		BrowserEvent: models.BrowserEvent{
			EventType: models.EventClick,
			Timestamp: 10.0,
			SessionID: "sess-1",
		},
		CorrelationScore: 0.84,
		TimeWindowUsed:   5.0,
	}
	if err := p.PublishCorrelated(context.Background(), ev); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishOrphan_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	tr := models.Transcription{
		Text:       "nothing matched this",
		Confidence: 0.9,
		Timestamp:  100.0,
		SessionID:  "sess-1",
	}
	if err := p.PublishOrphan(context.Background(), tr); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})
	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}
