package stt

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"voice-workflow-recorder/internal/models"
	"voice-workflow-recorder/internal/observability/logging"
	"voice-workflow-recorder/internal/observability/metrics"
)

// BridgeConfig holds settings for an adapter-backed transcriber.
type BridgeConfig struct {
	SessionID       string
	MinSegmentBytes int
}

// Bridge drives an Adapter with finalized voice segments and emits
// models.Transcription values anchored to each segment's start time. It
// presents the same surface as the WebSocket transport client, so the
// recorder treats both transcriber kinds alike.
//
// Finals are attributed to the most recently sent segment. Providers that
// answer out of order would mis-anchor; the adapters used here respond in
// submission order.
type Bridge struct {
	cfg     BridgeConfig
	adapter Adapter
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	started    bool
	lastAnchor float64

	onTranscription func(models.Transcription)
	onFatal         func(error)
	fatalOnce       sync.Once
}

// NewBridge wraps the given adapter. Connect must be called before Send.
func NewBridge(cfg BridgeConfig, adapter Adapter) *Bridge {
	return &Bridge{
		cfg:     cfg,
		adapter: adapter,
		logger:  logging.WithComponent("stt_bridge").With().Str("sessionId", cfg.SessionID).Logger(),
		metrics: metrics.DefaultMetrics,
	}
}

// OnTranscription registers the receiver for final transcripts.
func (b *Bridge) OnTranscription(fn func(models.Transcription)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTranscription = fn
}

// OnFatal registers the receiver for a terminal provider failure.
func (b *Bridge) OnFatal(fn func(error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFatal = fn
}

// Connect starts the provider session.
func (b *Bridge) Connect(ctx context.Context) error {
	if err := b.adapter.Start(ctx, (*bridgeCallback)(b)); err != nil {
		return fmt.Errorf("start stt adapter: %w", err)
	}
	b.mu.Lock()
	b.started = true
	b.mu.Unlock()
	b.logger.Info().Msg("stt adapter session started")
	return nil
}

// Send ships one voice segment to the provider.
func (b *Bridge) Send(seg models.VoiceSegment) error {
	if len(seg.Audio) < b.cfg.MinSegmentBytes {
		b.metrics.TransportSendErrors.WithLabelValues("too_small").Inc()
		return fmt.Errorf("segment below size floor: %d bytes < %d", len(seg.Audio), b.cfg.MinSegmentBytes)
	}

	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return fmt.Errorf("stt bridge not started")
	}
	b.lastAnchor = seg.StartTime
	b.mu.Unlock()

	if err := b.adapter.SendAudio(context.Background(), seg.Audio); err != nil {
		b.metrics.TransportSendErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("send audio: %w", err)
	}
	b.metrics.TransportSends.Inc()
	return nil
}

// Close ends the provider session.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.started = false
	b.mu.Unlock()
	return b.adapter.Close()
}

// bridgeCallback adapts Bridge to the Callback interface without exporting
// the callback methods on Bridge itself.
type bridgeCallback Bridge

func (c *bridgeCallback) OnPartial(text string) {
	(*Bridge)(c).logger.Debug().Str("text", text).Msg("partial transcript")
}

func (c *bridgeCallback) OnFinal(text string, confidence float64) {
	b := (*Bridge)(c)

	b.mu.Lock()
	fn := b.onTranscription
	anchor := b.lastAnchor
	b.mu.Unlock()

	if fn == nil || text == "" {
		return
	}
	if confidence <= 0 || confidence > 1 {
		confidence = 0.8
	}

	b.metrics.TranscriptionsReceived.Inc()
	fn(models.Transcription{
		Text:       text,
		Confidence: confidence,
		Timestamp:  anchor,
		SessionID:  b.cfg.SessionID,
	})
}

func (c *bridgeCallback) OnError(err error) {
	b := (*Bridge)(c)
	b.logger.Error().Err(err).Msg("stt adapter failed")

	b.mu.Lock()
	fn := b.onFatal
	b.mu.Unlock()

	b.fatalOnce.Do(func() {
		if fn != nil {
			fn(err)
		}
	})
}
