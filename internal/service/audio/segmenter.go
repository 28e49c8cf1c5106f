package audio

import (
	"bytes"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"voice-workflow-recorder/internal/models"
	"voice-workflow-recorder/internal/observability/logging"
	"voice-workflow-recorder/internal/observability/metrics"
)

// State represents the segmenter's position in the silence-detection
// state machine.
type State int

const (
	// StateIdle - no speech detected.
	StateIdle State = iota
	// StateVoiced - speech in progress.
	StateVoiced
	// StateTrailingSilence - speech ended, waiting for enough silence to
	// confirm the boundary. Guards against brief pauses mid-sentence.
	StateTrailingSilence
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateVoiced:
		return "VOICED"
	case StateTrailingSilence:
		return "TRAILING_SILENCE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// SegmenterConfig holds the segmentation policy.
type SegmenterConfig struct {
	SilenceThreshold   float64       // level at or below which a sample is silent
	SilenceDuration    time.Duration // silence needed to confirm a boundary
	MinSegmentDuration time.Duration // floor on speech duration
	MinSegmentBytes    int           // floor on accumulated audio size
}

// DefaultSegmenterConfig returns the production defaults.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		SilenceThreshold:   0.01,
		SilenceDuration:    1500 * time.Millisecond,
		MinSegmentDuration: 500 * time.Millisecond,
		MinSegmentBytes:    8 * 1024,
	}
}

// EmitFunc receives each finalized voice segment.
type EmitFunc func(models.VoiceSegment)

// Segmenter consumes level samples and emits bounded voice segments.
//
// State transitions:
//
//	IDLE ──voiced──→ VOICED ──silent──→ TRAILING_SILENCE
//	  ↑                 ↑──────voiced───────┘
//	  └──silence ≥ SilenceDuration: emit or discard──┘
//
// Transitions are driven synchronously by Process; the single monitor
// goroutine is the only caller, so no locking is needed. Silence expiry is
// judged by sample timestamps rather than wall timers, which keeps the
// machine deterministic under test.
type Segmenter struct {
	cfg       SegmenterConfig
	sessionId string
	emit      EmitFunc
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	state        State
	segmentStart time.Time
	lastSound    time.Time
	silenceStart time.Time
	buf          bytes.Buffer
}

// NewSegmenter creates a segmenter for one recording session.
func NewSegmenter(sessionId string, cfg SegmenterConfig, emit EmitFunc) *Segmenter {
	return &Segmenter{
		cfg:       cfg,
		sessionId: sessionId,
		emit:      emit,
		logger:    logging.WithComponent("segmenter").With().Str("sessionId", sessionId).Logger(),
		metrics:   metrics.DefaultMetrics,
		state:     StateIdle,
	}
}

// State returns the current state.
func (s *Segmenter) State() State {
	return s.state
}

// Process advances the state machine with one monitor sample.
func (s *Segmenter) Process(sample Sample) {
	voiced := sample.Level > s.cfg.SilenceThreshold

	switch s.state {
	case StateIdle:
		if voiced {
			s.state = StateVoiced
			s.segmentStart = sample.Time
			s.lastSound = sample.Time
			s.buf.Reset()
			s.buf.Write(sample.Chunk)
		}

	case StateVoiced:
		s.buf.Write(sample.Chunk)
		if voiced {
			s.lastSound = sample.Time
		} else {
			s.state = StateTrailingSilence
			s.silenceStart = sample.Time
		}

	case StateTrailingSilence:
		if voiced {
			// A brief pause does not split an utterance: resume
			// accumulating into the same segment.
			s.buf.Write(sample.Chunk)
			s.state = StateVoiced
			s.lastSound = sample.Time
			return
		}
		if sample.Time.Sub(s.silenceStart) >= s.cfg.SilenceDuration {
			// Boundary confirmed. End the segment at the moment speech
			// actually stopped, not when the silence ran out.
			s.finalize(s.silenceStart)
			s.state = StateIdle
			return
		}
		s.buf.Write(sample.Chunk)
	}
}

// Flush finalizes an in-flight segment at teardown. Speech cut off by a
// stop is ended at now; a segment already in trailing silence ends where
// the speech stopped. Segments below the floors are still discarded.
func (s *Segmenter) Flush(now time.Time) {
	switch s.state {
	case StateVoiced:
		s.finalize(now)
	case StateTrailingSilence:
		s.finalize(s.silenceStart)
	}
	s.state = StateIdle
}

// finalize emits the accumulated segment if it clears the duration and
// size floors, and discards it silently otherwise.
func (s *Segmenter) finalize(end time.Time) {
	duration := end.Sub(s.segmentStart)
	size := s.buf.Len()

	if duration < s.cfg.MinSegmentDuration {
		s.logger.Debug().
			Dur("duration", duration).
			Int("bytes", size).
			Msg("segment below duration floor, discarding")
		s.metrics.RecordSegmentRejected("too_short")
		s.buf.Reset()
		return
	}
	if size < s.cfg.MinSegmentBytes {
		s.logger.Debug().
			Dur("duration", duration).
			Int("bytes", size).
			Msg("segment below size floor, discarding")
		s.metrics.RecordSegmentRejected("too_small")
		s.buf.Reset()
		return
	}

	audio := make([]byte, size)
	copy(audio, s.buf.Bytes())
	s.buf.Reset()

	seg := models.VoiceSegment{
		StartTime: models.Epoch(s.segmentStart),
		EndTime:   models.Epoch(end),
		Audio:     audio,
		SessionID: s.sessionId,
	}

	logger := logging.WithSegment(s.sessionId, seg.StartTime, seg.EndTime)
	logger.Debug().
		Int("bytes", size).
		Msg("voice segment emitted")
	s.metrics.RecordSegmentEmitted(seg.Duration())

	if s.emit != nil {
		s.emit(seg)
	}
}
