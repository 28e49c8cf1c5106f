// Package recorder orchestrates the per-session pipeline: audio monitor,
// segmenter, transcriber and the correlation session.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-workflow-recorder/internal/events"
	"voice-workflow-recorder/internal/models"
	"voice-workflow-recorder/internal/observability/logging"
	"voice-workflow-recorder/internal/observability/metrics"
	"voice-workflow-recorder/internal/service/audio"
	"voice-workflow-recorder/internal/service/correlation"
)

// Transcriber is the voice channel the recorder speaks to: the WebSocket
// transport client or a local STT bridge.
type Transcriber interface {
	Connect(ctx context.Context) error
	Send(seg models.VoiceSegment) error
	OnTranscription(fn func(models.Transcription))
	OnFatal(fn func(error))
	Close() error
}

// TranscriberFactory builds a transcriber for one session.
type TranscriberFactory func(sessionId string) (Transcriber, error)

// Config holds the per-session pipeline policy.
type Config struct {
	Segmenter    audio.SegmenterConfig
	PollInterval time.Duration
	Correlation  correlation.Options
	// DrainWait is how long Stop waits for in-flight transcriptions after
	// the last segment is flushed.
	DrainWait time.Duration
}

// Workflow is what StopSession hands back: the correlated recording plus
// its summary.
type Workflow struct {
	SessionID        string                   `json:"sessionId"`
	Events           []models.CorrelatedEvent `json:"events"`
	Orphans          []models.Transcription   `json:"orphans"`
	Stats            correlation.Stats        `json:"stats"`
	VoiceUnavailable bool                     `json:"voiceUnavailable,omitempty"`
}

// Service manages the live recording sessions.
type Service struct {
	cfg            Config
	registry       *correlation.Registry
	newTranscriber TranscriberFactory
	publisher      *events.Publisher
	logger         zerolog.Logger
	metrics        *metrics.Metrics

	mu   sync.Mutex
	recs map[string]*recording
}

// recording is the live pipeline state for one session.
type recording struct {
	session     *correlation.Session
	transcriber Transcriber
	segmenter   *audio.Segmenter
	cancel      context.CancelFunc
	done        chan struct{} // closed when the monitor goroutine exits
	hasVoice    bool
}

// New creates the recorder service. The publisher may be a disabled
// (log-only) one; the factory may be nil for browser-events-only operation.
func New(cfg Config, factory TranscriberFactory, publisher *events.Publisher) *Service {
	if publisher == nil {
		publisher = events.New(nil)
	}
	return &Service{
		cfg:            cfg,
		registry:       correlation.NewRegistry(),
		newTranscriber: factory,
		publisher:      publisher,
		logger:         logging.WithComponent("recorder"),
		metrics:        metrics.DefaultMetrics,
		recs:           make(map[string]*recording),
	}
}

// StartSession opens a recording session. With a non-nil source and a
// transcriber factory the voice pipeline starts alongside; with a nil
// source the session records browser events only (audio capture then
// happens outside this process).
//
// A voice channel that cannot be established degrades the session rather
// than failing the start: recording browser events is always worth more
// than refusing to record at all.
func (s *Service) StartSession(ctx context.Context, sessionId string, source audio.ChunkSource) error {
	if sessionId == "" {
		return fmt.Errorf("sessionId is required")
	}

	session, err := s.registry.Create(sessionId)
	if err != nil {
		return err
	}

	rec := &recording{session: session}
	logger := s.logger.With().Str("sessionId", sessionId).Logger()

	if source != nil && s.newTranscriber != nil {
		if err := s.startVoice(ctx, rec, sessionId, source, logger); err != nil {
			logger.Warn().Err(err).Msg("voice channel unavailable, recording browser events only")
			session.MarkVoiceUnavailable()
		}
	}

	s.mu.Lock()
	s.recs[sessionId] = rec
	s.mu.Unlock()

	s.metrics.RecordSessionStart()
	logger.Info().Bool("voice", rec.hasVoice).Msg("session started")
	return nil
}

func (s *Service) startVoice(ctx context.Context, rec *recording, sessionId string, source audio.ChunkSource, logger zerolog.Logger) error {
	transcriber, err := s.newTranscriber(sessionId)
	if err != nil {
		return fmt.Errorf("build transcriber: %w", err)
	}

	transcriber.OnTranscription(func(tr models.Transcription) {
		if err := rec.session.AddTranscription(tr); err != nil {
			logger.Warn().Err(err).Msg("dropping transcription")
		}
	})
	transcriber.OnFatal(func(err error) {
		logger.Error().Err(err).Msg("voice channel lost, session degrades to browser events only")
		rec.session.MarkVoiceUnavailable()
	})

	if err := transcriber.Connect(ctx); err != nil {
		transcriber.Close()
		return fmt.Errorf("connect transcriber: %w", err)
	}

	segmenter := audio.NewSegmenter(sessionId, s.cfg.Segmenter, func(seg models.VoiceSegment) {
		// At most once per segment: a failed send is logged and dropped,
		// never replayed with a stale timestamp.
		if err := transcriber.Send(seg); err != nil {
			logger.Warn().Err(err).Float64("startTime", seg.StartTime).Msg("segment not sent")
		}
	})

	monitorCtx, cancel := context.WithCancel(context.Background())
	rec.transcriber = transcriber
	rec.segmenter = segmenter
	rec.cancel = cancel
	rec.done = make(chan struct{})
	rec.hasVoice = true

	monitor := audio.NewMonitor(s.cfg.PollInterval)
	go func() {
		defer close(rec.done)
		err := monitor.Run(monitorCtx, source, segmenter.Process)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("audio monitor stopped")
		}
	}()
	return nil
}

// AddBrowserEvent routes one validated capture event to its session.
func (s *Service) AddBrowserEvent(ev models.BrowserEvent) error {
	session, ok := s.registry.Get(ev.SessionID)
	if !ok {
		s.metrics.BrowserEventsRejected.WithLabelValues("unknown_session").Inc()
		return correlation.ErrSessionNotFound
	}
	return session.AddBrowserEvent(ev)
}

// Session returns the live session aggregate.
func (s *Service) Session(sessionId string) (*correlation.Session, bool) {
	return s.registry.Get(sessionId)
}

// ActiveSessions returns the number of live sessions.
func (s *Service) ActiveSessions() int {
	return s.registry.Len()
}

// StopSession tears the pipeline down in order: stop the monitor, flush the
// segmenter, drain and close the transcriber, correlate, publish. The
// returned workflow contains everything captured, orphans included.
func (s *Service) StopSession(ctx context.Context, sessionId string) (*Workflow, error) {
	s.mu.Lock()
	rec, ok := s.recs[sessionId]
	if ok {
		delete(s.recs, sessionId)
	}
	s.mu.Unlock()
	if !ok {
		return nil, correlation.ErrSessionNotFound
	}

	logger := s.logger.With().Str("sessionId", sessionId).Logger()

	if rec.hasVoice {
		rec.cancel()
		<-rec.done
		rec.segmenter.Flush(time.Now())
		if s.cfg.DrainWait > 0 {
			// Give in-flight transcriptions a moment to land before the
			// channel closes.
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.DrainWait):
			}
		}
		if err := rec.transcriber.Close(); err != nil {
			logger.Warn().Err(err).Msg("transcriber close")
		}
	}

	res, err := rec.session.Correlate(s.cfg.Correlation)
	if err != nil {
		s.registry.Remove(sessionId)
		s.metrics.RecordSessionStop("error")
		return nil, fmt.Errorf("correlate session %s: %w", sessionId, err)
	}

	for _, ev := range res.Events {
		if err := s.publisher.PublishCorrelated(ctx, ev); err != nil {
			logger.Warn().Err(err).Msg("publish correlated event")
		}
	}
	for _, tr := range res.Orphans {
		if err := s.publisher.PublishOrphan(ctx, tr); err != nil {
			logger.Warn().Err(err).Msg("publish orphan transcription")
		}
	}

	s.registry.Remove(sessionId)
	s.metrics.RecordSessionStop("ok")

	stats := correlation.Summarize(res)
	logger.Info().
		Int("events", stats.TotalBrowserEvents).
		Int("correlated", stats.CorrelatedEvents).
		Int("orphans", stats.OrphanVoiceEvents).
		Float64("rate", stats.CorrelationRate).
		Msg("session stopped")

	return &Workflow{
		SessionID:        sessionId,
		Events:           res.Events,
		Orphans:          res.Orphans,
		Stats:            stats,
		VoiceUnavailable: rec.session.VoiceUnavailable(),
	}, nil
}

// Shutdown stops every live session, discarding the results.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.recs))
	for id := range s.recs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if _, err := s.StopSession(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("sessionId", id).Msg("stop during shutdown")
		}
	}
}
