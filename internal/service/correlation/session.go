package correlation

import (
	"errors"
	"sort"
	"sync"

	"voice-workflow-recorder/internal/models"
	"voice-workflow-recorder/internal/observability/logging"
	"voice-workflow-recorder/internal/observability/metrics"
)

// Errors for session management.
var (
	ErrSessionMismatch = errors.New("event belongs to a different session")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Session is the aggregate for one recording interval: two append-only
// ordered logs, keyed by sessionId. AddBrowserEvent and AddTranscription
// are safe to call concurrently with each other (UI capture vs. transport
// receive); Correlate reads a consistent snapshot.
type Session struct {
	id string

	mu             sync.RWMutex
	browserEvents  []models.BrowserEvent
	transcriptions []models.Transcription
	voiceFailed    bool

	metrics *metrics.Metrics
}

// NewSession creates an empty session aggregate.
func NewSession(id string) *Session {
	return &Session{
		id:      id,
		metrics: metrics.DefaultMetrics,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// AddBrowserEvent appends one captured interaction. Events from another
// session are refused: correlation never mixes sessionIds.
func (s *Session) AddBrowserEvent(ev models.BrowserEvent) error {
	if ev.SessionID != s.id {
		return ErrSessionMismatch
	}
	s.mu.Lock()
	s.browserEvents = append(s.browserEvents, ev)
	s.mu.Unlock()
	s.metrics.BrowserEventsAdded.Inc()
	return nil
}

// AddTranscription appends one transcription result.
func (s *Session) AddTranscription(tr models.Transcription) error {
	if tr.SessionID != s.id {
		return ErrSessionMismatch
	}
	s.mu.Lock()
	s.transcriptions = append(s.transcriptions, tr)
	s.mu.Unlock()
	return nil
}

// MarkVoiceUnavailable records that the voice channel failed for good.
// Browser-event capture continues; the session degrades rather than
// aborting.
func (s *Session) MarkVoiceUnavailable() {
	s.mu.Lock()
	s.voiceFailed = true
	s.mu.Unlock()
}

// VoiceUnavailable reports whether the voice channel was lost.
func (s *Session) VoiceUnavailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voiceFailed
}

// Snapshot returns copies of both logs, consistent with each other.
func (s *Session) Snapshot() ([]models.BrowserEvent, []models.Transcription) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]models.BrowserEvent, len(s.browserEvents))
	copy(events, s.browserEvents)
	trs := make([]models.Transcription, len(s.transcriptions))
	copy(trs, s.transcriptions)
	return events, trs
}

// Counts returns the number of buffered browser events and transcriptions.
func (s *Session) Counts() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.browserEvents), len(s.transcriptions)
}

// Correlate runs the correlator over a snapshot of the session's buffers.
// The transcription log holds arrival order, which the transport does not
// promise matches speech order; the snapshot is re-sorted by anchor
// timestamp before it reaches the correlator.
func (s *Session) Correlate(opts Options) (Result, error) {
	events, trs := s.Snapshot()
	sort.SliceStable(trs, func(i, j int) bool {
		return trs[i].Timestamp < trs[j].Timestamp
	})
	res, err := Correlate(events, trs, opts)
	if err != nil {
		return Result{}, err
	}

	s.metrics.CorrelationRuns.Inc()
	for _, ev := range res.Events {
		s.metrics.CorrelatedEvents.Inc()
		if len(ev.VoiceEvents) > 0 {
			s.metrics.CorrelationScore.Observe(ev.CorrelationScore)
		}
	}
	if n := len(res.Orphans); n > 0 {
		s.metrics.OrphanVoiceEvents.Add(float64(n))
	}

	stats := Summarize(res)
	logger := logging.WithSession(s.id)
	logger.Debug().
		Int("browserEvents", stats.TotalBrowserEvents).
		Int("correlated", stats.CorrelatedEvents).
		Int("orphans", stats.OrphanVoiceEvents).
		Msg("correlation run complete")
	return res, nil
}

// Registry tracks the live sessions by id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a new session. Fails if the id is already live.
func (r *Registry) Create(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, ErrSessionExists
	}
	s := NewSession(id)
	r.sessions[id] = s
	return s, nil
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove unregisters and returns the session with the given id.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
