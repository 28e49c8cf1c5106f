// Package correlation matches voice transcriptions to browser events by
// timestamp proximity and owns the per-session event buffers.
package correlation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"voice-workflow-recorder/internal/models"
)

// ValidationError reports malformed correlator input. Correlate raises it
// before processing anything; there are no partial results.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "correlation input invalid: " + e.Reason
}

// Options holds the correlation policy.
type Options struct {
	// Window is the maximum timestamp distance between a transcription
	// and a browser event for them to be related. Symmetric: it covers
	// both speak-then-act and act-then-speak.
	Window time.Duration
	// MinScore is the floor below which a candidate pair is not attached.
	MinScore float64
	// StrictURLMatch makes the URL a hard filter instead of ignoring it.
	StrictURLMatch bool
}

// DefaultOptions returns the production correlation policy.
func DefaultOptions() Options {
	return Options{
		Window:   5 * time.Second,
		MinScore: 0.5,
	}
}

// Result is the output of one correlation run. Orphans are transcriptions
// attached to no browser event; they are reported, never dropped.
type Result struct {
	Events  []models.CorrelatedEvent `json:"events"`
	Orphans []models.Transcription   `json:"orphans"`
}

// Correlate matches transcriptions to browser events. It is a pure
// function over its inputs: identical input yields identical output, and
// nothing is mutated.
//
// Sessions are correlated independently; a pair spanning two sessionIds is
// never produced. Within the window, score decays linearly with temporal
// distance: score = 1 - |Δt|/window. One browser event may attach several
// transcriptions (ordered closest first), and one transcription may attach
// to several browser events: a spoken instruction can legitimately cover a
// short sequence of actions, so it is not consumed by its best match.
func Correlate(browserEvents []models.BrowserEvent, transcriptions []models.Transcription, opts Options) (Result, error) {
	if err := validate(browserEvents, transcriptions, opts); err != nil {
		return Result{}, err
	}

	windowSec := opts.Window.Seconds()
	attached := make([]bool, len(transcriptions))
	events := make([]models.CorrelatedEvent, 0, len(browserEvents))

	for _, b := range browserEvents {
		type candidate struct {
			idx   int
			score float64
			dist  float64
		}
		var candidates []candidate

		for i, tr := range transcriptions {
			if tr.SessionID != b.SessionID {
				continue
			}
			if opts.StrictURLMatch && tr.URL != b.URL {
				continue
			}
			dist := math.Abs(tr.Timestamp - b.Timestamp)
			if dist > windowSec {
				continue
			}
			score := clamp01(1 - dist/windowSec)
			if score < opts.MinScore {
				continue
			}
			candidates = append(candidates, candidate{idx: i, score: score, dist: dist})
		}

		// Closest first; equal distance resolves by input order.
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].dist < candidates[j].dist
		})

		ev := models.CorrelatedEvent{
			BrowserEvent:   b,
			TimeWindowUsed: windowSec,
		}
		for _, c := range candidates {
			ev.VoiceEvents = append(ev.VoiceEvents, transcriptions[c.idx])
			attached[c.idx] = true
			if c.score > ev.CorrelationScore {
				ev.CorrelationScore = c.score
			}
		}
		events = append(events, ev)
	}

	var orphans []models.Transcription
	for i, tr := range transcriptions {
		if !attached[i] {
			orphans = append(orphans, tr)
		}
	}

	return Result{Events: events, Orphans: orphans}, nil
}

func validate(browserEvents []models.BrowserEvent, transcriptions []models.Transcription, opts Options) error {
	if opts.Window <= 0 {
		return &ValidationError{Reason: fmt.Sprintf("window must be positive, got %v", opts.Window)}
	}
	if opts.MinScore < 0 || opts.MinScore > 1 {
		return &ValidationError{Reason: fmt.Sprintf("minScore must be in [0,1], got %v", opts.MinScore)}
	}

	lastBySession := map[string]float64{}
	for i, b := range browserEvents {
		if b.SessionID == "" {
			return &ValidationError{Reason: fmt.Sprintf("browser event %d has no sessionId", i)}
		}
		if last, ok := lastBySession[b.SessionID]; ok && b.Timestamp < last {
			return &ValidationError{Reason: fmt.Sprintf(
				"browser event %d timestamp %v before predecessor %v in session %s",
				i, b.Timestamp, last, b.SessionID)}
		}
		lastBySession[b.SessionID] = b.Timestamp
	}

	lastBySession = map[string]float64{}
	for i, tr := range transcriptions {
		if tr.SessionID == "" {
			return &ValidationError{Reason: fmt.Sprintf("transcription %d has no sessionId", i)}
		}
		if tr.Confidence < 0 || tr.Confidence > 1 {
			return &ValidationError{Reason: fmt.Sprintf(
				"transcription %d confidence %v out of [0,1]", i, tr.Confidence)}
		}
		if last, ok := lastBySession[tr.SessionID]; ok && tr.Timestamp < last {
			return &ValidationError{Reason: fmt.Sprintf(
				"transcription %d timestamp %v before predecessor %v in session %s",
				i, tr.Timestamp, last, tr.SessionID)}
		}
		lastBySession[tr.SessionID] = tr.Timestamp
	}

	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Stats summarizes a correlation result for logging and diagnostics.
type Stats struct {
	TotalBrowserEvents int     `json:"totalBrowserEvents"`
	CorrelatedEvents   int     `json:"correlatedEvents"`
	CorrelationRate    float64 `json:"correlationRate"`
	AverageScore       float64 `json:"averageScore"`
	AverageVoiceEvents float64 `json:"averageVoiceEventsPerBrowserEvent"`
	OrphanVoiceEvents  int     `json:"orphanVoiceEvents"`
}

// Summarize computes aggregate statistics over one correlation result.
func Summarize(res Result) Stats {
	s := Stats{
		TotalBrowserEvents: len(res.Events),
		OrphanVoiceEvents:  len(res.Orphans),
	}
	if len(res.Events) == 0 {
		return s
	}

	var scoreSum float64
	var scored int
	var voiceSum int
	for _, ev := range res.Events {
		voiceSum += len(ev.VoiceEvents)
		if len(ev.VoiceEvents) > 0 {
			s.CorrelatedEvents++
			scoreSum += ev.CorrelationScore
			scored++
		}
	}
	s.CorrelationRate = float64(s.CorrelatedEvents) / float64(len(res.Events))
	s.AverageVoiceEvents = float64(voiceSum) / float64(len(res.Events))
	if scored > 0 {
		s.AverageScore = scoreSum / float64(scored)
	}
	return s
}
