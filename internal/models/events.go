// Package models defines the data structures shared by the voice pipeline
// and the correlation engine.
package models

import "time"

// EventType identifies the kind of browser interaction that was captured.
type EventType string

const (
	EventClick  EventType = "click"
	EventInput  EventType = "input"
	EventSelect EventType = "select"
	EventKey    EventType = "key"
	EventScroll EventType = "scroll"
)

// Valid reports whether the event type is one the capture layer may send.
func (t EventType) Valid() bool {
	switch t {
	case EventClick, EventInput, EventSelect, EventKey, EventScroll:
		return true
	}
	return false
}

// ElementDescriptor locates the DOM element an interaction targeted.
// The correlation engine treats it as opaque; it is carried through for
// the semantic-enhancement service.
type ElementDescriptor struct {
	XPath       string `json:"xpath,omitempty"`
	CSSSelector string `json:"cssSelector,omitempty"`
	ElementTag  string `json:"elementTag,omitempty"`
}

// BrowserEvent is one discrete UI interaction recorded by the capture layer.
// Timestamps are seconds since the Unix epoch in the capture layer's clock.
// Immutable once recorded.
type BrowserEvent struct {
	EventType EventType         `json:"eventType"`
	Timestamp float64           `json:"timestamp"`
	URL       string            `json:"url"`
	SessionID string            `json:"sessionId"`
	Element   ElementDescriptor `json:"element"`
	Value     string            `json:"value,omitempty"`
	TabID     string            `json:"tabId,omitempty"`
}

// VoiceSegment is a bounded span of captured audio believed to contain one
// spoken utterance. Consumed exactly once by the transport, then discarded.
type VoiceSegment struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Audio     []byte  `json:"audio"`
	SessionID string  `json:"sessionId"`
}

// Duration returns the segment length in seconds.
func (s VoiceSegment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// Transcription is the speech-to-text result for one voice segment.
// Timestamp is the segment's StartTime, not the time the result arrived:
// correlation must reflect when the user spoke, not service latency.
type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Timestamp  float64 `json:"timestamp"`
	SessionID  string  `json:"sessionId"`
	URL        string  `json:"url,omitempty"`
}

// CorrelatedEvent pairs one browser event with the transcriptions spoken
// near it, ordered by temporal proximity (closest first).
type CorrelatedEvent struct {
	BrowserEvent     BrowserEvent    `json:"browserEvent"`
	VoiceEvents      []Transcription `json:"voiceEvents"`
	CorrelationScore float64         `json:"correlationScore"`
	TimeWindowUsed   float64         `json:"timeWindowUsed"`
}

// Epoch converts a time.Time to seconds since the Unix epoch.
func Epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
