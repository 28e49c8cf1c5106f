// Package mock provides a scripted STT adapter for running the recorder
// without cloud credentials or a local collaborator. Each audio segment
// receives progressive partials and exactly one final transcript from a
// fixed script, delivered synchronously so test runs are deterministic.
package mock

import (
	"context"
	"sync"

	"voice-workflow-recorder/internal/service/stt"
)

// Utterance is one scripted narration with its progressive partials.
type Utterance struct {
	Partials   []string
	Final      string
	Confidence float64
}

// DefaultScript contains narration lines typical of a recorded workflow.
var DefaultScript = []Utterance{
	{
		Partials:   []string{"filter the", "filter the table"},
		Final:      "filter the table by creation date",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"now click", "now click the export"},
		Final:      "now click the export button",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"type the", "type the customer"},
		Final:      "type the customer name in the search box",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"select the", "select the second"},
		Final:      "select the second option from the dropdown",
		Confidence: 0.89,
	},
	{
		Partials:   []string{"scroll down"},
		Final:      "scroll down to the totals row",
		Confidence: 0.96,
	},
}

// Adapter implements stt.Adapter with scripted responses. One segment in,
// one final out, cycling through the script per instance.
type Adapter struct {
	mu     sync.Mutex
	script []Utterance
	next   int
	cb     stt.Callback
	closed bool
}

// New creates a mock adapter over DefaultScript.
func New() *Adapter {
	return NewWithScript(DefaultScript)
}

// NewWithScript creates a mock adapter over the given utterances.
func NewWithScript(script []Utterance) *Adapter {
	return &Adapter{script: script}
}

// Start records the callback. The mock has no session to open.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	a.cb = cb
	a.mu.Unlock()
	return nil
}

// SendAudio answers the segment with the next scripted utterance: its
// partials in order, then the final. Delivery happens before SendAudio
// returns.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	if a.closed || a.cb == nil || len(a.script) == 0 {
		a.mu.Unlock()
		return nil
	}
	utt := a.script[a.next%len(a.script)]
	a.next++
	cb := a.cb
	a.mu.Unlock()

	for _, p := range utt.Partials {
		cb.OnPartial(p)
	}
	cb.OnFinal(utt.Final, utt.Confidence)
	return nil
}

// Close ends the session. Segments sent after Close are ignored.
func (a *Adapter) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}
