// Package schema validates inbound browser events before they enter a
// session's buffers.
package schema

import (
	"fmt"

	"voice-workflow-recorder/internal/models"
)

// Validator checks browser events arriving over the capture API. Bad events
// are rejected at the edge so the correlator only ever sees well-formed
// input.
type Validator struct{}

// New creates a validator.
func New() *Validator {
	return &Validator{}
}

// ValidateBrowserEvent returns a descriptive error for the first failed
// check, nil otherwise.
func (v *Validator) ValidateBrowserEvent(ev models.BrowserEvent) error {
	if !ev.EventType.Valid() {
		return fmt.Errorf("unknown event type %q", ev.EventType)
	}
	if ev.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive epoch seconds, got %v", ev.Timestamp)
	}
	if ev.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if ev.URL == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}
