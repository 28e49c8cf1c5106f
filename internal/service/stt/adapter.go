// Package stt abstracts speech-to-text providers behind a single adapter
// interface so the recorder can run against a local WebSocket collaborator,
// Google Cloud, or a mock without code changes.
package stt

import "context"

// Callback receives transcript results from the STT provider.
type Callback interface {
	// OnPartial is called for interim transcripts. Partials are advisory;
	// only finals enter correlation.
	OnPartial(text string)

	// OnFinal is called once per utterance with the settled transcript.
	OnFinal(text string, confidence float64)

	// OnError is called when the provider stream fails.
	OnError(err error)
}

// Adapter is the provider-side contract (Google, mock, future providers).
type Adapter interface {
	// Start begins a streaming transcription session.
	Start(ctx context.Context, cb Callback) error

	// SendAudio ships raw PCM bytes to the provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Close ends the session and releases resources.
	Close() error
}
