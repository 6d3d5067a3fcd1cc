// Package asr defines the pluggable ASR (speech recognition) provider
// interface used by the cloud-side multiplexer (spec.md §4.4). Concrete
// providers implement Provider (this module ships Deepgram, plus the
// FallbackProvider wrapper and a test mock); the multiplexer depends only
// on this interface.
package asr

import (
	"context"
	"time"

	"github.com/augmentos-org/cloud-core/pkg/types"
)

// StreamConfig configures a single recognizer session.
type StreamConfig struct {
	SampleRate int
	Channels   int

	// TranscribeLanguage is the BCP-47 tag recognition runs against.
	TranscribeLanguage string

	// TranslateLanguage, when non-empty, requests translation into this
	// BCP-47 tag instead of (or in addition to) plain transcription.
	TranslateLanguage string

	Keywords []types.KeywordBoost
}

// SessionHandle is a single running recognizer session, one per active
// language key in a UserSession (spec.md §3's ASRStreamInstance).
type SessionHandle interface {
	// SendAudio pushes raw audio bytes into the recognizer. The wire format
	// is opaque to this layer; the provider and the upstream glasses
	// firmware must agree on it out of band.
	SendAudio(data []byte) error

	// Partials delivers interim (isFinal=false) results.
	Partials() <-chan types.Transcript

	// Finals delivers final (isFinal=true) results.
	Finals() <-chan types.Transcript

	// SetKeywords updates keyword-boost hints without restarting the
	// session, where the provider supports it.
	SetKeywords(keywords []types.KeywordBoost) error

	// Close tears down the session and releases its upstream connection.
	// Both Partials and Finals are closed before Close returns.
	Close() error
}

// Provider starts recognizer sessions. Implementations dial their upstream
// API (e.g. over coder/websocket, in the same pattern the Deepgram client
// uses) inside StartStream.
type Provider interface {
	// Name identifies the provider for config/registry lookups and metrics
	// labels (e.g. "deepgram").
	Name() string

	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// StartTimeout is an upper bound for how long a StartStream implementation
// may take to establish its upstream connection. Nothing in this module
// applies it: the multiplexer passes its caller's context to StartStream
// unchanged.
const StartTimeout = 10 * time.Second
