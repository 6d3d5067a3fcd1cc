// Package types defines the shared types used across the session core and
// its provider packages.
//
// These types form the lingua franca between the speech pipeline, the
// pluggable ASR/VAD providers, and the router. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting
// data structures live here to avoid circular imports.
package types

import "time"

// AudioFrame represents a single frame of audio data flowing through the
// speech pipeline. Frames are the atomic unit of audio transport — captured
// from the glasses channel, gated by the client-side VAD, and pushed into
// the cloud-side ASR multiplexer.
type AudioFrame struct {
	// Data is raw PCM or LC3 audio. The wire format is opaque to this layer.
	Data []byte

	// SampleRate in Hz (e.g. 16000 for the VAD gate's analysis rate).
	SampleRate int

	// Channels: 1 for mono, the only format this pipeline accepts.
	Channels int

	// Timestamp marks when this frame was captured, relative to session start.
	Timestamp time.Duration
}

// Transcript represents a speech-to-text result from an ASR provider. Both
// interim (IsFinal=false) and final (IsFinal=true) results use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal distinguishes an authoritative result from an interim guess.
	IsFinal bool

	// Confidence is the overall confidence score (0.0-1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when the provider supports it. May be nil.
	Words []WordDetail

	// SpeakerID identifies the speaker when diarization is active.
	SpeakerID string

	// StartTime and EndTime are relative to the session start.
	StartTime time.Duration
	EndTime   time.Duration

	// TranscribeLanguage is the BCP-47 tag recognition ran against.
	TranscribeLanguage string

	// TranslateLanguage is set for translation streams: the BCP-47 tag the
	// text was translated into. Empty for plain transcription results.
	TranslateLanguage string
}

// WordDetail holds per-word metadata from providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost represents a keyword to boost in ASR recognition.
type KeywordBoost struct {
	// Keyword is the text to boost.
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// VADEvent represents a voice-activity-detection result for a single frame.
type VADEvent struct {
	Type        VADEventType
	Probability float64
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended.
	VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence
)
