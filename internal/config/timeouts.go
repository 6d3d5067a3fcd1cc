package config

import (
	"fmt"
	"time"
)

// Default timeout values, per spec.md §6.
const (
	DefaultTPALoading          = 5 * time.Second
	DefaultReconnectGrace      = 60 * time.Second
	DefaultMicDebounce         = 1 * time.Second
	DefaultTranscriptRetention = 30 * time.Minute
	DefaultHeartbeatDeadTime   = 90 * time.Second
)

// ResolvedTimeouts holds the parsed, defaulted durations for runtime use.
type ResolvedTimeouts struct {
	TPALoading          time.Duration
	ReconnectGrace      time.Duration
	MicDebounce         time.Duration
	TranscriptRetention time.Duration
	HeartbeatDeadTime   time.Duration
}

// Resolve parses each duration string, falling back to the spec.md default
// when empty. It assumes the strings have already passed [Validate].
func (t TimeoutsConfig) Resolve() ResolvedTimeouts {
	return ResolvedTimeouts{
		TPALoading:          parseOrDefault(t.TPALoading, DefaultTPALoading),
		ReconnectGrace:      parseOrDefault(t.ReconnectGrace, DefaultReconnectGrace),
		MicDebounce:         parseOrDefault(t.MicDebounce, DefaultMicDebounce),
		TranscriptRetention: parseOrDefault(t.TranscriptRetention, DefaultTranscriptRetention),
		HeartbeatDeadTime:   parseOrDefault(t.HeartbeatDeadTime, DefaultHeartbeatDeadTime),
	}
}

func parseOrDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// validateDuration checks that s, if non-empty, parses as a Go duration.
func validateDuration(field, s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("%s %q is not a valid duration: %w", field, s, err)
	}
	return nil
}
