package sessionregistry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/augmentos-org/cloud-core/internal/apperrors"
)

// DefaultReconnectGrace is the default window a disconnected session is kept
// alive waiting for the glasses to reconnect (spec.md §5, §6).
const DefaultReconnectGrace = 60 * time.Second

// Registry is the process-wide Session Registry (spec.md §4.1). It is the
// single owner of every live Session; other components reference sessions
// only by sessionId and go through Registry.GetSession, never holding a Session
// pointer across a suspension point without re-validating its state.
type Registry struct {
	grace time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]string // userId -> sessionId, for reconnect-by-user lookup
}

// New returns an empty [Registry]. grace overrides [DefaultReconnectGrace]
// when non-zero.
func New(grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultReconnectGrace
	}
	return &Registry{
		grace:    grace,
		sessions: make(map[string]*Session),
		byUser:   make(map[string]string),
	}
}

// CreateSession issues a new session for userId bound to glasses, or — if a
// Disconnected session for the same userId is still within its grace window
// — adopts it instead, per spec.md §4.1's reconnect rule. The bool return
// reports whether an existing session was adopted.
func (r *Registry) CreateSession(glasses GlassesChannel, userID string) (*Session, bool) {
	r.mu.Lock()
	if sessionID, ok := r.byUser[userID]; ok {
		if existing, ok := r.sessions[sessionID]; ok && existing.State() == StateDisconnected {
			r.mu.Unlock()
			existing.MarkActive(glasses)
			slog.Info("session reconnected", "sessionId", sessionID, "userId", userID)
			return existing, true
		}
	}
	defer r.mu.Unlock()

	sessionID := uuid.NewString()
	s := newSession(sessionID, userID, glasses)
	s.state = StateActive
	r.sessions[sessionID] = s
	r.byUser[userID] = sessionID
	slog.Info("session created", "sessionId", sessionID, "userId", userID)
	return s, false
}

// GetSession returns the session for sessionID, or nil. Never blocks on
// anything beyond the registry's own lock (spec.md §4.1).
func (r *Registry) GetSession(sessionID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.State() == StateEnded {
		return nil
	}
	return s
}

// MarkDisconnected transitions s to Disconnected and arms the grace-window
// timer; if the glasses channel has not reconnected by expiry, the session
// is ended automatically (spec.md §4.1).
func (r *Registry) MarkDisconnected(s *Session) {
	s.mu.Lock()
	if s.state == StateEnded || s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.glasses = nil
	s.graceDeadline = time.Now().Add(r.grace)
	deadline := s.graceDeadline
	s.disconnectTimer = time.AfterFunc(r.grace, func() {
		r.expireIfStillDisconnected(s, deadline)
	})
	s.mu.Unlock()

	slog.Info("session disconnected, grace window started", "sessionId", s.SessionID, "grace", r.grace)
}

func (r *Registry) expireIfStillDisconnected(s *Session, expectedDeadline time.Time) {
	s.mu.Lock()
	stillWaiting := s.state == StateDisconnected && s.graceDeadline.Equal(expectedDeadline)
	s.mu.Unlock()
	if !stillWaiting {
		return
	}
	r.EndSession(s)
}

// EndSession transitions s to Ended, closes every app channel and ASR
// instance, and removes it from the registry. Idempotent (spec.md §4.1).
func (r *Registry) EndSession(s *Session) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	s.state = StateEnded
	if s.disconnectTimer != nil {
		s.disconnectTimer.Stop()
	}
	for _, timer := range s.loadingTimers {
		timer.Stop()
	}
	s.loadingTimers = make(map[string]*time.Timer)
	channels := make([]AppChannel, 0, len(s.appChannels))
	for _, ch := range s.appChannels {
		channels = append(channels, ch)
	}
	s.appChannels = make(map[string]AppChannel)
	streams := make([]TranscriptionStream, 0, len(s.transcriptionStreams))
	for _, st := range s.transcriptionStreams {
		streams = append(streams, st)
	}
	s.transcriptionStreams = make(map[string]TranscriptionStream)
	closers := make([]Closer, len(s.closers))
	copy(closers, s.closers)
	glasses := s.glasses
	s.glasses = nil
	s.mu.Unlock()

	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			slog.Warn("session end: app channel close failed", "sessionId", s.SessionID, "err", err)
		}
	}
	for _, st := range streams {
		if err := st.Close(); err != nil {
			slog.Warn("session end: asr stream close failed", "sessionId", s.SessionID, "err", err)
		}
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			slog.Warn("session end: closer failed", "sessionId", s.SessionID, "err", err)
		}
	}
	if glasses != nil {
		_ = glasses.Close()
	}

	r.mu.Lock()
	delete(r.sessions, s.SessionID)
	if r.byUser[s.UserID] == s.SessionID {
		delete(r.byUser, s.UserID)
	}
	r.mu.Unlock()

	slog.Info("session ended", "sessionId", s.SessionID)
}

// SessionsWithActiveApp returns every live session with packageName in its
// activeApps, for the registration service's restart recovery sweep
// (spec.md §4.7).
func (r *Registry) SessionsWithActiveApp(packageName string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.State() == StateEnded {
			continue
		}
		for _, p := range s.ActiveApps() {
			if p == packageName {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// ErrSessionNotFound wraps apperrors.ErrSessionEnded for call sites that
// look up a session expecting it to exist.
func ErrSessionNotFound(sessionID string) error {
	return apperrors.SessionEnded(sessionID)
}
