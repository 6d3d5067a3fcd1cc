// Package sessionregistry implements the per-user UserSession state machine
// and its registry (spec.md §3, §4.1): creation, lookup, disconnect-with-
// grace, and termination. Each Session guards its own state with its own
// mutex, never a global lock. There is no per-session dispatcher goroutine:
// calls for one session may arrive concurrently from its glasses and TPA
// connection goroutines.
package sessionregistry

import (
	"sync"
	"time"
)

// State is one of the four UserSession lifecycle states (spec.md §3).
type State int

const (
	StateConnecting State = iota
	StateActive
	StateDisconnected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// GlassesChannel abstracts the outbound side of the glasses WebSocket
// connection, so the registry and dispatcher never depend on the transport
// package directly (spec.md §9: no back-pointers, identifier-based
// references only — here the session holds the channel itself since it is
// the owning side, but never hands itself back to the channel).
type GlassesChannel interface {
	Send(frame []byte) error
	SendText(v any) error
	Close() error
}

// AppChannel abstracts the outbound side of a bound TPA connection.
type AppChannel interface {
	Send(frame []byte) error
	SendText(v any) error
	Close() error
}

// TranscriptionStream abstracts a running ASR multiplexer stream so the
// session can tear it down without sessionregistry depending on the speech
// package.
type TranscriptionStream interface {
	Close() error
}

// Closer is a teardown step run in reverse registration order when a
// session ends, mirroring the teacher's SessionManager.closers pattern.
type Closer func() error

// Session is one per authenticated glasses connection (spec.md §3). All
// field access outside of the owning dispatcher goroutine must go through
// the mutex; Registry callers that only need a snapshot use the accessor
// methods below.
type Session struct {
	SessionID string
	UserID    string

	mu    sync.Mutex
	state State

	glasses GlassesChannel

	// activeApps preserves insertion order; loadingApps does not need to,
	// since only membership is queried (spec.md §3 invariant).
	activeApps    []string
	loadingApps   map[string]struct{}
	loadingTimers map[string]*time.Timer
	appChannels   map[string]AppChannel

	transcriptionStreams map[string]TranscriptionStream
	isTranscribing       bool

	disconnectTimer *time.Timer
	graceDeadline   time.Time

	closers []Closer
}

func newSession(sessionID, userID string, glasses GlassesChannel) *Session {
	return &Session{
		SessionID:           sessionID,
		UserID:              userID,
		state:                StateConnecting,
		glasses:              glasses,
		loadingApps:          make(map[string]struct{}),
		loadingTimers:        make(map[string]*time.Timer),
		appChannels:          make(map[string]AppChannel),
		transcriptionStreams: make(map[string]TranscriptionStream),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MarkActive transitions Connecting or Disconnected into Active. Called on
// initial handshake completion and on reconnect.
func (s *Session) MarkActive(glasses GlassesChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnectTimer != nil {
		s.disconnectTimer.Stop()
		s.disconnectTimer = nil
	}
	s.glasses = glasses
	s.state = StateActive
}

// ActiveApps returns a copy of the active app list, in insertion order.
func (s *Session) ActiveApps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.activeApps))
	copy(out, s.activeApps)
	return out
}

// IsActiveOrLoading reports whether packageName is in activeApps or
// loadingApps (spec.md §4.3 step 1 idempotence check).
func (s *Session) IsActiveOrLoading(packageName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, loading := s.loadingApps[packageName]; loading {
		return true
	}
	for _, p := range s.activeApps {
		if p == packageName {
			return true
		}
	}
	return false
}

// BeginLoading inserts packageName into loadingApps. Caller must have
// already checked IsActiveOrLoading.
func (s *Session) BeginLoading(packageName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingApps[packageName] = struct{}{}
}

// SetLoadingTimer installs the timer that fires if packageName is not bound
// before the loading timeout, stopping any previous one for the same
// package first.
func (s *Session) SetLoadingTimer(packageName string, timer *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.loadingTimers[packageName]; ok {
		prev.Stop()
	}
	s.loadingTimers[packageName] = timer
}

// CancelLoading removes packageName from loadingApps without activating it
// and stops its loading timer, if any (spec.md §4.3 step 6, timeout path,
// and the bind-success path). Reports whether packageName was actually
// loading.
func (s *Session) CancelLoading(packageName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, wasLoading := s.loadingApps[packageName]
	delete(s.loadingApps, packageName)
	if timer, ok := s.loadingTimers[packageName]; ok {
		timer.Stop()
		delete(s.loadingTimers, packageName)
	}
	return wasLoading
}

// ActivateApp moves packageName from loadingApps into activeApps.
func (s *Session) ActivateApp(packageName string, channel AppChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loadingApps, packageName)
	if timer, ok := s.loadingTimers[packageName]; ok {
		timer.Stop()
		delete(s.loadingTimers, packageName)
	}
	s.activeApps = append(s.activeApps, packageName)
	s.appChannels[packageName] = channel
}

// DeactivateApp removes packageName from activeApps and appChannels,
// returning the channel so the caller can close it outside the lock.
func (s *Session) DeactivateApp(packageName string) (AppChannel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.activeApps {
		if p == packageName {
			s.activeApps = append(s.activeApps[:i], s.activeApps[i+1:]...)
			break
		}
	}
	ch, ok := s.appChannels[packageName]
	delete(s.appChannels, packageName)
	return ch, ok
}

// AppChannel returns the bound channel for packageName, if any.
func (s *Session) AppChannel(packageName string) (AppChannel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.appChannels[packageName]
	return ch, ok
}

// GlassesChannel returns the current glasses channel, or nil while
// disconnected.
func (s *Session) GlassesChannel() GlassesChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.glasses
}

// SetTranscribing records the last mic-state sent to the glasses, per
// spec.md §8's debounce-settled invariant.
func (s *Session) SetTranscribing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isTranscribing = v
}

// IsTranscribing reports the last mic-state sent to the glasses.
func (s *Session) IsTranscribing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isTranscribing
}

// SetTranscriptionStream installs or replaces the ASR stream for langKey.
func (s *Session) SetTranscriptionStream(langKey string, stream TranscriptionStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcriptionStreams[langKey] = stream
}

// TakeTranscriptionStream removes and returns the ASR stream for langKey, so
// the caller can close it outside the lock.
func (s *Session) TakeTranscriptionStream(langKey string) (TranscriptionStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, ok := s.transcriptionStreams[langKey]
	delete(s.transcriptionStreams, langKey)
	return stream, ok
}

// TranscriptionStreamKeys returns the current key set, for comparison
// against minimalLanguageSubscriptions (spec.md §3 invariant).
func (s *Session) TranscriptionStreamKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.transcriptionStreams))
	for k := range s.transcriptionStreams {
		out = append(out, k)
	}
	return out
}

// addCloser registers a teardown step, run in reverse order by
// Registry.EndSession.
func (s *Session) addCloser(c Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, c)
}

// OnEnd registers a teardown step run when the session ends, in reverse
// registration order. Used by owners of per-session state that lives
// outside the registry (e.g. the transport Hub's display arbiter and mic
// debouncer) to tear down alongside the session itself.
func (s *Session) OnEnd(c Closer) {
	s.addCloser(c)
}
