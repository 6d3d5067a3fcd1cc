package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/augmentos-org/cloud-core/internal/display"
	"github.com/augmentos-org/cloud-core/internal/lifecycle"
	"github.com/augmentos-org/cloud-core/internal/micdebounce"
	"github.com/augmentos-org/cloud-core/internal/router"
	"github.com/augmentos-org/cloud-core/internal/sessionregistry"
	"github.com/augmentos-org/cloud-core/internal/speech"
	"github.com/augmentos-org/cloud-core/internal/speech/asr"
	"github.com/augmentos-org/cloud-core/internal/subscription"
	"github.com/augmentos-org/cloud-core/internal/wire"
)

// sessionServices bundles the per-session components that live outside the
// Session/Registry proper: the Display Arbiter, the microphone debouncer,
// and the ASR stream multiplexer (spec.md §4.4, §4.5, §4.6). One instance
// is created per session at connect time and torn down via Session.OnEnd.
type sessionServices struct {
	arbiter *display.Arbiter
	mic     *micdebounce.Debouncer
	mux     *speech.Multiplexer
}

// Hub wires every session-scoped component together and exposes the
// Displays/MicControl adapters the Lifecycle Controller depends on
// (spec.md §9: identifier-based references, no back-pointers into the
// registry).
type Hub struct {
	Sessions   *sessionregistry.Registry
	Subs       *subscription.Registry
	Controller *lifecycle.Controller
	Router     *router.Router

	asrProvider asr.Provider
	retention   time.Duration
	micDebounce time.Duration

	mu       sync.Mutex
	services map[string]*sessionServices
}

// HubConfig holds the dependencies a Hub is built from.
type HubConfig struct {
	Sessions            *sessionregistry.Registry
	Subscriptions       *subscription.Registry
	Controller          *lifecycle.Controller
	Router              *router.Router
	ASRProvider         asr.Provider
	TranscriptRetention time.Duration
	MicDebounce         time.Duration
}

// NewHub builds a Hub from cfg.
func NewHub(cfg HubConfig) *Hub {
	return &Hub{
		Sessions:    cfg.Sessions,
		Subs:        cfg.Subscriptions,
		Controller:  cfg.Controller,
		Router:      cfg.Router,
		asrProvider: cfg.ASRProvider,
		retention:   cfg.TranscriptRetention,
		micDebounce: cfg.MicDebounce,
		services:    make(map[string]*sessionServices),
	}
}

// ensureServices lazily creates the per-session bundle for s, wiring the
// arbiter's and debouncer's outputs back to the glasses channel and the
// multiplexer's transcript events into the Router. It is idempotent.
func (h *Hub) ensureServices(s *sessionregistry.Session) *sessionServices {
	h.mu.Lock()
	if svc, ok := h.services[s.SessionID]; ok {
		h.mu.Unlock()
		return svc
	}
	h.mu.Unlock()

	arbiter := display.New(func(req display.Request) {
		h.sendDisplayEvent(s, req)
	})
	mic := micdebounce.NewWithWindow(micdebounce.Actions{
		StartTranscription: func() { h.sendMicState(s, true) },
		StopTranscription:  func() { h.sendMicState(s, false) },
	}, h.micDebounce)
	buf := speech.NewTranscriptBuffer(h.retention)
	mux := speech.NewMultiplexer(h.asrProvider, buf, func(ev speech.TranscriptEvent) {
		h.Router.RouteTranscript(s, ev)
	})
	s.SetTranscriptionStream("multiplexer", mux)

	svc := &sessionServices{arbiter: arbiter, mic: mic, mux: mux}

	h.mu.Lock()
	h.services[s.SessionID] = svc
	h.mu.Unlock()

	s.OnEnd(func() error {
		mic.Stop()
		h.mu.Lock()
		delete(h.services, s.SessionID)
		h.mu.Unlock()
		return nil
	})

	return svc
}

// servicesFor returns the bundle for sessionID, or nil if the session has no
// services registered (not yet connected, or already ended).
func (h *Hub) servicesFor(sessionID string) *sessionServices {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.services[sessionID]
}

func (h *Hub) sendDisplayEvent(s *sessionregistry.Session, req display.Request) {
	ch := s.GlassesChannel()
	if ch == nil {
		return
	}
	ev := wire.DisplayEvent{
		Type:        wire.TypeDisplayEvent,
		View:        req.View,
		Layout:      req.Layout,
		DurationMs:  req.DurationMs,
		PackageName: req.PackageName,
		SessionID:   s.SessionID,
	}
	if err := ch.SendText(ev); err != nil {
		slog.Warn("send display_event failed", "session", s.SessionID, "view", req.View, "err", err)
	}
}

func (h *Hub) sendMicState(s *sessionregistry.Session, on bool) {
	s.SetTranscribing(on)
	ch := s.GlassesChannel()
	if ch == nil {
		return
	}
	msg := wire.MicrophoneStateChange{Type: wire.TypeMicrophoneStateChange, IsMicrophoneEnabled: on}
	if err := ch.SendText(msg); err != nil {
		slog.Warn("send microphone_state_change failed", "session", s.SessionID, "err", err)
	}
}

// notifyAppState pushes the current active-app list to the glasses
// (spec.md §6's app_state_change).
func (h *Hub) notifyAppState(s *sessionregistry.Session) {
	ch := s.GlassesChannel()
	if ch == nil {
		return
	}
	msg := wire.AppStateChange{
		Type:      wire.TypeAppStateChange,
		SessionID: s.SessionID,
		UserSession: map[string]any{
			"activeApps": s.ActiveApps(),
		},
	}
	if err := ch.SendText(msg); err != nil {
		slog.Warn("send app_state_change failed", "session", s.SessionID, "err", err)
	}
}

// reconcileLanguages recomputes the minimal language projection for s and
// applies it to its ASR multiplexer (spec.md §4.4). Called after every
// subscription update.
func (h *Hub) reconcileLanguages(ctx context.Context, s *sessionregistry.Session, svc *sessionServices) {
	minimal := h.Subs.MinimalLanguageSubscriptions(s.SessionID)
	if err := svc.mux.UpdateLanguages(ctx, minimal); err != nil {
		slog.Warn("asr language reconciliation failed", "session", s.SessionID, "err", err)
	}
}

// ── lifecycle.Displays ──────────────────────────────────────────────────────

func (h *Hub) ReserveBootScreen(sessionID, packageName string) {
	if svc := h.servicesFor(sessionID); svc != nil {
		svc.arbiter.ReserveBootScreen(packageName)
	}
}

func (h *Hub) ReleaseBootScreen(sessionID, packageName string) {
	if svc := h.servicesFor(sessionID); svc != nil {
		svc.arbiter.ReleaseBootScreen(packageName)
	}
}

func (h *Hub) Withdraw(sessionID, packageName string) {
	if svc := h.servicesFor(sessionID); svc != nil {
		svc.arbiter.Withdraw(packageName)
	}
}

// ── lifecycle.MicControl ─────────────────────────────────────────────────────

func (h *Hub) SetDesired(sessionID string, on bool) {
	s := h.Sessions.GetSession(sessionID)
	if s == nil {
		return
	}
	h.ensureServices(s).mic.SetDesired(on)
}

var _ lifecycle.Displays = (*Hub)(nil)
var _ lifecycle.MicControl = (*Hub)(nil)
