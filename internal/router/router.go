// Package router implements the Router/Fan-out component (spec.md §4.8):
// effective-key-based delivery of typed events to subscribed TPAs, binary
// audio forwarding, and command-activation matching on final English
// transcripts.
package router

import (
	"log/slog"
	"strings"

	"github.com/augmentos-org/cloud-core/internal/sessionregistry"
	"github.com/augmentos-org/cloud-core/internal/speech"
	"github.com/augmentos-org/cloud-core/internal/subscription"
	"github.com/augmentos-org/cloud-core/internal/wire"
)

// Command is one phrase an app registers for command-activation matching.
type Command struct {
	ID     string
	Phrase string
}

// CommandResolver exposes the command phrases registered by a package.
type CommandResolver interface {
	CommandsFor(packageName string) []Command
}

// Subscribers abstracts the Subscription Registry lookup the router needs.
type Subscribers interface {
	SubscribersOf(sessionID string, key subscription.Key) []string
}

// Router fans events out to subscribed TPA channels.
type Router struct {
	subs     Subscribers
	commands CommandResolver
}

// New returns a Router backed by subs and commands.
func New(subs Subscribers, commands CommandResolver) *Router {
	return &Router{subs: subs, commands: commands}
}

// RouteEvent delivers payload, tagged with streamType, to every package
// subscribed to key (spec.md §4.8).
func (r *Router) RouteEvent(s *sessionregistry.Session, key subscription.Key, streamType string, payload any) {
	for _, pkg := range r.subs.SubscribersOf(s.SessionID, key) {
		ch, ok := s.AppChannel(pkg)
		if !ok {
			continue
		}
		msg := wire.DataStream{Type: wire.TypeDataStream, StreamType: streamType, Data: payload}
		if err := ch.SendText(msg); err != nil {
			slog.Warn("router: data_stream delivery failed", "package", pkg, "session", s.SessionID, "err", err)
		}
	}
}

// RouteAudio forwards a binary audio frame to every package subscribed to
// audio_chunk (spec.md §4.8: "Audio chunks are forwarded as binary frames").
func (r *Router) RouteAudio(s *sessionregistry.Session, frame []byte) {
	key := subscription.ParseKey(string(subscription.KeyAudioChunk))
	for _, pkg := range r.subs.SubscribersOf(s.SessionID, key) {
		ch, ok := s.AppChannel(pkg)
		if !ok {
			continue
		}
		if err := ch.Send(frame); err != nil {
			slog.Warn("router: audio delivery failed", "package", pkg, "session", s.SessionID, "err", err)
		}
	}
}

// RouteTranscript delivers a transcription/translation event to its
// language-specific subscribers, then runs command-activation matching if
// the event is a final, untranslated English result (spec.md §4.8, §9:
// "the source restricts to final English — preserve that conservative
// rule").
func (r *Router) RouteTranscript(s *sessionregistry.Session, event speech.TranscriptEvent) {
	streamType := "transcription"
	if event.EffectiveKey.IsTranslation() {
		streamType = "translation"
	}
	r.RouteEvent(s, event.EffectiveKey, streamType, event.Transcript)

	if !event.Transcript.IsFinal || event.EffectiveKey.IsTranslation() {
		return
	}
	if event.EffectiveKey.TranscribeLanguage() != subscription.DefaultTranscribeLanguage {
		return
	}
	r.matchCommands(s, event.Transcript.Text)
}

func (r *Router) matchCommands(s *sessionregistry.Session, text string) {
	if r.commands == nil {
		return
	}
	lowered := strings.ToLower(text)
	for _, pkg := range s.ActiveApps() {
		for _, cmd := range r.commands.CommandsFor(pkg) {
			if strings.Contains(lowered, strings.ToLower(cmd.Phrase)) {
				r.deliverCommand(s, pkg, cmd, text)
				break
			}
		}
	}
}

func (r *Router) deliverCommand(s *sessionregistry.Session, pkg string, cmd Command, spokenPhrase string) {
	ch, ok := s.AppChannel(pkg)
	if !ok {
		return
	}
	msg := wire.CommandActivate{
		Type:         wire.TypeCommandActivate,
		CommandID:    cmd.ID,
		SpokenPhrase: spokenPhrase,
		SessionID:    s.SessionID,
	}
	if err := ch.SendText(msg); err != nil {
		slog.Warn("router: command_activate delivery failed", "package", pkg, "session", s.SessionID, "err", err)
	}
}
