package router_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/augmentos-org/cloud-core/internal/router"
	"github.com/augmentos-org/cloud-core/internal/sessionregistry"
	"github.com/augmentos-org/cloud-core/internal/speech"
	"github.com/augmentos-org/cloud-core/internal/subscription"
	"github.com/augmentos-org/cloud-core/internal/wire"
	"github.com/augmentos-org/cloud-core/pkg/types"
)

type recordingChannel struct {
	texts []any
	audio [][]byte
}

func (c *recordingChannel) Send(frame []byte) error { c.audio = append(c.audio, frame); return nil }
func (c *recordingChannel) SendText(v any) error     { c.texts = append(c.texts, v); return nil }
func (c *recordingChannel) Close() error             { return nil }

func newSession(t *testing.T) (*sessionregistry.Session, *recordingChannel) {
	t.Helper()
	reg := sessionregistry.New(0)
	s, _ := reg.CreateSession(&recordingChannel{}, "user-1")
	ch := &recordingChannel{}
	s.ActivateApp("com.x", ch)
	return s, ch
}

func TestRouteEvent_DeliversToSubscriber(t *testing.T) {
	t.Parallel()
	subs := subscription.NewRegistry()
	s, ch := newSession(t)
	subs.Update(s.SessionID, "com.x", []subscription.Key{subscription.ParseKey(subscription.KeyButtonPress)})

	r := router.New(subs, nil)
	r.RouteEvent(s, subscription.ParseKey("button_press"), "button_press", wire.ButtonPress{ButtonID: "1"})

	require.Len(t, ch.texts, 1)
	msg, ok := ch.texts[0].(wire.DataStream)
	require.True(t, ok)
	require.Equal(t, "button_press", msg.StreamType)
}

func TestRouteAudio_OnlyToAudioChunkSubscribers(t *testing.T) {
	t.Parallel()
	subs := subscription.NewRegistry()
	s, ch := newSession(t)
	subs.Update(s.SessionID, "com.x", []subscription.Key{subscription.ParseKey(subscription.KeyAudioChunk)})

	r := router.New(subs, nil)
	r.RouteAudio(s, []byte("pcm"))

	require.Len(t, ch.audio, 1)
	require.Equal(t, []byte("pcm"), ch.audio[0])
}

func TestRouteTranscript_FinalEnglishTriggersCommandMatch(t *testing.T) {
	t.Parallel()
	subs := subscription.NewRegistry()
	s, ch := newSession(t)
	subs.Update(s.SessionID, "com.x", []subscription.Key{subscription.TranscriptionKey("en-US")})

	resolver := stubCommands{"com.x": {{ID: "cmd-1", Phrase: "turn on the lights"}}}
	r := router.New(subs, resolver)

	event := speech.TranscriptEvent{
		Transcript:   types.Transcript{Text: "please turn on the lights now", IsFinal: true, TranscribeLanguage: "en-US"},
		EffectiveKey: subscription.TranscriptionKey("en-US"),
	}
	r.RouteTranscript(s, event)

	require.Len(t, ch.texts, 2)
	_, isData := ch.texts[0].(wire.DataStream)
	require.True(t, isData)
	cmd, isCmd := ch.texts[1].(wire.CommandActivate)
	require.True(t, isCmd)
	require.Equal(t, "cmd-1", cmd.CommandID)
}

func TestRouteTranscript_InterimDoesNotTriggerCommandMatch(t *testing.T) {
	t.Parallel()
	subs := subscription.NewRegistry()
	s, ch := newSession(t)
	subs.Update(s.SessionID, "com.x", []subscription.Key{subscription.TranscriptionKey("en-US")})

	resolver := stubCommands{"com.x": {{ID: "cmd-1", Phrase: "lights"}}}
	r := router.New(subs, resolver)

	event := speech.TranscriptEvent{
		Transcript:   types.Transcript{Text: "the lights", IsFinal: false, TranscribeLanguage: "en-US"},
		EffectiveKey: subscription.TranscriptionKey("en-US"),
	}
	r.RouteTranscript(s, event)

	require.Len(t, ch.texts, 1, "only the data_stream delivery, no command_activate")
}

func TestRouteTranscript_TranslationNeverTriggersCommandMatch(t *testing.T) {
	t.Parallel()
	subs := subscription.NewRegistry()
	s, ch := newSession(t)
	key := subscription.TranslationKey("es-ES", "en-US")
	subs.Update(s.SessionID, "com.x", []subscription.Key{key})

	resolver := stubCommands{"com.x": {{ID: "cmd-1", Phrase: "lights"}}}
	r := router.New(subs, resolver)

	event := speech.TranscriptEvent{
		Transcript:   types.Transcript{Text: "the lights", IsFinal: true, TranscribeLanguage: "es-ES", TranslateLanguage: "en-US"},
		EffectiveKey: key,
	}
	r.RouteTranscript(s, event)

	require.Len(t, ch.texts, 1)
}

type stubCommands map[string][]router.Command

func (s stubCommands) CommandsFor(packageName string) []router.Command {
	return s[packageName]
}
