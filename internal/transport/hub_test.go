package transport_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/augmentos-org/cloud-core/internal/lifecycle"
	"github.com/augmentos-org/cloud-core/internal/router"
	asrmock "github.com/augmentos-org/cloud-core/internal/speech/asr/mock"
	"github.com/augmentos-org/cloud-core/internal/sessionregistry"
	"github.com/augmentos-org/cloud-core/internal/subscription"
	"github.com/augmentos-org/cloud-core/internal/transport"
)

type fakeGlassesChannel struct {
	texts [][]byte
}

func (f *fakeGlassesChannel) Send([]byte) error { return nil }
func (f *fakeGlassesChannel) SendText(v any) error {
	f.texts = append(f.texts, []byte{})
	_ = v
	return nil
}
func (f *fakeGlassesChannel) Close() error { return nil }

func newTestHub(t *testing.T) (*transport.Hub, *sessionregistry.Registry) {
	t.Helper()
	sessions := sessionregistry.New(time.Minute)
	subs := subscription.NewRegistry()
	r := router.New(subs, nil)

	hub := transport.NewHub(transport.HubConfig{
		Sessions:            sessions,
		Subscriptions:       subs,
		Router:              r,
		ASRProvider:         asrmock.New(),
		TranscriptRetention: time.Minute,
		MicDebounce:         10 * time.Millisecond,
	})

	controller := lifecycle.New(lifecycle.Config{
		Apps:          fakeResolver{},
		Subscriptions: subs,
		Displays:      hub,
		Mic:           hub,
	})
	hub.Controller = controller
	return hub, sessions
}

type fakeResolver struct{}

func (fakeResolver) ResolveApp(packageName string) (lifecycle.App, bool) {
	return lifecycle.App{}, false
}

func TestHub_EnsureServicesIsIdempotent(t *testing.T) {
	t.Parallel()
	hub, sessions := newTestHub(t)
	s, _ := sessions.CreateSession(&fakeGlassesChannel{}, "user-1")

	hub.SetDesired(s.SessionID, true)
	hub.SetDesired(s.SessionID, true)

	require.Eventually(t, func() bool {
		return s.IsTranscribing()
	}, time.Second, 5*time.Millisecond, "mic state should apply on first SetDesired")
}

func TestHub_DisplaysAdapterIsNoOpForUnknownSession(t *testing.T) {
	t.Parallel()
	hub, _ := newTestHub(t)
	// No session bundle exists yet; these must not panic.
	hub.ReserveBootScreen("missing", "pkg")
	hub.ReleaseBootScreen("missing", "pkg")
	hub.Withdraw("missing", "pkg")
	hub.SetDesired("missing", true)
}

func TestHub_OnEndTearsDownSessionServices(t *testing.T) {
	t.Parallel()
	hub, sessions := newTestHub(t)
	s, _ := sessions.CreateSession(&fakeGlassesChannel{}, "user-1")

	hub.SetDesired(s.SessionID, true)
	require.Eventually(t, s.IsTranscribing, time.Second, 5*time.Millisecond)

	sessions.EndSession(s)

	// After EndSession the hub no longer has a services bundle; SetDesired on
	// it must be a safe no-op rather than re-creating one.
	require.NotPanics(t, func() { hub.SetDesired(s.SessionID, false) })
}
