package lifecycle_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/augmentos-org/cloud-core/internal/lifecycle"
	"github.com/augmentos-org/cloud-core/internal/sessionregistry"
	"github.com/augmentos-org/cloud-core/internal/subscription"
)

type fakeChannel struct{ closed bool }

func (f *fakeChannel) Send([]byte) error  { return nil }
func (f *fakeChannel) SendText(any) error { return nil }
func (f *fakeChannel) Close() error       { f.closed = true; return nil }

type fakeResolver struct {
	apps map[string]lifecycle.App
}

func (r *fakeResolver) ResolveApp(packageName string) (lifecycle.App, bool) {
	a, ok := r.apps[packageName]
	return a, ok
}

type fakeDisplays struct {
	mu        sync.Mutex
	reserved  []string
	released  []string
	withdrawn []string
}

func (d *fakeDisplays) ReserveBootScreen(sessionID, packageName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reserved = append(d.reserved, packageName)
}
func (d *fakeDisplays) ReleaseBootScreen(sessionID, packageName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = append(d.released, packageName)
}
func (d *fakeDisplays) Withdraw(sessionID, packageName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.withdrawn = append(d.withdrawn, packageName)
}

type fakeMic struct {
	mu    sync.Mutex
	calls []bool
}

func (m *fakeMic) SetDesired(sessionID string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, on)
}

func newSession(t *testing.T) *sessionregistry.Session {
	t.Helper()
	reg := sessionregistry.New(time.Minute)
	s, _ := reg.CreateSession(&fakeChannel{}, "user-1")
	return s
}

func TestStartApp_IdempotentWhileActiveOrLoading(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolver := &fakeResolver{apps: map[string]lifecycle.App{
		"com.x": {PackageName: "com.x", Kind: lifecycle.KindBackground, PublicURL: srv.URL},
	}}
	c := lifecycle.New(lifecycle.Config{
		Apps:          resolver,
		Subscriptions: subscription.NewRegistry(),
		Displays:      &fakeDisplays{},
		Mic:           &fakeMic{},
	})
	s := newSession(t)

	id1, err := c.StartApp(context.Background(), s, "com.x")
	require.NoError(t, err)
	id2, err := c.StartApp(context.Background(), s, "com.x")
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.True(t, s.IsActiveOrLoading("com.x"))
}

func TestStartApp_AppNotFound(t *testing.T) {
	t.Parallel()
	c := lifecycle.New(lifecycle.Config{
		Apps:          &fakeResolver{apps: map[string]lifecycle.App{}},
		Subscriptions: subscription.NewRegistry(),
		Displays:      &fakeDisplays{},
		Mic:           &fakeMic{},
	})
	s := newSession(t)

	_, err := c.StartApp(context.Background(), s, "com.missing")
	require.Error(t, err)
}

func TestStartApp_ReservesBootScreenAndTimesOut(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolver := &fakeResolver{apps: map[string]lifecycle.App{
		"com.x": {PackageName: "com.x", Kind: lifecycle.KindBackground, PublicURL: srv.URL},
	}}
	displays := &fakeDisplays{}
	c := lifecycle.New(lifecycle.Config{
		Apps:           resolver,
		Subscriptions:  subscription.NewRegistry(),
		Displays:       displays,
		Mic:            &fakeMic{},
		LoadingTimeout: 30 * time.Millisecond,
	})
	s := newSession(t)

	_, err := c.StartApp(context.Background(), s, "com.x")
	require.NoError(t, err)
	require.True(t, s.IsActiveOrLoading("com.x"))

	require.Eventually(t, func() bool {
		return !s.IsActiveOrLoading("com.x")
	}, time.Second, 5*time.Millisecond)

	displays.mu.Lock()
	defer displays.mu.Unlock()
	require.Contains(t, displays.reserved, "com.x")
	require.Contains(t, displays.released, "com.x")
}

func TestBindTPA_ActivatesAndEnablesMic(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolver := &fakeResolver{apps: map[string]lifecycle.App{
		"com.x": {PackageName: "com.x", Kind: lifecycle.KindBackground, PublicURL: srv.URL, APIKey: "secret"},
	}}
	subs := subscription.NewRegistry()
	mic := &fakeMic{}
	c := lifecycle.New(lifecycle.Config{
		Apps:          resolver,
		Subscriptions: subs,
		Displays:      &fakeDisplays{},
		Mic:           mic,
	})
	s := newSession(t)

	_, err := c.StartApp(context.Background(), s, "com.x")
	require.NoError(t, err)

	subs.Update(s.SessionID, "com.x", []subscription.Key{subscription.ParseKey(subscription.KeyVAD)})

	err = c.BindTPA(context.Background(), s, "com.x", "secret", "127.0.0.1",
		func(app lifecycle.App, claimed, addr string) bool { return claimed == app.APIKey },
		&fakeChannel{})
	require.NoError(t, err)
	require.Equal(t, []string{"com.x"}, s.ActiveApps())

	mic.mu.Lock()
	defer mic.mu.Unlock()
	require.Equal(t, []bool{true}, mic.calls)
}

func TestBindTPA_RejectsBadKey(t *testing.T) {
	t.Parallel()
	resolver := &fakeResolver{apps: map[string]lifecycle.App{
		"com.x": {PackageName: "com.x", Kind: lifecycle.KindBackground, APIKey: "secret"},
	}}
	c := lifecycle.New(lifecycle.Config{
		Apps:          resolver,
		Subscriptions: subscription.NewRegistry(),
		Displays:      &fakeDisplays{},
		Mic:           &fakeMic{},
	})
	s := newSession(t)
	s.BeginLoading("com.x")

	err := c.BindTPA(context.Background(), s, "com.x", "wrong", "127.0.0.1",
		func(app lifecycle.App, claimed, addr string) bool { return claimed == app.APIKey },
		&fakeChannel{})
	require.Error(t, err)
}

func TestStopApp_WithdrawsDisplaysAndClosesChannel(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolver := &fakeResolver{apps: map[string]lifecycle.App{
		"com.x": {PackageName: "com.x", Kind: lifecycle.KindBackground, PublicURL: srv.URL},
	}}
	subs := subscription.NewRegistry()
	displays := &fakeDisplays{}
	mic := &fakeMic{}
	c := lifecycle.New(lifecycle.Config{
		Apps:          resolver,
		Subscriptions: subs,
		Displays:      displays,
		Mic:           mic,
	})
	s := newSession(t)
	appCh := &fakeChannel{}
	s.ActivateApp("com.x", appCh)
	subs.Update(s.SessionID, "com.x", []subscription.Key{subscription.ParseKey(subscription.KeyVAD)})
	mic.calls = nil

	c.StopApp(context.Background(), s, "com.x", "user_requested")

	require.Empty(t, s.ActiveApps())
	require.True(t, appCh.closed)

	displays.mu.Lock()
	require.Contains(t, displays.withdrawn, "com.x")
	displays.mu.Unlock()

	mic.mu.Lock()
	defer mic.mu.Unlock()
	require.Equal(t, []bool{false}, mic.calls)
}

func TestStartApp_StandardExclusivity(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolver := &fakeResolver{apps: map[string]lifecycle.App{
		"com.a": {PackageName: "com.a", Kind: lifecycle.KindStandard, PublicURL: srv.URL},
		"com.b": {PackageName: "com.b", Kind: lifecycle.KindStandard, PublicURL: srv.URL},
	}}
	c := lifecycle.New(lifecycle.Config{
		Apps:          resolver,
		Subscriptions: subscription.NewRegistry(),
		Displays:      &fakeDisplays{},
		Mic:           &fakeMic{},
	})
	s := newSession(t)
	s.ActivateApp("com.a", &fakeChannel{})

	_, err := c.StartApp(context.Background(), s, "com.b")
	require.NoError(t, err)

	require.False(t, s.IsActiveOrLoading("com.a"))
	require.True(t, s.IsActiveOrLoading("com.b"))
}
