package registration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/augmentos-org/cloud-core/internal/lifecycle"
)

type fakeAppResolver struct {
	apps map[string]lifecycle.App
}

func (f *fakeAppResolver) ResolveApp(packageName string) (lifecycle.App, bool) {
	a, ok := f.apps[packageName]
	return a, ok
}

func TestRegister_RejectsWrongAPIKey(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	resolver := &fakeAppResolver{apps: map[string]lifecycle.App{
		"com.x": {PackageName: "com.x", APIKey: "correct"},
	}}
	svc := newServiceForTest(store, resolver)

	_, err := svc.Register(context.Background(), "com.x", "wrong", "https://x.example/webhook", nil)
	require.Error(t, err)
}
