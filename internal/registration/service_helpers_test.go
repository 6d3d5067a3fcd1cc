package registration_test

import (
	"context"

	"github.com/augmentos-org/cloud-core/internal/lifecycle"
	"github.com/augmentos-org/cloud-core/internal/registration"
	"github.com/augmentos-org/cloud-core/internal/sessionregistry"
)

type fakeSessions struct {
	bySession []*sessionregistry.Session
}

func (f *fakeSessions) SessionsWithActiveApp(packageName string) []*sessionregistry.Session {
	return f.bySession
}

type fakeWebhooks struct {
	sent []lifecycle.SessionRecoveryPayload
}

func (f *fakeWebhooks) SendSessionRecovery(ctx context.Context, webhookURL string, payload lifecycle.SessionRecoveryPayload) error {
	f.sent = append(f.sent, payload)
	return nil
}

func newServiceForTest(store *registration.Store, apps registration.AppKeyResolver) *registration.Service {
	return registration.NewService(store, apps, &fakeSessions{}, &fakeWebhooks{})
}
