package registration

import (
	"context"
	"log/slog"
	"time"

	"github.com/augmentos-org/cloud-core/internal/apperrors"
	"github.com/augmentos-org/cloud-core/internal/lifecycle"
	"github.com/augmentos-org/cloud-core/internal/sessionregistry"
)

// AppKeyResolver looks up the app-record API key to verify a register call
// against, independent of any registrations already on file.
type AppKeyResolver interface {
	ResolveApp(packageName string) (lifecycle.App, bool)
}

// Webhooks sends the best-effort session_recovery webhook restart triggers.
type Webhooks interface {
	SendSessionRecovery(ctx context.Context, webhookURL string, payload lifecycle.SessionRecoveryPayload) error
}

// Sessions is the subset of sessionregistry.Registry restart needs.
type Sessions interface {
	SessionsWithActiveApp(packageName string) []*sessionregistry.Session
}

// Service implements the three registration operations of spec.md §4.7.
type Service struct {
	store    *Store
	apps     AppKeyResolver
	sessions Sessions
	webhooks Webhooks
}

// NewService builds a Service from its dependencies.
func NewService(store *Store, apps AppKeyResolver, sessions Sessions, webhooks Webhooks) *Service {
	return &Service{store: store, apps: apps, sessions: sessions, webhooks: webhooks}
}

// Register verifies apiKey against the app record and upserts the
// registration, returning its registrationId.
func (s *Service) Register(ctx context.Context, packageName, apiKey, webhookURL string, serverURLs []string) (string, error) {
	app, ok := s.apps.ResolveApp(packageName)
	if !ok {
		return "", apperrors.AppNotFound(packageName)
	}
	if apiKey == "" || app.APIKey != apiKey {
		return "", apperrors.AuthFailure("invalid tpa api key")
	}
	return s.store.Upsert(ctx, packageName, webhookURL, serverURLs, HashAPIKey(apiKey))
}

// Heartbeat refreshes the registration's liveness timestamp.
func (s *Service) Heartbeat(ctx context.Context, registrationID string) error {
	return s.store.Heartbeat(ctx, registrationID)
}

// Restart re-sends a session_recovery webhook for every live session that
// has this registration's package active, skipping sessions whose TPA
// channel is already open (spec.md §4.7).
func (s *Service) Restart(ctx context.Context, registrationID string) (int, error) {
	reg, err := s.store.Get(ctx, registrationID)
	if err != nil {
		return 0, err
	}
	if !reg.IsLive(time.Now()) {
		return 0, nil
	}

	recovered := 0
	for _, sess := range s.sessions.SessionsWithActiveApp(reg.PackageName) {
		if _, open := sess.AppChannel(reg.PackageName); open {
			continue
		}
		payload := lifecycle.SessionRecoveryPayload{
			Type:      "session_recovery",
			SessionID: lifecycle.CompositeID(sess.SessionID, reg.PackageName),
			UserID:    sess.UserID,
			Timestamp: time.Now().UnixMilli(),
		}
		if err := s.webhooks.SendSessionRecovery(ctx, reg.WebhookURL, payload); err != nil {
			slog.Warn("session_recovery webhook failed", "package", reg.PackageName, "session", sess.SessionID, "err", err)
			continue
		}
		recovered++
	}
	return recovered, nil
}
