// Package lifecycle implements the TPA Lifecycle Controller (spec.md
// §4.3): startApp/stopApp/bindTpa, STANDARD-kind exclusivity, the
// Loading-state boot screen and its timeout, and best-effort webhook
// dispatch through a circuit breaker.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/augmentos-org/cloud-core/internal/apperrors"
	"github.com/augmentos-org/cloud-core/internal/resilience"
	"github.com/augmentos-org/cloud-core/internal/sessionregistry"
	"github.com/augmentos-org/cloud-core/internal/subscription"
)

// LoadingTimeout bounds how long a package may sit in Loading before its
// boot screen is torn down (spec.md §4.3, TPA_SESSION_TIMEOUT).
const LoadingTimeout = 5 * time.Second

// Displays abstracts the per-session Display Arbiter so this package does
// not depend on internal/display directly; the concrete binding lives in
// whatever owns both a Session and its Arbiter.
type Displays interface {
	ReserveBootScreen(sessionID, packageName string)
	ReleaseBootScreen(sessionID, packageName string)
	Withdraw(sessionID, packageName string)
}

// MicControl abstracts the per-session microphone debouncer.
type MicControl interface {
	SetDesired(sessionID string, on bool)
}

// MembershipStore persists which packages are running for a user, used for
// crash recovery via the registration service's restart operation. Both
// methods are called best-effort: failures are logged, never propagated.
type MembershipStore interface {
	AddRunningApp(ctx context.Context, userID, packageName string) error
	RemoveRunningApp(ctx context.Context, userID, packageName string) error
}

// Controller runs startApp/stopApp/bindTpa against a session registry, a
// subscription registry, and the per-session Displays/MicControl bindings.
type Controller struct {
	apps         AppResolver
	subs         *subscription.Registry
	displays     Displays
	mic          MicControl
	membership   MembershipStore
	httpClient   *http.Client
	wsURLForUser func(sessionID string) string

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker

	// startGroup collapses concurrent duplicate startApp calls for the same
	// session+package into a single webhook dispatch.
	startGroup singleflight.Group

	loadingTimeout time.Duration
}

// Config holds the dependencies a Controller is built from.
type Config struct {
	Apps           AppResolver
	Subscriptions  *subscription.Registry
	Displays       Displays
	Mic            MicControl
	Membership     MembershipStore
	HTTPClient     *http.Client
	WebsocketURL   func(sessionID string) string
	LoadingTimeout time.Duration
}

// New builds a Controller from cfg, filling in defaults for the HTTP client
// and loading timeout.
func New(cfg Config) *Controller {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: webhookTimeout}
	}
	if cfg.LoadingTimeout <= 0 {
		cfg.LoadingTimeout = LoadingTimeout
	}
	return &Controller{
		apps:           cfg.Apps,
		subs:           cfg.Subscriptions,
		displays:       cfg.Displays,
		mic:            cfg.Mic,
		membership:     cfg.Membership,
		httpClient:     cfg.HTTPClient,
		wsURLForUser:   cfg.WebsocketURL,
		breakers:       make(map[string]*resilience.CircuitBreaker),
		loadingTimeout: cfg.LoadingTimeout,
	}
}

func (c *Controller) breakerFor(packageName string) *resilience.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[packageName]
	if !ok {
		cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "webhook:" + packageName})
		c.breakers[packageName] = cb
	}
	return cb
}

// CompositeID returns the stable sessionId-packageName identifier webhooks
// and TPA channels use to address one app instance within a session.
func CompositeID(sessionID, packageName string) string {
	return sessionID + "-" + packageName
}

// StartApp implements spec.md §4.3's startApp.
func (c *Controller) StartApp(ctx context.Context, s *sessionregistry.Session, packageName string) (string, error) {
	compositeID := CompositeID(s.SessionID, packageName)

	if s.IsActiveOrLoading(packageName) {
		return compositeID, nil
	}

	app, ok := c.apps.ResolveApp(packageName)
	if !ok {
		return "", apperrors.AppNotFound(packageName)
	}

	if app.Kind == KindStandard {
		for _, active := range s.ActiveApps() {
			if other, ok := c.apps.ResolveApp(active); ok && other.Kind == KindStandard {
				c.StopApp(ctx, s, other.PackageName, "standard_exclusivity")
			}
		}
	}

	// singleflight collapses a burst of concurrent startApp calls racing on
	// the IsActiveOrLoading check above into one boot-screen reservation and
	// one webhook dispatch.
	_, _, _ = c.startGroup.Do(compositeID, func() (any, error) {
		s.BeginLoading(packageName)
		c.displays.ReserveBootScreen(s.SessionID, packageName)

		wsURL := ""
		if c.wsURLForUser != nil {
			wsURL = c.wsURLForUser(s.SessionID)
		}
		payload := SessionRequestPayload{
			Type:                  "session_request",
			SessionID:             compositeID,
			UserID:                s.UserID,
			Timestamp:             time.Now().UnixMilli(),
			AugmentOSWebsocketURL: wsURL,
		}

		cb := c.breakerFor(packageName)
		if err := cb.Execute(func() error {
			return postWebhook(ctx, c.httpClient, app.WebhookURL()+"/webhook", payload)
		}); err != nil {
			slog.Warn("session_request webhook failed", "package", packageName, "session", s.SessionID, "err", err)
		}

		timer := time.AfterFunc(c.loadingTimeout, func() {
			c.expireLoading(s, packageName)
		})
		s.SetLoadingTimer(packageName, timer)

		return nil, nil
	})

	return compositeID, nil
}

func (c *Controller) expireLoading(s *sessionregistry.Session, packageName string) {
	if !s.CancelLoading(packageName) {
		return // already bound or already removed
	}
	c.displays.ReleaseBootScreen(s.SessionID, packageName)
	slog.Warn("tpa loading timed out", "package", packageName, "session", s.SessionID)
}

// StopApp implements spec.md §4.3's stopApp. reason is carried in the
// best-effort stop_request webhook.
func (c *Controller) StopApp(ctx context.Context, s *sessionregistry.Session, packageName, reason string) {
	hadMedia := c.subs.HasMediaSubscriptions(s.SessionID)

	c.subs.Remove(s.SessionID, packageName)

	channel, _ := s.DeactivateApp(packageName)

	if app, ok := c.apps.ResolveApp(packageName); ok {
		cb := c.breakerFor(packageName)
		payload := StopRequestPayload{Type: "stop_request", Reason: reason}
		if err := cb.Execute(func() error {
			return postWebhook(ctx, c.httpClient, app.WebhookURL()+"/webhook", payload)
		}); err != nil {
			slog.Warn("stop_request webhook failed", "package", packageName, "session", s.SessionID, "err", err)
		}
	}

	if channel != nil {
		if err := channel.Close(); err != nil {
			slog.Warn("tpa channel close failed", "package", packageName, "session", s.SessionID, "err", err)
		}
	}

	if c.membership != nil {
		if err := c.membership.RemoveRunningApp(ctx, s.UserID, packageName); err != nil {
			slog.Warn("persist running-app removal failed", "package", packageName, "user", s.UserID, "err", err)
		}
	}

	c.displays.Withdraw(s.SessionID, packageName)

	if hadMedia && !c.subs.HasMediaSubscriptions(s.SessionID) {
		c.mic.SetDesired(s.SessionID, false)
	}
}

// APIKeyValidator checks a TPA's claimed API key against its registration
// record, with a relaxed check for system apps that bind from an internal
// IP rather than presenting a key.
type APIKeyValidator func(app App, claimedKey, remoteAddr string) bool

// BindTPA implements spec.md §4.3's bindTpa: validates the channel's claimed
// identity, accepts the bind only if the package is loading or already
// active (system apps are exempted from that check), and on success moves
// loadingApps → activeApps.
func (c *Controller) BindTPA(ctx context.Context, s *sessionregistry.Session, packageName, claimedKey, remoteAddr string, validate APIKeyValidator, channel sessionregistry.AppChannel) error {
	app, ok := c.apps.ResolveApp(packageName)
	if !ok {
		return apperrors.AppNotFound(packageName)
	}
	if !validate(app, claimedKey, remoteAddr) {
		return apperrors.AuthFailure("invalid tpa api key")
	}

	if app.Kind != KindSystem && !s.IsActiveOrLoading(packageName) {
		return fmt.Errorf("%w: %s not loading or active", apperrors.ErrAppNotFound, packageName)
	}

	hadMedia := c.subs.HasMediaSubscriptions(s.SessionID)

	s.CancelLoading(packageName) // stop the loading timer, no-op if already active
	s.ActivateApp(packageName, channel)
	c.displays.ReleaseBootScreen(s.SessionID, packageName)

	if c.membership != nil {
		if err := c.membership.AddRunningApp(ctx, s.UserID, packageName); err != nil {
			slog.Warn("persist running-app membership failed", "package", packageName, "user", s.UserID, "err", err)
		}
	}

	if !hadMedia && c.subs.HasMediaSubscriptions(s.SessionID) {
		c.mic.SetDesired(s.SessionID, true)
	}

	return nil
}
