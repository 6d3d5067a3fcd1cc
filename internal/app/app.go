// Package app wires all AugmentOS Cloud subsystems into a running
// application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run starts the HTTP server and blocks until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject test doubles via functional options (WithASRProvider,
// WithRegistrationStore, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/augmentos-org/cloud-core/internal/apperrors"
	"github.com/augmentos-org/cloud-core/internal/config"
	"github.com/augmentos-org/cloud-core/internal/health"
	"github.com/augmentos-org/cloud-core/internal/lifecycle"
	"github.com/augmentos-org/cloud-core/internal/observe"
	"github.com/augmentos-org/cloud-core/internal/registration"
	"github.com/augmentos-org/cloud-core/internal/router"
	"github.com/augmentos-org/cloud-core/internal/speech/asr"
	"github.com/augmentos-org/cloud-core/internal/sessionregistry"
	"github.com/augmentos-org/cloud-core/internal/subscription"
	"github.com/augmentos-org/cloud-core/internal/transport"
)

// App owns all subsystem lifetimes and orchestrates the AugmentOS Cloud
// session broker.
type App struct {
	cfg *config.Config

	registry   *config.Registry
	metrics    *observe.Metrics
	sessions   *sessionregistry.Registry
	subs       *subscription.Registry
	asrProv    asr.Provider
	controller *lifecycle.Controller
	hub        *transport.Hub
	regStore   *registration.Store
	regSvc     *registration.Service
	httpSrv    *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithASRProvider injects an ASR provider instead of creating one from
// cfg.ASR via the registry.
func WithASRProvider(p asr.Provider) Option {
	return func(a *App) { a.asrProv = p }
}

// WithRegistrationStore injects a registration store instead of connecting
// to cfg.Registration.PostgresDSN.
func WithRegistrationStore(s *registration.Store) Option {
	return func(a *App) { a.regStore = s }
}

// WithMetrics injects a Metrics instance instead of using observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring every subsystem together: the session and
// subscription registries, the TPA lifecycle controller, the transport Hub
// driving both WebSocket endpoints, and the registration HTTP service.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, registry: reg}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	timeouts := cfg.Timeouts.Resolve()

	// ── 1. ASR provider ──────────────────────────────────────────────────
	if a.asrProv == nil {
		primary, err := a.createASRProvider(cfg.ASR)
		if err != nil {
			return nil, fmt.Errorf("app: create asr provider: %w", err)
		}
		if len(cfg.ASR.Fallback) == 0 {
			a.asrProv = primary
		} else {
			fallbacks := make([]asr.Provider, 0, len(cfg.ASR.Fallback))
			for i, entry := range cfg.ASR.Fallback {
				fb, err := a.createASRProvider(entry)
				if err != nil {
					return nil, fmt.Errorf("app: create asr fallback provider[%d] %q: %w", i, entry.Name, err)
				}
				fallbacks = append(fallbacks, fb)
			}
			a.asrProv = asr.NewFallbackProvider(primary, fallbacks...)
		}
	}

	// ── 2. Session + subscription registries ─────────────────────────────
	a.sessions = sessionregistry.New(timeouts.ReconnectGrace)
	a.subs = subscription.NewRegistry()

	// ── 3. Static app catalog + lifecycle controller ─────────────────────
	apps := make([]lifecycle.App, 0, len(cfg.Apps))
	for _, ac := range cfg.Apps {
		kind := lifecycle.Kind(ac.Kind)
		if kind == "" {
			kind = lifecycle.KindStandard
		}
		apps = append(apps, lifecycle.App{
			PackageName: ac.PackageName,
			Kind:        kind,
			PublicURL:   ac.PublicURL,
			InternalURL: ac.InternalURL,
			APIKey:      ac.APIKey,
		})
	}
	resolver := lifecycle.NewStaticResolver(apps)

	// ── 4. Registration store + service (optional: needs Postgres) ───────
	if a.regStore == nil && cfg.Registration.PostgresDSN != "" {
		store, err := registration.NewStore(ctx, cfg.Registration.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("app: connect registration store: %w", err)
		}
		a.regStore = store
		a.closers = append(a.closers, func() error { store.Close(); return nil })
	}

	// ── 5. Transport Hub ──────────────────────────────────────────────────
	r := router.New(a.subs, nil)
	a.hub = transport.NewHub(transport.HubConfig{
		Sessions:            a.sessions,
		Subscriptions:       a.subs,
		Router:              r,
		ASRProvider:         a.asrProv,
		TranscriptRetention: timeouts.TranscriptRetention,
		MicDebounce:         timeouts.MicDebounce,
	})

	controllerCfg := lifecycle.Config{
		Apps:           resolver,
		Subscriptions:  a.subs,
		Displays:       a.hub,
		Mic:            a.hub,
		LoadingTimeout: timeouts.TPALoading,
		WebsocketURL: func(sessionID string) string {
			return "wss://" + cfg.Server.PublicHostname + cfg.Server.TPAPath
		},
	}
	if a.regStore != nil {
		controllerCfg.Membership = a.regStore
	}
	a.controller = lifecycle.New(controllerCfg)
	a.hub.Controller = a.controller

	// ── 6. Registration service (requires the store) ─────────────────────
	if a.regStore != nil {
		a.regSvc = registration.NewService(a.regStore, resolver, a.sessions, lifecycle.NewWebhookSender())
	}

	// ── 7. HTTP server ────────────────────────────────────────────────────
	a.httpSrv = &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: a.buildMux(cfg),
	}

	return a, nil
}

// createASRProvider instantiates one ASR provider from entry via the
// registry, checking that the registered factory's return value actually
// implements asr.Provider.
func (a *App) createASRProvider(entry config.ProviderEntry) (asr.Provider, error) {
	p, err := a.registry.CreateASR(entry)
	if err != nil {
		return nil, err
	}
	concrete, ok := p.(asr.Provider)
	if !ok {
		return nil, fmt.Errorf("registered asr provider %q does not implement asr.Provider", entry.Name)
	}
	return concrete, nil
}

// buildMux assembles the root HTTP mux: WebSocket upgrade endpoints,
// /healthz + /readyz, and (when a registration service is configured) the
// register/heartbeat/restart surface, all wrapped in the observability
// middleware.
func (a *App) buildMux(cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	glasses := transport.GlassesHandler{
		Hub:  a.hub,
		Auth: transport.GlassesAuth{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.Issuer},
	}
	mux.Handle(cfg.Server.GlassesPath, glasses)

	tpa := transport.TPAHandler{Hub: a.hub}
	mux.Handle(cfg.Server.TPAPath, tpa)

	checkers := a.healthCheckers()
	health.New(checkers...).Register(mux)

	if a.regSvc != nil {
		rl := registration.RateLimit{RPS: cfg.Registration.RateLimitRPS, Burst: cfg.Registration.RateLimitBurst}
		mux.Handle("/", registration.Router(a.regSvc, rl))
	}

	return observe.Middleware(a.metrics)(mux)
}

// healthCheckers builds the /readyz checker set: the registration store
// (when configured) and the ASR provider. Providers dial their upstream API
// lazily per recognizer session, so there is no persistent connection to
// probe — Check only verifies the provider was constructed successfully.
func (a *App) healthCheckers() []health.Checker {
	var checkers []health.Checker

	if a.regStore != nil {
		checkers = append(checkers, health.Checker{
			Name: "registration_store",
			Check: func(ctx context.Context) error {
				// A lookup against a well-formed but nonexistent
				// registrationId proves the store answered the query;
				// apperrors.ErrRegistrationNotFound is the expected,
				// healthy result. Any other error means the store itself
				// is unreachable.
				_, err := a.regStore.Get(ctx, "00000000-0000-0000-0000-000000000000")
				if err == nil || errors.Is(err, apperrors.ErrRegistrationNotFound) {
					return nil
				}
				return err
			},
		})
	}

	checkers = append(checkers, health.Checker{
		Name: "asr_provider",
		Check: func(context.Context) error {
			if a.asrProv == nil || a.asrProv.Name() == "" {
				return fmt.Errorf("asr provider not configured")
			}
			return nil
		},
	})

	return checkers
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server exits with an error other than [http.ErrServerClosed].
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("app listening", "addr", a.cfg.Server.ListenAddr)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown tears down the HTTP server and every subsystem closer in
// reverse-init order. It respects ctx's deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// Hub returns the transport Hub, for tests that need to drive message
// handling directly.
func (a *App) Hub() *transport.Hub { return a.hub }

// Mux returns the root HTTP handler, for tests that want to drive the server
// via httptest without going through a real listener.
func (a *App) Mux() http.Handler { return a.httpSrv.Handler }
