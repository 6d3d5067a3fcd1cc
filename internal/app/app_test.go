package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/augmentos-org/cloud-core/internal/app"
	"github.com/augmentos-org/cloud-core/internal/config"
	asrmock "github.com/augmentos-org/cloud-core/internal/speech/asr/mock"
)

// testConfig returns a minimal valid config for wiring tests. Registration
// is left unconfigured (no postgres_dsn) so New does not attempt a real
// database connection.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr:  "127.0.0.1:0",
			GlassesPath: "/glasses-ws",
			TPAPath:     "/tpa-ws",
			LogLevel:    config.LogInfo,
		},
		Auth: config.AuthConfig{JWTSecret: "test-secret"},
		ASR:  config.ProviderEntry{Name: "mock"},
		Apps: []config.AppConfig{
			{PackageName: "com.example.app", Kind: "standard", PublicURL: "https://example.test"},
		},
	}
}

func TestNew_WithMockASRProvider(t *testing.T) {
	t.Parallel()

	application, err := app.New(context.Background(), testConfig(), config.NewRegistry(),
		app.WithASRProvider(asrmock.New()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if application == nil {
		t.Fatal("New() returned nil app")
	}
	if application.Hub() == nil {
		t.Fatal("Hub() returned nil")
	}
}

func TestNew_UsesRegistryWhenNoProviderInjected(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterASR("mock", func(config.ProviderEntry) (config.ASRProvider, error) {
		return asrmock.New(), nil
	})

	cfg := testConfig()
	cfg.ASR.Name = "mock"

	application, err := app.New(context.Background(), cfg, reg)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if application == nil {
		t.Fatal("New() returned nil app")
	}
}

func TestNew_UnregisteredASRProviderFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ASR.Name = "nonexistent"

	_, err := app.New(context.Background(), cfg, config.NewRegistry())
	if err == nil {
		t.Fatal("expected error for unregistered asr provider")
	}
}

func TestApp_Shutdown(t *testing.T) {
	t.Parallel()

	application, err := app.New(context.Background(), testConfig(), config.NewRegistry(),
		app.WithASRProvider(asrmock.New()),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	// Shutdown is idempotent.
	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"

	application, err := app.New(context.Background(), cfg, config.NewRegistry(),
		app.WithASRProvider(asrmock.New()),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}

// TestHealthzAndReadyz exercises the mux wiring end to end: a fresh app
// without a registration store should report healthy on both endpoints
// since the only configured checker is the ASR provider.
func TestHealthzAndReadyz(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterASR("mock", func(config.ProviderEntry) (config.ASRProvider, error) {
		return asrmock.New(), nil
	})
	cfg := testConfig()
	cfg.ASR.Name = "mock"

	application, err := app.New(context.Background(), cfg, reg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Shutdown(ctx)
	})

	srv := httptest.NewServer(application.Mux())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200", resp2.StatusCode)
	}
}
