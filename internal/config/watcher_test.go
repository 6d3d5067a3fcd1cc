package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/augmentos-org/cloud-core/internal/config"
)

const watcherValidYAML = `
server:
  listen_addr: ":8080"
  glasses_path: "/glasses-ws"
  tpa_path: "/tpa-ws"
  log_level: info
`

const watcherUpdatedYAML = `
server:
  listen_addr: ":8080"
  glasses_path: "/glasses-ws"
  tpa_path: "/tpa-ws"
  log_level: debug
`

const watcherInvalidYAML = `
server:
  listen_addr: ":8080"
  glasses_path: "/glasses-ws"
  tpa_path: "/tpa-ws"
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil)
	require.NoError(t, err)
	defer w.Stop()

	cfg := w.Current()
	require.NotNil(t, cfg)
	require.Equal(t, config.LogInfo, cfg.Server.LogLevel)
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var mu sync.Mutex
	var callbackOld, callbackNew *config.Config
	called := make(chan struct{}, 1)

	w, err := config.NewWatcher(cfgPath, func(old, new *config.Config) {
		mu.Lock()
		callbackOld = old
		callbackNew = new
		mu.Unlock()
		select {
		case called <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	writeFile(t, cfgPath, watcherUpdatedYAML)

	select {
	case <-called:
	case <-time.After(3 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}

	mu.Lock()
	defer mu.Unlock()

	require.NotNil(t, callbackOld)
	require.NotNil(t, callbackNew)
	require.Equal(t, config.LogInfo, callbackOld.Server.LogLevel)
	require.Equal(t, config.LogDebug, callbackNew.Server.LogLevel)

	cur := w.Current()
	require.Equal(t, config.LogDebug, cur.Server.LogLevel)
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	callCount := 0
	var mu sync.Mutex

	w, err := config.NewWatcher(cfgPath, func(old, new *config.Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	writeFile(t, cfgPath, watcherInvalidYAML)

	time.Sleep(700 * time.Millisecond)

	mu.Lock()
	calls := callCount
	mu.Unlock()

	require.Zero(t, calls, "callback should not fire for an invalid reload")

	cur := w.Current()
	require.Equal(t, config.LogInfo, cur.Server.LogLevel)
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	_, err := config.NewWatcher("/nonexistent/dir/path.yaml", nil)
	require.Error(t, err)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil)
	require.NoError(t, err)

	w.Stop()
	w.Stop()
	w.Stop()
}
