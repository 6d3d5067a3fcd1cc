package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/augmentos-org/cloud-core/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		ASR:    config.ProviderEntry{Name: "deepgram"},
	}
	d := config.Diff(cfg, cfg)
	require.False(t, d.LogLevelChanged)
	require.False(t, d.ASRChanged)
	require.False(t, d.TimeoutsChanged)
	require.False(t, d.RegistrationRateLimitChanged)
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	require.True(t, d.LogLevelChanged)
	require.Equal(t, config.LogDebug, d.NewLogLevel)
}

func TestDiff_ASRProviderChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{ASR: config.ProviderEntry{Name: "deepgram"}}
	new := &config.Config{ASR: config.ProviderEntry{Name: "google"}}

	d := config.Diff(old, new)
	require.True(t, d.ASRChanged)
	require.Equal(t, "deepgram", d.OldASRName)
	require.Equal(t, "google", d.NewASRName)
}

func TestDiff_ASRCredentialChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{ASR: config.ProviderEntry{Name: "deepgram", APIKey: "old-key"}}
	new := &config.Config{ASR: config.ProviderEntry{Name: "deepgram", APIKey: "new-key"}}

	d := config.Diff(old, new)
	require.True(t, d.ASRChanged)
}

func TestDiff_TimeoutsChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Timeouts: config.TimeoutsConfig{TPALoading: "5s"}}
	new := &config.Config{Timeouts: config.TimeoutsConfig{TPALoading: "10s"}}

	d := config.Diff(old, new)
	require.True(t, d.TimeoutsChanged)
	require.Equal(t, "10s", d.NewTimeouts.TPALoading)
}

func TestDiff_RegistrationRateLimitChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Registration: config.RegistrationConfig{RateLimitRPS: 5}}
	new := &config.Config{Registration: config.RegistrationConfig{RateLimitRPS: 10}}

	d := config.Diff(old, new)
	require.True(t, d.RegistrationRateLimitChanged)
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		ASR:    config.ProviderEntry{Name: "deepgram"},
	}
	new := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogWarn},
		ASR:    config.ProviderEntry{Name: "google"},
	}

	d := config.Diff(old, new)
	require.True(t, d.LogLevelChanged)
	require.True(t, d.ASRChanged)
}
