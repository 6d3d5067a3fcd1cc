package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidASRProviderNames lists known ASR provider names. Used by [Validate] to
// warn about unrecognized provider names — a typo, or a third-party provider
// this deployment registers itself.
var ValidASRProviderNames = []string{"deepgram", "google", "whisper", "azure"}

// Load reads the YAML configuration file at path and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found; soft inconsistencies
// that do not block startup are logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.GlassesPath == "" {
		errs = append(errs, errors.New("server.glasses_path is required"))
	}
	if cfg.Server.TPAPath == "" {
		errs = append(errs, errors.New("server.tpa_path is required"))
	}

	if cfg.Auth.JWTSecret == "" {
		slog.Warn("auth.jwt_secret is empty; the glasses endpoint will reject every connection")
	}

	validateASRProviderName(cfg.ASR.Name)
	if cfg.ASR.Name == "" {
		slog.Warn("asr.name is empty; the speech pipeline will not be able to create recognizers")
	}

	for field, s := range map[string]string{
		"timeouts.tpa_loading":          cfg.Timeouts.TPALoading,
		"timeouts.reconnect_grace":      cfg.Timeouts.ReconnectGrace,
		"timeouts.mic_debounce":         cfg.Timeouts.MicDebounce,
		"timeouts.transcript_retention": cfg.Timeouts.TranscriptRetention,
		"timeouts.heartbeat_dead_time":  cfg.Timeouts.HeartbeatDeadTime,
	} {
		if err := validateDuration(field, s); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Registration.PostgresDSN == "" {
		slog.Warn("registration.postgres_dsn is empty; TPA registrations will not persist across restarts")
	}
	if cfg.Registration.RateLimitRPS < 0 {
		errs = append(errs, errors.New("registration.rate_limit_rps must not be negative"))
	}
	if cfg.Registration.RateLimitBurst < 0 {
		errs = append(errs, errors.New("registration.rate_limit_burst must not be negative"))
	}

	seen := make(map[string]bool, len(cfg.Apps))
	for i, a := range cfg.Apps {
		if a.PackageName == "" {
			errs = append(errs, fmt.Errorf("apps[%d].package_name is required", i))
			continue
		}
		if seen[a.PackageName] {
			errs = append(errs, fmt.Errorf("apps[%d]: duplicate package_name %q", i, a.PackageName))
		}
		seen[a.PackageName] = true
		switch a.Kind {
		case "", "standard", "background", "system":
		default:
			errs = append(errs, fmt.Errorf("apps[%d].kind %q is invalid; valid values: standard, background, system", i, a.Kind))
		}
	}

	return errors.Join(errs...)
}

// validateASRProviderName logs a warning if name is non-empty and not found
// in [ValidASRProviderNames].
func validateASRProviderName(name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidASRProviderNames, name) {
		return
	}
	slog.Warn("unknown asr provider name — may be a typo or third-party provider",
		"name", name,
		"known", ValidASRProviderNames,
	)
}
