package config

// ConfigDiff describes what changed between two configs across a hot reload.
// Only fields that are safe to apply without a process restart are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ASRChanged  bool
	OldASRName  string
	NewASRName  string

	TimeoutsChanged bool
	NewTimeouts     TimeoutsConfig

	RegistrationRateLimitChanged bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.ASR.Name != new.ASR.Name || old.ASR.APIKey != new.ASR.APIKey ||
		old.ASR.Region != new.ASR.Region || old.ASR.BaseURL != new.ASR.BaseURL {
		d.ASRChanged = true
		d.OldASRName = old.ASR.Name
		d.NewASRName = new.ASR.Name
	}

	if old.Timeouts != new.Timeouts {
		d.TimeoutsChanged = true
		d.NewTimeouts = new.Timeouts
	}

	if old.Registration.RateLimitRPS != new.Registration.RateLimitRPS ||
		old.Registration.RateLimitBurst != new.Registration.RateLimitBurst {
		d.RegistrationRateLimitChanged = true
	}

	return d
}
