package config

import "time"

// ApplyDefaults fills in default values for any configuration fields
// that were not explicitly set.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "127.0.0.1:11434"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = 1 << 20
	}

	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 120 * time.Second
	}
	if cfg.Upstream.MaxConnections == 0 {
		cfg.Upstream.MaxConnections = 64
	}

	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30 * time.Second
	}
	if cfg.Retry.JitterMax == 0 {
		cfg.Retry.JitterMax = 100 * time.Millisecond
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.RecoveryTimeout == 0 {
		cfg.Breaker.RecoveryTimeout = 60 * time.Second
	}
	if cfg.Breaker.HalfOpenProbes == 0 {
		cfg.Breaker.HalfOpenProbes = 1
	}

	if cfg.ModelMap.DebounceInterval == 0 {
		cfg.ModelMap.DebounceInterval = 100 * time.Millisecond
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = "/metrics"
	}

	if cfg.Usage.SQLitePath == "" {
		cfg.Usage.SQLitePath = "./callisto-usage.db"
	}
	if cfg.Usage.Retention.Days == 0 {
		cfg.Usage.Retention.Days = 30
	}
	if cfg.Usage.Retention.Schedule == "" {
		cfg.Usage.Retention.Schedule = "0 3 * * *"
	}
}

// DefaultConfig returns a configuration with all defaults applied and
// metrics enabled. The upstream base URL is left empty and must be set
// before the configuration validates.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Telemetry.Metrics.Enabled = true
	return cfg
}
