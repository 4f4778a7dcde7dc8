package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks the configuration for errors. It is called after
// defaults are applied, so zero values that have defaults never reach it.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := validateUpstream(&cfg.Upstream); err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	if err := validateRetry(&cfg.Retry); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := validateBreaker(&cfg.Breaker); err != nil {
		return fmt.Errorf("breaker: %w", err)
	}
	if err := validateTelemetry(&cfg.Telemetry); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := validateUsage(&cfg.Usage); err != nil {
		return fmt.Errorf("usage: %w", err)
	}
	if cfg.ModelMap.Watch && cfg.ModelMap.Path == "" {
		return fmt.Errorf("model_map: watch enabled without a path")
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen_address %q: %w", cfg.ListenAddress, err)
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 || cfg.IdleTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

func validateUpstream(cfg *UpstreamConfig) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url %q: %w", cfg.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url %q must use http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if cfg.MaxConnections < 1 {
		return fmt.Errorf("max_connections must be at least 1")
	}
	return nil
}

func validateRetry(cfg *RetryConfig) error {
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if cfg.InitialDelay <= 0 {
		return fmt.Errorf("initial_delay must be positive")
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		return fmt.Errorf("max_delay must be at least initial_delay")
	}
	if cfg.JitterMax < 0 {
		return fmt.Errorf("jitter_max must not be negative")
	}
	return nil
}

func validateBreaker(cfg *BreakerConfig) error {
	if cfg.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be at least 1")
	}
	if cfg.RecoveryTimeout <= 0 {
		return fmt.Errorf("recovery_timeout must be positive")
	}
	if cfg.HalfOpenProbes < 1 {
		return fmt.Errorf("half_open_probes must be at least 1")
	}
	return nil
}

func validateTelemetry(cfg *TelemetryConfig) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format %q", cfg.Logging.Format)
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics path %q must start with /", cfg.Metrics.Path)
	}
	return nil
}

func validateUsage(cfg *UsageConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.SQLitePath == "" {
		return fmt.Errorf("sqlite_path is required when usage accounting is enabled")
	}
	if cfg.Retention.Days < 0 {
		return fmt.Errorf("retention days must not be negative")
	}
	return nil
}
