package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns
// any errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the naming
// convention CALLISTO_SECTION_FIELD (e.g. CALLISTO_SERVER_LISTEN_ADDRESS)
// and always take precedence over file values.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("CALLISTO_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("CALLISTO_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("CALLISTO_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("CALLISTO_SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration("CALLISTO_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envInt("CALLISTO_SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)

	// Upstream overrides
	envString("CALLISTO_UPSTREAM_BASE_URL", &cfg.Upstream.BaseURL)
	envString("CALLISTO_UPSTREAM_API_KEY", &cfg.Upstream.APIKey)
	envDuration("CALLISTO_UPSTREAM_TIMEOUT", &cfg.Upstream.Timeout)
	envInt("CALLISTO_UPSTREAM_MAX_CONNECTIONS", &cfg.Upstream.MaxConnections)

	// Retry overrides
	envInt("CALLISTO_RETRY_MAX_RETRIES", &cfg.Retry.MaxRetries)
	envDuration("CALLISTO_RETRY_INITIAL_DELAY", &cfg.Retry.InitialDelay)
	envDuration("CALLISTO_RETRY_MAX_DELAY", &cfg.Retry.MaxDelay)
	envDuration("CALLISTO_RETRY_JITTER_MAX", &cfg.Retry.JitterMax)

	// Breaker overrides
	envInt("CALLISTO_BREAKER_FAILURE_THRESHOLD", &cfg.Breaker.FailureThreshold)
	envDuration("CALLISTO_BREAKER_RECOVERY_TIMEOUT", &cfg.Breaker.RecoveryTimeout)
	envInt("CALLISTO_BREAKER_HALF_OPEN_PROBES", &cfg.Breaker.HalfOpenProbes)

	// Model map overrides
	envString("CALLISTO_MODEL_MAP_PATH", &cfg.ModelMap.Path)
	envBool("CALLISTO_MODEL_MAP_WATCH", &cfg.ModelMap.Watch)

	// Telemetry overrides
	envString("CALLISTO_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("CALLISTO_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("CALLISTO_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("CALLISTO_TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)

	// Usage overrides
	envBool("CALLISTO_USAGE_ENABLED", &cfg.Usage.Enabled)
	envString("CALLISTO_USAGE_SQLITE_PATH", &cfg.Usage.SQLitePath)
	envInt("CALLISTO_USAGE_RETENTION_DAYS", &cfg.Usage.Retention.Days)
	envString("CALLISTO_USAGE_RETENTION_SCHEDULE", &cfg.Usage.Retention.Schedule)
}

func envString(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
