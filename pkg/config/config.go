package config

import "time"

// Config is the root configuration structure for Callisto. It contains
// all configuration sections for the proxy server, the upstream endpoint,
// resilience settings, model mapping, telemetry, and usage accounting.
type Config struct {
	// Server contains HTTP server configuration including listen address
	// and timeouts.
	Server ServerConfig `yaml:"server"`

	// Upstream contains configuration for the OpenAI-compatible endpoint
	// requests are translated to.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Retry contains the backoff policy for transient upstream failures.
	Retry RetryConfig `yaml:"retry"`

	// Breaker contains the circuit breaker thresholds.
	Breaker BreakerConfig `yaml:"breaker"`

	// ModelMap contains the model name mapping file settings.
	ModelMap ModelMapConfig `yaml:"model_map"`

	// Telemetry contains observability configuration for logging and
	// metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Usage contains configuration for per-request usage accounting.
	Usage UsageConfig `yaml:"usage"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:11434").
	// Default: "127.0.0.1:11434"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response. Streaming responses can run much longer than a normal
	// reply, so this defaults high.
	// Default: 10m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next
	// request when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown before in-flight requests are dropped.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server
	// reads parsing request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// UpstreamConfig contains configuration for the OpenAI-compatible
// upstream endpoint.
type UpstreamConfig struct {
	// BaseURL is the base URL of the upstream API.
	// Example: "https://api.openai.com/v1"
	// Required.
	BaseURL string `yaml:"base_url"`

	// APIKey is the bearer token sent with upstream requests. Typically
	// loaded from the CALLISTO_UPSTREAM_API_KEY environment variable.
	APIKey string `yaml:"api_key"`

	// Timeout is the wall-clock budget for a single upstream attempt.
	// For streaming requests it covers stream establishment only.
	// Default: 120s
	Timeout time.Duration `yaml:"timeout"`

	// MaxConnections caps concurrent upstream connections. Requests
	// beyond the cap wait for a slot rather than failing.
	// Default: 64
	MaxConnections int `yaml:"max_connections"`
}

// RetryConfig contains the backoff policy for transient upstream
// failures. Only connection-level failures, timeouts, and upstream 5xx
// responses are retried; client errors never are.
type RetryConfig struct {
	// MaxRetries is the number of retry attempts after the initial one.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// InitialDelay is the delay before the first retry. Subsequent
	// delays double until MaxDelay.
	// Default: 1s
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the exponential backoff.
	// Default: 30s
	MaxDelay time.Duration `yaml:"max_delay"`

	// JitterMax is the upper bound of the uniform random jitter added to
	// each delay.
	// Default: 100ms
	JitterMax time.Duration `yaml:"jitter_max"`
}

// BreakerConfig contains the circuit breaker thresholds.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// RecoveryTimeout is how long the circuit stays open before a probe
	// request is allowed through.
	// Default: 60s
	RecoveryTimeout time.Duration `yaml:"recovery_timeout"`

	// HalfOpenProbes is the number of trial requests admitted while
	// half-open.
	// Default: 1
	HalfOpenProbes int `yaml:"half_open_probes"`
}

// ModelMapConfig contains the model name mapping settings.
type ModelMapConfig struct {
	// Path is the YAML file mapping client model names to upstream
	// names. Empty disables mapping; all names pass through unchanged.
	Path string `yaml:"path"`

	// Watch reloads the mapping file when it changes on disk.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period before a file change triggers
	// a reload.
	// Default: 100ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format selects the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// UsageConfig contains per-request usage accounting configuration.
type UsageConfig struct {
	// Enabled controls whether usage records are written.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// SQLitePath is the SQLite database file for usage records.
	// Default: "./callisto-usage.db"
	SQLitePath string `yaml:"sqlite_path"`

	// Retention contains record retention settings.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig controls pruning of old usage records.
type RetentionConfig struct {
	// Days is how long records are kept. Zero disables pruning.
	// Default: 30
	Days int `yaml:"days"`

	// Schedule is the cron expression for the pruning job.
	// Default: "0 3 * * *" (daily at 03:00)
	Schedule string `yaml:"schedule"`
}
