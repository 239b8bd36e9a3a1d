package models

// Config holds the application configuration
type Config struct {
	Remote   RemoteConfig   `json:"remote" yaml:"remote"`
	Session  SessionConfig  `json:"session" yaml:"session"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	E2E      E2EConfig      `json:"e2e" yaml:"e2e"`
	Sweep    SweepConfig    `json:"sweep" yaml:"sweep"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Tracing  TracingConfig  `json:"tracing" yaml:"tracing"`
	Retry    RetryConfig    `json:"retry" yaml:"retry"`
	LogLevel string         `json:"log_level" yaml:"log_level"`
}

// RemoteConfig points at the chat server the outbox delivers to
type RemoteConfig struct {
	ServerURL  string `json:"server_url" yaml:"server_url"`
	TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`
}

// SessionConfig identifies the logged-in user. The auth token is expected from
// the environment.
type SessionConfig struct {
	UserID    string `json:"user_id" yaml:"user_id"`
	Username  string `json:"username" yaml:"username"`
	Name      string `json:"name" yaml:"name"`
	AuthToken string `json:"-" yaml:"-"`
}

// DatabaseConfig holds local store settings
type DatabaseConfig struct {
	Path            string `json:"path" yaml:"path"`
	EncryptAtRest   bool   `json:"encrypt_at_rest" yaml:"encrypt_at_rest"`
	EncryptionKey   string `json:"-" yaml:"-"`
	BusyTimeoutMs   int    `json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns"`
	WriteRetryLimit int    `json:"write_retry_limit" yaml:"write_retry_limit"`
}

// E2EConfig holds per-room end-to-end keys, base64 encoded
type E2EConfig struct {
	Enabled bool            `json:"enabled" yaml:"enabled"`
	Rooms   []E2ERoomConfig `json:"rooms" yaml:"rooms"`
}

type E2ERoomConfig struct {
	RoomID string `json:"room_id" yaml:"room_id"`
	KeyID  string `json:"key_id" yaml:"key_id"`
	Key    string `json:"key" yaml:"key"`
}

// SweepConfig controls when the recovery sweep runs and how stale outbox
// records are reported.
type SweepConfig struct {
	OnStartup          *bool `json:"on_startup,omitempty" yaml:"on_startup,omitempty"`
	IntervalSec        int   `json:"interval_sec" yaml:"interval_sec"`
	MonitorIntervalSec int   `json:"monitor_interval_sec" yaml:"monitor_interval_sec"`
	StaleThresholdSec  int   `json:"stale_threshold_sec" yaml:"stale_threshold_sec"`
}

// RunOnStartup reports whether a sweep runs when the process starts. It
// defaults to true.
func (s SweepConfig) RunOnStartup() bool {
	return s.OnStartup == nil || *s.OnStartup
}

// ServerConfig holds the local HTTP API settings
type ServerConfig struct {
	ListenAddr      string `json:"listen_addr" yaml:"listen_addr"`
	ReadTimeoutSec  int    `json:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `json:"write_timeout_sec" yaml:"write_timeout_sec"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	Environment    string  `json:"environment" yaml:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
	UseStdout      bool    `json:"use_stdout" yaml:"use_stdout"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs" yaml:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs" yaml:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts" yaml:"maxAttempts"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
