package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"chatsend/internal/constants"
	"chatsend/internal/models"
	"chatsend/internal/security"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the configuration file. Secrets are
// only ever read from the environment.
const (
	EnvServerURL     = "CHATSEND_SERVER_URL"
	EnvUserID        = "CHATSEND_USER_ID"
	EnvAuthToken     = "CHATSEND_AUTH_TOKEN"
	EnvDBPath        = "CHATSEND_DB_PATH"
	EnvDBKey         = "CHATSEND_DB_ENCRYPTION_KEY"
	EnvListenAddr    = "CHATSEND_LISTEN_ADDR"
	EnvLogLevel      = "CHATSEND_LOG_LEVEL"
	EnvEnvironment   = "CHATSEND_ENV"
	productionEnvVal = "production"
)

var (
	ErrMissingServerURL = models.ConfigError{Message: "missing remote server URL"}
	ErrMissingDBPath    = models.ConfigError{Message: "missing database path"}
)

// LoadConfig reads a JSON or YAML configuration file, applies environment
// overrides and defaults, and validates the result. The format is chosen by
// file extension; anything other than .yaml or .yml is parsed as JSON.
func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	config, err := Parse(file, formatFor(path))
	if err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(config)
	applyDefaults(config)

	if err := validate(config); err != nil {
		return nil, err
	}

	// Perform security validation after environment overrides
	if err := validateSecurity(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Format is a configuration file encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes raw configuration without applying overrides or defaults.
func Parse(data []byte, format Format) (*models.Config, error) {
	var config models.Config
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.Remote.TimeoutSec <= 0 {
		c.Remote.TimeoutSec = constants.DefaultRemoteTimeoutSec
	}

	if c.Database.BusyTimeoutMs <= 0 {
		c.Database.BusyTimeoutMs = constants.DefaultDatabaseBusyTimeoutMs
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = constants.DefaultDatabaseMaxOpenConns
	}
	if c.Database.WriteRetryLimit <= 0 {
		c.Database.WriteRetryLimit = constants.DefaultDatabaseWriteRetries
	}

	if c.Sweep.MonitorIntervalSec <= 0 {
		c.Sweep.MonitorIntervalSec = constants.DefaultSweepMonitorSec
	}
	if c.Sweep.StaleThresholdSec <= 0 {
		c.Sweep.StaleThresholdSec = constants.DefaultStaleThresholdSec
	}

	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = constants.DefaultListenAddr
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "chatsend"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 1.0
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func validate(c *models.Config) error {
	if c.Remote.ServerURL == "" {
		return ErrMissingServerURL
	}
	u, err := url.Parse(c.Remote.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.ConfigError{Message: fmt.Sprintf("remote server URL must be an absolute http(s) URL: %q", c.Remote.ServerURL)}
	}
	if c.Remote.TimeoutSec > constants.MaxTimeoutSec {
		return models.ConfigError{Message: fmt.Sprintf("remote timeout must not exceed %d seconds", constants.MaxTimeoutSec)}
	}

	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	if c.Sweep.IntervalSec < 0 {
		return models.ConfigError{Message: "sweep interval must not be negative"}
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid log level %q", c.LogLevel)}
	}

	if c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing sample rate must be between 0 and 1"}
	}

	rooms := make(map[string]bool)
	for i, room := range c.E2E.Rooms {
		if room.RoomID == "" {
			return models.ConfigError{Message: fmt.Sprintf("empty room id in e2e room %d", i)}
		}
		if len(room.KeyID) != models.E2EKeyIDSize {
			return models.ConfigError{Message: fmt.Sprintf("e2e key id for room %s must be %d characters", room.RoomID, models.E2EKeyIDSize)}
		}
		if room.Key == "" {
			return models.ConfigError{Message: fmt.Sprintf("missing e2e key for room %s", room.RoomID)}
		}
		if rooms[room.RoomID] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate e2e room: %s", room.RoomID)}
		}
		rooms[room.RoomID] = true
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if v := os.Getenv(EnvServerURL); v != "" {
		c.Remote.ServerURL = v
	}
	if v := os.Getenv(EnvUserID); v != "" {
		c.Session.UserID = v
	}

	// SECURITY: credentials are only accepted from the environment
	if v := os.Getenv(EnvAuthToken); v != "" {
		c.Session.AuthToken = v
	}
	if v := os.Getenv(EnvDBKey); v != "" {
		c.Database.EncryptionKey = v
	}

	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if c.Database.EncryptAtRest {
		if c.Database.EncryptionKey == "" {
			return models.ConfigError{Message: fmt.Sprintf("at-rest encryption is enabled but no key is set (set %s)", EnvDBKey)}
		}
		if len(c.Database.EncryptionKey) < constants.MinEncryptionSecretLength {
			return models.ConfigError{Message: fmt.Sprintf("database encryption key must be at least %d characters long", constants.MinEncryptionSecretLength)}
		}
	}

	isProduction := os.Getenv(EnvEnvironment) == productionEnvVal
	if isProduction {
		if c.Session.AuthToken == "" {
			return models.ConfigError{Message: fmt.Sprintf("auth token is required in production (set %s)", EnvAuthToken)}
		}
		if strings.HasPrefix(c.Remote.ServerURL, "http://") {
			return models.ConfigError{Message: "remote server URL must use https in production"}
		}
		// Debug logs may carry message bodies
		if c.LogLevel == "debug" || c.LogLevel == "trace" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Session.AuthToken == "" {
		fmt.Fprintf(os.Stderr, "WARNING: auth token not set. Set %s environment variable to authenticate with the chat server.\n", EnvAuthToken)
	}

	return nil
}
