package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/hllvc/llmproxy/internal/tokenstore"
	"github.com/go-playground/validator/v10"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the different storage types supported for stored tokens.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// AuthenticationMethod represents the different authentication methods supported.
type AuthenticationMethod string

const (
	AuthenticationMethodStatic AuthenticationMethod = "static"
	AuthenticationMethodOAuth  AuthenticationMethod = "oauth"
)

// Default configuration values
const (
	DefaultConfigLogFormat                        = LogFormatText
	DefaultConfigServerHost                       = "127.0.0.1"
	DefaultConfigServerPort                       = 4000
	DefaultConfigShutdownTimeout                  = 5 * time.Second
	DefaultConfigAuthStorage                      = TokenStorageTypeFile
	DefaultConfigAuthMethod                       = AuthenticationMethodOAuth
	DefaultConfigUpstreamBaseURL                  = "https://api.anthropic.com/v1"
	DefaultConfigObservabilityServiceName         = "llmproxy"
	DefaultConfigSchedulerMaxConcurrentTasks      = 10
	DefaultConfigSchedulerGracefulShutdownTimeout = 10 * time.Second
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// UpstreamConfig holds upstream API configuration.
type UpstreamConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
}

// AuthConfig represents the configuration for provider authentication.
// Describes how to construct TokenStore and TokenSource components.
type AuthConfig struct {
	// Storage configuration - where the stored token comes from
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to token file
	EnvKey      string `json:"env_key,omitempty"`      // For env storage: environment variable name
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier

	// Authentication method - how to convert stored_token to access_token
	Method AuthenticationMethod `json:"method" validate:"required,oneof=oauth static"`
}

// NewTokenStore creates a TokenStore from the authentication configuration.
func (a *AuthConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	switch a.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(a.File)
	case TokenStorageTypeEnv:
		return tokenstore.NewEnvStore(a.EnvKey)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore("llmproxy-token", a.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// PluginsConfig governs which provider/system plugins are loaded and how.
type PluginsConfig struct {
	// Dirs are scanned for filesystem-discovered plugin manifests, in
	// addition to the compiled-in entry points (internal/providers/*).
	Dirs []string `json:"dirs"`

	// Enabled, if non-empty, is an allowlist of plugin names; empty means
	// every discovered plugin not denied below.
	Enabled []string `json:"enabled"`
	// Disabled is a denylist, unioned with any per-plugin false below.
	Disabled []string `json:"disabled"`
	// PerPluginEnabled overrides a single plugin's manifest-declared
	// default, keyed by plugin name.
	PerPluginEnabled map[string]bool `json:"per_plugin_enabled"`

	// Config holds each plugin's own deployment config block, keyed by
	// plugin name and decoded by that plugin into its PluginContext.RawConfig.
	Config map[string]map[string]any `json:"config"`
}

// SchedulerConfig tunes the background task scheduler shared by every
// loaded plugin's TaskRegistration.
type SchedulerConfig struct {
	MaxConcurrentTasks      int           `json:"max_concurrent_tasks"`
	GracefulShutdownTimeout time.Duration `json:"graceful_shutdown_timeout"`
}

// ObservabilityConfig controls the OpenTelemetry log/trace pipeline.
type ObservabilityConfig struct {
	ServiceName string `json:"service_name"`
	// OTLPEndpoint, if set, exports logs to a collector instead of stdout.
	OTLPEndpoint string `json:"otlp_endpoint"`
	OTLPInsecure bool   `json:"otlp_insecure"`
	// OTLPProtocol is "grpc" (default) or "http".
	OTLPProtocol string `json:"otlp_protocol"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel      slog.Level          `json:"log_level"`
	LogFormat     LogFormat           `json:"log_format" validate:"oneof=text json"`
	Server        ServerConfig        `json:"server"`
	Shutdown      ShutdownConfig      `json:"shutdown"`
	Upstream      UpstreamConfig      `json:"upstream"`
	Auth          AuthConfig          `json:"auth"`
	Plugins       PluginsConfig       `json:"plugins"`
	Scheduler     SchedulerConfig     `json:"scheduler"`
	Observability ObservabilityConfig `json:"observability"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultConfigUpstreamBaseURL
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Auth.Method == "" {
		c.Auth.Method = DefaultConfigAuthMethod
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = DefaultConfigObservabilityServiceName
	}
	if c.Scheduler.MaxConcurrentTasks == 0 {
		c.Scheduler.MaxConcurrentTasks = DefaultConfigSchedulerMaxConcurrentTasks
	}
	if c.Scheduler.GracefulShutdownTimeout == 0 {
		c.Scheduler.GracefulShutdownTimeout = DefaultConfigSchedulerGracefulShutdownTimeout
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "llmproxy", "auth")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeEnv:
		// env_key must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	// OAuth requires writable storage (env is read-only)
	if c.Auth.Method == AuthenticationMethodOAuth && c.Auth.Storage == TokenStorageTypeEnv {
		return errors.New("oauth authentication requires writable storage, env is read-only")
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeEnv:
		if c.Auth.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}
