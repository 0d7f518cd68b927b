// Package config loads and validates the marketplace configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the PMKT_ prefix (e.g., PMKT_SERVER_PORT
// overrides server.port in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetPublicURL returns the public-facing URL composed into download and homepage
// links in the release index. When server.public_url is set it is returned as-is;
// otherwise it falls back to server.base_url. The distinction matters in
// reverse-proxied deployments where the internal listen address differs from the
// URL installers reach the marketplace at.
func (s *ServerConfig) GetPublicURL() string {
	if s.PublicURL != "" {
		return strings.TrimRight(s.PublicURL, "/")
	}
	return strings.TrimRight(s.BaseURL, "/")
}

// GetAddress returns the server address in host:port format
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds SQLite database configuration
type DatabaseConfig struct {
	// Path is the SQLite database file path. The special value ":memory:"
	// opens an in-process database (used by tests).
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
	BusyTimeoutMS  int    `mapstructure:"busy_timeout_ms"`
}

// GetDSN returns the SQLite connection string. Foreign keys are enabled per
// connection because SQLite defaults them off, and the busy timeout makes
// concurrent upload transactions wait instead of failing immediately with
// SQLITE_BUSY.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("file:%s?_fk=1&_busy_timeout=%d", c.Path, c.BusyTimeoutMS)
}

// StorageConfig holds storage backend configuration
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	Local          LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// RegistryConfig holds release index (marketplace.json) configuration
type RegistryConfig struct {
	// Name is the index identifier shown to installers
	Name string `mapstructure:"name"`
	// Description is the index envelope description
	Description string `mapstructure:"description"`
	// SchemaVersion is the version of the index document schema, not of any plugin
	SchemaVersion string `mapstructure:"schema_version"`
	// IndexFilename is the name of the generated JSON document under the storage root
	IndexFilename string `mapstructure:"index_filename"`
}

// UploadConfig holds plugin upload limits
type UploadConfig struct {
	// MaxArchiveBytes caps the size of an uploaded plugin archive
	MaxArchiveBytes int64 `mapstructure:"max_archive_bytes"`
}

// AuthConfig holds authentication configuration. The marketplace receives an
// already-authenticated author identity; token issuance is handled elsewhere.
type AuthConfig struct {
	// TokenHeader is the HTTP header carrying the author API token
	TokenHeader string `mapstructure:"token_header"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested
// structs during Unmarshal. viper.BindEnv only errors when called with zero
// keys; since every key here is a non-empty hardcoded string, any error
// indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.public_url",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.path",
		"database.max_connections",
		"database.busy_timeout_ms",

		// Storage
		"storage.default_backend",
		"storage.local.base_path",

		// Registry index
		"registry.name",
		"registry.description",
		"registry.schema_version",
		"registry.index_filename",

		// Upload
		"upload.max_archive_bytes",

		// Auth
		"auth.token_header",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.enabled",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/plugin-marketplace")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("PMKT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand ${VAR} references so paths can be injected indirectly
	cfg.Database.Path = os.ExpandEnv(cfg.Database.Path)
	cfg.Storage.Local.BasePath = os.ExpandEnv(cfg.Storage.Local.BasePath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.path", "./data/marketplace.db")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.busy_timeout_ms", 5000)

	// Storage defaults
	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.local.base_path", "./data/plugins")

	// Registry index defaults
	v.SetDefault("registry.name", "plugin-marketplace")
	v.SetDefault("registry.description", "Community plugin marketplace")
	v.SetDefault("registry.schema_version", "1.0.0")
	v.SetDefault("registry.index_filename", "marketplace.json")

	// Upload defaults
	v.SetDefault("upload.max_archive_bytes", int64(50*1024*1024))

	// Auth defaults
	v.SetDefault("auth.token_header", "Authorization")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Storage.DefaultBackend != "local" {
		return fmt.Errorf("invalid storage backend: %s (must be 'local')", c.Storage.DefaultBackend)
	}
	if c.Storage.Local.BasePath == "" {
		return fmt.Errorf("storage.local.base_path is required when using local backend")
	}

	if c.Registry.IndexFilename == "" {
		return fmt.Errorf("registry.index_filename is required")
	}
	if strings.ContainsRune(c.Registry.IndexFilename, '/') {
		return fmt.Errorf("registry.index_filename must be a bare filename, got %q", c.Registry.IndexFilename)
	}

	if c.Upload.MaxArchiveBytes <= 0 {
		return fmt.Errorf("upload.max_archive_bytes must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}
