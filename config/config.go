// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Schema   SchemaConfig   `yaml:"schema"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the document store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// SchemaConfig points at the YAML collection and global definitions.
type SchemaConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"` // reload the schema when files in Dir change
}

// PluginsConfig configures the bundled schema plugins.
type PluginsConfig struct {
	NestedDocs []NestedDocsConfig `yaml:"nested_docs"`
}

// NestedDocsConfig enables parent/breadcrumb fields on a set of collections.
type NestedDocsConfig struct {
	Collections      []string `yaml:"collections"`
	ParentField      string   `yaml:"parent_field,omitempty"`
	BreadcrumbsField string   `yaml:"breadcrumbs_field,omitempty"`
	URLField         string   `yaml:"url_field,omitempty"`   // field whose values build breadcrumb urls (default: slug)
	LabelField       string   `yaml:"label_field,omitempty"` // field labeling breadcrumbs (default: useAsTitle)
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := newConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for container deployments where no config file is needed.
//
// Environment variables:
//
//	CONTENTCORE_SCHEMA_DIR        - Schema directory (required)
//	CONTENTCORE_SCHEMA_WATCH      - Reload schema on file changes (default: false)
//	CONTENTCORE_SERVER_HOST       - Server host (default: 0.0.0.0)
//	CONTENTCORE_SERVER_PORT       - Server port (default: 3000)
//	CONTENTCORE_DATABASE_DRIVER   - Store: sqlite or memory (default: sqlite)
//	CONTENTCORE_DATABASE_DSN      - SQLite path (default: contentcore.db)
//	CONTENTCORE_LOG_LEVEL         - Log level: debug, info, warn, error (default: info)
//	CONTENTCORE_LOG_FORMAT        - Log format: json or console (default: json)
//	CONTENTCORE_METRICS_ENABLED   - Enable the metrics endpoint (default: true)
//	CONTENTCORE_METRICS_PATH      - Metrics endpoint path (default: /metrics)
func LoadFromEnv() (*Config, error) {
	cfg := newConfig()

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if HasEnvConfig() {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set CONTENTCORE_SCHEMA_DIR")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("CONTENTCORE_SCHEMA_DIR") != ""
}

// newConfig returns a config with the defaults a zero value cannot express.
func newConfig() *Config {
	return &Config{
		Metrics: MetricsConfig{Enabled: true},
	}
}

// applyEnvOverrides applies CONTENTCORE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) error {
	// Server configuration
	if v := os.Getenv("CONTENTCORE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CONTENTCORE_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CONTENTCORE_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if err := envDuration("CONTENTCORE_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout); err != nil {
		return err
	}
	if err := envDuration("CONTENTCORE_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout); err != nil {
		return err
	}
	if err := envDuration("CONTENTCORE_SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout); err != nil {
		return err
	}

	// Database configuration
	if v := os.Getenv("CONTENTCORE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("CONTENTCORE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Schema configuration
	if v := os.Getenv("CONTENTCORE_SCHEMA_DIR"); v != "" {
		cfg.Schema.Dir = v
	}
	if v := os.Getenv("CONTENTCORE_SCHEMA_WATCH"); v != "" {
		cfg.Schema.Watch = parseBool(v)
	}

	// Logging configuration
	if v := os.Getenv("CONTENTCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CONTENTCORE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("CONTENTCORE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("CONTENTCORE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "contentcore.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Schema.Dir == "" {
		return fmt.Errorf("schema.dir is required")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	for i, nd := range cfg.Plugins.NestedDocs {
		if len(nd.Collections) == 0 {
			return fmt.Errorf("plugins.nested_docs[%d].collections is required", i)
		}
	}

	return nil
}
