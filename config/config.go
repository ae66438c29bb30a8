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
	Server           ServerConfig       `yaml:"server"`
	Foundations      []FoundationConfig `yaml:"foundations"`
	ExcludedOrgs     []string           `yaml:"excluded_orgs"`
	IncludedServices []string           `yaml:"included_services"`
	Refresh          RefreshConfig      `yaml:"refresh"`
	Logging          LoggingConfig      `yaml:"logging"`
	Metrics          MetricsConfig      `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr is host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FoundationConfig configures one Cloud Foundry foundation.
type FoundationConfig struct {
	Name     string        `yaml:"name"`
	APIURL   string        `yaml:"api_url"`   // Cloud controller, used to list organizations
	UsageURL string        `yaml:"usage_url"` // App usage service
	Token    string        `yaml:"token,omitempty"`
	UAA      UAAConfig     `yaml:"uaa,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// UAAConfig configures OAuth2 client credentials against a foundation's UAA.
type UAAConfig struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// Enabled reports whether client credentials are configured.
func (u UAAConfig) Enabled() bool {
	return u.TokenURL != "" && u.ClientID != ""
}

// RefreshConfig configures the scheduled bulk refresh.
type RefreshConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	OnStartup   bool          `yaml:"on_startup"`
	OrgInterval time.Duration `yaml:"org_interval"` // How often organization listings are refreshed
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Foundation returns the named foundation config.
func (c *Config) Foundation(name string) (FoundationConfig, bool) {
	for _, f := range c.Foundations {
		if f.Name == name {
			return f, true
		}
	}
	return FoundationConfig{}, false
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Config{
		Refresh: RefreshConfig{Enabled: true, OnStartup: true},
		Metrics: MetricsConfig{Enabled: true},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	CFUSAGE_FOUNDATIONS          - name=usage_url|api_url|token;... (required)
//	CFUSAGE_EXCLUDED_ORGS        - Comma separated org names
//	CFUSAGE_INCLUDED_SERVICES    - Comma separated service names
//	CFUSAGE_SERVER_HOST          - Server host (default: 0.0.0.0)
//	CFUSAGE_SERVER_PORT          - Server port (default: 8080)
//	CFUSAGE_REFRESH_ENABLED      - Enable scheduled refresh (default: true)
//	CFUSAGE_REFRESH_INTERVAL     - Time between refreshes (default: 6h)
//	CFUSAGE_REFRESH_ON_STARTUP   - Refresh once at startup (default: true)
//	CFUSAGE_LOG_LEVEL            - Log level: debug, info, warn, error (default: info)
//	CFUSAGE_LOG_FORMAT           - Log format: json or console (default: json)
//	CFUSAGE_METRICS_ENABLED      - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	cfg := Config{
		Refresh: RefreshConfig{Enabled: true, OnStartup: true},
		Metrics: MetricsConfig{Enabled: true},
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
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

	return nil, fmt.Errorf("no configuration found: provide config file or set CFUSAGE_FOUNDATIONS")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("CFUSAGE_FOUNDATIONS") != ""
}

// applyEnvOverrides applies CFUSAGE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) error {
	// Server configuration
	if v := os.Getenv("CFUSAGE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CFUSAGE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CFUSAGE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("CFUSAGE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Foundations
	if v := os.Getenv("CFUSAGE_FOUNDATIONS"); v != "" {
		foundations, err := ParseFoundations(v)
		if err != nil {
			return fmt.Errorf("CFUSAGE_FOUNDATIONS: %w", err)
		}
		cfg.Foundations = foundations
	}
	if v := os.Getenv("CFUSAGE_EXCLUDED_ORGS"); v != "" {
		cfg.ExcludedOrgs = splitList(v)
	}
	if v := os.Getenv("CFUSAGE_INCLUDED_SERVICES"); v != "" {
		cfg.IncludedServices = splitList(v)
	}

	// Refresh configuration
	if v := os.Getenv("CFUSAGE_REFRESH_ENABLED"); v != "" {
		cfg.Refresh.Enabled = parseBool(v)
	}
	if v := os.Getenv("CFUSAGE_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Refresh.Interval = d
		}
	}
	if v := os.Getenv("CFUSAGE_REFRESH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Refresh.Timeout = d
		}
	}
	if v := os.Getenv("CFUSAGE_REFRESH_ON_STARTUP"); v != "" {
		cfg.Refresh.OnStartup = parseBool(v)
	}
	if v := os.Getenv("CFUSAGE_REFRESH_ORG_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Refresh.OrgInterval = d
		}
	}

	// Logging configuration
	if v := os.Getenv("CFUSAGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CFUSAGE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("CFUSAGE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("CFUSAGE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	return nil
}

// ParseFoundations reads the compact "name=usage_url|api_url|token;..." form.
// api_url and token may be left empty.
func ParseFoundations(v string) ([]FoundationConfig, error) {
	var out []FoundationConfig
	for _, entry := range strings.Split(v, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rest, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("entry %q: want name=usage_url|api_url|token", entry)
		}
		parts := strings.Split(rest, "|")
		if len(parts) > 3 {
			return nil, fmt.Errorf("entry %q: too many fields", entry)
		}
		for len(parts) < 3 {
			parts = append(parts, "")
		}
		out = append(out, FoundationConfig{
			Name:     strings.TrimSpace(name),
			UsageURL: strings.TrimSpace(parts[0]),
			APIURL:   strings.TrimSpace(parts[1]),
			Token:    strings.TrimSpace(parts[2]),
		})
	}
	return out, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
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
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 5 * time.Minute
	}

	for i := range cfg.Foundations {
		if cfg.Foundations[i].Timeout == 0 {
			cfg.Foundations[i].Timeout = 30 * time.Second
		}
	}

	if cfg.Refresh.Interval == 0 {
		cfg.Refresh.Interval = 6 * time.Hour
	}
	if cfg.Refresh.Timeout == 0 {
		cfg.Refresh.Timeout = 30 * time.Minute
	}
	if cfg.Refresh.OrgInterval == 0 {
		cfg.Refresh.OrgInterval = time.Hour
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

// validate rejects configs the process cannot start with. A foundation with a
// missing URL or credential is accepted; queries against it fail on their own.
func validate(cfg *Config) error {
	if len(cfg.Foundations) == 0 {
		return fmt.Errorf("at least one foundation is required")
	}

	seen := make(map[string]bool, len(cfg.Foundations))
	for i, f := range cfg.Foundations {
		if f.Name == "" {
			return fmt.Errorf("foundations[%d].name is required", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("foundations[%d].name %q is duplicated", i, f.Name)
		}
		seen[f.Name] = true
		if f.Timeout < 0 {
			return fmt.Errorf("foundations[%d].timeout must not be negative", i)
		}
		if f.Token != "" && f.UAA.Enabled() {
			return fmt.Errorf("foundations[%d]: set either token or uaa, not both", i)
		}
	}

	if cfg.Refresh.Interval < 0 || cfg.Refresh.Timeout < 0 || cfg.Refresh.OrgInterval < 0 {
		return fmt.Errorf("refresh durations must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}

	return nil
}
