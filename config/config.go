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
	Server      ServerConfig      `yaml:"server"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	CachePolicy CachePolicyConfig `yaml:"cache_policy"`
	CacheStore  CacheStoreConfig  `yaml:"cache_store"`
	Network     NetworkConfig     `yaml:"network"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig configures the local proxy HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// UpstreamConfig configures the remote API.
type UpstreamConfig struct {
	URL             string        `yaml:"url"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// RateLimitConfig configures the client-side token bucket.
type RateLimitConfig struct {
	MaxRequests int `yaml:"max_requests"` // tokens per window
	WindowSecs  int `yaml:"window_secs"`
}

// CachePolicyConfig configures endpoint classification and cache lifetimes.
// Empty keyword lists fall back to the built-in tables.
type CachePolicyConfig struct {
	StaticKeywords      []string `yaml:"static_keywords"`
	DynamicKeywords     []string `yaml:"dynamic_keywords"`
	StaticMaxAgeSecs    int      `yaml:"static_max_age_secs"`
	DynamicMaxAgeSecs   int      `yaml:"dynamic_max_age_secs"`
	DefaultMaxAgeSecs   int      `yaml:"default_max_age_secs"`
	OfflineMaxStaleSecs int      `yaml:"offline_max_stale_secs"`
}

// CacheStoreConfig configures the offline response cache.
type CacheStoreConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path"`   // sqlite file path
}

// NetworkConfig configures the connectivity monitor.
type NetworkConfig struct {
	ProbeAddr    string        `yaml:"probe_addr"` // optional TCP dial target, e.g. "1.1.1.1:443"
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
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

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for container deployments where no config file is needed.
//
// Environment variables:
//
//	APIWARD_UPSTREAM_URL       - Remote API URL (required)
//	APIWARD_SERVER_HOST        - Proxy host (default: 127.0.0.1)
//	APIWARD_SERVER_PORT        - Proxy port (default: 8780)
//	APIWARD_RATELIMIT_MAX      - Tokens per window (default: 60)
//	APIWARD_RATELIMIT_WINDOW   - Window seconds (default: 60)
//	APIWARD_CACHE_DRIVER       - Offline cache: memory or sqlite (default: memory)
//	APIWARD_CACHE_PATH         - Sqlite cache path (default: apiward.db)
//	APIWARD_NETWORK_PROBE_ADDR - Connectivity probe dial target
//	APIWARD_LOG_LEVEL          - Log level: debug, info, warn, error (default: info)
//	APIWARD_LOG_FORMAT         - Log format: json or console (default: json)
//	APIWARD_METRICS_ENABLED    - Enable /apiward/metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
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

	if os.Getenv("APIWARD_UPSTREAM_URL") != "" {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set APIWARD_UPSTREAM_URL")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("APIWARD_UPSTREAM_URL") != ""
}

// Window returns the rate limit window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSecs) * time.Second
}

// applyEnvOverrides applies APIWARD_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("APIWARD_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("APIWARD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("APIWARD_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("APIWARD_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Upstream configuration
	if v := os.Getenv("APIWARD_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
	if v := os.Getenv("APIWARD_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upstream.Timeout = d
		}
	}

	// Rate limit configuration
	if v := os.Getenv("APIWARD_RATELIMIT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.MaxRequests = n
		}
	}
	if v := os.Getenv("APIWARD_RATELIMIT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.WindowSecs = n
		}
	}

	// Cache store configuration
	if v := os.Getenv("APIWARD_CACHE_DRIVER"); v != "" {
		cfg.CacheStore.Driver = v
	}
	if v := os.Getenv("APIWARD_CACHE_PATH"); v != "" {
		cfg.CacheStore.Path = v
	}

	// Network configuration
	if v := os.Getenv("APIWARD_NETWORK_PROBE_ADDR"); v != "" {
		cfg.Network.ProbeAddr = v
	}
	if v := os.Getenv("APIWARD_NETWORK_PROBE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Network.ProbeTimeout = d
		}
	}

	// Logging configuration
	if v := os.Getenv("APIWARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("APIWARD_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("APIWARD_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("APIWARD_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8780
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// Acquire may block for a full window, so the write timeout
		// must cover window plus upstream time.
		cfg.Server.WriteTimeout = 120 * time.Second
	}

	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 30 * time.Second
	}
	if cfg.Upstream.MaxIdleConns == 0 {
		cfg.Upstream.MaxIdleConns = 100
	}
	if cfg.Upstream.IdleConnTimeout == 0 {
		cfg.Upstream.IdleConnTimeout = 90 * time.Second
	}

	if cfg.RateLimit.MaxRequests == 0 {
		cfg.RateLimit.MaxRequests = 60
	}
	if cfg.RateLimit.WindowSecs == 0 {
		cfg.RateLimit.WindowSecs = 60
	}

	if cfg.CacheStore.Driver == "" {
		cfg.CacheStore.Driver = "memory"
	}
	if cfg.CacheStore.Path == "" {
		cfg.CacheStore.Path = "apiward.db"
	}

	if cfg.Network.ProbeTimeout == 0 {
		cfg.Network.ProbeTimeout = 2 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}

	if cfg.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("rate_limit.max_requests must not be negative, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.WindowSecs <= 0 {
		return fmt.Errorf("rate_limit.window_secs must be positive, got %d", cfg.RateLimit.WindowSecs)
	}

	validDrivers := map[string]bool{"memory": true, "sqlite": true}
	if !validDrivers[cfg.CacheStore.Driver] {
		return fmt.Errorf("cache_store.driver must be 'memory' or 'sqlite', got %q", cfg.CacheStore.Driver)
	}

	if cfg.CachePolicy.StaticMaxAgeSecs < 0 ||
		cfg.CachePolicy.DynamicMaxAgeSecs < 0 ||
		cfg.CachePolicy.DefaultMaxAgeSecs < 0 ||
		cfg.CachePolicy.OfflineMaxStaleSecs < 0 {
		return fmt.Errorf("cache_policy max-age values must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}
