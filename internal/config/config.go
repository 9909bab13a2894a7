// Package config loads application configuration from an optional YAML file,
// TRIALMATCH_* environment variables and built-in defaults.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/clinical-trial-matcher/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g. TRIALMATCH_SERVER_PORT.
const EnvPrefix = "TRIALMATCH"

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
}

// Manager loads and validates configuration using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a configuration manager searching the default paths
func NewManager() (*Manager, error) {
	return newManager("")
}

// NewManagerFromFile creates a configuration manager reading an explicit file
func NewManagerFromFile(path string) (*Manager, error) {
	return newManager(path)
}

func newManager(path string) (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.loadConfig(path); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig(path string) error {
	v := m.v
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/clinical-trial-matcher/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m.setDefaults()

	// A missing config file is fine; defaults and env vars apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	v := m.v

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.max_upload_mb", 10)

	// Registry defaults
	v.SetDefault("registry.base_url", "https://clinicaltrials.gov/api/v2")
	v.SetDefault("registry.page_size", 15)
	v.SetDefault("registry.max_terms", 5)
	v.SetDefault("registry.request_timeout", "15s")
	v.SetDefault("registry.rate_limit", 5)
	v.SetDefault("registry.rate_burst", 5)
	v.SetDefault("registry.geo_radius", "300mi")
	v.SetDefault("registry.circuit_breaker.max_requests", 3)
	v.SetDefault("registry.circuit_breaker.interval", "30s")
	v.SetDefault("registry.circuit_breaker.timeout", "60s")
	v.SetDefault("registry.circuit_breaker.failure_threshold", 5)

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.memory_items", 500)
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key_prefix", "trialmatch")

	// Narrative defaults
	v.SetDefault("narrative.enabled", true)
	v.SetDefault("narrative.api_key", "")
	v.SetDefault("narrative.model", "claude-sonnet-4-5")
	v.SetDefault("narrative.max_tokens", 1024)
	v.SetDefault("narrative.temperature", 0.3)
	v.SetDefault("narrative.timeout", "30s")

	v.SetDefault("matching.top_n", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	// MCP defaults
	v.SetDefault("mcp.server_name", "clinical-trial-matcher")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetRegistryConfig returns registry client configuration
func (m *Manager) GetRegistryConfig() *domain.RegistryConfig {
	return &m.config.Registry
}

// GetNarrativeConfig returns narrative generator configuration
func (m *Manager) GetNarrativeConfig() *domain.NarrativeConfig {
	return &m.config.Narrative
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	u, err := url.Parse(config.Registry.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid registry base URL: %q", config.Registry.BaseURL)
	}
	if config.Registry.PageSize <= 0 {
		return fmt.Errorf("registry page size must be positive: %d", config.Registry.PageSize)
	}
	if config.Registry.MaxTerms < 1 || config.Registry.MaxTerms > 5 {
		return fmt.Errorf("registry max terms must be between 1 and 5: %d", config.Registry.MaxTerms)
	}
	if config.Registry.RequestTimeout <= 0 {
		return fmt.Errorf("registry request timeout must be positive")
	}

	if config.Narrative.Temperature < 0 || config.Narrative.Temperature > 1 {
		return fmt.Errorf("narrative temperature must be between 0 and 1: %g", config.Narrative.Temperature)
	}

	if config.Matching.TopN <= 0 {
		return fmt.Errorf("matching top_n must be positive: %d", config.Matching.TopN)
	}

	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// NarrativeEnabled reports whether a narrative generator should be built.
func (m *Manager) NarrativeEnabled() bool {
	return m.config.Narrative.Enabled && strings.TrimSpace(m.config.Narrative.APIKey) != ""
}
