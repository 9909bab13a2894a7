package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Narrative NarrativeConfig `mapstructure:"narrative"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	MCP       MCPConfig       `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
}

// RegistryConfig represents the trial registry client configuration
type RegistryConfig struct {
	BaseURL        string               `mapstructure:"base_url"`
	PageSize       int                  `mapstructure:"page_size"`
	MaxTerms       int                  `mapstructure:"max_terms"`
	RequestTimeout time.Duration        `mapstructure:"request_timeout"`
	RateLimit      float64              `mapstructure:"rate_limit"`
	RateBurst      int                  `mapstructure:"rate_burst"`
	GeoRadius      string               `mapstructure:"geo_radius"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the breaker guarding the registry
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// CacheConfig represents registry response cache configuration
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MemoryItems int           `mapstructure:"memory_items"`
	TTL         time.Duration `mapstructure:"ttl"`
	RedisURL    string        `mapstructure:"redis_url"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
}

// NarrativeConfig represents the text generator configuration
type NarrativeConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// MatchingConfig represents ranking output configuration
type MatchingConfig struct {
	TopN int `mapstructure:"top_n"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
