package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-trial-matcher/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	m, err := NewManagerFromFile(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://clinicaltrials.gov/api/v2", cfg.Registry.BaseURL)
	assert.Equal(t, 15, cfg.Registry.PageSize)
	assert.Equal(t, 5, cfg.Registry.MaxTerms)
	assert.Equal(t, 15*time.Second, cfg.Registry.RequestTimeout)
	assert.Equal(t, uint32(5), cfg.Registry.CircuitBreaker.FailureThreshold)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 10, cfg.Matching.TopN)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, m.NarrativeEnabled())
}

func TestFileAndEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
registry:
  page_size: 20
  geo_radius: 100mi
narrative:
  model: test-model
`)
	t.Setenv("TRIALMATCH_NARRATIVE_API_KEY", "secret")
	t.Setenv("TRIALMATCH_LOGGING_LEVEL", "debug")

	m, err := NewManagerFromFile(path)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	assert.Equal(t, 9090, m.GetServerConfig().Port)
	assert.Equal(t, 20, m.GetRegistryConfig().PageSize)
	assert.Equal(t, "100mi", m.GetRegistryConfig().GeoRadius)
	assert.Equal(t, "test-model", m.GetNarrativeConfig().Model)
	assert.Equal(t, "secret", m.GetNarrativeConfig().APIKey)
	assert.Equal(t, "debug", m.GetConfig().Logging.Level)
	assert.True(t, m.NarrativeEnabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{name: "bad port", mutate: func(c *domain.Config) { c.Server.Port = 70000 }},
		{name: "bad registry url", mutate: func(c *domain.Config) { c.Registry.BaseURL = "not a url" }},
		{name: "zero page size", mutate: func(c *domain.Config) { c.Registry.PageSize = 0 }},
		{name: "too many terms", mutate: func(c *domain.Config) { c.Registry.MaxTerms = 6 }},
		{name: "temperature", mutate: func(c *domain.Config) { c.Narrative.Temperature = 1.5 }},
		{name: "top n", mutate: func(c *domain.Config) { c.Matching.TopN = 0 }},
		{name: "log level", mutate: func(c *domain.Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManagerFromFile(writeConfig(t, "{}\n"))
			require.NoError(t, err)
			tt.mutate(m.GetConfig())
			assert.Error(t, m.Validate())
		})
	}
}

func TestMalformedConfigFile(t *testing.T) {
	_, err := NewManagerFromFile(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(domain.LoggingConfig{Level: "debug", Format: "text"})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	logger = NewLogger(domain.LoggingConfig{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}
