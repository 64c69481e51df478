package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "workflow-events", cfg.Kafka.Topic)
	assert.Equal(t, 3, cfg.Scaler.MaxNodes)
	assert.Equal(t, 2, cfg.Scaler.SessionsPerNode)
	assert.Equal(t, 600, cfg.Scaler.IdleTimeoutSeconds)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PORT", "9000")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("MAX_RETRY_ATTEMPTS", "5")
	t.Setenv("SELENIUM_MAX_NODES", "7")
	t.Setenv("KAFKA_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 7, cfg.Scaler.MaxNodes)
	assert.True(t, cfg.Kafka.Enabled)
}

func TestLoadConfigYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8443\nlog_level: DEBUG\nscaler:\n  max_nodes: 5\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8443, cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Scaler.MaxNodes)
}

func TestLoadConfigEnvBeatsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8443\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9001")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Port)
}

func TestAPITokenFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("s3cret\n"), 0o600))
	t.Setenv("API_AUTH_TOKEN_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Auth.Token)
}

func TestAPITokenEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))
	t.Setenv("API_AUTH_TOKEN_FILE", path)
	t.Setenv("API_AUTH_TOKEN", "from-env")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.Token)
}
