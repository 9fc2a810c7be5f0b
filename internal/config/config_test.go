package config

import (
	"mangabot/internal/models"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Gate.MaxPerMinute)
	assert.Equal(t, models.StorageTypeSQLite, cfg.Storage.Type)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_FromYAMLFile(t *testing.T) {
	yamlContent := `
server:
  port: 9000
  host: "127.0.0.1"
gate:
  message_interval: 1s
  max_per_minute: 10
  warn_threshold: 5
storage:
  type: memory
logging:
  level: debug
  format: text
  output: stderr
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, time.Second, cfg.Gate.MessageInterval)
	assert.Equal(t, 10, cfg.Gate.MaxPerMinute)
	assert.Equal(t, 5, cfg.Gate.WarnThreshold)
	assert.Equal(t, models.StorageTypeMemory, cfg.Storage.Type)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset fields keep defaults
	assert.Equal(t, 300*time.Millisecond, cfg.Gate.CallbackInterval)
	assert.Equal(t, 60*time.Second, cfg.Gate.BanDuration)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [not a map"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MANGABOT_PORT", "3000")
	t.Setenv("MANGABOT_STORAGE_TYPE", "memory")
	t.Setenv("MANGABOT_GATE_MAX_PER_MINUTE", "45")
	t.Setenv("MANGABOT_GATE_BAN_DURATION", "2m")
	t.Setenv("MANGABOT_LOG_LEVEL", "warn")
	t.Setenv("MANGABOT_ADMIN_TOKEN", "secret")
	t.Setenv("MANGABOT_METRICS_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, models.StorageTypeMemory, cfg.Storage.Type)
	assert.Equal(t, 45, cfg.Gate.MaxPerMinute)
	assert.Equal(t, 2*time.Minute, cfg.Gate.BanDuration)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "secret", cfg.Security.AdminToken)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	yamlContent := `
server:
  port: 9000
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	t.Setenv("MANGABOT_PORT", "4000")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port, "environment should win over file")
}

func TestLoad_InvalidEnvValuesIgnored(t *testing.T) {
	t.Setenv("MANGABOT_PORT", "not-a-number")
	t.Setenv("MANGABOT_GATE_BAN_DURATION", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Gate.BanDuration)
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("MANGABOT_STORAGE_TYPE", "cassandra")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
