package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "orchestrator.db", cfg.DatabaseURL)
	assert.Equal(t, 10, cfg.MaxAsyncConcurrent)
	assert.Equal(t, 5, cfg.ThreadPoolSize)
	assert.Equal(t, 1, cfg.SchedulerTickSeconds)
	assert.Equal(t, 2.0, cfg.RetryBackoffBase)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.True(t, cfg.MetricsEnabled)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_url: /var/lib/orchestrator/jobs.db
thread_pool_size: 8
log_level: DEBUG
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/orchestrator/jobs.db", cfg.DatabaseURL)
	assert.Equal(t, 8, cfg.ThreadPoolSize)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	// Fields the YAML omitted keep their baseline default.
	assert.Equal(t, 10, cfg.MaxAsyncConcurrent)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`thread_pool_size: 8`), 0o644))

	t.Setenv("THREAD_POOL_SIZE", "20")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.ThreadPoolSize)
}

func TestLoad_MissingYAMLFileIsNotAnError(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
}

func TestLoad_InvalidLogLevelFailsValidation(t *testing.T) {
	t.Setenv("LOG_LEVEL", "NOPE")
	_, err := Load("")
	assert.Error(t, err)
}
