package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("TIME_ZONE", "UTC")
	t.Setenv("QUEUE_BACKEND", "memory")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.TimeZone.String())
	assert.Equal(t, QueueBackendMemory, cfg.Queue.Backend)
	assert.Equal(t, "mailing_dispatch", cfg.Queue.QueueName)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TIME_ZONE", "Europe/Moscow")
	t.Setenv("QUEUE_BACKEND", "amqp")
	t.Setenv("QUEUE_MAX_RETRIES", "5")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "Europe/Moscow", cfg.TimeZone.String())
	assert.Equal(t, QueueBackendAMQP, cfg.Queue.Backend)
	assert.Equal(t, 5, cfg.Queue.MaxRetries)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestFromEnvRejectsUnknownBackend(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "celery")

	_, err := FromEnv()
	assert.Error(t, err)
}

func TestFromEnvRejectsUnknownTimeZone(t *testing.T) {
	t.Setenv("TIME_ZONE", "Mars/Olympus")

	_, err := FromEnv()
	assert.Error(t, err)
}

func TestLoadReportsDotEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("QUEUE_NAME", "from_env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.DotEnvLoaded)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SERVER_PORT=9090\n"), 0o600))
	t.Setenv("SERVER_PORT", "")
	require.NoError(t, os.Unsetenv("SERVER_PORT"))

	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.DotEnvLoaded)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "from_env", cfg.Queue.QueueName)
}
