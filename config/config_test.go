package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10240, cfg.Server.SyncMaxBytesArticle)
	assert.Equal(t, 5120, cfg.Server.SyncMaxBytesFragment)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Datastore.Timeout)
	assert.Equal(t, 10, cfg.Datastore.PoolSize)
	assert.Equal(t, 24*time.Hour, cfg.Jobs.Retention)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.endpoint")

	cfg.LLM.Endpoint = "http://localhost:11434/v1"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.api_key")

	cfg.LLM.APIKey = "sk-test"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "datastore.url")

	cfg.Datastore.URL = "http://localhost:54321"
	cfg.Datastore.Key = "service-key"
	require.NoError(t, cfg.Validate())
}

func TestValidate_BadProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Endpoint = "http://x"
	cfg.LLM.APIKey = "k"
	cfg.Datastore.URL = "http://y"
	cfg.Datastore.Key = "k"
	cfg.LLM.Provider = "bedrock"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.provider")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rotativa.yaml")
	data := `
server:
  port: 9090
  sync_max_bytes_article: 2048
llm:
  provider: anthropic
  model: claude-3-haiku
datastore:
  pool_size: 3
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2048, cfg.Server.SyncMaxBytesArticle)
	// Untouched fields keep defaults.
	assert.Equal(t, 5120, cfg.Server.SyncMaxBytesFragment)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Datastore.PoolSize)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LLM_API_KEY", "env-key")
	t.Setenv("SYNC_MAX_BYTES_ARTICLE", "4096")
	t.Setenv("JOB_RETENTION_SECONDS", "3600")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, 4096, cfg.Server.SyncMaxBytesArticle)
	assert.Equal(t, time.Hour, cfg.Jobs.Retention)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestEffectiveWorkerCount(t *testing.T) {
	cfg := ServerConfig{WorkerCount: 7}
	assert.Equal(t, 7, cfg.EffectiveWorkerCount())

	cfg.WorkerCount = 0
	n := cfg.EffectiveWorkerCount()
	assert.Greater(t, n, 0)
	assert.LessOrEqual(t, n, 32)
}
