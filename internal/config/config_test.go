package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8002", cfg.Listen)
	assert.Equal(t, "./querybench.db", cfg.DBPath)
	assert.Equal(t, "mysql:8.0", cfg.Sandbox.Image)
	assert.Equal(t, "testdb", cfg.Sandbox.Database)
	assert.Equal(t, "1g", cfg.Sandbox.MemLimit)
	assert.Equal(t, 15, cfg.Sandbox.ProbeAttempts)
	assert.Equal(t, 3, cfg.Sandbox.PortRetries)
	assert.Equal(t, "hermes", cfg.Generation.DefaultModel)
	assert.Equal(t, 50, cfg.Generation.PopulateRows)
	assert.Equal(t, "dbstructure", cfg.Mongo.Collection)
	assert.True(t, cfg.Cache.Enabled)
	assert.False(t, cfg.Cache.VersionKeys)
}

func TestLoadYAML(t *testing.T) {
	yamlContent := `
listen: "0.0.0.0:9090"
default_db_id: "65ff3a7b8f1e4b23d4a9c1d2"
sandbox:
  image: "mysql:5.7"
  mem_limit: "512m"
  probe_attempts: 5
generation:
  base_url: "http://rag.local"
  default_model: "groq"
cache:
  version_keys: true
`
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "test.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlContent), 0644))

	cfg, err := Load(yamlPath)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Listen)
	assert.Equal(t, "65ff3a7b8f1e4b23d4a9c1d2", cfg.DefaultDBID)
	assert.Equal(t, "mysql:5.7", cfg.Sandbox.Image)
	assert.Equal(t, "512m", cfg.Sandbox.MemLimit)
	assert.Equal(t, 5, cfg.Sandbox.ProbeAttempts)
	// untouched nested fields keep their defaults
	assert.Equal(t, 2000, cfg.Sandbox.ProbeIntervalMs)
	assert.Equal(t, "http://rag.local", cfg.Generation.BaseURL)
	assert.Equal(t, "groq", cfg.Generation.DefaultModel)
	assert.True(t, cfg.Cache.VersionKeys)
}

func TestLoadYAMLMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8002", cfg.Listen)
}

func TestLoadYAMLInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("{{{{invalid yaml"), 0644))

	_, err := Load(yamlPath)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUERYBENCH_LISTEN", "0.0.0.0:7777")
	t.Setenv("QUERYBENCH_DB_PATH", "/tmp/test.db")
	t.Setenv("QUERYBENCH_SANDBOX_IMAGE", "mysql:8.4")
	t.Setenv("QUERYBENCH_SANDBOX_MEM_LIMIT", "2g")
	t.Setenv("QUERYBENCH_PROBE_ATTEMPTS", "7")
	t.Setenv("QUERYBENCH_PORT_RETRIES", "9")
	t.Setenv("QUERYBENCH_GENERATION_BASE_URL", "http://gen.local/")
	t.Setenv("QUERYBENCH_GENERATION_API_KEY", "env-key")
	t.Setenv("QUERYBENCH_MONGODB_URI", "mongodb://mongo:27017")
	t.Setenv("QUERYBENCH_CACHE_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7777", cfg.Listen)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "mysql:8.4", cfg.Sandbox.Image)
	assert.Equal(t, "2g", cfg.Sandbox.MemLimit)
	assert.Equal(t, 7, cfg.Sandbox.ProbeAttempts)
	assert.Equal(t, 9, cfg.Sandbox.PortRetries)
	assert.Equal(t, "http://gen.local", cfg.Generation.BaseURL)
	assert.Equal(t, "env-key", cfg.Generation.APIKey)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Mongo.URI)
	assert.False(t, cfg.Cache.Enabled)
}

func TestEnvOverridesLegacyNames(t *testing.T) {
	t.Setenv("RAG_BASE_URL", "http://legacy-rag")
	t.Setenv("RAG_API_KEY", "legacy-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://legacy-rag", cfg.Generation.BaseURL)
	assert.Equal(t, "legacy-key", cfg.Generation.APIKey)
}

func TestEnvOverridesYAML(t *testing.T) {
	yamlContent := `
listen: "127.0.0.1:8080"
generation:
  api_key: "yaml-key"
`
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "test.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlContent), 0644))

	t.Setenv("QUERYBENCH_GENERATION_API_KEY", "env-key")

	cfg, err := Load(yamlPath)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Generation.APIKey)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
}

func TestEnvOverrideInvalidValues(t *testing.T) {
	t.Setenv("QUERYBENCH_PROBE_ATTEMPTS", "not-a-number")
	t.Setenv("QUERYBENCH_CACHE_ENABLED", "maybe")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Sandbox.ProbeAttempts)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadNonPositiveReaperSettingsFallBack(t *testing.T) {
	yamlPath := filepath.Join(t.TempDir(), "zero.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
reaper:
  interval_seconds: 0
  max_age_seconds: -5
sandbox:
  probe_attempts: 0
generation:
  timeout_seconds: 0
`), 0644))

	cfg, err := Load(yamlPath)
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Reaper.IntervalSeconds)
	assert.Equal(t, 1800, cfg.Reaper.MaxAgeSeconds)
	assert.Equal(t, 1, cfg.Sandbox.ProbeAttempts)
	assert.Equal(t, 120, cfg.Generation.TimeoutSeconds)
}

func TestEnvReaperIntervalZeroFallsBack(t *testing.T) {
	t.Setenv("QUERYBENCH_REAPER_INTERVAL_SECONDS", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Reaper.IntervalSeconds)
}
