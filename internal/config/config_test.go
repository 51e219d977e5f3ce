package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
[embedding]
provider = "openai"
model = "text-embedding-3-small"
timeout = "45s"

[session]
idle_ttl = "30m"

[store]
backend = "redis"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 45*time.Second, cfg.Embedding.Timeout.Std())
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL.Std())
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	// untouched keys keep defaults
	assert.Equal(t, 64, cfg.Embedding.BatchSize)
	assert.Equal(t, 0.85, cfg.Analysis.DefaultThreshold)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: "9090"
embedding:
  provider: gemini
  timeout: 10s
analysis:
  default_threshold: 0.9
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.Embedding.Provider)
	assert.Equal(t, 10*time.Second, cfg.Embedding.Timeout.Std())
	assert.Equal(t, 0.9, cfg.Analysis.DefaultThreshold)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.toml", "[embedding\nprovider="))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad_duration.toml", "[session]\nidle_ttl = \"soon\"\n"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("EMBEDDING_PROVIDER", "hash")
	t.Setenv("EMBEDDING_API_KEY", "secret")
	t.Setenv("SESSION_IDLE_TTL", "15m")
	t.Setenv("STORE_BACKEND", "neo4j")
	t.Setenv("NEO4J_URI", "bolt://db:7687")
	t.Setenv("EMBEDDING_BATCH_SIZE", "16")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, "secret", cfg.Embedding.APIKey)
	assert.Equal(t, 15*time.Minute, cfg.Session.IdleTTL.Std())
	assert.Equal(t, BackendNeo4j, cfg.Store.Backend)
	assert.Equal(t, "bolt://db:7687", cfg.Store.Memgraph.URI)
	assert.Equal(t, 16, cfg.Embedding.BatchSize)
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("EMBEDDING_BATCH_SIZE", "many")
	assert.Error(t, Default().ApplyEnv())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold zero", func(c *Config) { c.Analysis.DefaultThreshold = 0 }},
		{"threshold above one", func(c *Config) { c.Analysis.DefaultThreshold = 1.2 }},
		{"batch size", func(c *Config) { c.Embedding.BatchSize = 0 }},
		{"concurrency", func(c *Config) { c.Embedding.Concurrency = 0 }},
		{"timeout", func(c *Config) { c.Embedding.Timeout = 0 }},
		{"backend", func(c *Config) { c.Store.Backend = "sqlite" }},
		{"provider", func(c *Config) { c.Embedding.Provider = "" }},
		{"port", func(c *Config) { c.Server.Port = "" }},
		{"empty separator", func(c *Config) { c.Analysis.Separator = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
