package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderLoad(t *testing.T) {
	t.Run("defaults when file does not exist", func(t *testing.T) {
		loader := NewLoader(filepath.Join(t.TempDir(), "nonexistent.json"))
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.Store.SemanticBackend)
		assert.Equal(t, 10000, cfg.Store.AuditCapacity)
	})

	t.Run("load config from file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "arbiter.json")
		testConfig := `{
			"store": {
				"semantic_backend": "sqlite"
			},
			"embedding": {
				"provider": "openai",
				"api_key": "sk-test-key"
			},
			"session": {
				"strict": true
			}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)

		assert.Equal(t, "sqlite", cfg.Store.SemanticBackend)
		assert.Equal(t, "openai", cfg.Embedding.Provider)
		assert.Equal(t, "sk-test-key", cfg.Embedding.APIKey)
		assert.True(t, cfg.Session.Strict)

		// File values merge over defaults
		assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	})

	t.Run("derived default paths", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "arbiter.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"store": {"semantic_backend": "sqlite"}}`), 0644))

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)

		assert.NotEmpty(t, cfg.DataDir)
		assert.Equal(t, filepath.Join(cfg.DataDir, "arbiter.log"), cfg.Logging.File)
		assert.Equal(t, filepath.Join(cfg.DataDir, "arbiter.db"), cfg.Store.DBPath)
	})

	t.Run("malformed file fails", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "arbiter.json")
		require.NoError(t, os.WriteFile(configPath, []byte("not json"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "arbiter.json")
	loader := NewLoader(configPath)

	cfg := DefaultConfig()
	cfg.Store.SemanticBackend = "sqlite"
	cfg.Store.DBPath = "/tmp/arbiter.db"

	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", loaded.Store.SemanticBackend)
	assert.Equal(t, "/tmp/arbiter.db", loaded.Store.DBPath)
}

func TestGetConfigPath(t *testing.T) {
	loader := NewLoader("/explicit/path.json")
	assert.Equal(t, "/explicit/path.json", loader.GetConfigPath())

	defaultLoader := NewLoader("")
	assert.Contains(t, defaultLoader.GetConfigPath(), ".arbiter")
}
