package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderLoad(t *testing.T) {
	t.Run("missing file yields defaults with derived paths", func(t *testing.T) {
		loader := NewLoader(filepath.Join(t.TempDir(), "nanobot.json"))

		cfg, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, "direct", cfg.DefaultChannel)
		assert.NotEmpty(t, cfg.DataDir)
		assert.Equal(t, filepath.Join(cfg.DataDir, "cron-jobs.json"), cfg.Cron.StorePath)
		assert.Equal(t, filepath.Join(cfg.DataDir, "subagents.json"), cfg.Subagents.RegistryPath)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nanobot.json")
		content := `{
  "workspace": "/srv/agent",
  "data_dir": "/srv/agent-data",
  "default_recipient": "ops",
  "cron": {"enabled": false, "tick_seconds": 2},
  "subagents": {"max_concurrent": 8, "overflow_policy": "reject"}
}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/srv/agent", cfg.Workspace)
		assert.Equal(t, "ops", cfg.DefaultRecipient)
		assert.False(t, cfg.Cron.Enabled)
		assert.Equal(t, 2, cfg.Cron.TickSeconds)
		assert.Equal(t, 8, cfg.Subagents.MaxConcurrent)
		assert.Equal(t, "reject", cfg.Subagents.OverflowPolicy)

		// Untouched sections keep their defaults.
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, filepath.Join("/srv/agent-data", "cron-jobs.json"), cfg.Cron.StorePath)
	})

	t.Run("malformed JSON fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nanobot.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestLoaderSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nanobot.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.Workspace = "/srv/agent"
	cfg.DataDir = "/srv/agent-data"
	cfg.Tools.WebSearchEndpoint = "https://search.example.com"

	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/agent", loaded.Workspace)
	assert.Equal(t, "https://search.example.com", loaded.Tools.WebSearchEndpoint)
}
