package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 200, cfg.Watch.DebounceMs)
	assert.Equal(t, 3, cfg.Commit.MaxAttempts)
	assert.True(t, cfg.AutoLink.CategoryAffinityOn)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Sweep.IntervalMs, cfg.Sweep.IntervalMs)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Watch.BatchSize = 123
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 123, loaded.Watch.BatchSize)
}
