package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_MissingFile_ReturnsDefaults tests the fallback path
func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))

	require.NoError(t, err)
	defaults, err := Default()
	require.NoError(t, err)
	assert.Equal(t, defaults.PluginsDir, cfg.PluginsDir)
	assert.Equal(t, defaults.StateFile, cfg.StateFile)
	assert.False(t, cfg.Debug)
}

// TestConfig_SaveAndLoad tests the round trip
func TestConfig_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := Default()
	require.NoError(t, err)
	cfg.PluginsDir = "/opt/lattice/plugins"
	cfg.Debug = true

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/lattice/plugins", loaded.PluginsDir)
	assert.True(t, loaded.Debug)
	assert.False(t, loaded.SavedAt.IsZero(), "Save stamps the write time")
}

// TestLoad_PartialFile_KeepsDefaults tests that fields missing from the
// file keep their default values
func TestLoad_PartialFile_KeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"debug": true}`), 0600))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	defaults, err := Default()
	require.NoError(t, err)
	assert.Equal(t, defaults.StateFile, cfg.StateFile)
}

// TestLoad_MalformedFile tests that a corrupt config fails loudly instead
// of silently falling back
func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := Load(path)

	assert.Error(t, err)
}

// TestSave_RestrictsPermissions tests the file mode
func TestSave_RestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Default()
	require.NoError(t, err)
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
