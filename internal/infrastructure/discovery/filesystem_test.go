package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeManifest(t *testing.T, dir, pluginName, content string) {
	t.Helper()
	pluginDir := filepath.Join(dir, pluginName)
	require.NoError(t, os.MkdirAll(pluginDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, ManifestFileName), []byte(content), 0644))
}

// TestDiscoverPlugins_FindsManifests tests scanning a directory of plugin
// packages
func TestDiscoverPlugins_FindsManifests(t *testing.T) {
	dir := t.TempDir()

	writeManifest(t, dir, "lattice-plugin-markdown", `
name: lattice-plugin-markdown
version: 1.2.0
description: Markdown rendering
peerRequirements:
  lattice-plugin-core: ^1.0.0
`)
	writeManifest(t, dir, "lattice-plugin-core", `
name: lattice-plugin-core
version: 1.0.0
`)

	discovery := NewFileSystemDiscovery([]string{dir}, zap.NewNop())
	found, err := discovery.DiscoverPlugins(context.Background())

	require.NoError(t, err)
	require.Len(t, found, 2)

	byName := map[string]string{}
	for _, meta := range found {
		byName[meta.Name] = meta.Version
	}
	assert.Equal(t, "1.0.0", byName["lattice-plugin-core"])
	assert.Equal(t, "1.2.0", byName["lattice-plugin-markdown"])
}

// TestDiscoverPlugins_SkipsNonPluginEntries tests that unrelated files and
// directories are ignored
func TestDiscoverPlugins_SkipsNonPluginEntries(t *testing.T) {
	dir := t.TempDir()

	writeManifest(t, dir, "lattice-plugin-core", `
name: lattice-plugin-core
version: 1.0.0
`)
	// A directory without the plugin prefix
	writeManifest(t, dir, "left-pad", `
name: left-pad
version: 1.3.0
`)
	// A prefixed directory with no manifest
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lattice-plugin-empty"), 0755))
	// A loose file at the top level
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0644))

	discovery := NewFileSystemDiscovery([]string{dir}, zap.NewNop())
	found, err := discovery.DiscoverPlugins(context.Background())

	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "lattice-plugin-core", found[0].Name)
}

// TestDiscoverPlugins_SkipsInvalidManifests tests that a broken manifest
// never fails the whole scan
func TestDiscoverPlugins_SkipsInvalidManifests(t *testing.T) {
	dir := t.TempDir()

	writeManifest(t, dir, "lattice-plugin-good", `
name: lattice-plugin-good
version: 1.0.0
`)
	writeManifest(t, dir, "lattice-plugin-bad-yaml", `{{{{not yaml`)
	// Valid YAML, but fails validation: no version
	writeManifest(t, dir, "lattice-plugin-no-version", `
name: lattice-plugin-no-version
`)

	discovery := NewFileSystemDiscovery([]string{dir}, zap.NewNop())
	found, err := discovery.DiscoverPlugins(context.Background())

	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "lattice-plugin-good", found[0].Name)
}

// TestDiscoverPlugins_MissingDirectory tests that a nonexistent search
// directory is skipped silently
func TestDiscoverPlugins_MissingDirectory(t *testing.T) {
	existing := t.TempDir()
	writeManifest(t, existing, "lattice-plugin-core", `
name: lattice-plugin-core
version: 1.0.0
`)

	discovery := NewFileSystemDiscovery(
		[]string{filepath.Join(existing, "does-not-exist"), existing},
		zap.NewNop(),
	)
	found, err := discovery.DiscoverPlugins(context.Background())

	require.NoError(t, err)
	assert.Len(t, found, 1)
}

// TestLoadManifest tests single-manifest loading
func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestFileName)
	require.NoError(t, os.WriteFile(path, []byte(`
name: lattice-plugin-assets
version: 2.1.0
peerRequirements:
  lattice-plugin-core: ^1.0.0
  sharp: ^0.33.0
`), 0644))

	meta, err := LoadManifest(path)

	require.NoError(t, err)
	assert.Equal(t, "lattice-plugin-assets", meta.Name)
	assert.Equal(t, "2.1.0", meta.Version)
	assert.Equal(t, []string{"lattice-plugin-core"}, meta.LifecycleDependencies(),
		"Only plugin-prefixed peer requirements count as lifecycle dependencies")
}

func TestLoadManifest_MissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope", ManifestFileName))
	assert.Error(t, err)
}
