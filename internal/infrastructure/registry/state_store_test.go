package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	plugindomain "github.com/latticehq/lattice-cli/internal/core/domain/plugin"
	"github.com/latticehq/lattice-cli/internal/core/ports/plugins"
)

func newTestStore(t *testing.T) (*FileStateStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plugin-state.json")
	return NewFileStateStore(path, zap.NewNop()), path
}

// TestFileStateStore_Load_MissingFile tests that a missing state file means
// an empty workspace, not an error
func TestFileStateStore_Load_MissingFile(t *testing.T) {
	store, _ := newTestStore(t)

	snapshot, err := store.Load(context.Background())

	require.NoError(t, err, "Missing state file should not be an error")
	assert.Empty(t, snapshot.States)
	assert.Empty(t, snapshot.ActivationOrder)
}

// TestFileStateStore_RoundTrip tests that saving and reloading reproduces
// the snapshot
func TestFileStateStore_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	activatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snapshot := plugins.NewSnapshot()

	core := plugindomain.NewRecord("lattice-plugin-core", "2.0.0", nil)
	core.Status = plugindomain.StatusActive
	core.LastActivatedAt = &activatedAt
	core.ActivationCount = 3
	snapshot.States[core.Name] = core

	markdown := plugindomain.NewRecord("lattice-plugin-markdown", "1.1.0", []string{"lattice-plugin-core"})
	snapshot.States[markdown.Name] = markdown

	snapshot.ActivationOrder = []string{"lattice-plugin-core"}

	require.NoError(t, store.Save(ctx, snapshot))

	reloaded, err := store.Load(ctx)
	require.NoError(t, err)

	require.Len(t, reloaded.States, 2)
	assert.Equal(t, []string{"lattice-plugin-core"}, reloaded.ActivationOrder)

	gotCore := reloaded.States["lattice-plugin-core"]
	assert.Equal(t, plugindomain.StatusActive, gotCore.Status)
	assert.Equal(t, 3, gotCore.ActivationCount)
	require.NotNil(t, gotCore.LastActivatedAt)
	assert.True(t, gotCore.LastActivatedAt.Equal(activatedAt))

	gotMarkdown := reloaded.States["lattice-plugin-markdown"]
	assert.Equal(t, []string{"lattice-plugin-core"}, gotMarkdown.Dependencies)
}

// TestFileStateStore_Load_SkipsMalformedEntries tests that one bad record
// does not take down the rest of the file
func TestFileStateStore_Load_SkipsMalformedEntries(t *testing.T) {
	store, path := newTestStore(t)

	doc := `{
  "states": {
    "lattice-plugin-good": {
      "name": "lattice-plugin-good",
      "version": "1.0.0",
      "status": "inactive",
      "installedAt": "2026-01-01T00:00:00Z",
      "activationCount": 1,
      "dependencies": []
    },
    "lattice-plugin-bad": "not an object",
    "lattice-plugin-broken": {
      "name": "lattice-plugin-broken",
      "version": "1.0.0",
      "status": "no-such-status",
      "installedAt": "2026-01-01T00:00:00Z",
      "activationCount": 0,
      "dependencies": []
    }
  },
  "activationOrder": ["lattice-plugin-bad"],
  "lastUpdated": "2026-01-02T00:00:00Z"
}`
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	snapshot, err := store.Load(context.Background())

	require.NoError(t, err, "Malformed entries should be skipped, not fatal")
	require.Len(t, snapshot.States, 1, "Only the well-formed record should survive")
	assert.Contains(t, snapshot.States, "lattice-plugin-good")
	assert.Empty(t, snapshot.ActivationOrder,
		"Order entries pointing at dropped records should be removed")
}

// TestFileStateStore_Load_CorruptFile tests that a file that cannot be
// parsed at all is reported, not silently reset
func TestFileStateStore_Load_CorruptFile(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(`{"states": {truncated`), 0600))

	snapshot, err := store.Load(context.Background())

	require.Error(t, err, "A truncated state file must surface an error")
	assert.Nil(t, snapshot)
	assert.Contains(t, err.Error(), "corrupt")
}

// TestFileStateStore_Save_IsAtomic tests the temp-file-and-rename write path
func TestFileStateStore_Save_IsAtomic(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	snapshot := plugins.NewSnapshot()
	rec := plugindomain.NewRecord("lattice-plugin-core", "1.0.0", nil)
	snapshot.States[rec.Name] = rec

	require.NoError(t, store.Save(ctx, snapshot))
	require.NoError(t, store.Save(ctx, snapshot), "Overwriting an existing file must work")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), ".plugin-state-"),
			"No temporary files should be left behind, found %s", entry.Name())
	}

	// The document on disk is plain JSON with the expected top-level fields
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "states")
	assert.Contains(t, doc, "activationOrder")
	assert.Contains(t, doc, "lastUpdated")
}

// TestFileStateStore_Save_CreatesDirectory tests that the state directory
// is created on demand
func TestFileStateStore_Save_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "plugin-state.json")
	store := NewFileStateStore(path, zap.NewNop())

	require.NoError(t, store.Save(context.Background(), plugins.NewSnapshot()))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
