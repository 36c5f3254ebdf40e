package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	plugindomain "github.com/latticehq/lattice-cli/internal/core/domain/plugin"
)

// ManifestWatcher watches a plugins directory and reports manifests as
// plugin packages are dropped in or updated, so the host can register them
// without a restart.
type ManifestWatcher struct {
	root    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

// NewManifestWatcher starts watching the given plugins directory and every
// plugin package directory already inside it
func NewManifestWatcher(root string, logger *zap.Logger) (*ManifestWatcher, error) {
	expanded := expandPath(root)
	if err := os.MkdirAll(expanded, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plugins directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	if err := watcher.Add(expanded); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch plugins directory: %w", err)
	}

	w := &ManifestWatcher{
		root:    expanded,
		watcher: watcher,
		logger:  logger,
	}

	// Watch existing plugin package directories so manifest edits inside
	// them are seen as well
	entries, err := os.ReadDir(expanded)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				w.watchPackageDir(filepath.Join(expanded, entry.Name()))
			}
		}
	}

	return w, nil
}

// Run blocks, invoking onManifest for every valid manifest that appears or
// changes under the watched directory, until the context is cancelled
func (w *ManifestWatcher) Run(ctx context.Context, onManifest func(plugindomain.Metadata)) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, onManifest)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))
		}
	}
}

func (w *ManifestWatcher) handleEvent(event fsnotify.Event, onManifest func(plugindomain.Metadata)) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	// A new plugin package directory: start watching it and pick up a
	// manifest that may already be inside
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if filepath.Dir(event.Name) == w.root {
			w.watchPackageDir(event.Name)
			w.tryManifest(filepath.Join(event.Name, ManifestFileName), onManifest)
		}
		return
	}

	if filepath.Base(event.Name) == ManifestFileName {
		w.tryManifest(event.Name, onManifest)
	}
}

func (w *ManifestWatcher) watchPackageDir(path string) {
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("failed to watch plugin package directory",
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

func (w *ManifestWatcher) tryManifest(path string, onManifest func(plugindomain.Metadata)) {
	meta, err := LoadManifest(path)
	if err != nil {
		w.logger.Warn("ignoring manifest that failed to load",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}

	w.logger.Info("manifest detected",
		zap.String("name", meta.Name),
		zap.String("version", meta.Version),
	)

	onManifest(*meta)
}
