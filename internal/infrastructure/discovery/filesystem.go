package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	plugindomain "github.com/latticehq/lattice-cli/internal/core/domain/plugin"
)

// ManifestFileName is the manifest each installed plugin package carries
// in its directory
const ManifestFileName = "plugin.yaml"

// FileSystemDiscovery finds installed plugin packages by scanning
// directories for manifests. It reads metadata only; plugin code is never
// loaded or executed here.
type FileSystemDiscovery struct {
	directories []string
	logger      *zap.Logger
}

// NewFileSystemDiscovery creates a filesystem-based plugin discovery over
// the given directories
func NewFileSystemDiscovery(directories []string, logger *zap.Logger) *FileSystemDiscovery {
	return &FileSystemDiscovery{
		directories: directories,
		logger:      logger,
	}
}

// DiscoverPlugins scans every configured directory for plugin manifests.
// Directories that do not exist are skipped; invalid manifests are logged
// and skipped rather than failing the scan.
func (d *FileSystemDiscovery) DiscoverPlugins(ctx context.Context) ([]plugindomain.Metadata, error) {
	var discovered []plugindomain.Metadata

	for _, dir := range d.directories {
		expanded := expandPath(dir)

		if _, err := os.Stat(expanded); os.IsNotExist(err) {
			d.logger.Debug("plugin directory does not exist", zap.String("dir", expanded))
			continue
		}

		found, err := d.scanDirectory(expanded)
		if err != nil {
			d.logger.Warn("failed to scan plugin directory",
				zap.String("dir", expanded),
				zap.Error(err),
			)
			continue
		}

		discovered = append(discovered, found...)
	}

	d.logger.Debug("plugin discovery complete", zap.Int("count", len(discovered)))

	return discovered, nil
}

// scanDirectory scans one directory for plugin packages. A plugin package
// is a subdirectory named with the host plugin prefix that contains a
// manifest file.
func (d *FileSystemDiscovery) scanDirectory(dirPath string) ([]plugindomain.Metadata, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var found []plugindomain.Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !strings.HasPrefix(entry.Name(), plugindomain.NamePrefix) {
			continue
		}

		manifestPath := filepath.Join(dirPath, entry.Name(), ManifestFileName)
		meta, err := LoadManifest(manifestPath)
		if err != nil {
			d.logger.Warn("skipping plugin with unreadable manifest",
				zap.String("path", manifestPath),
				zap.Error(err),
			)
			continue
		}

		if meta.Name != entry.Name() {
			d.logger.Warn("manifest name does not match plugin directory",
				zap.String("dir", entry.Name()),
				zap.String("manifest_name", meta.Name),
			)
		}

		found = append(found, *meta)

		d.logger.Debug("found plugin",
			zap.String("name", meta.Name),
			zap.String("version", meta.Version),
		)
	}

	return found, nil
}

// LoadManifest reads and validates a single plugin manifest
func LoadManifest(path string) (*plugindomain.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var meta plugindomain.Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &meta, nil
}

// expandPath expands ~ to the user home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
