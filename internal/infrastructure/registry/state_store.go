package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	plugindomain "github.com/latticehq/lattice-cli/internal/core/domain/plugin"
	"github.com/latticehq/lattice-cli/internal/core/ports/plugins"
)

// FileStateStore persists the lifecycle snapshot as a single JSON document
// per workspace. Writes go to a temporary file in the same directory and
// are renamed over the target, so a crash mid-write never leaves a
// half-written state file behind.
type FileStateStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStateStore creates a store backed by the given file path
func NewFileStateStore(path string, logger *zap.Logger) *FileStateStore {
	return &FileStateStore{
		path:   path,
		logger: logger,
	}
}

// DefaultStatePath returns the per-user default state file location
func DefaultStatePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".lattice", "plugin-state.json"), nil
}

// Path returns the backing file path
func (s *FileStateStore) Path() string {
	return s.path
}

// rawSnapshot defers record decoding so one malformed entry cannot take
// down the rest of the file
type rawSnapshot struct {
	States          map[string]json.RawMessage `json:"states"`
	ActivationOrder []string                   `json:"activationOrder"`
	LastUpdated     time.Time                  `json:"lastUpdated"`
}

// Load reads the persisted snapshot. A missing file means no plugins are
// registered yet. Individually malformed record entries are skipped with a
// warning; a file that fails to parse as a whole is reported as an error
// rather than silently discarded.
func (s *FileStateStore) Load(ctx context.Context) (*plugins.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return plugins.NewSnapshot(), nil
		}
		return nil, fmt.Errorf("failed to read plugin state file: %w", err)
	}

	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("plugin state file %s is corrupt: %w", s.path, err)
	}

	snapshot := plugins.NewSnapshot()
	snapshot.LastUpdated = raw.LastUpdated

	for name, entry := range raw.States {
		var rec plugindomain.Record
		if err := json.Unmarshal(entry, &rec); err != nil {
			s.logger.Warn("skipping malformed plugin state entry",
				zap.String("plugin", name),
				zap.Error(err),
			)
			continue
		}
		if rec.Name == "" {
			rec.Name = name
		}
		if err := rec.Validate(); err != nil {
			s.logger.Warn("skipping invalid plugin state entry",
				zap.String("plugin", name),
				zap.Error(err),
			)
			continue
		}
		snapshot.States[name] = rec
	}

	for _, name := range raw.ActivationOrder {
		if _, ok := snapshot.States[name]; !ok {
			s.logger.Warn("dropping activation order entry without a state record",
				zap.String("plugin", name),
			)
			continue
		}
		snapshot.ActivationOrder = append(snapshot.ActivationOrder, name)
	}

	return snapshot, nil
}

// Save atomically rewrites the snapshot file
func (s *FileStateStore) Save(ctx context.Context, snapshot *plugins.Snapshot) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plugin state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".plugin-state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write plugin state: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set state file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace plugin state file: %w", err)
	}

	return nil
}
