package plugins

import (
	"context"
	"time"

	plugindomain "github.com/latticehq/lattice-cli/internal/core/domain/plugin"
)

// Snapshot is the full persisted lifecycle state for one workspace: every
// plugin record plus the order in which the currently active plugins were
// activated. The manager rewrites the whole snapshot after every mutation.
type Snapshot struct {
	States          map[string]plugindomain.Record `json:"states"`
	ActivationOrder []string                       `json:"activationOrder"`
	LastUpdated     time.Time                      `json:"lastUpdated"`
}

// NewSnapshot returns an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{
		States:          make(map[string]plugindomain.Record),
		ActivationOrder: []string{},
	}
}

// StateStore persists lifecycle snapshots. Load must tolerate individually
// malformed record entries (skip them, keep the rest) and treat a missing
// backing file as an empty snapshot; a file that cannot be parsed at all is
// an error, never a silent reset.
type StateStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot *Snapshot) error
}

// PluginDiscovery is the boundary to the component that finds installed
// plugin packages on disk and reads their manifests. The lifecycle manager
// only consumes the metadata it produces.
type PluginDiscovery interface {
	DiscoverPlugins(ctx context.Context) ([]plugindomain.Metadata, error)
}
