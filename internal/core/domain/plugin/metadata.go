package plugindomain

import (
	"fmt"
	"sort"
	"strings"
)

// NamePrefix is the naming convention for Lattice plugins. Only peer
// requirements carrying this prefix are treated as lifecycle dependencies;
// everything else in a manifest's requirement map is an ordinary package
// the plugin bundles for itself.
const NamePrefix = "lattice-plugin-"

// Metadata is the inbound contract supplied by the discovery/installer
// component. The manager only ever reads it; it never inspects plugin code.
type Metadata struct {
	Name             string            `json:"name" yaml:"name"`
	Version          string            `json:"version" yaml:"version"`
	Description      string            `json:"description,omitempty" yaml:"description,omitempty"`
	PeerRequirements map[string]string `json:"peerRequirements,omitempty" yaml:"peerRequirements,omitempty"`
}

// Validate checks that the metadata identifies a plugin this host manages
func (m Metadata) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("plugin metadata has no name")
	}
	if !strings.HasPrefix(m.Name, NamePrefix) {
		return fmt.Errorf("plugin %s does not follow the %s* naming convention", m.Name, NamePrefix)
	}
	if m.Version == "" {
		return fmt.Errorf("plugin %s has no version", m.Name)
	}
	return nil
}

// LifecycleDependencies extracts the declared plugin dependencies from the
// peer requirement map. Keys outside the host naming convention are ignored.
// The result is sorted so registration is deterministic regardless of map
// iteration order.
func (m Metadata) LifecycleDependencies() []string {
	var deps []string
	for name := range m.PeerRequirements {
		if strings.HasPrefix(name, NamePrefix) {
			deps = append(deps, name)
		}
	}
	sort.Strings(deps)
	return deps
}
