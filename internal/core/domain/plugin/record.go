package plugindomain

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of an installed plugin
type Status string

const (
	StatusInstalled Status = "installed"
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusError     Status = "error"

	// StatusUpdating is reserved for the in-place update flow and is
	// never entered by the lifecycle operations themselves.
	StatusUpdating Status = "updating"
)

// knownStatuses is used when validating records loaded from disk
var knownStatuses = map[Status]bool{
	StatusInstalled: true,
	StatusActive:    true,
	StatusInactive:  true,
	StatusError:     true,
	StatusUpdating:  true,
}

// Record is the persisted unit of state for one plugin. Name is immutable
// once created; Version and Dependencies are overwritten on re-registration.
type Record struct {
	Name              string     `json:"name"`
	Version           string     `json:"version"`
	Status            Status     `json:"status"`
	InstalledAt       time.Time  `json:"installedAt"`
	LastActivatedAt   *time.Time `json:"lastActivatedAt,omitempty"`
	LastDeactivatedAt *time.Time `json:"lastDeactivatedAt,omitempty"`
	ActivationCount   int        `json:"activationCount"`
	ErrorMessage      string     `json:"errorMessage,omitempty"`
	Dependencies      []string   `json:"dependencies"`
}

// NewRecord creates a freshly installed record
func NewRecord(name, version string, dependencies []string) Record {
	return Record{
		Name:         name,
		Version:      version,
		Status:       StatusInstalled,
		InstalledAt:  time.Now().UTC(),
		Dependencies: append([]string(nil), dependencies...),
	}
}

// IsActive reports whether the plugin is currently active
func (r Record) IsActive() bool {
	return r.Status == StatusActive
}

// DependsOn reports whether the record declares the given plugin as a dependency
func (r Record) DependsOn(name string) bool {
	for _, dep := range r.Dependencies {
		if dep == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record so callers can hand out
// query results without exposing manager-owned state
func (r Record) Clone() Record {
	clone := r
	clone.Dependencies = append([]string(nil), r.Dependencies...)
	if r.LastActivatedAt != nil {
		t := *r.LastActivatedAt
		clone.LastActivatedAt = &t
	}
	if r.LastDeactivatedAt != nil {
		t := *r.LastDeactivatedAt
		clone.LastDeactivatedAt = &t
	}
	return clone
}

// Validate checks the structural invariants of a record, primarily used
// to reject malformed entries when reloading persisted state
func (r Record) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("plugin record has no name")
	}
	if !knownStatuses[r.Status] {
		return fmt.Errorf("plugin %s has unknown status %q", r.Name, r.Status)
	}
	if r.ActivationCount < 0 {
		return fmt.Errorf("plugin %s has negative activation count", r.Name)
	}
	if r.ErrorMessage != "" && r.Status != StatusError {
		return fmt.Errorf("plugin %s carries an error message while in status %q", r.Name, r.Status)
	}
	return nil
}
