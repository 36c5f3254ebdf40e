package plugindomain

import "time"

// EventType names a lifecycle notification
type EventType string

const (
	EventPluginInstalled    EventType = "plugin.installed"
	EventPluginUninstalled  EventType = "plugin.uninstalled"
	EventPluginActivated    EventType = "plugin.activated"
	EventPluginDeactivated  EventType = "plugin.deactivated"
	EventPluginError        EventType = "plugin.error"
	EventDependencyResolved EventType = "plugin.dependency_resolved"
)

// Event is emitted by the lifecycle manager after a successful state
// mutation (or, for EventPluginError, after a failure has been durably
// recorded). Consumers are fire-and-forget observers.
type Event struct {
	Type      EventType
	Plugin    string
	Timestamp time.Time

	// Metadata is set on EventPluginInstalled
	Metadata *Metadata

	// Err is set on EventPluginError
	Err string

	// Resolved is set on EventDependencyResolved and lists the
	// dependencies that were confirmed active for the plugin
	Resolved []string
}
