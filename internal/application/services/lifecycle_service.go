package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	plugindomain "github.com/latticehq/lattice-cli/internal/core/domain/plugin"
	"github.com/latticehq/lattice-cli/internal/core/ports/plugins"
)

// ActivateOptions controls a single activation request
type ActivateOptions struct {
	// SkipDependencyCheck activates the plugin without resolving its
	// declared dependencies first
	SkipDependencyCheck bool

	// Force is propagated to any dependency activations triggered by
	// dependency resolution
	Force bool

	// DryRun computes what the activation would do without mutating any
	// state or touching the state file
	DryRun bool
}

// DeactivateOptions controls a single deactivation request
type DeactivateOptions struct {
	// Force cascades the deactivation depth-first through the plugin's
	// dependents instead of refusing when dependents exist
	Force bool

	// DryRun computes the cascade without mutating any state
	DryRun bool
}

// EventHandler receives lifecycle notifications. Handlers are invoked
// synchronously after each successful state mutation; the manager does not
// wait on or care about anything a handler does beyond returning.
type EventHandler func(plugindomain.Event)

type subscriber struct {
	id      string
	handler EventHandler
}

// LifecycleManager owns the in-memory plugin registry, enforces the
// install/activate/deactivate/uninstall state machine, resolves declared
// dependencies before activation, and persists a full snapshot through the
// state store after every mutation.
//
// Every public operation takes the manager's mutex for its whole duration.
// Operations are human- or startup-triggered, so one coarse lock over the
// registry is the whole concurrency story.
type LifecycleManager struct {
	mu          sync.Mutex
	store       plugins.StateStore
	logger      *zap.Logger
	records     map[string]*plugindomain.Record
	order       []string
	subscribers []subscriber
}

// NewLifecycleManager loads the persisted snapshot and builds a manager
// over it. Activation-order entries pointing at unknown or non-active
// plugins are dropped with a warning; active records missing from the
// order are re-appended so the loaded registry always satisfies the
// active-iff-ordered invariant.
func NewLifecycleManager(ctx context.Context, store plugins.StateStore, logger *zap.Logger) (*LifecycleManager, error) {
	snapshot, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load plugin state: %w", err)
	}

	m := &LifecycleManager{
		store:   store,
		logger:  logger,
		records: make(map[string]*plugindomain.Record, len(snapshot.States)),
	}

	for name, rec := range snapshot.States {
		clone := rec.Clone()
		m.records[name] = &clone
	}

	for _, name := range snapshot.ActivationOrder {
		rec, ok := m.records[name]
		if !ok || rec.Status != plugindomain.StatusActive {
			logger.Warn("dropping stale activation order entry",
				zap.String("plugin", name),
			)
			continue
		}
		if !m.inOrder(name) {
			m.order = append(m.order, name)
		}
	}
	for name, rec := range m.records {
		if rec.Status == plugindomain.StatusActive && !m.inOrder(name) {
			logger.Warn("active plugin missing from activation order, re-appending",
				zap.String("plugin", name),
			)
			m.order = append(m.order, name)
		}
	}

	return m, nil
}

// Subscribe registers a lifecycle event handler and returns a subscription
// id for later removal
func (m *LifecycleManager) Subscribe(handler EventHandler) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.subscribers = append(m.subscribers, subscriber{id: id, handler: handler})
	return id
}

// Unsubscribe removes a previously registered handler
func (m *LifecycleManager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub.id == id {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			return
		}
	}
}

// Register creates a lifecycle record for a newly installed plugin. If the
// name is already registered the call still succeeds: version and declared
// dependencies are overwritten, installation time, status, and activation
// counters are preserved, and a warning is reported instead of an error.
func (m *LifecycleManager) Register(ctx context.Context, meta plugindomain.Metadata) plugindomain.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := meta.Validate(); err != nil {
		return plugindomain.Failed(err.Error())
	}

	deps := meta.LifecycleDependencies()

	var warnings []string
	if existing, ok := m.records[meta.Name]; ok {
		warnings = append(warnings, fmt.Sprintf(
			"plugin %s is already registered; overwriting version %s with %s",
			meta.Name, existing.Version, meta.Version,
		))
		existing.Version = meta.Version
		existing.Dependencies = deps
	} else {
		rec := plugindomain.NewRecord(meta.Name, meta.Version, deps)
		m.records[meta.Name] = &rec
	}

	if err := m.persist(ctx); err != nil {
		return plugindomain.Failed(fmt.Sprintf("failed to persist plugin state: %v", err))
	}

	m.logger.Info("plugin registered",
		zap.String("name", meta.Name),
		zap.String("version", meta.Version),
		zap.Strings("dependencies", deps),
	)

	m.notify(plugindomain.Event{
		Type:     plugindomain.EventPluginInstalled,
		Plugin:   meta.Name,
		Metadata: &meta,
	})

	return plugindomain.Result{Success: true, Warnings: warnings}
}

// Activate transitions a plugin to active, resolving its declared
// dependencies first unless the options say otherwise
func (m *LifecycleManager) Activate(ctx context.Context, name string, opts ActivateOptions) plugindomain.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.activate(ctx, name, opts, make(map[string]struct{}))
}

// activate is the recursive core of Activate. resolving carries the names
// currently being resolved on this call chain so a dependency cycle fails
// fast instead of recursing forever.
func (m *LifecycleManager) activate(ctx context.Context, name string, opts ActivateOptions, resolving map[string]struct{}) plugindomain.Result {
	rec, ok := m.records[name]
	if !ok {
		return plugindomain.Failed(fmt.Sprintf("plugin %s is not installed", name))
	}

	if rec.Status == plugindomain.StatusActive {
		return plugindomain.Succeeded(fmt.Sprintf("plugin %s is already active", name))
	}

	if _, busy := resolving[name]; busy {
		return plugindomain.Failed(fmt.Sprintf("circular dependency detected involving plugin %s", name))
	}
	resolving[name] = struct{}{}
	defer delete(resolving, name)

	var warnings []string
	var resolved, wouldActivate []string

	if !opts.SkipDependencyCheck {
		res := m.resolveDependencies(ctx, rec, opts, resolving)
		warnings = append(warnings, res.warnings...)
		if len(res.errors) > 0 {
			failure := strings.Join(res.errors, "; ")
			if !opts.DryRun {
				m.recordFailure(ctx, rec, failure)
			}
			return plugindomain.Result{Success: false, Errors: res.errors, Warnings: warnings}
		}
		resolved = res.resolved
		wouldActivate = res.wouldActivate
	}

	if opts.DryRun {
		return plugindomain.Result{
			Success:       true,
			Warnings:      warnings,
			WouldActivate: wouldActivate,
		}
	}

	if !opts.SkipDependencyCheck {
		m.notify(plugindomain.Event{
			Type:     plugindomain.EventDependencyResolved,
			Plugin:   name,
			Resolved: resolved,
		})
	}

	now := time.Now().UTC()
	rec.Status = plugindomain.StatusActive
	rec.LastActivatedAt = &now
	rec.ActivationCount++
	rec.ErrorMessage = ""
	if !m.inOrder(name) {
		m.order = append(m.order, name)
	}

	if err := m.persist(ctx); err != nil {
		failure := fmt.Sprintf("failed to persist activation: %v", err)
		m.recordFailure(ctx, rec, failure)
		return plugindomain.Result{Success: false, Errors: []string{failure}, Warnings: warnings}
	}

	m.logger.Info("plugin activated",
		zap.String("name", name),
		zap.Int("activation_count", rec.ActivationCount),
	)

	m.notify(plugindomain.Event{
		Type:   plugindomain.EventPluginActivated,
		Plugin: name,
	})

	return plugindomain.Result{Success: true, Warnings: warnings}
}

// resolution is the outcome of one dependency walk
type resolution struct {
	errors        []string
	warnings      []string
	resolved      []string
	wouldActivate []string
}

// resolveDependencies walks the record's direct dependencies. Unregistered
// names fail the whole resolution before any sibling is activated; inactive
// dependencies are activated recursively with dependency checking always
// enabled, and individual failures are aggregated rather than aborting the
// walk so the caller sees every blocking issue at once.
func (m *LifecycleManager) resolveDependencies(ctx context.Context, rec *plugindomain.Record, opts ActivateOptions, resolving map[string]struct{}) resolution {
	var res resolution

	var unresolved []string
	for _, dep := range rec.Dependencies {
		if _, ok := m.records[dep]; !ok {
			unresolved = append(unresolved, dep)
		}
	}
	if len(unresolved) > 0 {
		res.errors = append(res.errors, fmt.Sprintf(
			"unresolved dependencies: %s", strings.Join(unresolved, ", "),
		))
		return res
	}

	for _, dep := range rec.Dependencies {
		depRec := m.records[dep]
		if depRec.Status == plugindomain.StatusActive {
			res.resolved = append(res.resolved, dep)
			continue
		}

		depResult := m.activate(ctx, dep, ActivateOptions{
			Force:  opts.Force,
			DryRun: opts.DryRun,
		}, resolving)
		res.warnings = append(res.warnings, depResult.Warnings...)
		if !depResult.Success {
			res.errors = append(res.errors, fmt.Sprintf(
				"failed to activate dependency %s: %s",
				dep, strings.Join(depResult.Errors, "; "),
			))
			continue
		}

		res.resolved = append(res.resolved, dep)
		res.wouldActivate = append(res.wouldActivate, depResult.WouldActivate...)
		res.wouldActivate = append(res.wouldActivate, dep)
	}

	return res
}

// Deactivate transitions a plugin to inactive. Plugins that other plugins
// declare as a dependency refuse to deactivate unless Force is set, in
// which case the dependents are deactivated first, depth-first.
func (m *LifecycleManager) Deactivate(ctx context.Context, name string, opts DeactivateOptions) plugindomain.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.deactivate(ctx, name, opts, make(map[string]struct{}))
}

func (m *LifecycleManager) deactivate(ctx context.Context, name string, opts DeactivateOptions, cascading map[string]struct{}) plugindomain.Result {
	rec, ok := m.records[name]
	if !ok {
		return plugindomain.Failed(fmt.Sprintf("plugin %s is not installed", name))
	}

	if rec.Status != plugindomain.StatusActive {
		return plugindomain.Succeeded(fmt.Sprintf("plugin %s is not active", name))
	}

	// A dependency cycle would cascade back into a plugin already being
	// deactivated on this call chain; treat it as handled.
	if _, busy := cascading[name]; busy {
		return plugindomain.Succeeded(fmt.Sprintf("plugin %s is already being deactivated", name))
	}
	cascading[name] = struct{}{}
	defer delete(cascading, name)

	var warnings []string
	dependents := m.dependentsOf(name)
	if len(dependents) > 0 {
		if !opts.Force {
			return plugindomain.Failed(fmt.Sprintf(
				"cannot deactivate %s: required by %s",
				name, strings.Join(dependents, ", "),
			))
		}

		for _, dependent := range dependents {
			depResult := m.deactivate(ctx, dependent, DeactivateOptions{
				Force:  true,
				DryRun: opts.DryRun,
			}, cascading)
			warnings = append(warnings, depResult.Warnings...)
			if !depResult.Success {
				warnings = append(warnings, fmt.Sprintf(
					"failed to deactivate dependent %s: %s",
					dependent, strings.Join(depResult.Errors, "; "),
				))
				m.logger.Warn("cascading deactivation failed for dependent",
					zap.String("plugin", name),
					zap.String("dependent", dependent),
				)
			}
		}
	}

	if opts.DryRun {
		return plugindomain.Result{Success: true, Warnings: warnings}
	}

	now := time.Now().UTC()
	rec.Status = plugindomain.StatusInactive
	rec.LastDeactivatedAt = &now
	rec.ErrorMessage = ""
	m.removeFromOrder(name)

	if err := m.persist(ctx); err != nil {
		failure := fmt.Sprintf("failed to persist deactivation: %v", err)
		m.recordFailure(ctx, rec, failure)
		return plugindomain.Result{Success: false, Errors: []string{failure}, Warnings: warnings}
	}

	m.logger.Info("plugin deactivated", zap.String("name", name))

	m.notify(plugindomain.Event{
		Type:   plugindomain.EventPluginDeactivated,
		Plugin: name,
	})

	return plugindomain.Result{Success: true, Warnings: warnings}
}

// Unregister permanently removes a plugin's lifecycle record. An active
// plugin is force-deactivated first, best-effort; the removal proceeds
// regardless. The removed name is stripped from every remaining record's
// dependency list so no dangling references survive. Returns false if the
// name was never registered.
func (m *LifecycleManager) Unregister(ctx context.Context, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[name]
	if !ok {
		return false
	}

	if rec.Status == plugindomain.StatusActive {
		res := m.deactivate(ctx, name, DeactivateOptions{Force: true}, make(map[string]struct{}))
		if !res.Success {
			m.logger.Warn("failed to deactivate plugin before removal, removing anyway",
				zap.String("name", name),
				zap.Strings("errors", res.Errors),
			)
		}
	}

	delete(m.records, name)
	m.removeFromOrder(name)

	for _, other := range m.records {
		other.Dependencies = removeName(other.Dependencies, name)
	}

	if err := m.persist(ctx); err != nil {
		m.logger.Error("failed to persist plugin state after removal",
			zap.String("name", name),
			zap.Error(err),
		)
	}

	m.logger.Info("plugin unregistered", zap.String("name", name))

	m.notify(plugindomain.Event{
		Type:   plugindomain.EventPluginUninstalled,
		Plugin: name,
	})

	return true
}

// Get returns a copy of one plugin's record
func (m *LifecycleManager) Get(name string) (plugindomain.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[name]
	if !ok {
		return plugindomain.Record{}, false
	}
	return rec.Clone(), true
}

// List returns copies of every record, sorted by name
func (m *LifecycleManager) List() []plugindomain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]plugindomain.Record, 0, len(m.records))
	for _, rec := range m.records {
		result = append(result, rec.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ListActive returns copies of the currently active records, in
// activation order
func (m *LifecycleManager) ListActive() []plugindomain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]plugindomain.Record, 0, len(m.order))
	for _, name := range m.order {
		if rec, ok := m.records[name]; ok {
			result = append(result, rec.Clone())
		}
	}
	return result
}

// ActivationOrder returns the order in which the currently active plugins
// were activated, used by the host for deterministic shutdown
func (m *LifecycleManager) ActivationOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.order...)
}

// Dependencies returns a plugin's declared dependency names
func (m *LifecycleManager) Dependencies(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[name]
	if !ok {
		return nil
	}
	return append([]string(nil), rec.Dependencies...)
}

// Dependents computes, on demand, the plugins that declare the given name
// as a dependency. Dependents are never stored: they change whenever any
// plugin is registered or removed, so a reverse scan is the truth.
func (m *LifecycleManager) Dependents(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.dependentsOf(name)
}

func (m *LifecycleManager) dependentsOf(name string) []string {
	var dependents []string
	for other, rec := range m.records {
		if other == name {
			continue
		}
		if rec.DependsOn(name) {
			dependents = append(dependents, other)
		}
	}
	sort.Strings(dependents)
	return dependents
}

// recordFailure durably records a failed transition: status goes to error
// with the captured message, the plugin leaves the activation order, the
// failure state is persisted best-effort, and a PluginError notification
// goes out. A failed activation is never silently lost.
func (m *LifecycleManager) recordFailure(ctx context.Context, rec *plugindomain.Record, message string) {
	rec.Status = plugindomain.StatusError
	rec.ErrorMessage = message
	m.removeFromOrder(rec.Name)

	if err := m.persist(ctx); err != nil {
		m.logger.Error("failed to persist error state",
			zap.String("name", rec.Name),
			zap.Error(err),
		)
	}

	m.logger.Warn("plugin transition failed",
		zap.String("name", rec.Name),
		zap.String("error", message),
	)

	m.notify(plugindomain.Event{
		Type:   plugindomain.EventPluginError,
		Plugin: rec.Name,
		Err:    message,
	})
}

// persist writes the full registry snapshot through the state store
func (m *LifecycleManager) persist(ctx context.Context) error {
	snapshot := plugins.NewSnapshot()
	for name, rec := range m.records {
		snapshot.States[name] = rec.Clone()
	}
	snapshot.ActivationOrder = append([]string(nil), m.order...)
	snapshot.LastUpdated = time.Now().UTC()

	return m.store.Save(ctx, snapshot)
}

// notify invokes every subscriber synchronously, in subscription order
func (m *LifecycleManager) notify(event plugindomain.Event) {
	event.Timestamp = time.Now().UTC()
	for _, sub := range m.subscribers {
		sub.handler(event)
	}
}

func (m *LifecycleManager) inOrder(name string) bool {
	for _, n := range m.order {
		if n == name {
			return true
		}
	}
	return false
}

func (m *LifecycleManager) removeFromOrder(name string) {
	m.order = removeName(m.order, name)
}

func removeName(names []string, name string) []string {
	result := names[:0]
	for _, n := range names {
		if n != name {
			result = append(result, n)
		}
	}
	return result
}
