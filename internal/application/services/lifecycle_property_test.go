package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	plugindomain "github.com/latticehq/lattice-cli/internal/core/domain/plugin"
)

// Property-based tests using rapid

// TestLifecycle_PropertyBased_OrderMatchesActiveSet tests that after any
// sequence of lifecycle operations a plugin is active exactly when it
// appears in the activation order, and the order never holds duplicates
func TestLifecycle_PropertyBased_OrderMatchesActiveSet(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := newMemStateStore()
		manager, err := NewLifecycleManager(ctx, store, zap.NewNop())
		require.NoError(t, err)

		numPlugins := rapid.IntRange(2, 6).Draw(t, "numPlugins")
		names := make([]string, numPlugins)
		for i := range names {
			names[i] = fmt.Sprintf("lattice-plugin-p%d", i)
		}

		// Register each plugin with dependencies drawn from the pool;
		// cycles and self-references are allowed on purpose, the manager
		// has to survive them
		for i, name := range names {
			peers := map[string]string{}
			numDeps := rapid.IntRange(0, 2).Draw(t, fmt.Sprintf("numDeps%d", i))
			for d := 0; d < numDeps; d++ {
				dep := rapid.SampledFrom(names).Draw(t, fmt.Sprintf("dep%d_%d", i, d))
				peers[dep] = "^1.0.0"
			}
			result := manager.Register(ctx, plugindomain.Metadata{
				Name:             name,
				Version:          "1.0.0",
				PeerRequirements: peers,
			})
			require.True(t, result.Success)
		}

		numOps := rapid.IntRange(1, 25).Draw(t, "numOps")
		for op := 0; op < numOps; op++ {
			name := rapid.SampledFrom(names).Draw(t, fmt.Sprintf("target%d", op))
			switch rapid.IntRange(0, 3).Draw(t, fmt.Sprintf("op%d", op)) {
			case 0:
				manager.Activate(ctx, name, ActivateOptions{})
			case 1:
				manager.Activate(ctx, name, ActivateOptions{SkipDependencyCheck: true})
			case 2:
				manager.Deactivate(ctx, name, DeactivateOptions{})
			case 3:
				manager.Deactivate(ctx, name, DeactivateOptions{Force: true})
			}
		}

		order := manager.ActivationOrder()
		seen := make(map[string]bool, len(order))
		for _, name := range order {
			require.False(t, seen[name], "activation order contains %s twice", name)
			seen[name] = true
		}

		for _, rec := range manager.List() {
			if rec.Status == plugindomain.StatusActive {
				require.True(t, seen[rec.Name],
					"%s is active but missing from the activation order", rec.Name)
			} else {
				require.False(t, seen[rec.Name],
					"%s is in the activation order with status %s", rec.Name, rec.Status)
			}
		}
	})
}

// TestLifecycle_PropertyBased_ErrorMessageTracksErrorStatus tests that a
// record carries an error message exactly while its status is error, and
// that every record stays individually valid
func TestLifecycle_PropertyBased_ErrorMessageTracksErrorStatus(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := newMemStateStore()
		manager, err := NewLifecycleManager(ctx, store, zap.NewNop())
		require.NoError(t, err)

		// A plugin with an unregistered dependency trips the error state;
		// one without always activates cleanly
		result := manager.Register(ctx, plugindomain.Metadata{
			Name:    "lattice-plugin-clean",
			Version: "1.0.0",
		})
		require.True(t, result.Success)
		result = manager.Register(ctx, plugindomain.Metadata{
			Name:             "lattice-plugin-broken",
			Version:          "1.0.0",
			PeerRequirements: map[string]string{"lattice-plugin-missing": "^1.0.0"},
		})
		require.True(t, result.Success)

		names := []string{"lattice-plugin-clean", "lattice-plugin-broken"}
		numOps := rapid.IntRange(1, 15).Draw(t, "numOps")
		for op := 0; op < numOps; op++ {
			name := rapid.SampledFrom(names).Draw(t, fmt.Sprintf("target%d", op))
			if rapid.Bool().Draw(t, fmt.Sprintf("activate%d", op)) {
				manager.Activate(ctx, name, ActivateOptions{})
			} else {
				manager.Deactivate(ctx, name, DeactivateOptions{Force: true})
			}
		}

		for _, rec := range manager.List() {
			require.NoError(t, rec.Validate())
			if rec.Status == plugindomain.StatusError {
				require.NotEmpty(t, rec.ErrorMessage,
					"%s is in the error state without a message", rec.Name)
			} else {
				require.Empty(t, rec.ErrorMessage,
					"%s carries a stale error message in status %s", rec.Name, rec.Status)
			}
		}
	})
}

// TestLifecycle_PropertyBased_PersistedSnapshotRoundTrips tests that a
// fresh manager loaded from the persisted snapshot sees exactly the state
// the first manager left behind
func TestLifecycle_PropertyBased_PersistedSnapshotRoundTrips(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := newMemStateStore()
		manager, err := NewLifecycleManager(ctx, store, zap.NewNop())
		require.NoError(t, err)

		numPlugins := rapid.IntRange(1, 5).Draw(t, "numPlugins")
		names := make([]string, numPlugins)
		for i := range names {
			names[i] = fmt.Sprintf("lattice-plugin-p%d", i)
			result := manager.Register(ctx, plugindomain.Metadata{
				Name:    names[i],
				Version: "1.0.0",
			})
			require.True(t, result.Success)
		}

		numOps := rapid.IntRange(0, 15).Draw(t, "numOps")
		for op := 0; op < numOps; op++ {
			name := rapid.SampledFrom(names).Draw(t, fmt.Sprintf("target%d", op))
			if rapid.Bool().Draw(t, fmt.Sprintf("activate%d", op)) {
				manager.Activate(ctx, name, ActivateOptions{})
			} else {
				manager.Deactivate(ctx, name, DeactivateOptions{Force: true})
			}
		}

		reloaded, err := NewLifecycleManager(ctx, store, zap.NewNop())
		require.NoError(t, err)

		require.Equal(t, manager.ActivationOrder(), reloaded.ActivationOrder())
		require.Equal(t, manager.List(), reloaded.List())
	})
}
