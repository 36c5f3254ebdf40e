package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/latticehq/lattice-cli/internal/application/services"
	plugindomain "github.com/latticehq/lattice-cli/internal/core/domain/plugin"
	"github.com/latticehq/lattice-cli/internal/infrastructure/discovery"
)

// newPluginsCommand creates the plugins command group
func newPluginsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage Lattice plugins",
		Long: `Manage the lifecycle of installed Lattice plugins.

Register plugins from their manifests, activate them with automatic
dependency resolution, deactivate them (cascading through dependents when
forced), and remove them from the workspace.`,
		Example: `  # List registered plugins
  lattice plugins list

  # Register every plugin found in the plugins directory
  lattice plugins sync

  # Activate a plugin and its dependencies
  lattice plugins activate lattice-plugin-markdown

  # Preview what an activation would do
  lattice plugins activate lattice-plugin-markdown --dry-run

  # Force-deactivate a plugin and everything depending on it
  lattice plugins deactivate lattice-plugin-core --force

  # Remove a plugin's lifecycle record
  lattice plugins remove lattice-plugin-markdown`,
	}

	cmd.AddCommand(newPluginsListCommand())
	cmd.AddCommand(newPluginsRegisterCommand())
	cmd.AddCommand(newPluginsSyncCommand())
	cmd.AddCommand(newPluginsActivateCommand())
	cmd.AddCommand(newPluginsDeactivateCommand())
	cmd.AddCommand(newPluginsRemoveCommand())
	cmd.AddCommand(newPluginsInfoCommand())
	cmd.AddCommand(newPluginsOrderCommand())
	cmd.AddCommand(newPluginsWatchCommand())

	return cmd
}

func newPluginsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered plugins",
		Long:  `List every plugin registered in this workspace with its lifecycle status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsList(cmd)
		},
	}
}

func newPluginsRegisterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "register <manifest-path>",
		Short: "Register a plugin from its manifest",
		Long:  `Read a plugin manifest file and register the plugin with the lifecycle manager.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsRegister(cmd, args[0])
		},
	}
}

func newPluginsSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Register all discovered plugins",
		Long:  `Scan the plugins directory and register every plugin package found there.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsSync(cmd)
		},
	}
}

func newPluginsActivateCommand() *cobra.Command {
	var skipDeps, force, dryRun bool

	cmd := &cobra.Command{
		Use:   "activate <plugin-name>",
		Short: "Activate a plugin",
		Long: `Activate a registered plugin. Its declared dependencies are resolved and
activated first; unresolved dependencies fail the activation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsActivate(cmd, args[0], skipDeps, force, dryRun)
		},
	}

	cmd.Flags().BoolVar(&skipDeps, "skip-deps", false, "Skip dependency resolution")
	cmd.Flags().BoolVar(&force, "force", false, "Propagate force to dependency activations")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be activated without changing anything")

	return cmd
}

func newPluginsDeactivateCommand() *cobra.Command {
	var force, dryRun bool

	cmd := &cobra.Command{
		Use:   "deactivate <plugin-name>",
		Short: "Deactivate a plugin",
		Long: `Deactivate an active plugin. Deactivation is refused while other plugins
depend on it unless --force is given, which cascades through the
dependents first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsDeactivate(cmd, args[0], force, dryRun)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Deactivate dependents first instead of refusing")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the cascade without changing anything")

	return cmd
}

func newPluginsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <plugin-name>",
		Short: "Remove a plugin's lifecycle record",
		Long: `Unregister a plugin. An active plugin is force-deactivated first, and the
removed name is stripped from every other plugin's dependency list.
Dependents of the removed plugin are left in their current state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsRemove(cmd, args[0])
		},
	}
}

func newPluginsInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <plugin-name>",
		Short: "Show one plugin's lifecycle record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsInfo(cmd, args[0])
		},
	}
}

func newPluginsOrderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Show the activation order",
		Long:  `Print the order in which the currently active plugins were activated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsOrder(cmd)
		},
	}
}

func newPluginsWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the plugins directory and register new plugins",
		Long: `Watch the plugins directory for new or updated plugin manifests and
register them as they appear. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsWatch(cmd)
		},
	}
}

var (
	statusStyles = map[plugindomain.Status]lipgloss.Style{
		plugindomain.StatusActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		plugindomain.StatusInactive:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		plugindomain.StatusInstalled: lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
		plugindomain.StatusError:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		plugindomain.StatusUpdating:  lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	}
)

func renderStatus(status plugindomain.Status) string {
	if style, ok := statusStyles[status]; ok {
		return style.Render(string(status))
	}
	return string(status)
}

func runPluginsList(cmd *cobra.Command) error {
	container, err := buildContainer(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	records := container.Manager.List()
	if len(records) == 0 {
		fmt.Println("No plugins are registered in this workspace.")
		fmt.Println("Run 'lattice plugins sync' to register discovered plugins.")
		return nil
	}

	fmt.Printf("Registered plugins (%d):\n\n", len(records))

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tSTATUS\tACTIVATIONS\tDEPENDENCIES")
	fmt.Fprintln(w, "----\t-------\t------\t-----------\t------------")

	for _, rec := range records {
		deps := "-"
		if len(rec.Dependencies) > 0 {
			deps = fmt.Sprintf("%d", len(rec.Dependencies))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			rec.Name,
			rec.Version,
			renderStatus(rec.Status),
			rec.ActivationCount,
			deps,
		)
	}

	w.Flush()
	return nil
}

func runPluginsRegister(cmd *cobra.Command, manifestPath string) error {
	container, err := buildContainer(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	meta, err := discovery.LoadManifest(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	fmt.Printf("📦 Registering plugin: %s (v%s)\n", meta.Name, meta.Version)

	result := container.Manager.Register(cmd.Context(), *meta)
	printResult(result, false)
	if !result.Success {
		return fmt.Errorf("failed to register plugin %s", meta.Name)
	}

	return nil
}

func runPluginsSync(cmd *cobra.Command) error {
	container, err := buildContainer(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	scanner := discovery.NewFileSystemDiscovery(
		[]string{container.Config.PluginsDir},
		container.Logger,
	)

	fmt.Printf("🔍 Scanning %s for plugins...\n", container.Config.PluginsDir)

	discovered, err := scanner.DiscoverPlugins(cmd.Context())
	if err != nil {
		return fmt.Errorf("plugin discovery failed: %w", err)
	}

	if len(discovered) == 0 {
		fmt.Println("No plugins found.")
		return nil
	}

	registered := 0
	for _, meta := range discovered {
		result := container.Manager.Register(cmd.Context(), meta)
		if !result.Success {
			fmt.Printf("⚠️  Failed to register %s: %s\n", meta.Name, joinLines(result.Errors))
			continue
		}
		for _, warning := range result.Warnings {
			fmt.Printf("⚠️  %s\n", warning)
		}
		fmt.Printf("✅ Registered %s (v%s)\n", meta.Name, meta.Version)
		registered++
	}

	fmt.Printf("\nRegistered %d/%d plugins\n", registered, len(discovered))
	return nil
}

func runPluginsActivate(cmd *cobra.Command, name string, skipDeps, force, dryRun bool) error {
	container, err := buildContainer(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	if !dryRun {
		unsubscribe := subscribeEcho(container)
		defer unsubscribe()
	}

	if dryRun {
		fmt.Printf("🔎 Dry run: activating %s\n", name)
	} else {
		fmt.Printf("🔌 Activating plugin: %s\n", name)
	}

	result := container.Manager.Activate(cmd.Context(), name, activateOptions(skipDeps, force, dryRun))
	printResult(result, dryRun)
	if !result.Success {
		return fmt.Errorf("failed to activate plugin %s", name)
	}

	return nil
}

func runPluginsDeactivate(cmd *cobra.Command, name string, force, dryRun bool) error {
	container, err := buildContainer(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	if !dryRun {
		unsubscribe := subscribeEcho(container)
		defer unsubscribe()
	}

	if dryRun {
		fmt.Printf("🔎 Dry run: deactivating %s\n", name)
	} else {
		fmt.Printf("🔌 Deactivating plugin: %s\n", name)
	}

	result := container.Manager.Deactivate(cmd.Context(), name, deactivateOptions(force, dryRun))
	printResult(result, dryRun)
	if !result.Success {
		return fmt.Errorf("failed to deactivate plugin %s", name)
	}

	return nil
}

func runPluginsRemove(cmd *cobra.Command, name string) error {
	container, err := buildContainer(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	fmt.Printf("🗑️  Removing plugin: %s\n", name)

	if !container.Manager.Unregister(cmd.Context(), name) {
		fmt.Printf("⚠️  Plugin %s was not registered\n", name)
		return nil
	}

	fmt.Printf("✅ Removed plugin: %s\n", name)
	return nil
}

func runPluginsInfo(cmd *cobra.Command, name string) error {
	container, err := buildContainer(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	rec, ok := container.Manager.Get(name)
	if !ok {
		return fmt.Errorf("plugin %s is not registered", name)
	}

	fmt.Printf("Name:             %s\n", rec.Name)
	fmt.Printf("Version:          %s\n", rec.Version)
	fmt.Printf("Status:           %s\n", renderStatus(rec.Status))
	fmt.Printf("Installed:        %s\n", rec.InstalledAt.Format(time.RFC3339))
	if rec.LastActivatedAt != nil {
		fmt.Printf("Last activated:   %s\n", rec.LastActivatedAt.Format(time.RFC3339))
	}
	if rec.LastDeactivatedAt != nil {
		fmt.Printf("Last deactivated: %s\n", rec.LastDeactivatedAt.Format(time.RFC3339))
	}
	fmt.Printf("Activations:      %d\n", rec.ActivationCount)
	if rec.ErrorMessage != "" {
		fmt.Printf("Error:            %s\n", rec.ErrorMessage)
	}

	if len(rec.Dependencies) > 0 {
		fmt.Printf("Depends on:       %s\n", joinLines(rec.Dependencies))
	}
	if dependents := container.Manager.Dependents(name); len(dependents) > 0 {
		fmt.Printf("Required by:      %s\n", joinLines(dependents))
	}

	return nil
}

func runPluginsOrder(cmd *cobra.Command) error {
	container, err := buildContainer(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	order := container.Manager.ActivationOrder()
	if len(order) == 0 {
		fmt.Println("No plugins are currently active.")
		return nil
	}

	fmt.Printf("Activation order (%d active):\n", len(order))
	for i, name := range order {
		fmt.Printf("  %d. %s\n", i+1, name)
	}
	return nil
}

func runPluginsWatch(cmd *cobra.Command) error {
	container, err := buildContainer(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	watcher, err := discovery.NewManifestWatcher(container.Config.PluginsDir, container.Logger)
	if err != nil {
		return fmt.Errorf("failed to start manifest watcher: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("👀 Watching %s for plugin manifests (Ctrl+C to stop)\n", container.Config.PluginsDir)

	err = watcher.Run(ctx, func(meta plugindomain.Metadata) {
		result := container.Manager.Register(ctx, meta)
		if !result.Success {
			fmt.Printf("⚠️  Failed to register %s: %s\n", meta.Name, joinLines(result.Errors))
			return
		}
		for _, warning := range result.Warnings {
			fmt.Printf("⚠️  %s\n", warning)
		}
		fmt.Printf("✅ Registered %s (v%s)\n", meta.Name, meta.Version)
	})
	if err != nil && ctx.Err() == nil {
		return err
	}

	fmt.Println("\n👋 Stopped watching")
	return nil
}

// subscribeEcho prints lifecycle events as they happen so cascades and
// dependency activations are visible to the user
func subscribeEcho(container *Container) func() {
	id := container.Manager.Subscribe(func(event plugindomain.Event) {
		switch event.Type {
		case plugindomain.EventPluginActivated:
			fmt.Printf("   ⚡ activated %s\n", event.Plugin)
		case plugindomain.EventPluginDeactivated:
			fmt.Printf("   💤 deactivated %s\n", event.Plugin)
		case plugindomain.EventDependencyResolved:
			if len(event.Resolved) > 0 {
				fmt.Printf("   🔗 %s dependencies resolved: %s\n", event.Plugin, joinLines(event.Resolved))
			}
		case plugindomain.EventPluginError:
			fmt.Printf("   ❌ %s failed: %s\n", event.Plugin, event.Err)
		}
	})
	return func() { container.Manager.Unsubscribe(id) }
}

func activateOptions(skipDeps, force, dryRun bool) services.ActivateOptions {
	return services.ActivateOptions{
		SkipDependencyCheck: skipDeps,
		Force:               force,
		DryRun:              dryRun,
	}
}

func deactivateOptions(force, dryRun bool) services.DeactivateOptions {
	return services.DeactivateOptions{
		Force:  force,
		DryRun: dryRun,
	}
}

// printResult surfaces a lifecycle operation's outcome: errors are the
// failure reason, warnings are secondary notices, and a dry run is never
// presented as if changes occurred
func printResult(result plugindomain.Result, dryRun bool) {
	for _, e := range result.Errors {
		fmt.Printf("❌ %s\n", e)
	}
	for _, warning := range result.Warnings {
		fmt.Printf("⚠️  %s\n", warning)
	}

	if !result.Success {
		return
	}

	if dryRun {
		if len(result.WouldActivate) > 0 {
			fmt.Printf("Would activate %d dependencies first: %s\n",
				len(result.WouldActivate), joinLines(result.WouldActivate))
		}
		fmt.Println("Dry run complete, no changes were made.")
		return
	}

	fmt.Println("✅ Done")
}

func joinLines(items []string) string {
	return strings.Join(items, ", ")
}
