package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/latticehq/lattice-cli/internal/application/services"
	"github.com/latticehq/lattice-cli/internal/infrastructure/config"
	"github.com/latticehq/lattice-cli/internal/infrastructure/logging"
	"github.com/latticehq/lattice-cli/internal/infrastructure/registry"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// Container holds the dependencies a command needs, built once per
// invocation from the resolved configuration
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   *registry.FileStateStore
	Manager *services.LifecycleManager
}

// NewRootCommand builds the lattice root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lattice",
		Short: "Lattice CLI - host application with managed plugins",
		Long: `Lattice CLI manages the lifecycle of installed Lattice plugins:
registration, activation with dependency resolution, cascading
deactivation, and removal. Plugin state is persisted per workspace and
survives restarts.`,
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}}\nBuild time: %s\n", BuildTime,
	))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Config file path (default is $HOME/.lattice/config.json)")

	rootCmd.AddCommand(newPluginsCommand())
	rootCmd.AddCommand(newDashboardCommand())

	return rootCmd
}

// buildContainer resolves configuration and wires the store and manager
// for one command invocation
func buildContainer(ctx context.Context, cmd *cobra.Command) (*Container, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}

	logger, err := logging.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	store := registry.NewFileStateStore(cfg.StateFile, logger)

	manager, err := services.NewLifecycleManager(ctx, store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize plugin lifecycle manager: %w", err)
	}

	return &Container{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Manager: manager,
	}, nil
}
