package cmd

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/habedi/glm/config"
	"github.com/habedi/glm/db"
	"github.com/habedi/glm/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// skipSetup marks commands that need neither the configuration nor the database.
const skipSetup = "skip-setup"

var (
	configPath    = config.Path
	timeout       time.Duration
	appConfig     *config.Config
	cancelTimeout context.CancelFunc
)

// Execute runs the command line. ctx is cancelled on interrupt; running installs stop
// after the current step.
func Execute(ctx context.Context) {
	rootCmd := createRootCmd()
	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command execution failed.")
		rootCmd.PrintErrln("Error:", err)
		// PersistentPostRunE does not run after a failed command
		db.Shutdown()
		os.Exit(exitCode(err))
	}
}

func createRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "glm",
		Short:             "Install and update games from a DRM-free game repository",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cancelTimeout != nil {
				cancelTimeout()
			}
			if cmd.Annotations[skipSetup] == "" {
				return closeDatabase()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.Path, "Path to the configuration file")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "T", 0, "Abort the command after this duration (0 means no limit)")

	rootCmd.AddCommand(
		initCmd(),
		versionCmd(),
		catalogueCmd(),
		planCmd(),
		installCmd(),
		updateCmd(),
		statusCmd(),
		uninstallCmd(),
		fileCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd
}

// setup loads the configuration and opens the database before a command runs.
func setup(cmd *cobra.Command, args []string) error {
	if timeout > 0 {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		cancelTimeout = cancel
		cmd.SetContext(ctx)
	}
	if cmd.Annotations[skipSetup] != "" {
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return clierr.New(clierr.Validation, "Failed to load the configuration: "+err.Error(), err)
	}
	appConfig = cfg

	if cfg.Paths.Database != "" {
		db.Path = cfg.Paths.Database
	} else if err := db.ConfigurePath(); err != nil {
		return clierr.New(clierr.Internal, "Failed to locate the database", err)
	}
	return initializeDatabase()
}

// currentConfig returns the loaded configuration, or the defaults when none was loaded.
func currentConfig() *config.Config {
	if appConfig == nil {
		appConfig = config.Default()
	}
	return appConfig
}

func initializeDatabase() error {
	if err := db.InitDB(); err != nil {
		log.Error().Err(err).Msg("Failed to initialize database")
		return clierr.New(clierr.Internal, "Failed to open the database", err)
	}
	return nil
}

func closeDatabase() error {
	if err := db.CloseDB(); err != nil {
		log.Error().Err(err).Msg("Failed to close the database.")
		return clierr.New(clierr.Internal, "Failed to close the database", err)
	}
	return nil
}

// exitCode maps an error category onto the process exit status.
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 130
	}
	switch clierr.TypeOf(err) {
	case clierr.Validation:
		return 2
	case clierr.NotFound:
		return 3
	case clierr.Remote:
		return 4
	case clierr.Install:
		return 5
	default:
		return 1
	}
}
