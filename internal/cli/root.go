// Package cli defines the command-line interface for contractctl.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/voltage-labs/contractctl/internal/logging"
)

const (
	// defaultConfigPath is the default path to the deployment configuration file.
	defaultConfigPath = "contracts.yaml"
)

// Options stores global CLI options shared between commands.
type Options struct {
	ConfigPath string
	Network    string
	// LedgerPath forces the file ledger backend at this path.
	LedgerPath string
	Vars       string
	LogLevel   logging.Level
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}

	rootOpts := &Options{
		ConfigPath: defaultConfigPath,
		LogLevel:   logging.LevelInfo,
	}

	rootCmd := newRootCommand(rootOpts, logger)
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "contractctl",
		Short:         "contractctl deploys a contract suite idempotently",
		Long:          "contractctl deploys a fixed, dependency-ordered suite of contracts described in contracts.yaml, records every address in a ledger and skips what is already deployed on re-runs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyBaseEnv(cmd, opts); err != nil {
				return err
			}
			level := logging.ParseLevel(cmd.Flag("log-level").Value.String())
			opts.LogLevel = level
			logger = logging.NewLogger(cmd.ErrOrStderr(), level)
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", defaultConfigPath, "Path to contracts.yaml configuration file")
	cmd.PersistentFlags().StringVar(&opts.Network, "network", "", "Network name from contracts.yaml (optional when only one is defined)")
	cmd.PersistentFlags().StringVar(&opts.LedgerPath, "ledger", "", "Use a JSON file ledger at this path instead of the configured backend")
	cmd.PersistentFlags().StringVar(&opts.Vars, "vars", "", "Additional template variables in k=v,k2=v2 format")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCommand(opts),
		newPlanCommand(opts),
		newLedgerCommand(opts),
		newVerifyCommand(opts),
		newDoctorCommand(opts),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}
