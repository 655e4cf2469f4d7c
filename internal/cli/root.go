// Package cli wires the command-line interface: one-shot exports, preflight
// diagnostics, the read-side query viewer and the scheduled serve mode.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"metrika-etl/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// rootOpts are the persistent flags shared by every command.
type rootOpts struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}

	rootCmd := &cobra.Command{
		Use:           "metrika-etl",
		Short:         "Export Yandex Metrika logs into ClickHouse",
		Long:          "metrika-etl exports raw hit and visit logs from the Yandex Metrika Logs API and loads them into ClickHouse tables with an explicit, verified field mapping.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a JSON or YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file (ignored when missing)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newExportCmd(opts),
		newPreflightCmd(opts),
		newQueryCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig resolves configuration in precedence order: flags over
// environment over .env file over config file over defaults.
func loadConfig(opts *rootOpts) (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	return cfg, logger, nil
}

// validatedConfig loads the configuration and fails on incompleteness,
// logging any non-fatal warnings it produced.
func validatedConfig(opts *rootOpts) (*config.Config, *slog.Logger, error) {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	return cfg, logger, nil
}
