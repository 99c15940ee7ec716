// Package cmd contains CLI command definitions
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/rf-ate/internal/config"
)

var (
	// Logger is the shared logger instance for all commands
	Logger *logrus.Logger

	configPath string
	envFile    string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "rf-ate",
		Short: "RF ATE - factory test station for wireless transmitters and receivers",
		Long: `RF ATE runs the production test sequence against up to four wireless DUTs
on one fixture and records the verdict of every unit.

Run without arguments to launch interactive mode, or use subcommands for direct operations.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Station configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print running progress and debug logs")
	// Loaded by main before any command runs.
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Environment file to load (default .env)")

	InitLogger()
}

// InitLogger (re)creates the shared logger from LOG_LEVEL. Call it after
// loading an environment file.
func InitLogger() {
	Logger = newLogger(verbose, config.LoggingConfig{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: config.LogFormatText,
	})
}

// loadConfig reads the station configuration and applies its logging
// section to the shared logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	configureLogger(Logger, verbose, cfg.Logging)

	return cfg, nil
}
