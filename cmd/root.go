// Package cmd contains all CLI commands for gymctl
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"gym-session/config"
	"gym-session/internal/di"
	"gym-session/internal/output"
	"gym-session/utils/logger"
	"gym-session/utils/otel"
)

const serviceName = "gymctl"

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

var (
	cfgFile   string
	verbose   bool
	colorFlag string
	cfg       *config.Config
	log       *slog.Logger
	printer   *output.Printer
	version   = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "gymctl",
	Short: "Gym app session client",
	Long: `gymctl signs in to the gym backend, keeps the session fresh and calls the
API on your behalf. "gymctl serve" runs the same session core as a local
backend-for-frontend for the browser app.

Example usage:
  gymctl login -u me@example.com       # Password login (prompts for the password)
  gymctl login --code me@example.com   # One-time code sent by email
  gymctl whoami                        # Show the current auth state
  gymctl request GET /workouts         # Call the API with the session
  gymctl serve                         # Run the backend-for-frontend`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .gymctl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&colorFlag, "color", "auto", "color output: auto, always or never")
}

func initConfig(cmd *cobra.Command) error {
	mode, err := output.ParseColorMode(colorFlag)
	if err != nil {
		return err
	}
	printer = output.NewPrinterWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	level := "info"
	if verbose {
		level = "debug"
	}
	log = logger.Init(logger.Options{Level: level, Text: true, Output: cmd.ErrOrStderr()})

	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	for _, w := range cfg.Warnings {
		printer.Warning("%s", w)
	}

	if !verbose && cfg.LogLevel != "" {
		log = logger.Init(logger.Options{Level: cfg.LogLevel, Text: true, Output: cmd.ErrOrStderr()})
	}

	log.Debug("configuration loaded",
		"kratos_url", cfg.KratosURL,
		"backend_url", cfg.BackendURL,
		"session_store", cfg.SessionStore)

	return nil
}

// openApp starts telemetry and wires the application. The returned function
// releases both.
func openApp(ctx context.Context, jsonLogs bool) (*di.ApplicationComponents, func(), error) {
	otelCfg := otel.ConfigFromEnv(serviceName, version)
	otelShutdown, err := otel.InitProvider(ctx, otelCfg)
	if err != nil {
		log.Warn("failed to initialize OpenTelemetry, continuing without export", "error", err)
		otelCfg.Enabled = false
		otelShutdown = func(context.Context) error { return nil }
	}

	if otelCfg.Enabled || jsonLogs {
		log = logger.Init(logger.Options{
			Level:  cfg.LogLevel,
			Text:   !jsonLogs,
			Output: os.Stderr,
			OTel:   otelCfg.Enabled,
		})
	}

	app, err := di.NewApplicationComponents(cfg, log)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, nil, err
	}

	return app, func() {
		if err := app.Close(); err != nil {
			log.Warn("closing application", "error", err)
		}
		if err := otelShutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("shutting down telemetry", "error", err)
		}
	}, nil
}
