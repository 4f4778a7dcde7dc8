package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/server"
	"mercator-hq/callisto/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	upstreamURL   string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Callisto proxy server",
	Long: `Start the Callisto proxy server with the specified configuration.

The server listens on the configured address, accepts Ollama API requests,
and forwards them to the configured OpenAI-compatible upstream.

Examples:
  # Start with default config
  callisto run

  # Start with custom config
  callisto run --config /etc/callisto/config.yaml

  # Override listen address
  callisto run --listen 0.0.0.0:11434

  # Validate config without starting the server
  callisto run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.upstreamURL, "upstream", "", "override upstream base URL")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides.
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.upstreamURL != "" {
		cfg.Upstream.BaseURL = runFlags.upstreamURL
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	srv, err := server.New(cfg, logger, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	return srv.Start(context.Background())
}
