package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/modelmap"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file without starting the server.

The model map file is also loaded and checked when one is configured.

Examples:
  # Validate the default config
  callisto validate

  # Validate a specific config file
  callisto validate --config /etc/callisto/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)

	if cfg.ModelMap.Path != "" {
		table, err := modelmap.Load(cfg.ModelMap.Path)
		if err != nil {
			return fmt.Errorf("model map invalid: %w", err)
		}
		fmt.Printf("✓ Model map valid: %s (%d models)\n", cfg.ModelMap.Path, table.Len())
	}

	fmt.Printf("  listen:   %s\n", cfg.Server.ListenAddress)
	fmt.Printf("  upstream: %s\n", cfg.Upstream.BaseURL)
	return nil
}
