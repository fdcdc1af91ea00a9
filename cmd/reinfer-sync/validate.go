package main

import (
	"fmt"

	"github.com/reinfer/sync-go/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the daemon.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a reinfer-sync configuration file without starting the daemon.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  reinfer-sync validate -c config.yaml
  reinfer-sync validate --config /etc/reinfer-sync/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Dataset:       %s\n", cfg.DatasetName)
	fmt.Printf("  Source:        %s\n", cfg.SourceName)
	fmt.Printf("  API URL:       %s\n", cfg.APIURL)
	fmt.Printf("  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Printf("  Max failures:  %d\n", cfg.MaxFailures)

	return nil
}
