// Package main is the entry point for the reinfer-sync CLI.
//
// The sync client can be used as a library (SDK) or through this CLI, which
// runs the sample polling daemon standalone.
//
// Usage:
//
//	reinfer-sync run --auth-token TOKEN --dataset-name acme/emails --source-name Zendesk
//	reinfer-sync run -c config.yaml       # settings from a YAML file
//	reinfer-sync validate -c config.yaml  # validate configuration
//	reinfer-sync version                  # show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "reinfer-sync",
	Short: "Sync customer feedback comments to the re:infer platform",
	Long: `reinfer-sync pushes customer feedback comments to the re:infer
platform and runs a sample polling daemon that repeatedly pulls new records
from a data source and syncs them.

Quick start:
  reinfer-sync run --auth-token $REINFER_TOKEN \
      --dataset-name acme/emails --source-name Zendesk

Or with a config file:
  reinfer-sync run -c config.yaml

Example config:
  auth_token: ${REINFER_TOKEN}
  dataset_name: acme/support-emails
  source_name: Zendesk
  poll_interval: 1s`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this reinfer-sync binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reinfer-sync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
