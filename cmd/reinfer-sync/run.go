package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	reinfer "github.com/reinfer/sync-go"
	"github.com/reinfer/sync-go/config"
	"github.com/reinfer/sync-go/feed"
	"github.com/spf13/cobra"
)

// newLogger creates a JSON logger for CLI use.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// runFlags holds the values of the run command's flags.
type runFlags struct {
	configFile  string
	authToken   string
	datasetName string
	sourceName  string
	apiURL      string
}

// runCmd starts the sample polling daemon.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sample polling daemon",
	Long: `Run the sample polling daemon.

The daemon will:
  - Initialise its watermark from the dataset's most recent comment
  - Poll the sample data source for new records every tick
  - Sync new records into the dataset

Settings come from flags, a config file (-c), or both; flags take
precedence. The daemon runs until interrupted (Ctrl+C) or until 5
consecutive poll failures, exiting with status 1 in the latter case.
Interrupts stop the daemon between ticks, never mid-request.

Example:
  reinfer-sync run --auth-token $REINFER_TOKEN \
      --dataset-name acme/emails --source-name Zendesk
  reinfer-sync run -c config.yaml`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to config file")
	runCmd.Flags().String("auth-token", "", "authentication token used to upload the comments")
	runCmd.Flags().String("dataset-name", "", "dataset to store the comments under, prefixed with the owner, e.g. acme/chats")
	runCmd.Flags().String("source-name", "", "source name to store the comments under, e.g. Zendesk")
	runCmd.Flags().String("api-url", "", "backend base URL (defaults to the hosted platform)")
}

func runRun(cmd *cobra.Command, args []string) error {
	flags := runFlags{}
	flags.configFile, _ = cmd.Flags().GetString("config")
	flags.authToken, _ = cmd.Flags().GetString("auth-token")
	flags.datasetName, _ = cmd.Flags().GetString("dataset-name")
	flags.sourceName, _ = cmd.Flags().GetString("source-name")
	flags.apiURL, _ = cmd.Flags().GetString("api-url")

	cfg, err := resolveConfig(flags)
	if err != nil {
		return err
	}

	logger := newLogger()
	logger.Info("starting daemon",
		"dataset", cfg.DatasetName,
		"source", cfg.SourceName,
		"poll_interval", cfg.PollInterval.Duration().String(),
	)

	client, err := reinfer.NewClient(cfg.AuthToken,
		reinfer.WithBaseURL(cfg.APIURL),
		reinfer.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	// the sample daemon polls the in-memory fake feed; a real deployment
	// substitutes its own DataSource and Converter here
	source := feed.NewFake(feed.Generate(200, time.Now().UTC()), 40)

	integration, err := reinfer.NewIntegration(client, source, feed.ToComment,
		cfg.DatasetName, cfg.SourceName,
		reinfer.WithIntegrationLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create integration: %w", err)
	}

	runner, err := reinfer.NewRunner(integration,
		reinfer.WithPollInterval(cfg.PollInterval.Duration()),
		reinfer.WithMaxConsecutiveFailures(cfg.MaxFailures),
		reinfer.WithRunnerLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	// cancel on SIGINT/SIGTERM; the runner stops between ticks
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("daemon failed: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// resolveConfig builds the effective configuration from the config file (if
// given) overlaid with any flags that were set. Flags win.
func resolveConfig(flags runFlags) (*config.Config, error) {
	var cfg *config.Config
	if flags.configFile != "" {
		loaded, err := config.Load(flags.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = &config.Config{
			PollInterval: config.Duration(time.Second),
			MaxFailures:  5,
		}
	}

	if flags.authToken != "" {
		cfg.AuthToken = flags.authToken
	}
	if flags.datasetName != "" {
		cfg.DatasetName = flags.datasetName
	}
	if flags.sourceName != "" {
		cfg.SourceName = flags.sourceName
	}
	if flags.apiURL != "" {
		cfg.APIURL = flags.apiURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://reinfer.io/api/voc"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
