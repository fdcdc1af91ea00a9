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
	"github.com/reinfer/sync-go/feed"
)

func main() {
	// start the mock backend (see mock_backend.go); one sync request in
	// ten fails with 503 so the retry policy shows up in the logs
	go StartMockBackend(":9998", 0.1)
	time.Sleep(100 * time.Millisecond)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	client, err := reinfer.NewClient("demo-token",
		reinfer.WithBaseURL("http://localhost:9998/api/voc"),
		reinfer.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	// a fake upstream feed: 200 verbatims, served 40 per page
	source := feed.NewFake(feed.Generate(200, time.Now().UTC()), 40)

	integration, err := reinfer.NewIntegration(client, source, feed.ToComment,
		"acme/demo-feedback", "DemoFeed",
		reinfer.WithIntegrationLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create integration", "error", err)
		os.Exit(1)
	}

	runner, err := reinfer.NewRunner(integration,
		reinfer.WithPollInterval(time.Second),
		reinfer.WithRunnerLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create runner", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   reinfer-sync Demo                                   ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Syncing 200 fake verbatims to a mock backend        ║")
	fmt.Println("  ║   on :9998 (10% of sync calls fail with 503 to        ║")
	fmt.Println("  ║   demonstrate the retry policy)                       ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Run(ctx); err != nil {
		slog.Error("runner error", "error", err)
		os.Exit(1)
	}
}
