// Package reinfer provides a client for synchronising customer feedback
// comments to the re:infer platform, plus a polling integration for pushing
// new records from an upstream data source as they appear.
//
// The package is SDK-first: everything is configured programmatically via
// the functional options pattern, with a small cobra CLI (cmd/reinfer-sync)
// layered on top for running the sample polling daemon standalone.
//
// # Quick Start
//
// Create a client with an authentication token and sync a batch of comments:
//
//	client, err := reinfer.NewClient(token)
//	if err != nil {
//	    slog.Error("failed to create client", "error", err)
//	    os.Exit(1)
//	}
//
//	comment := reinfer.Comment{
//	    ID:        "0123456789abcdef",
//	    Timestamp: time.Now().UTC(),
//	    Verbatim:  "I love your company!",
//	    UserProperties: []reinfer.Property{
//	        reinfer.NumberProperty{Name: "NPS", Value: 4},
//	        reinfer.StringProperty{Name: "Platform", Value: "iPhone"},
//	    },
//	}
//
//	err = client.Sync(ctx, "acme/emails", "Zendesk", []reinfer.Comment{comment})
//
// Syncing is idempotent on the comment ID: re-syncing a comment with an ID
// that was used before overwrites the previous version.
//
// # Polling Integrations
//
// An [Integration] repeatedly pulls new records from a [DataSource], converts
// them with a source-specific [Converter], and syncs them through the client,
// tracking a watermark timestamp so only new records are fetched:
//
//	integration, err := reinfer.NewIntegration(client, source, feed.ToComment,
//	    "acme/emails", "Zendesk")
//
//	runner, err := reinfer.NewRunner(integration)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	runner.Run(ctx) // blocks until cancelled or too many consecutive failures
//
// The feed package provides a complete sample data source and conversion
// mapping; real integrations supply their own.
//
// # Errors
//
// Every failure surfaces as an [*Error] carrying a [Kind]. Callers branch on
// the kind, not the type:
//
//	if reinfer.IsKind(err, reinfer.KindRateLimited) {
//	    // back off and try again later
//	}
//
// Transient HTTP failures (429, 5xx, 408) are retried automatically with
// exponential backoff before any error is surfaced; see [RetryPolicy].
//
// # Architecture
//
//   - internal/rest: HTTP plumbing with pooled connections and status-code retry
//   - config: YAML configuration for the standalone daemon
//   - cmd/reinfer-sync: cobra CLI (run, validate, version)
//   - feed: sample in-memory data source
//   - example: runnable demo against a local mock backend
//
// The internal packages are not part of the public API and may change
// without notice.
package reinfer
