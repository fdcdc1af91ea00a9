package reinfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// defaultSkewWindow guards against records arriving upstream with slightly
// out-of-order timestamps near "now".
const defaultSkewWindow = 10 * time.Second

// watermarkEpoch is the watermark for a dataset the backend reports empty.
var watermarkEpoch = time.Unix(0, 0).UTC()

// DataSource is the upstream collaborator an [Integration] polls.
//
// NewerThan returns one page of records with timestamps at or after since,
// ordered ascending by timestamp. It must be deterministic for a given
// (since, pageIndex) pair so that re-fetching the same page after a failed
// sync is safe. An empty page means there is nothing left to fetch.
type DataSource[R any] interface {
	NewerThan(ctx context.Context, since time.Time, pageIndex int) ([]R, error)
}

// Converter maps a raw upstream record onto a [Comment].
//
// Every polling integration defines its own mapping; see feed.ToComment for
// a complete example. Converters should be pure functions: same record in,
// same comment out.
type Converter[R any] func(R) (Comment, error)

// SyncClient is the subset of [Client] an [Integration] depends on.
// Declared as an interface so tests can substitute a fake backend.
type SyncClient interface {
	Sync(ctx context.Context, datasetName, sourceName string, comments []Comment) error
	MostRecent(ctx context.Context, datasetName, sourceName string) (string, time.Time, error)
}

var _ SyncClient = (*Client)(nil)

// Integration is a polling integration: it owns the watermark and page
// cursor for one (dataset, source) pair and pushes new upstream records
// through a [SyncClient] on every [Integration.Poll] call.
//
// The watermark is the last record timestamp successfully synced. It is
// memory-resident only: on restart the integration re-initialises it from
// the backend's most recent comment. Within one session it never moves
// further back than the skew window allows late arrivals to reach.
//
// An Integration is not safe for concurrent use; Poll must be invoked
// sequentially by a single driving loop, typically a [Runner].
type Integration[R any] struct {
	client      SyncClient
	source      DataSource[R]
	convert     Converter[R]
	datasetName string
	sourceName  string
	skewWindow  time.Duration
	logger      *slog.Logger
	now         func() time.Time

	watermark    time.Time
	watermarkSet bool
	pageIndex    int
}

// integrationConfig holds mutable state during [Integration] construction.
type integrationConfig struct {
	skewWindow time.Duration
	logger     *slog.Logger
}

// IntegrationOption configures an [Integration] during construction.
type IntegrationOption func(*integrationConfig) error

// WithSkewWindow overrides the out-of-order arrival guard. The fetch lower
// bound is clamped to now minus this window, so records appearing upstream
// with slightly older timestamps are not skipped. Defaults to 10 seconds.
func WithSkewWindow(d time.Duration) IntegrationOption {
	return func(cfg *integrationConfig) error {
		if d < 0 {
			return errors.New("skew window cannot be negative")
		}
		cfg.skewWindow = d
		return nil
	}
}

// WithIntegrationLogger sets a custom [slog.Logger] for the integration.
// If not specified, [slog.Default] is used.
func WithIntegrationLogger(logger *slog.Logger) IntegrationOption {
	return func(cfg *integrationConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// NewIntegration creates an [Integration] polling source for new records
// and syncing them into datasetName under sourceName.
//
// The record type parameter is inferred from the converter:
//
//	integration, err := reinfer.NewIntegration(client, fakeFeed, feed.ToComment,
//	    "acme/emails", "Zendesk")
func NewIntegration[R any](client SyncClient, source DataSource[R], convert Converter[R], datasetName, sourceName string, opts ...IntegrationOption) (*Integration[R], error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	if source == nil {
		return nil, errors.New("data source cannot be nil")
	}
	if convert == nil {
		return nil, errors.New("converter cannot be nil")
	}
	if datasetName == "" {
		return nil, errors.New("dataset name cannot be empty")
	}
	if sourceName == "" {
		return nil, errors.New("source name cannot be empty")
	}

	cfg := &integrationConfig{skewWindow: defaultSkewWindow}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Integration[R]{
		client:      client,
		source:      source,
		convert:     convert,
		datasetName: datasetName,
		sourceName:  sourceName,
		skewWindow:  cfg.skewWindow,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Poll performs one tick, syncing any new records from the data source.
//
// On the first call the watermark is initialised from the backend's most
// recent comment; an empty dataset initialises it to the epoch instead of
// failing. This is the only error Poll recovers from - everything else
// propagates to the caller, which owns the continue/abort policy.
//
// A tick that fetches zero records is a no-op: no sync call, watermark and
// page cursor unchanged. Otherwise the full page is converted and synced,
// then the cursor state advances: if the page's last record carries a new
// timestamp the watermark moves there and the page index resets to zero; if
// it still equals the watermark, the page index increments so the next tick
// drains the remaining same-timestamp records. The latter handles upstream
// pagination APIs that filter only by timestamp, not by an exact cursor.
//
// Re-syncing a page after a failed tick is safe: comment IDs are idempotent
// and NewerThan is deterministic per (since, pageIndex).
func (in *Integration[R]) Poll(ctx context.Context) error {
	if !in.watermarkSet {
		_, ts, err := in.client.MostRecent(ctx, in.datasetName, in.sourceName)
		switch {
		case err == nil:
			in.watermark = ts
		case IsKind(err, KindEmptyDataset):
			in.watermark = watermarkEpoch
		default:
			return err
		}
		in.watermarkSet = true
		in.logger.Info("watermark initialised", "watermark", in.watermark)
	}

	since := in.fetchLowerBound(in.now())
	in.logger.Debug("fetching records", "since", since, "page", in.pageIndex)

	records, err := in.source.NewerThan(ctx, since, in.pageIndex)
	if err != nil {
		return fmt.Errorf("fetching page %d: %w", in.pageIndex, err)
	}
	if len(records) == 0 {
		in.logger.Debug("no records left to sync")
		return nil
	}

	comments := make([]Comment, len(records))
	for i, record := range records {
		comment, err := in.convert(record)
		if err != nil {
			return fmt.Errorf("converting record: %w", err)
		}
		comments[i] = comment
	}

	if err := in.client.Sync(ctx, in.datasetName, in.sourceName, comments); err != nil {
		return err
	}

	last := comments[len(comments)-1].Timestamp
	if !last.Equal(in.watermark) {
		in.watermark = last
		in.pageIndex = 0
	} else {
		in.pageIndex++
	}
	in.logger.Info("synced comments",
		"count", len(comments),
		"watermark", in.watermark,
		"page", in.pageIndex,
	)
	return nil
}

// Watermark returns the current watermark timestamp and whether it has been
// initialised yet.
func (in *Integration[R]) Watermark() (time.Time, bool) {
	return in.watermark, in.watermarkSet
}

// PageIndex returns the current page cursor. It is only meaningful relative
// to the current watermark.
func (in *Integration[R]) PageIndex() int {
	return in.pageIndex
}

// fetchLowerBound clamps the watermark by the skew window: when the
// watermark is close to now, new records may still appear upstream with
// out-of-order timestamps, so fetching must not start past now-skew.
func (in *Integration[R]) fetchLowerBound(now time.Time) time.Time {
	guard := now.Add(-in.skewWindow)
	if guard.Before(in.watermark) {
		return guard
	}
	return in.watermark
}
