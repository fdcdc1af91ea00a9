package reinfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPollInterval           = time.Second
	defaultMaxConsecutiveFailures = 5
)

// Poller performs one poll tick. [Integration.Poll] satisfies it.
type Poller interface {
	Poll(ctx context.Context) error
}

// Runner drives a [Poller] at a fixed interval until the context is
// cancelled or too many consecutive ticks fail.
//
// The runner sleeps a fixed interval between ticks; it deliberately does
// not couple its pacing to the client's own HTTP retry backoff. A failing
// tick is logged and counted; the counter resets on any successful tick
// and ends the run with an error once the consecutive-failure cap is hit,
// rather than looping forever on a persistent fault.
type Runner struct {
	poller      Poller
	interval    time.Duration
	maxFailures int
	logger      *slog.Logger
}

// runnerConfig holds mutable state during [Runner] construction.
type runnerConfig struct {
	interval    time.Duration
	maxFailures int
	logger      *slog.Logger
}

// RunnerOption configures a [Runner] during construction.
type RunnerOption func(*runnerConfig) error

// WithPollInterval sets the fixed sleep between ticks. Defaults to 1 second.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(cfg *runnerConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithMaxConsecutiveFailures sets how many ticks may fail in a row before
// [Runner.Run] gives up. Defaults to 5.
func WithMaxConsecutiveFailures(n int) RunnerOption {
	return func(cfg *runnerConfig) error {
		if n <= 0 {
			return errors.New("max consecutive failures must be positive")
		}
		cfg.maxFailures = n
		return nil
	}
}

// WithRunnerLogger sets a custom [slog.Logger] for the runner.
// If not specified, [slog.Default] is used.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(cfg *runnerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// NewRunner creates a [Runner] driving the given poller.
func NewRunner(poller Poller, opts ...RunnerOption) (*Runner, error) {
	if poller == nil {
		return nil, errors.New("poller cannot be nil")
	}

	cfg := &runnerConfig{
		interval:    defaultPollInterval,
		maxFailures: defaultMaxConsecutiveFailures,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		poller:      poller,
		interval:    cfg.interval,
		maxFailures: cfg.maxFailures,
		logger:      logger,
	}, nil
}

// Run polls until ctx is cancelled or the consecutive-failure cap is hit.
//
// The first tick happens immediately. Cancellation takes effect between
// ticks only: an in-flight tick always runs to completion, so interrupting
// the process never abandons a request mid-flight.
//
// Returns nil on cancellation and an error after maxFailures consecutive
// failing ticks.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	consecutiveFailures := 0
	for {
		if err := r.tick(ctx); err != nil {
			consecutiveFailures++
			r.logger.Error("poll failed",
				"error", err,
				"consecutive_failures", consecutiveFailures,
			)
			if consecutiveFailures >= r.maxFailures {
				return fmt.Errorf("%d consecutive poll failures, giving up: %w",
					consecutiveFailures, err)
			}
		} else {
			consecutiveFailures = 0
		}

		select {
		case <-ctx.Done():
			r.logger.Info("runner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// tick runs one poll with panic recovery. Converters are user code; a panic
// there is logged with a correlation ID and counted as a failed tick rather
// than crashing the daemon.
func (r *Runner) tick(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			correlationID := uuid.NewString()
			r.logger.Error("panic during poll",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("poll panic (correlation_id: %s)", correlationID)
		}
	}()
	// in-flight ticks are never cancelled; Run stops between ticks
	return r.poller.Poll(context.WithoutCancel(ctx))
}
