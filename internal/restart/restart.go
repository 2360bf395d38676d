// Package restart reruns a session with exponential backoff.
package restart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config contains configuration for exponential backoff restarts
type Config struct {
	MaxRetries    int           // Restarts allowed after the first attempt (0 = never restart)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 30 seconds)
}

// DefaultConfig returns the default restart configuration: no restarts,
// backoff parameters ready for when MaxRetries is raised.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    0,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// State tracks restart attempts across a run
type State struct {
	CurrentRetries int
	Restarts       int // Total restarts performed
}

// AttemptFunc runs one session. A nil error ends the loop.
type AttemptFunc func(ctx context.Context) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Run returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Run executes attemptFn, retrying with exponential backoff on error.
//
// Backoff schedule with the defaults:
//   - Restart 1: 1 second
//   - Restart 2: 2 seconds
//   - Restart 3: 4 seconds
//   - ... capped at MaxRetryDelay
//
// Returns the last attempt's error once retries are exhausted, the inner
// error of a Permanent failure immediately, or ctx.Err() when cancelled
// during backoff.
func Run(ctx context.Context, attemptFn AttemptFunc, cfg Config, state *State) error {
	for {
		err := attemptFn(ctx)
		if err == nil {
			state.CurrentRetries = 0
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if ctx.Err() != nil {
			return err
		}

		state.CurrentRetries++
		if state.CurrentRetries > cfg.MaxRetries {
			if cfg.MaxRetries > 0 {
				slog.Error("restart: giving up", "attempts", state.CurrentRetries, "error", err)
			}
			return err
		}

		delay := calculateBackoff(state.CurrentRetries, cfg)

		slog.Warn("restart: restarting session",
			"attempt", state.CurrentRetries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
			state.Restarts++
		case <-ctx.Done():
			slog.Info("restart: context cancelled during backoff")
			return fmt.Errorf("restart: %w", ctx.Err())
		}
	}
}

// calculateBackoff returns retryDelay * 2^(attempt-1), capped at MaxRetryDelay
func calculateBackoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return cfg.MaxRetryDelay
	}

	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if cfg.MaxRetryDelay > 0 && delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
