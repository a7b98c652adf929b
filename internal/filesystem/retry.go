package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"media-ingest/internal/logging"
)

// ErrReleaseTimeout is returned when a file is still held by another process
// after the probe ran out of attempts or time.
var ErrReleaseTimeout = errors.New("file handle was not released in time")

// RetryConfig configures the release probe.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Timeout bounds the whole probe. Zero means MaxRetries alone bounds it.
	Timeout time.Duration
}

// DefaultRetryConfig returns the bounds used after encoder invocations.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     20,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		Timeout:        10 * time.Second,
	}
}

// rename is swapped out in tests to simulate a handle that is still held.
var rename = os.Rename

// isHeldError reports whether err looks like another process still holding the file.
func isHeldError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EBUSY || errno == syscall.ETXTBSY || errno == syscall.EACCES
	}
	return false
}

// probe renames path to a fresh hidden name in the same directory and back.
// Success means nothing holds the file.
func probe(path string) error {
	aside := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString())
	if err := rename(path, aside); err != nil {
		return err
	}
	if err := rename(aside, path); err != nil {
		return fmt.Errorf("restore after probe: %w", err)
	}
	return nil
}

// WaitForRelease blocks until the file at path can be renamed, which is the
// signal that helper processes spawned by an encoder have let go of it.
// Missing files and unexpected errors fail immediately; a held file is
// retried with exponential backoff until the retry or time budget is spent,
// at which point an error wrapping ErrReleaseTimeout is returned.
func WaitForRelease(ctx context.Context, path string, config RetryConfig) error {
	start := time.Now()
	err := waitForRelease(ctx, path, config)
	if obs := observer(); obs != nil {
		obs.ObserveReleaseResult(time.Since(start).Seconds(), err)
	}
	return err
}

func waitForRelease(ctx context.Context, path string, config RetryConfig) error {
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	backoff := config.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := probe(path)
		if err == nil {
			if attempt > 0 {
				logging.Debug("Release probe succeeded on retry %d for %s", attempt, path)
			}
			return nil
		}

		lastErr = err
		if !isHeldError(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == config.MaxRetries {
			break
		}

		if obs := observer(); obs != nil {
			obs.ObserveReleaseRetry()
		}
		logging.Debug("File %s still held, retrying in %v (attempt %d/%d)",
			path, backoff, attempt+1, config.MaxRetries)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			logging.Warn("Release probe for %s abandoned: %v", path, ctx.Err())
			return fmt.Errorf("%w: %s: %v", ErrReleaseTimeout, path, lastErr)
		case <-timer.C:
		}

		// Exponential backoff with cap
		backoff *= 2
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	logging.Warn("Release probe failed after %d retries for %s: %v", config.MaxRetries, path, lastErr)
	return fmt.Errorf("%w: %s: %v", ErrReleaseTimeout, path, lastErr)
}
