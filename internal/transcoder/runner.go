package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"media-ingest/internal/logging"
	"media-ingest/internal/mediaerr"
	"media-ingest/internal/metrics"
)

// Runner runs one ffmpeg invocation to completion. op names the step for
// errors and logs.
type Runner interface {
	Run(ctx context.Context, op string, args ...string) error
}

// ExecRunner runs ffmpeg as a child process and tracks running processes so
// they can be killed at shutdown.
type ExecRunner struct {
	path      string
	processes map[*exec.Cmd]string
	processMu sync.Mutex
}

// NewExecRunner returns a runner for the ffmpeg binary at path ("ffmpeg"
// resolves through PATH).
func NewExecRunner(path string) *ExecRunner {
	if path == "" {
		path = "ffmpeg"
	}
	return &ExecRunner{
		path:      path,
		processes: make(map[*exec.Cmd]string),
	}
}

// Run implements Runner. A failed run returns a *mediaerr.TranscodeIOError
// carrying ffmpeg's stderr.
func (r *ExecRunner) Run(ctx context.Context, op string, args ...string) error {
	cmd := exec.CommandContext(ctx, r.path, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &mediaerr.TranscodeIOError{Op: op, Tool: "ffmpeg", Err: fmt.Errorf("failed to start ffmpeg: %w", err)}
	}

	// Track the process
	r.processMu.Lock()
	r.processes[cmd] = op
	r.processMu.Unlock()

	err := cmd.Wait()

	r.processMu.Lock()
	delete(r.processes, cmd)
	r.processMu.Unlock()

	metrics.ExternalProcessDuration.WithLabelValues("ffmpeg").Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		logging.Error("ffmpeg %s failed: %v\n%s", op, err, strings.TrimSpace(stderr.String()))
		return &mediaerr.TranscodeIOError{Op: op, Tool: "ffmpeg", Output: stderr.String(), Err: err}
	}
	return nil
}

// Cleanup stops all active ffmpeg processes.
func (r *ExecRunner) Cleanup() {
	r.processMu.Lock()
	defer r.processMu.Unlock()

	for cmd, op := range r.processes {
		if cmd.Process != nil {
			logging.Info("Killing ffmpeg process for step: %s", op)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill ffmpeg process for %s: %v", op, err)
			}
		}
	}
}

// Active returns the number of running ffmpeg processes.
func (r *ExecRunner) Active() int {
	r.processMu.Lock()
	defer r.processMu.Unlock()
	return len(r.processes)
}
