package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 20 {
		t.Errorf("MaxRetries = %d, want 20", config.MaxRetries)
	}
	if config.InitialBackoff != 10*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 10ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
	if config.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", config.Timeout)
	}
}

func TestIsHeldError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "EBUSY", err: syscall.EBUSY, want: true},
		{name: "EACCES", err: syscall.EACCES, want: true},
		{name: "permission", err: os.ErrPermission, want: true},
		{name: "wrapped EBUSY", err: &os.LinkError{Op: "rename", Err: syscall.EBUSY}, want: true},
		{name: "ENOENT", err: syscall.ENOENT, want: false},
		{name: "generic error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isHeldError(tt.err); got != tt.want {
				t.Errorf("isHeldError() = %v, want %v", got, tt.want)
			}
		})
	}
}

type countingObserver struct {
	retries int
	results []error
}

func (c *countingObserver) ObserveReleaseRetry() { c.retries++ }

func (c *countingObserver) ObserveReleaseResult(_ float64, err error) {
	c.results = append(c.results, err)
}

func withRename(t *testing.T, fn func(oldpath, newpath string) error) {
	t.Helper()
	prev := rename
	rename = fn
	t.Cleanup(func() { rename = prev })
}

func withObserver(t *testing.T, o Observer) {
	t.Helper()
	prev := observer()
	SetObserver(o)
	t.Cleanup(func() { SetObserver(prev) })
}

func fastConfig(retries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestWaitForReleaseFreeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := WaitForRelease(context.Background(), path, fastConfig(3)); err != nil {
		t.Fatalf("WaitForRelease() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "data" {
		t.Errorf("file not restored after probe: %q, %v", data, err)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries after the release check, want 1", len(entries))
	}
}

func TestWaitForReleaseKeepsSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	sibling := path + "_"
	for p, data := range map[string]string{path: "data", sibling: "keep"} {
		if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var asides []string
	withRename(t, func(oldpath, newpath string) error {
		if oldpath == path {
			asides = append(asides, newpath)
		}
		return os.Rename(oldpath, newpath)
	})

	if err := WaitForRelease(context.Background(), path, fastConfig(3)); err != nil {
		t.Fatalf("WaitForRelease() error = %v", err)
	}

	for p, want := range map[string]string{path: "data", sibling: "keep"} {
		if data, err := os.ReadFile(p); err != nil || string(data) != want {
			t.Errorf("%s = %q, %v; want %q", filepath.Base(p), data, err, want)
		}
	}
	if len(asides) != 1 || filepath.Dir(asides[0]) != dir || asides[0] == sibling {
		t.Errorf("file was moved aside to %v, want one fresh name in %s", asides, dir)
	}
}

func TestWaitForReleaseMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.mp4")

	err := WaitForRelease(context.Background(), path, fastConfig(3))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, ErrReleaseTimeout) {
		t.Error("missing file should fail immediately, not time out")
	}
}

func TestWaitForReleaseEventuallyFree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	held := 2
	withRename(t, func(oldpath, newpath string) error {
		if held > 0 {
			held--
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EBUSY}
		}
		return os.Rename(oldpath, newpath)
	})
	obs := &countingObserver{}
	withObserver(t, obs)

	if err := WaitForRelease(context.Background(), path, fastConfig(5)); err != nil {
		t.Fatalf("WaitForRelease() error = %v", err)
	}
	if obs.retries != 2 {
		t.Errorf("retries = %d, want 2", obs.retries)
	}
	if len(obs.results) != 1 || obs.results[0] != nil {
		t.Errorf("results = %v, want one nil result", obs.results)
	}
}

func TestWaitForReleaseBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	calls := 0
	withRename(t, func(oldpath, newpath string) error {
		calls++
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EBUSY}
	})

	err := WaitForRelease(context.Background(), path, fastConfig(4))
	if !errors.Is(err, ErrReleaseTimeout) {
		t.Fatalf("error = %v, want ErrReleaseTimeout", err)
	}
	if calls != 5 {
		t.Errorf("probe attempts = %d, want 5 (initial + 4 retries)", calls)
	}
}

func TestWaitForReleaseContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	withRename(t, func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EBUSY}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	config := RetryConfig{MaxRetries: 1000, InitialBackoff: time.Second, MaxBackoff: time.Second}
	start := time.Now()
	err := WaitForRelease(ctx, path, config)
	if !errors.Is(err, ErrReleaseTimeout) {
		t.Fatalf("error = %v, want ErrReleaseTimeout", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("cancelled context should stop the probe promptly")
	}
}
