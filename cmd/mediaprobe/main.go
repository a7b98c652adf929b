package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"media-ingest/internal/limits"
	"media-ingest/internal/mediaerr"
	"media-ingest/internal/metadata"
	"media-ingest/internal/planner"
	"media-ingest/internal/validation"
)

const (
	exitOK       = 0
	exitError    = 1
	exitRejected = 2
)

type env struct {
	policy    *limits.Policy
	extractor *metadata.Extractor
	stdout    io.Writer
	stderr    io.Writer
}

func main() {
	// Best effort; the environment may be configured directly.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	policy, err := loadPolicy(os.Getenv("POLICY_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}

	e := &env{
		policy:    policy,
		extractor: metadata.NewExtractor(&metadata.FFProbe{Path: os.Getenv("FFPROBE_PATH")}),
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
	code := e.run(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

func loadPolicy(path string) (*limits.Policy, error) {
	if path == "" {
		return limits.DefaultPolicy(), nil
	}
	return limits.LoadPolicy(path)
}

func (e *env) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		e.printUsage()
		return exitError
	}

	switch cmd, rest := args[0], args[1:]; {
	case cmd == "fields" && len(rest) == 0:
		for _, name := range e.policy.FieldNames() {
			f, _ := e.policy.Field(name)
			fmt.Fprintf(e.stdout, "%-20s %-20s %s\n", name, f.Collection, validation.AcceptValue(f.Validation.FileType))
		}
		return exitOK
	case cmd == "policy" && len(rest) == 0:
		data, err := e.policy.Marshal()
		if err != nil {
			return e.fail(err)
		}
		_, _ = e.stdout.Write(data)
		return exitOK
	case cmd == "probe" && len(rest) == 1:
		meta, err := e.extractor.ExtractFile(ctx, rest[0])
		if err != nil {
			return e.fail(err)
		}
		return e.printJSON(probeOutput{MediaMetadata: meta, EXIF: meta.EXIF})
	case cmd == "check" && len(rest) == 2:
		return e.check(ctx, rest[0], rest[1])
	default:
		e.printUsage()
		return exitError
	}
}

// probeOutput adds the decoded EXIF tags, which the HTTP API never returns.
type probeOutput struct {
	*metadata.MediaMetadata
	EXIF map[string]any `json:"exif,omitempty"`
}

// checkResult is printed by the check command.
type checkResult struct {
	Field    string                  `json:"field"`
	Accepted bool                    `json:"accepted"`
	Reason   string                  `json:"reason,omitempty"`
	Message  string                  `json:"message,omitempty"`
	Metadata *metadata.MediaMetadata `json:"metadata,omitempty"`
	Plan     *planner.Plan           `json:"plan,omitempty"`
}

func (e *env) check(ctx context.Context, fieldName, path string) int {
	field, ok := e.policy.Field(fieldName)
	if !ok {
		return e.fail(fmt.Errorf("unknown upload field %q", fieldName))
	}

	scratch, err := os.MkdirTemp("", "mediaprobe-")
	if err != nil {
		return e.fail(err)
	}
	defer os.RemoveAll(scratch)

	tempPath := filepath.Join(scratch, "upload"+filepath.Ext(path))
	if err := copyFile(path, tempPath); err != nil {
		return e.fail(err)
	}

	result := checkResult{Field: fieldName}
	meta, err := e.extractor.Extract(ctx, tempPath, filepath.Base(path))
	if err == nil {
		result.Metadata = meta
		_, err = validation.NewEvaluator().Validate(meta, field.Validation, tempPath)
	}
	switch {
	case err == nil:
		plan := planner.Make(meta, field.HostingLimits)
		result.Accepted = true
		result.Plan = &plan
	case mediaerr.IsRejection(err):
		result.Reason = mediaerr.Reason(err)
		result.Message = mediaerr.UserMessage(err)
	default:
		return e.fail(err)
	}

	if code := e.printJSON(result); code != exitOK {
		return code
	}
	if !result.Accepted {
		return exitRejected
	}
	return exitOK
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (e *env) printJSON(v any) int {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return e.fail(err)
	}
	return exitOK
}

func (e *env) fail(err error) int {
	fmt.Fprintf(e.stderr, "Error: %v\n", err)
	return exitError
}

func (e *env) printUsage() {
	fmt.Fprintln(e.stderr, "Usage: mediaprobe <command> [arguments]")
	fmt.Fprintln(e.stderr, "")
	fmt.Fprintln(e.stderr, "Commands:")
	fmt.Fprintln(e.stderr, "  fields                List the configured upload fields")
	fmt.Fprintln(e.stderr, "  policy                Print the effective policy as YAML")
	fmt.Fprintln(e.stderr, "  probe <file>          Print the metadata extracted from a file")
	fmt.Fprintln(e.stderr, "  check <field> <file>  Validate a file and print its transcode plan")
}
