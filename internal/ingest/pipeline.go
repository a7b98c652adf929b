package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"media-ingest/internal/database"
	"media-ingest/internal/filesystem"
	"media-ingest/internal/limits"
	"media-ingest/internal/logging"
	"media-ingest/internal/mediaerr"
	"media-ingest/internal/memory"
	"media-ingest/internal/metadata"
	"media-ingest/internal/metrics"
	"media-ingest/internal/naming"
	"media-ingest/internal/planner"
	"media-ingest/internal/storage"
	"media-ingest/internal/transcoder"
	"media-ingest/internal/validation"
	"media-ingest/internal/workers"
)

// ErrUnknownField is returned for an upload to a field the policy does not
// define.
var ErrUnknownField = errors.New("unknown upload field")

const (
	// maxInsertAttempts bounds renames after losing a name race at insert.
	maxInsertAttempts = 3

	// fallbackName is used when neither the title nor the file name leave
	// anything usable after sanitising.
	fallbackName = "upload"

	cleanupTimeout = 30 * time.Second
)

// Registry records uploads and answers name uniqueness.
type Registry interface {
	naming.Predicate
	InsertUpload(ctx context.Context, u *database.Upload) error
	DeleteUpload(ctx context.Context, id string) error
}

var _ Registry = (*database.Database)(nil)

// Config holds the pipeline's filesystem settings.
type Config struct {
	MediaDir string
	TempDir  string
	// MaxUploadBytes caps the received body. Zero means no cap.
	MaxUploadBytes int64
}

// Deps are the collaborators of a Pipeline. Publisher, Slots and Memory are
// optional.
type Deps struct {
	Policy     *limits.Policy
	Extractor  *metadata.Extractor
	Transcoder *transcoder.Transcoder
	Registry   Registry
	Publisher  *storage.Publisher
	Slots      *workers.Slots
	Memory     *memory.Monitor
}

// Pipeline ingests uploads.
type Pipeline struct {
	cfg       Config
	deps      Deps
	evaluator *validation.Evaluator
}

// New returns a Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	return &Pipeline{cfg: cfg, deps: deps, evaluator: validation.NewEvaluator()}
}

// Policy returns the policy uploads are checked against.
func (p *Pipeline) Policy() *limits.Policy {
	return p.deps.Policy
}

// Upload is one file submitted to a field.
type Upload struct {
	Field string
	// Title names the stored file. The declared file name is used when it
	// is empty.
	Title    string
	FileName string
	Body     io.Reader
}

// Outcome describes a stored upload.
type Outcome struct {
	Record   *database.Upload        `json:"upload"`
	Metadata *metadata.MediaMetadata `json:"metadata"`
	Plan     planner.Plan            `json:"plan"`
	// Keys are the storage keys of the published artifacts.
	Keys []string `json:"keys,omitempty"`
}

// Ingest runs up through the pipeline. Rejections satisfy
// mediaerr.IsRejection; ErrUnknownField is returned before anything is read.
func (p *Pipeline) Ingest(ctx context.Context, up Upload) (out *Outcome, err error) {
	field, ok := p.deps.Policy.Field(up.Field)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, up.Field)
	}

	r := &run{p: p, ctx: ctx, up: up, field: field, id: uuid.NewString()}
	defer func() {
		if err != nil {
			r.cleanup()
		}
		recordOutcome(err)
	}()

	steps := []struct {
		stage string
		fn    func() error
	}{
		{"receive", r.receive},
		{"extract", r.extract},
		{"validate", r.validate},
		{"plan", r.plan},
		{"transcode", r.transcode},
		{"name", r.name},
		{"persist", r.persist},
		{"publish", r.publish},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := timed(s.stage, s.fn); err != nil {
			if !mediaerr.IsRejection(err) {
				logging.Error("%s: %s failed: %v", up.FileName, s.stage, err)
			}
			return nil, err
		}
	}

	logging.Info("stored %s in %s as %s (%s, %d bytes)",
		up.FileName, field.Collection, filepath.Base(r.path), r.meta.MimeType, r.meta.FileSize)
	return &Outcome{Record: r.record, Metadata: r.meta, Plan: r.planned, Keys: r.keys}, nil
}

// run holds the state of one Ingest call.
type run struct {
	p     *Pipeline
	ctx   context.Context
	up    Upload
	field limits.FieldPolicy
	id    string

	temp      string
	checksum  string
	meta      *metadata.MediaMetadata
	planned   planner.Plan
	path      string
	candidate string
	artifacts []string
	record    *database.Upload
	keys      []string
	inserted  bool
}

func (r *run) receive() error {
	if err := filesystem.EnsureDir(r.p.cfg.TempDir); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	r.temp = filepath.Join(r.p.cfg.TempDir, r.id+tempExtension(r.up.FileName))

	f, err := os.OpenFile(r.temp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	body := r.up.Body
	limit := r.p.cfg.MaxUploadBytes
	if limit > 0 {
		body = io.LimitReader(body, limit+1)
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		f.Close()
		return err
	}
	n, err := io.Copy(io.MultiWriter(f, h), body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("receive upload: %w", err)
	}
	if limit > 0 && n > limit {
		return mediaerr.NewValidationError("size", "Error: The file is larger than our upload limit of %s.",
			validation.FileSizeFormat(limit))
	}
	r.checksum = hex.EncodeToString(h.Sum(nil))
	logging.Debug("received %s (%d bytes, blake2b %s) into %s", r.up.FileName, n, r.checksum, r.temp)
	return nil
}

// tempExtension returns the lowercased extension of the declared name, or
// "" when it holds anything but letters and digits.
func tempExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

func (r *run) extract() error {
	meta, err := r.p.deps.Extractor.Extract(r.ctx, r.temp, r.up.FileName)
	if err != nil {
		return err
	}
	r.meta = meta
	return nil
}

func (r *run) validate() error {
	path, err := r.p.evaluator.Validate(r.meta, r.field.Validation, r.temp)
	r.temp = path
	return err
}

func (r *run) plan() error {
	r.planned = planner.Make(r.meta, r.field.HostingLimits)
	logging.Debug("%s: plan %+v", r.up.FileName, r.planned)
	return nil
}

func (r *run) transcode() error {
	if err := r.p.deps.Memory.Wait(r.ctx); err != nil {
		return err
	}
	if slots := r.p.deps.Slots; slots != nil {
		if err := slots.Acquire(r.ctx); err != nil {
			return err
		}
		metrics.TranscodesInFlight.Inc()
		defer func() {
			metrics.TranscodesInFlight.Dec()
			slots.Release()
		}()
	}

	stored := filepath.Join(r.p.cfg.MediaDir, r.field.Collection, r.id+r.meta.Extension)
	if err := filesystem.MoveFile(r.temp, stored); err != nil {
		return fmt.Errorf("move into collection: %w", err)
	}
	r.temp = ""
	r.artifacts = []string{stored}

	res, err := r.p.deps.Transcoder.Execute(r.ctx, stored, r.meta, r.planned, r.field.HostingLimits)
	if err != nil {
		if res != nil {
			r.artifacts = appendMissing(r.artifacts, res.Artifacts...)
		}
		return err
	}
	r.meta = res.Meta
	r.path = res.Path
	r.artifacts = res.Artifacts
	return nil
}

func (r *run) name() error {
	r.candidate = naming.SanitizeTitle(r.up.Title)
	if r.candidate == "" {
		r.candidate = naming.SanitizeTitle(r.meta.OriginalFileName)
	}
	if r.candidate == "" {
		r.candidate = fallbackName
	}
	return r.rename()
}

// rename picks a unique name for the candidate and moves the artifacts to it.
func (r *run) rename() error {
	name, err := naming.MakeUnique(r.ctx, r.candidate, r.field.MaxNameLength(), r.p.deps.Registry, "")
	if err != nil {
		return err
	}

	hl := r.field.HostingLimits
	path, err := transcoder.Rename(r.path, name, r.meta, hl)
	if err != nil {
		return err
	}
	r.path = path
	r.meta.FileName = name

	r.artifacts = r.artifacts[:0]
	for _, p := range transcoder.LayoutFor(path, hl).Paths(transcoder.Extensions(r.meta)) {
		if filesystem.Exists(p) {
			r.artifacts = append(r.artifacts, p)
		}
	}
	return nil
}

func (r *run) persist() error {
	for attempt := 1; ; attempt++ {
		rec := newRecord(r.id, r.up, r.path, r.meta, r.artifacts)
		rec.Checksum = r.checksum
		err := r.p.deps.Registry.InsertUpload(r.ctx, rec)
		if err == nil {
			r.record = rec
			r.inserted = true
			return nil
		}
		if !errors.Is(err, database.ErrNameTaken) || attempt >= maxInsertAttempts {
			return err
		}

		logging.Info("name %q was taken concurrently, renaming (attempt %d)", rec.FileName, attempt)
		if err := timed("name", r.rename); err != nil {
			return err
		}
	}
}

func (r *run) publish() error {
	if r.p.deps.Publisher == nil {
		return nil
	}
	keys, err := r.p.deps.Publisher.Publish(r.ctx, r.artifacts)
	r.keys = keys
	return err
}

// cleanup removes everything produced for a failed upload. It runs on a
// fresh context so a cancelled request still cleans up.
func (r *run) cleanup() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), cleanupTimeout)
	defer cancel()

	if r.temp != "" {
		if err := filesystem.RemoveIfExists(r.temp); err != nil {
			logging.Warn("failed to remove temp file %s: %v", r.temp, err)
		}
	}
	for _, p := range r.artifacts {
		if err := filesystem.RemoveIfExists(p); err != nil {
			logging.Warn("failed to remove artifact %s: %v", p, err)
		}
	}
	if r.inserted {
		if err := r.p.deps.Registry.DeleteUpload(ctx, r.id); err != nil {
			logging.Warn("failed to delete record %s: %v", r.id, err)
		}
	}
	if len(r.keys) > 0 {
		if err := r.p.deps.Publisher.Unpublish(ctx, r.keys); err != nil {
			logging.Warn("failed to unpublish %s: %v", r.id, err)
		}
	}
}

func appendMissing(list []string, paths ...string) []string {
	for _, p := range paths {
		if !slices.Contains(list, p) {
			list = append(list, p)
		}
	}
	return list
}

func newRecord(id string, up Upload, path string, meta *metadata.MediaMetadata, artifacts []string) *database.Upload {
	rec := &database.Upload{
		ID:                      id,
		Field:                   up.Field,
		Title:                   up.Title,
		FileName:                meta.FileName,
		Slug:                    naming.Slug(meta.FileName),
		Path:                    path,
		MimeType:                meta.MimeType,
		Extension:               meta.Extension,
		MotionType:              string(meta.MotionType),
		FileSize:                meta.FileSize,
		Width:                   meta.Width,
		Height:                  meta.Height,
		Duration:                meta.Duration,
		FPS:                     meta.FPS,
		HasAudio:                meta.HasAudio,
		OriginalFileName:        meta.OriginalFileName,
		OriginalExtension:       meta.OriginalExtension,
		OriginalEXIFOrientation: meta.OriginalEXIFOrientation,
		Artifacts:               append([]string(nil), artifacts...),
	}
	for i := 1; i < len(meta.MimeTypes) && i < len(meta.Sizes); i++ {
		rec.Alternates = append(rec.Alternates, database.Alternate{MimeType: meta.MimeTypes[i], Size: meta.Sizes[i]})
	}
	return rec
}

func timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return err
}

func recordOutcome(err error) {
	switch {
	case err == nil:
		metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	case mediaerr.IsRejection(err):
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		metrics.ValidationFailuresTotal.WithLabelValues(mediaerr.Reason(err)).Inc()
	default:
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
	}
}
