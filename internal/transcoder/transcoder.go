package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"media-ingest/internal/filesystem"
	"media-ingest/internal/limits"
	"media-ingest/internal/logging"
	"media-ingest/internal/media"
	"media-ingest/internal/mediatypes"
	"media-ingest/internal/metadata"
	"media-ingest/internal/metrics"
	"media-ingest/internal/planner"
)

// Transcoder turns an accepted upload into its stored artifacts.
type Transcoder struct {
	runner Runner
	images media.Processor
	retry  filesystem.RetryConfig
}

// New returns a Transcoder that encodes with runner and renders images with images.
func New(runner Runner, images media.Processor) *Transcoder {
	return &Transcoder{
		runner: runner,
		images: images,
		retry:  filesystem.DefaultRetryConfig(),
	}
}

// SetRetryConfig changes the bounds of the release probe run after each
// ffmpeg invocation.
func (t *Transcoder) SetRetryConfig(cfg filesystem.RetryConfig) {
	t.retry = cfg
}

// Cleanup kills running ffmpeg processes when the runner tracks them.
func (t *Transcoder) Cleanup() {
	if c, ok := t.runner.(interface{ Cleanup() }); ok {
		c.Cleanup()
	}
}

// Result describes the upload after Execute.
type Result struct {
	// Path is the canonical file.
	Path string
	Meta *metadata.MediaMetadata
	// Artifacts lists every file belonging to the upload, canonical first.
	Artifacts []string
}

type output struct {
	mime string
	path string
	// evened is set once an mp4 encode has rounded the frame to even sizes.
	evened bool
}

// job holds the state of one Execute call.
type job struct {
	ctx    context.Context
	t      *Transcoder
	stage  *staging
	layout Layout
	meta   *metadata.MediaMetadata
	plan   planner.Plan
	hl     limits.HostingLimits
	source string

	outputs   []output
	canonical string
}

// Execute applies plan to the upload stored at file. meta describes the file
// and is not modified; the returned Result carries the updated copy. An error
// before commit leaves the collection as it was. If the commit itself fails
// partway, Execute returns a Result whose Artifacts lists the files already
// moved into place, along with the error, so the caller can remove them.
func (t *Transcoder) Execute(ctx context.Context, file string, meta *metadata.MediaMetadata, plan planner.Plan, hl limits.HostingLimits) (*Result, error) {
	stage, err := newStaging(filepath.Dir(file))
	if err != nil {
		return nil, err
	}

	j := &job{
		ctx:    ctx,
		t:      t,
		stage:  stage,
		layout: LayoutFor(file, hl),
		meta:   meta.Clone(),
		plan:   plan,
		hl:     hl,
		source: file,
	}

	if err := j.run(); err != nil {
		stage.rollback()
		return nil, err
	}

	written, err := stage.commit()
	if err != nil {
		return &Result{Artifacts: written}, err
	}
	logging.Debug("%s: committed %d files", filepath.Base(file), len(written))

	path := j.layout.Primary(j.meta.Extension)
	var artifacts []string
	for _, p := range j.layout.Paths(Extensions(j.meta)) {
		if filesystem.Exists(p) {
			artifacts = append(artifacts, p)
		}
	}
	return &Result{Path: path, Meta: j.meta, Artifacts: artifacts}, nil
}

func (j *job) run() error {
	if len(j.meta.RawEXIF) > 0 {
		if err := j.step("exif", j.saveEXIF); err != nil {
			return err
		}
	}

	var err error
	if j.meta.MotionType == mediatypes.MotionVideo {
		err = j.video()
	} else {
		err = j.image()
	}
	if err != nil {
		return err
	}
	return j.thumbnail()
}

// step runs fn and counts it under kind.
func (j *job) step(kind string, fn func() error) error {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	err := fn()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.TranscodeJobsTotal.WithLabelValues(kind, status).Inc()
	return err
}

// encode runs ffmpeg and waits until it has let go of in.
func (j *job) encode(kind, in string, args []string) error {
	return j.step(kind, func() error {
		logging.Debug("ffmpeg %s: %s", kind, filepath.Base(in))
		if err := j.t.runner.Run(j.ctx, kind, args...); err != nil {
			return err
		}
		return filesystem.WaitForRelease(j.ctx, in, j.t.retry)
	})
}

func (j *job) saveEXIF() error {
	out := j.stage.path(".dat")
	if err := os.WriteFile(out, j.meta.RawEXIF, 0o644); err != nil {
		return fmt.Errorf("write exif: %w", err)
	}
	j.stage.place(out, j.layout.EXIF())
	return nil
}

// targets returns the formats to store, canonical first.
func (j *job) targets() []string {
	if len(j.plan.SaveTypes) > 0 {
		return j.plan.SaveTypes
	}
	return []string{j.meta.MimeType}
}

func extensionFor(mimeType string) (string, error) {
	ext, ok := mediatypes.PreferredExtension(mimeType)
	if !ok {
		return "", fmt.Errorf("no file extension for %s", mimeType)
	}
	return ext, nil
}

func (j *job) image() error {
	rotated := j.meta.OriginalEXIFOrientation > 1
	opts := media.RenderOptions{Quality: j.hl.Quality()}
	if d := j.plan.NewDimensions; d != nil {
		opts.Width, opts.Height = d.Width, d.Height
	}

	for _, target := range j.targets() {
		ext, err := extensionFor(target)
		if err != nil {
			return err
		}

		if target == j.meta.MimeType && !j.plan.Resizes() && !rotated {
			out, err := j.stripped(ext)
			if err != nil {
				return err
			}
			j.outputs = append(j.outputs, output{mime: target, path: out})
			continue
		}

		kind := "convert"
		if target == j.meta.MimeType {
			kind = "autorotate"
			if j.plan.Resizes() {
				kind = "resize"
			}
		}
		out := j.stage.path(ext)
		err = j.step(kind, func() error {
			return j.t.images.Render(j.source, out, opts)
		})
		if err != nil {
			return err
		}
		j.outputs = append(j.outputs, output{mime: target, path: out})
	}

	if d := j.plan.NewDimensions; d != nil {
		j.meta.Width, j.meta.Height = d.Width, d.Height
	}
	return j.finishFormats()
}

// stripped returns the source with its EXIF removed losslessly, or the
// source itself when there is nothing to remove.
func (j *job) stripped(ext string) (string, error) {
	if len(j.meta.RawEXIF) == 0 || j.meta.MimeType != mediatypes.MIMEJPEG {
		return j.source, nil
	}
	out := j.stage.path(ext)
	err := j.step("exif", func() error {
		return media.StripJPEGMetadata(j.source, out)
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (j *job) video() error {
	cur := j.source
	ext := j.meta.Extension
	bitrate := j.plan.Bitrate

	converting := false
	for _, target := range j.targets() {
		if e, _ := mediatypes.PreferredExtension(target); e != ext {
			converting = true
		}
	}

	evened := false
	switch {
	case j.meta.NeedsRotating:
		out := j.stage.path(ext)
		if err := j.encode("rotate", cur, rotateArgs(cur, out, bitrate)); err != nil {
			return err
		}
		cur = out
		j.meta.NeedsRotating = false
	case j.plan.NeedsBitrateLowering && !j.plan.Resizes() && !converting:
		out := j.stage.path(ext)
		spec := encodeSpec{In: cur, Out: out, Bitrate: bitrate, Preset: j.hl.Preset}
		if err := j.encode("bitrate", cur, encodeArgs(spec)); err != nil {
			return err
		}
		cur = out
		evened = ext == ".mp4"
	}

	if d := j.plan.NewDimensions; d != nil {
		out := j.stage.path(ext)
		spec := encodeSpec{In: cur, Out: out, Bitrate: bitrate, Preset: j.hl.Preset, Scale: d}
		if err := j.encode("resize", cur, encodeArgs(spec)); err != nil {
			return err
		}
		cur = out
		evened = ext == ".mp4"
		j.meta.Width, j.meta.Height = d.Width, d.Height
	}

	for _, target := range j.targets() {
		text, err := extensionFor(target)
		if err != nil {
			return err
		}
		if text == ext {
			j.outputs = append(j.outputs, output{mime: target, path: cur, evened: evened})
			continue
		}

		out := j.stage.path(text)
		spec := encodeSpec{In: cur, Out: out, Bitrate: bitrate, Preset: j.hl.Preset}
		if text == ".gif" {
			spec.FPS = j.meta.FPS
			spec.Scale = j.plan.GIFDimensions
		}
		if err := j.encode("convert", cur, encodeArgs(spec)); err != nil {
			return err
		}
		j.outputs = append(j.outputs, output{mime: target, path: out, evened: text == ".mp4"})
	}

	if j.outputs[0].mime == mediatypes.MIMEMP4 {
		if err := j.even(); err != nil {
			return err
		}
		in := j.outputs[0].path
		out := j.stage.path(".mp4")
		if err := j.encode("faststart", in, faststartArgs(in, out)); err != nil {
			return err
		}
		j.outputs[0].path = out
		j.meta.Width -= j.meta.Width % 2
		j.meta.Height -= j.meta.Height % 2
	}

	if err := j.finishFormats(); err != nil {
		return err
	}

	if poster := j.layout.Poster(); poster != "" {
		out := j.stage.path(".jpg")
		if err := j.encode("poster", j.canonical, posterArgs(j.canonical, out)); err != nil {
			return err
		}
		j.stage.place(out, poster)
	}
	return nil
}

// even re-encodes a canonical mp4 with an odd frame size that no earlier step
// has passed through the even filter. faststart only remuxes.
func (j *job) even() error {
	o := &j.outputs[0]
	if o.evened || (j.meta.Width%2 == 0 && j.meta.Height%2 == 0) {
		return nil
	}
	out := j.stage.path(".mp4")
	spec := encodeSpec{In: o.path, Out: out, Bitrate: j.plan.Bitrate, Preset: j.hl.Preset}
	if err := j.encode("even", o.path, encodeArgs(spec)); err != nil {
		return err
	}
	o.path, o.evened = out, true
	return nil
}

// finishFormats schedules every output for its final path and records the
// stored formats on the metadata. The first output is canonical.
func (j *job) finishFormats() error {
	if len(j.outputs) == 0 {
		return errors.New("no output formats")
	}

	keepsSource := false
	mimes := make([]string, 0, len(j.outputs))
	sizes := make([]int64, 0, len(j.outputs))
	for _, o := range j.outputs {
		ext, err := extensionFor(o.mime)
		if err != nil {
			return err
		}
		final := j.layout.Primary(ext)
		if o.path != final {
			j.stage.place(o.path, final)
		}
		if final == j.source {
			keepsSource = true
		}

		info, err := os.Stat(o.path)
		if err != nil {
			return fmt.Errorf("stat %s output: %w", o.mime, err)
		}
		mimes = append(mimes, o.mime)
		sizes = append(sizes, info.Size())
	}
	if !keepsSource {
		j.stage.remove(j.source)
	}

	canonical := j.outputs[0]
	ext, _ := mediatypes.PreferredExtension(canonical.mime)
	j.canonical = canonical.path
	j.meta.MimeType = canonical.mime
	j.meta.Extension = ext
	j.meta.FileSize = sizes[0]

	j.meta.MimeTypes, j.meta.Sizes = nil, nil
	if len(j.outputs) > 1 {
		j.meta.MimeTypes = mimes
		j.meta.Sizes = sizes
	}
	return nil
}

func (j *job) thumbnail() error {
	dims := j.plan.Thumbnail
	if dims == nil || j.hl.Thumbnail == nil {
		return nil
	}

	ext := j.meta.Extension
	out := j.stage.path(ext)

	if mediatypes.Category(j.meta.MimeType) == "image" {
		opts := media.RenderOptions{Width: dims.Width, Height: dims.Height, Quality: j.hl.Quality()}
		err := j.step("thumbnail", func() error {
			return j.t.images.Render(j.canonical, out, opts)
		})
		if err != nil {
			return err
		}
		j.stage.place(out, j.layout.Thumbnail(ext))
		return nil
	}

	spec := encodeSpec{
		In:      j.canonical,
		Out:     out,
		Bitrate: j.plan.ThumbnailBitrate,
		Preset:  j.hl.Preset,
		Scale:   dims,
	}
	if err := j.encode("thumbnail", j.canonical, encodeArgs(spec)); err != nil {
		return err
	}
	j.stage.place(out, j.layout.Thumbnail(ext))

	if pt := j.layout.PosterThumbnail(); pt != "" {
		pout := j.stage.path(".jpg")
		if err := j.encode("poster", out, posterArgs(out, pout)); err != nil {
			return err
		}
		j.stage.place(pout, pt)
	}
	return nil
}

var moveArtifact = filesystem.MoveIfExists

// Rename moves every artifact of the upload stored at file to newName and
// returns the new canonical path. Nothing moves if any destination exists,
// and a failed move puts the already moved artifacts back.
func Rename(file, newName string, meta *metadata.MediaMetadata, hl limits.HostingLimits) (string, error) {
	from := LayoutFor(file, hl)
	to := from.WithName(newName)
	exts := Extensions(meta)

	if from.Name == newName {
		return to.Primary(exts[0]), nil
	}

	src := from.Paths(exts)
	dst := to.Paths(exts)

	for i := range src {
		if filesystem.Exists(src[i]) && filesystem.Exists(dst[i]) {
			return "", fmt.Errorf("rename %s: %s already exists", from.Name, filepath.Base(dst[i]))
		}
	}

	var moved []int
	for i := range src {
		ok, err := moveArtifact(src[i], dst[i])
		if err != nil {
			undoMoves(src, dst, moved)
			return "", fmt.Errorf("rename %s: %w", filepath.Base(src[i]), err)
		}
		if ok {
			moved = append(moved, i)
		}
	}
	return to.Primary(exts[0]), nil
}

func undoMoves(src, dst []string, moved []int) {
	for k := len(moved) - 1; k >= 0; k-- {
		i := moved[k]
		if err := filesystem.MoveFile(dst[i], src[i]); err != nil {
			logging.Error("failed to restore %s after rename: %v", filepath.Base(src[i]), err)
		}
	}
}
