package validation

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"media-ingest/internal/filesystem"
	"media-ingest/internal/limits"
	"media-ingest/internal/logging"
	"media-ingest/internal/mediaerr"
	"media-ingest/internal/mediatypes"
	"media-ingest/internal/metadata"
)

// Widths within this distance of an exact multiple of the ratio count as exact.
const ratioEpsilon = 1e-11

// 16:9 panels are commonly 1360x768, which is slightly narrower than 16:9.
const laptop16x9 = 1360.0 / 768.0

// Evaluator checks extracted metadata against a field's constraint
// specification. The temp file is deleted on every rejection.
type Evaluator struct{}

// NewEvaluator returns an Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Validate runs every check in order and stops at the first violation. It
// returns the temp file's path, which changes when the extension is
// normalised.
func (e *Evaluator) Validate(meta *metadata.MediaMetadata, spec limits.ConstraintSpec, tempPath string) (string, error) {
	path, err := e.NormalizeExtension(meta, tempPath)
	if err != nil {
		return tempPath, err
	}
	if err := check(meta, spec); err != nil {
		discard(path)
		logging.Debug("rejected %s%s: %v", meta.FileName, meta.Extension, err)
		return path, err
	}
	return path, nil
}

// NormalizeExtension lowercases the extension, rejects extensions whose
// category contradicts the content, and renames the file to the preferred
// extension of its MIME type when the current one belongs to another type.
func (e *Evaluator) NormalizeExtension(meta *metadata.MediaMetadata, tempPath string) (string, error) {
	ext := strings.ToLower(meta.Extension)
	if !mediatypes.ExtensionMatchesCategory(meta.MimeType, ext) {
		discard(tempPath)
		return tempPath, &mediaerr.ExtensionMismatchError{Extension: meta.Extension, MimeType: meta.MimeType}
	}
	if !ownsExtension(meta.MimeType, ext) {
		if preferred, ok := mediatypes.PreferredExtension(meta.MimeType); ok {
			ext = preferred
		}
	}
	if ext == meta.Extension {
		return tempPath, nil
	}

	newPath := strings.TrimSuffix(tempPath, filepath.Ext(tempPath)) + ext
	if newPath != tempPath {
		if err := os.Rename(tempPath, newPath); err != nil {
			discard(tempPath)
			return tempPath, fmt.Errorf("rename temp file: %w", err)
		}
	}
	logging.Debug("extension %q normalised to %q", meta.Extension, ext)
	meta.Extension = ext
	return newPath, nil
}

func ownsExtension(mimeType, ext string) bool {
	for _, m := range mediatypes.MIMETypesForExtension(ext) {
		if m == mimeType {
			return true
		}
	}
	return false
}

func discard(path string) {
	if err := filesystem.RemoveIfExists(path); err != nil {
		logging.Warn("failed to delete rejected upload %s: %v", path, err)
	}
}

func check(meta *metadata.MediaMetadata, spec limits.ConstraintSpec) error {
	if !mediatypes.IsSupported(meta.MimeType) {
		return &mediaerr.UnsupportedTypeError{MimeType: meta.MimeType}
	}
	if len(spec.FileType) > 0 && !AcceptsFileType(meta, spec.FileType) {
		return &mediaerr.ValidationError{Reason: "file_type", Message: mediaerr.MsgUnsupportedType}
	}

	subject := meta.Subject()
	motion := string(meta.MotionType)
	if limit, ok := limits.Resolve(spec.MaxSize, subject); ok && meta.FileSize > limit {
		return mediaerr.NewValidationError("size", "Error: The %s is larger than our processing limit of %s.",
			motion, FileSizeFormat(limit))
	}

	if meta.HasDimensions() {
		if err := checkDimensions(meta, spec, subject); err != nil {
			return err
		}
	}

	if meta.HasDuration() {
		if spec.MaxDuration > 0 && meta.Duration > spec.MaxDuration {
			return mediaerr.NewValidationError("duration", "Error: The %s is longer than %s.",
				motion, TimeElapsed(spec.MaxDuration))
		}
		if spec.MinDuration > 0 && meta.Duration < spec.MinDuration {
			return mediaerr.NewValidationError("duration", "Error: The %s is shorter than the minimum of %s.",
				motion, TimeElapsed(spec.MinDuration))
		}
	}

	if meta.FPS > 0 && spec.MaxFPS > 0 && meta.FPS > spec.MaxFPS {
		return mediaerr.NewValidationError("fps", "Error: The %s has a frame rate higher than the maximum of %s.",
			motion, formatNumber(spec.MaxFPS))
	}
	return nil
}

// AcceptsFileType reports whether a file_type list admits the file.
func AcceptsFileType(meta *metadata.MediaMetadata, fileTypes []string) bool {
	sub := meta.GIFSubtype()
	for _, t := range fileTypes {
		switch {
		case t == mediatypes.SelectorAll:
			return true
		case t == string(meta.MotionType):
			return true
		case sub != "" && t == sub:
			return true
		case t == meta.MimeType:
			return true
		}
	}
	return false
}

func checkDimensions(meta *metadata.MediaMetadata, spec limits.ConstraintSpec, subject limits.Subject) error {
	w, h := meta.Width, meta.Height
	motion := string(meta.MotionType)

	if spec.ExactWidth > 0 && spec.ExactHeight > 0 {
		if w != spec.ExactWidth || h != spec.ExactHeight {
			return mediaerr.NewValidationError("dimensions", "Error: This field requires the file to be %dx%d.",
				spec.ExactWidth, spec.ExactHeight)
		}
		return nil
	}
	if spec.ExactWidth > 0 && w != spec.ExactWidth {
		return mediaerr.NewValidationError("dimensions", "Error: This field requires the file to be exactly %d pixels wide.",
			spec.ExactWidth)
	}
	if spec.ExactHeight > 0 && h != spec.ExactHeight {
		return mediaerr.NewValidationError("dimensions", "Error: This field requires the file to be exactly %d pixels tall.",
			spec.ExactHeight)
	}

	if bound, ok := limits.Resolve(spec.MinDimensions, subject); ok {
		least := bound.Choose(w, h)
		switch {
		case least.H == 0 && w < least.W:
			return mediaerr.NewValidationError("dimensions", "Error: The %s must be at least %d pixels wide.", motion, least.W)
		case least.W == 0 && h < least.H:
			return mediaerr.NewValidationError("dimensions", "Error: The %s must be at least %d pixels tall.", motion, least.H)
		case w < least.W || h < least.H:
			return mediaerr.NewValidationError("dimensions", "Error: The %s must be at least %s.", motion, least)
		}
	}

	if !spec.AspectRatio.IsZero() {
		if r, ok := limits.Resolve(spec.AspectRatio, subject); ok && !MatchesAspectRatio(w, h, r) {
			return mediaerr.NewValidationError("aspect_ratio", "Error: The %s must have an aspect ratio of %s.", motion, r)
		}
		return nil
	}
	if r, ok := limits.Resolve(spec.WidestAspectRatio, subject); ok && WiderThan(w, h, r) {
		return mediaerr.NewValidationError("aspect_ratio", "Error: The %s has a wider aspect ratio than the limit of %s.", motion, r)
	}
	if r, ok := limits.Resolve(spec.NarrowestAspectRatio, subject); ok && NarrowerThan(w, h, r) {
		return mediaerr.NewValidationError("aspect_ratio", "Error: The %s has a narrower aspect ratio than the limit of %s.", motion, r)
	}
	return nil
}

// needsTolerance reports whether integer rounding may have moved a w x h
// frame off the exact ratio.
func needsTolerance(w, h int, ratio float64) bool {
	return (math.Mod(float64(w), ratio) > ratioEpsilon || w%2 != 0 || h%2 != 0) && ratio != 1
}

// offset is how many pixels wider a frame of height h at ratio would be than
// w. The product is rounded before subtracting so it is never fused.
func offset(w, h int, ratio float64) float64 {
	return float64(float64(h)*ratio) - float64(w)
}

// WiderThan reports whether w x h is wider than r, allowing 4 pixels of
// rounding error where needed.
func WiderThan(w, h int, r limits.AspectRatio) bool {
	critical := 0.0
	if needsTolerance(w, h, r.Value) {
		critical = -4
	}
	return offset(w, h, r.Value) < critical
}

// NarrowerThan reports whether w x h is narrower than r. A 16:9 limit is
// checked against 1360:768.
func NarrowerThan(w, h int, r limits.AspectRatio) bool {
	ratio := r.Value
	if r.Is16x9() {
		ratio = laptop16x9
	}
	critical := 0.0
	if needsTolerance(w, h, ratio) {
		critical = 4
	}
	return offset(w, h, ratio) > critical
}

// MatchesAspectRatio reports whether w x h is r within the margin of error:
// 8 pixels for 16:9, otherwise 4 or 0 depending on rounding.
func MatchesAspectRatio(w, h int, r limits.AspectRatio) bool {
	margin := 0.0
	switch {
	case r.Is16x9():
		margin = 8
	case needsTolerance(w, h, r.Value):
		margin = 4
	}
	return math.Abs(offset(w, h, r.Value)) <= margin
}

// AcceptValue builds an HTML accept attribute for a file_type list.
func AcceptValue(fileTypes []string) string {
	var out []string
	seen := map[string]bool{}
	add := func(types ...string) {
		for _, t := range types {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	for _, t := range fileTypes {
		switch t {
		case mediatypes.SelectorAll:
			add(mediatypes.ConvertibleImageTypes()...)
			add(mediatypes.ConvertibleVideoTypes()...)
		case string(mediatypes.MotionImage):
			add(mediatypes.ConvertibleImageTypes()...)
		case string(mediatypes.MotionVideo):
			add(mediatypes.ConvertibleVideoTypes()...)
		case mediatypes.SelectorGIFStill, mediatypes.SelectorGIFAnimated:
			add(mediatypes.MIMEGIF)
		default:
			add(t)
		}
	}
	if seen[mediatypes.MIMEOgg] {
		add(mediatypes.MIMEOggGeneric)
	}
	return strings.Join(out, ", ")
}
