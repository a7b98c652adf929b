package metadata

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	// Decoders for DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"media-ingest/internal/filesystem"
	"media-ingest/internal/logging"
	"media-ingest/internal/mediaerr"
	"media-ingest/internal/mediatypes"
)

// Extractor builds MediaMetadata from files on disk.
type Extractor struct {
	prober Prober
}

// NewExtractor returns an Extractor that inspects video with prober.
func NewExtractor(prober Prober) *Extractor {
	return &Extractor{prober: prober}
}

// Extract inspects an uploaded temp file. declaredName is the client's file
// name and only supplies the name and extension. An unsupported file is
// deleted and reported as *mediaerr.UnsupportedTypeError without further
// inspection.
func (e *Extractor) Extract(ctx context.Context, tempPath, declaredName string) (*MediaMetadata, error) {
	return e.extract(ctx, tempPath, declaredName, true)
}

// ExtractFile re-inspects a stored file. The name and extension come from
// the path itself and the file is never deleted.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*MediaMetadata, error) {
	return e.extract(ctx, path, filepath.Base(path), false)
}

func (e *Extractor) extract(ctx context.Context, tempPath, declaredName string, discard bool) (*MediaMetadata, error) {
	mimeType, err := Sniff(ctx, tempPath, e.prober)
	if err != nil {
		return nil, err
	}
	if !mediatypes.IsSupported(mimeType) {
		if discard {
			if rmErr := filesystem.RemoveIfExists(tempPath); rmErr != nil {
				logging.Warn("failed to delete unsupported upload %s: %v", tempPath, rmErr)
			}
		}
		return nil, &mediaerr.UnsupportedTypeError{MimeType: mimeType}
	}

	info, err := os.Stat(tempPath)
	if err != nil {
		return nil, err
	}

	name, ext := splitDeclaredName(declaredName)
	meta := &MediaMetadata{
		MimeType:          mimeType,
		Extension:         ext,
		FileName:          name,
		OriginalFileName:  name,
		OriginalExtension: ext,
		FileSize:          info.Size(),
	}

	switch mediatypes.Category(mimeType) {
	case "image":
		err = e.imageMetadata(tempPath, meta)
	case "video":
		err = e.videoMetadata(ctx, tempPath, meta)
	}
	if err != nil {
		return nil, err
	}
	meta.MotionType = MotionTypeFor(meta.MimeType, meta.FrameCount)

	logging.Debug("%s: %s %dx%d %.2fs %.2ffps motion=%s", declaredName, meta.MimeType,
		meta.Width, meta.Height, meta.Duration, meta.FPS, meta.MotionType)
	return meta, nil
}

func splitDeclaredName(declared string) (name, ext string) {
	base := filepath.Base(strings.ReplaceAll(declared, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}
	ext = filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

func (e *Extractor) imageMetadata(path string, meta *MediaMetadata) error {
	if meta.MimeType == mediatypes.MIMEGIF {
		g, err := readGIF(path)
		if err != nil {
			return err
		}
		meta.Width, meta.Height = g.Width, g.Height
		meta.FrameCount = g.Frames
		if g.Frames > 1 {
			meta.Duration = g.Duration
			meta.FPS = float64(g.Frames) / g.Duration
			meta.HasAudio = false
		}
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("decode image header: %w", err)
	}
	meta.Width, meta.Height = cfg.Width, cfg.Height

	if meta.MimeType != mediatypes.MIMEJPEG {
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	raw, err := ReadJPEGEXIF(f)
	if err != nil {
		if !errors.Is(err, ErrNoEXIF) {
			logging.Debug("no readable EXIF in %s: %v", path, err)
		}
		return nil
	}
	tags, err := ParseEXIF(raw)
	if err != nil {
		logging.Warn("ignoring malformed EXIF in %s: %v", path, err)
		return nil
	}
	meta.RawEXIF = raw
	meta.EXIF = tags
	if o := OrientationOf(tags); o != 0 {
		meta.OriginalEXIFOrientation = o
		if o >= 5 {
			meta.Width, meta.Height = meta.Height, meta.Width
		}
	}
	return nil
}

func (e *Extractor) videoMetadata(ctx context.Context, path string, meta *MediaMetadata) error {
	if e.prober == nil {
		return errors.New("no media prober configured for video")
	}
	res, err := e.prober.Probe(ctx, path)
	if err != nil {
		return err
	}
	v, ok := res.FirstVideo()
	if !ok {
		return fmt.Errorf("%s has no video track", filepath.Base(path))
	}

	meta.HasAudio = res.HasAudio()
	meta.Width, meta.Height = v.Width, v.Height
	if (v.Rotation == 90 || v.Rotation == 270 || v.Rotation == -90) && v.Width > v.Height {
		meta.Width, meta.Height = v.Height, v.Width
		meta.NeedsRotating = true
	}
	meta.Duration = res.Duration
	meta.FPS = v.FrameRate
	return nil
}
