package media

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"media-ingest/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // WebP format support
)

// RenderOptions controls a render. A zero Width and Height keeps the size.
type RenderOptions struct {
	Width   int
	Height  int
	Quality int
}

func (o RenderOptions) resizes() bool {
	return o.Width > 0 && o.Height > 0
}

// Processor renders src into dst.
type Processor interface {
	Render(src, dst string, opts RenderOptions) error
	Name() string
}

// NewProcessor returns the libvips processor when libvips is running and the
// imaging processor otherwise.
func NewProcessor() Processor {
	if IsVipsAvailable() {
		return &VipsProcessor{fallback: &ImagingProcessor{}}
	}
	return &ImagingProcessor{}
}

// ImagingProcessor renders with github.com/disintegration/imaging.
type ImagingProcessor struct{}

// Name implements Processor.
func (p *ImagingProcessor) Name() string { return "imaging" }

// Render implements Processor.
func (p *ImagingProcessor) Render(src, dst string, opts RenderOptions) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}

	if opts.resizes() {
		logging.Debug("resizing %s from %dx%d to %dx%d", filepath.Base(src),
			img.Bounds().Dx(), img.Bounds().Dy(), opts.Width, opts.Height)
		img = imaging.Resize(img, opts.Width, opts.Height, imaging.Lanczos)
	}

	if isJPEG(dst) {
		img = flatten(img)
	}

	if err := imaging.Save(img, dst, imaging.JPEGQuality(quality(opts))); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Ext(dst), err)
	}
	return nil
}

// flatten composites img onto white. JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func quality(opts RenderOptions) int {
	if opts.Quality <= 0 || opts.Quality > 100 {
		return 75
	}
	return opts.Quality
}

func isJPEG(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".jpe":
		return true
	}
	return false
}
