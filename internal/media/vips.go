package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"media-ingest/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

var vipsState struct {
	sync.Mutex
	running bool
}

const vipsCacheBytes = 50 << 20

// InitVips starts libvips once per process. Later calls are no-ops until
// ShutdownVips.
func InitVips() error {
	vipsState.Lock()
	defer vipsState.Unlock()
	if vipsState.running {
		return nil
	}

	threshold := vipsThreshold(logging.GetLevel())
	vips.LoggingSettings(forwardVipsLog(threshold), threshold)

	// One worker thread per image; ingest concurrency is bounded elsewhere.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      vipsCacheBytes,
		MaxCacheSize:     100,
	})
	vipsState.running = true
	logging.Info("libvips %s started", vips.Version)
	return nil
}

// vipsThreshold is the most verbose libvips level worth forwarding.
func vipsThreshold(level logging.LogLevel) vips.LogLevel {
	return map[logging.LogLevel]vips.LogLevel{
		logging.LevelDebug: vips.LogLevelDebug,
		logging.LevelInfo:  vips.LogLevelWarning,
		logging.LevelWarn:  vips.LogLevelError,
		logging.LevelError: vips.LogLevelCritical,
	}[level]
}

func forwardVipsLog(threshold vips.LogLevel) func(string, vips.LogLevel, string) {
	return func(domain string, level vips.LogLevel, msg string) {
		if level > threshold {
			return
		}
		switch {
		case level <= vips.LogLevelCritical:
			logging.Error("vips %s: %s", domain, msg)
		case level == vips.LogLevelWarning:
			logging.Warn("vips %s: %s", domain, msg)
		default:
			logging.Debug("vips %s: %s", domain, msg)
		}
	}
}

// ShutdownVips releases libvips. Rendering falls back to the pure Go
// processor afterwards.
func ShutdownVips() {
	vipsState.Lock()
	defer vipsState.Unlock()
	if !vipsState.running {
		return
	}
	vips.Shutdown()
	vipsState.running = false
	logging.Info("libvips stopped")
}

func IsVipsAvailable() bool {
	vipsState.Lock()
	defer vipsState.Unlock()
	return vipsState.running
}

// VipsProcessor renders JPEG and PNG output with libvips. Other output
// formats go to the fallback processor.
type VipsProcessor struct {
	fallback Processor
}

// Name implements Processor.
func (p *VipsProcessor) Name() string { return "libvips" }

// Render implements Processor.
func (p *VipsProcessor) Render(src, dst string, opts RenderOptions) error {
	ext := strings.ToLower(filepath.Ext(dst))
	if !isJPEG(dst) && ext != ".png" {
		return p.fallback.Render(src, dst, opts)
	}
	if !IsVipsAvailable() {
		return fmt.Errorf("libvips not available")
	}

	ref, err := vips.LoadImageFromFile(src, vips.NewImportParams())
	if err != nil {
		return fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	// Bake the EXIF orientation into the pixels; this also resets the tag.
	if err := ref.AutoRotate(); err != nil {
		return fmt.Errorf("vips autorotate failed: %w", err)
	}

	if opts.resizes() {
		logging.Debug("vips resizing %s from %dx%d to %dx%d", filepath.Base(src),
			ref.Width(), ref.Height(), opts.Width, opts.Height)
		if err := ref.Thumbnail(opts.Width, opts.Height, vips.InterestingNone); err != nil {
			return fmt.Errorf("vips resize failed: %w", err)
		}
	}

	var buf []byte
	if isJPEG(dst) {
		if ref.HasAlpha() {
			if err := ref.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
				return fmt.Errorf("vips flatten failed: %w", err)
			}
		}
		buf, _, err = ref.ExportJpeg(&vips.JpegExportParams{
			Quality:        quality(opts),
			StripMetadata:  true,
			OptimizeCoding: true,
		})
	} else {
		buf, _, err = ref.ExportPng(&vips.PngExportParams{
			StripMetadata: true,
			Compression:   6,
		})
	}
	if err != nil {
		return fmt.Errorf("vips export failed: %w", err)
	}

	return os.WriteFile(dst, buf, 0o644)
}
