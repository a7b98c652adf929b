package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"media-ingest/internal/metadata"
)

// gradient returns a w x h opaque test image.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

// orientationAPP1 builds a minimal little-endian EXIF segment carrying only
// the Orientation tag.
func orientationAPP1(orientation uint16) []byte {
	var tiff bytes.Buffer
	le := binary.LittleEndian
	tiff.WriteString("II")
	_ = binary.Write(&tiff, le, uint16(42))
	_ = binary.Write(&tiff, le, uint32(8))
	_ = binary.Write(&tiff, le, uint16(1))      // entry count
	_ = binary.Write(&tiff, le, uint16(0x0112)) // Orientation
	_ = binary.Write(&tiff, le, uint16(3))      // SHORT
	_ = binary.Write(&tiff, le, uint32(1))
	_ = binary.Write(&tiff, le, orientation)
	_ = binary.Write(&tiff, le, uint16(0))
	_ = binary.Write(&tiff, le, uint32(0)) // next IFD

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	return append(seg, payload...)
}

func writeJPEG(t *testing.T, path string, img image.Image, orientation uint16) {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	if orientation > 0 {
		data = append(append(append([]byte{}, data[:2]...), orientationAPP1(orientation)...), data[2:]...)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func dimensions(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return cfg.Width, cfg.Height
}

func hasEXIF(t *testing.T, path string) bool {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	_, err = metadata.ReadJPEGEXIF(f)
	return !errors.Is(err, metadata.ErrNoEXIF)
}

func processors(t *testing.T) []Processor {
	list := []Processor{&ImagingProcessor{}}
	if IsVipsAvailable() {
		list = append(list, &VipsProcessor{fallback: &ImagingProcessor{}})
	} else {
		t.Log("libvips not initialised; testing the imaging processor only")
	}
	return list
}

func TestRender(t *testing.T) {
	tests := []struct {
		name        string
		orientation uint16
		srcExt      string
		dstExt      string
		opts        RenderOptions
		wantW       int
		wantH       int
	}{
		{name: "orientation 6 swaps", orientation: 6, srcExt: ".jpg", dstExt: ".jpg", opts: RenderOptions{Quality: 90}, wantW: 40, wantH: 80},
		{name: "orientation 3 keeps size", orientation: 3, srcExt: ".jpg", dstExt: ".jpg", wantW: 80, wantH: 40},
		{name: "resize", srcExt: ".jpg", dstExt: ".jpg", opts: RenderOptions{Width: 40, Height: 20}, wantW: 40, wantH: 20},
		{name: "png to jpeg", srcExt: ".png", dstExt: ".jpg", wantW: 80, wantH: 40},
		{name: "jpeg to png", srcExt: ".jpg", dstExt: ".png", wantW: 80, wantH: 40},
		{name: "jpeg to gif", srcExt: ".jpg", dstExt: ".gif", opts: RenderOptions{Width: 20, Height: 10}, wantW: 20, wantH: 10},
	}

	for _, p := range processors(t) {
		for _, tt := range tests {
			t.Run(p.Name()+"/"+tt.name, func(t *testing.T) {
				dir := t.TempDir()
				src := filepath.Join(dir, "src"+tt.srcExt)
				if tt.srcExt == ".png" {
					writePNG(t, src, gradient(80, 40))
				} else {
					writeJPEG(t, src, gradient(80, 40), tt.orientation)
				}
				dst := filepath.Join(dir, "out"+tt.dstExt)

				if err := p.Render(src, dst, tt.opts); err != nil {
					t.Fatalf("Render() error = %v", err)
				}
				if w, h := dimensions(t, dst); w != tt.wantW || h != tt.wantH {
					t.Errorf("output is %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
				}
				if tt.dstExt == ".jpg" && hasEXIF(t, dst) {
					t.Error("rendered JPEG still carries EXIF")
				}
			})
		}
	}
}

func TestRenderTransparentToJPEG(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clear.png")
	writePNG(t, src, image.NewNRGBA(image.Rect(0, 0, 8, 8)))
	dst := filepath.Join(dir, "clear.jpg")

	if err := (&ImagingProcessor{}).Render(src, dst, RenderOptions{}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	f, err := os.Open(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := img.At(4, 4).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("transparent pixels should become white, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestRenderMissingSource(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.jpg")
	if err := (&ImagingProcessor{}).Render("/nonexistent/in.jpg", dst, RenderOptions{}); err == nil {
		t.Error("expected an error for a missing source")
	}
}

func TestStripJPEGMetadata(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "exif.jpg")
	writeJPEG(t, src, gradient(30, 20), 6)
	if !hasEXIF(t, src) {
		t.Fatal("fixture should carry EXIF")
	}

	dst := filepath.Join(dir, "clean.jpg")
	if err := StripJPEGMetadata(src, dst); err != nil {
		t.Fatalf("StripJPEGMetadata() error = %v", err)
	}
	if hasEXIF(t, dst) {
		t.Error("EXIF survived stripping")
	}
	// Stripping is lossless: the raw pixel size is unchanged and no rotation is applied.
	if w, h := dimensions(t, dst); w != 30 || h != 20 {
		t.Errorf("stripped image is %dx%d, want 30x20", w, h)
	}

	srcInfo, _ := os.Stat(src)
	dstInfo, _ := os.Stat(dst)
	if want := srcInfo.Size() - int64(len(orientationAPP1(6))); dstInfo.Size() != want {
		t.Errorf("stripped size = %d, want %d", dstInfo.Size(), want)
	}
}

func TestStripJPEGMetadataRejectsOtherFormats(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "img.png")
	writePNG(t, src, gradient(4, 4))
	if err := StripJPEGMetadata(src, filepath.Join(dir, "out.jpg")); err == nil {
		t.Error("expected an error for a PNG source")
	}
}

func TestInitVipsIdempotency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping libvips initialisation in short mode")
	}
	if err := InitVips(); err != nil {
		t.Skipf("libvips not available: %v", err)
	}
	if err := InitVips(); err != nil {
		t.Errorf("second InitVips() call failed: %v", err)
	}
	if !IsVipsAvailable() {
		t.Error("after a successful InitVips, IsVipsAvailable should return true")
	}
	if _, ok := NewProcessor().(*VipsProcessor); !ok {
		t.Error("NewProcessor should prefer libvips once it is running")
	}
}
