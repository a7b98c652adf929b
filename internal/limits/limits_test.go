package limits

import (
	"reflect"
	"strings"
	"testing"

	"media-ingest/internal/mediatypes"
)

var (
	stillGIF    = Subject{MimeType: "image/gif", Motion: mediatypes.MotionImage}
	animatedGIF = Subject{MimeType: "image/gif", Motion: mediatypes.MotionVideo}
	jpegImage   = Subject{MimeType: "image/jpeg", Motion: mediatypes.MotionImage}
	mp4Video    = Subject{MimeType: "video/mp4", Motion: mediatypes.MotionVideo}
)

func TestSpecificityOrder(t *testing.T) {
	tests := []struct {
		name    string
		subject Subject
		want    []string
	}{
		{name: "still gif", subject: stillGIF, want: []string{"gif-still", "image/gif", "image"}},
		{name: "animated gif", subject: animatedGIF, want: []string{"gif-animated", "image/gif", "video"}},
		{name: "jpeg", subject: jpegImage, want: []string{"image/jpeg", "image"}},
		{name: "mp4", subject: mp4Video, want: []string{"video/mp4", "video"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SpecificityOrder(tt.subject); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SpecificityOrder() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	sizes := PerType(map[string]int64{
		"image":        10,
		"video":        100,
		"image/gif":    20,
		"gif-animated": 30,
	})

	tests := []struct {
		name    string
		subject Subject
		want    int64
		found   bool
	}{
		{name: "gif subtype beats mime", subject: animatedGIF, want: 30, found: true},
		{name: "mime beats motion", subject: stillGIF, want: 20, found: true},
		{name: "motion fallback", subject: jpegImage, want: 10, found: true},
		{name: "video motion", subject: mp4Video, want: 100, found: true},
		{name: "no match", subject: Subject{MimeType: "text/plain", Motion: mediatypes.MotionFile}, found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(sizes, tt.subject)
			if ok != tt.found || got != tt.want {
				t.Errorf("Resolve() = %d, %v; want %d, %v", got, ok, tt.want, tt.found)
			}
		})
	}

	fallback := PerType(map[string]int64{"all": 1, "video": 2})
	if got, ok := Resolve(fallback, jpegImage); !ok || got != 1 {
		t.Errorf("all fallback Resolve() = %d, %v; want 1, true", got, ok)
	}
	if got, _ := Resolve(fallback, mp4Video); got != 2 {
		t.Errorf("all should lose to video, got %d", got)
	}

	uniform := Uniform[int64](5)
	if got, ok := Resolve(uniform, mp4Video); !ok || got != 5 {
		t.Errorf("uniform Resolve() = %d, %v; want 5, true", got, ok)
	}

	var unset Keyed[int64]
	if _, ok := Resolve(unset, mp4Video); ok {
		t.Error("unset Keyed should not resolve")
	}
	if !unset.IsZero() {
		t.Error("unset Keyed should be zero")
	}
}

func TestDimensionBoundChoose(t *testing.T) {
	b := LShapedBound(Rect{W: 1920, H: 1200}, Rect{W: 1080, H: 1920})

	tests := []struct {
		name string
		w, h int
		want Rect
	}{
		{name: "landscape picks landscape box", w: 4000, h: 3000, want: Rect{W: 1920, H: 1200}},
		{name: "portrait picks portrait box", w: 3000, h: 4000, want: Rect{W: 1080, H: 1920}},
		{name: "tall strip", w: 500, h: 5000, want: Rect{W: 1080, H: 1920}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Choose(tt.w, tt.h); got != tt.want {
				t.Errorf("Choose(%d, %d) = %v, want %v", tt.w, tt.h, got, tt.want)
			}
		})
	}

	if got := RectBound(800, 600).Choose(4000, 3000); got != (Rect{W: 800, H: 600}) {
		t.Errorf("rect Choose = %v", got)
	}
}

func TestParseAspectRatio(t *testing.T) {
	tests := []struct {
		in      string
		value   float64
		label   string
		is16x9  bool
		wantErr bool
	}{
		{in: "16:9", value: 16.0 / 9.0, label: "16:9", is16x9: true},
		{in: "4:3", value: 4.0 / 3.0, label: "4:3"},
		{in: "1:1", value: 1, label: "1:1"},
		{in: "1.5", value: 1.5, label: "1.500:1"},
		{in: "2", value: 2, label: "2.000:1"},
		{in: "0:9", wantErr: true},
		{in: "wide", wantErr: true},
		{in: "-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAspectRatio(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAspectRatio(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAspectRatio(%q) error = %v", tt.in, err)
			}
			if got.Value != tt.value || got.Label != tt.label || got.Is16x9() != tt.is16x9 {
				t.Errorf("ParseAspectRatio(%q) = %+v (16:9=%v)", tt.in, got, got.Is16x9())
			}
		})
	}

	if !RatioOf(16.0 / 9.0).Is16x9() {
		t.Error("decimal 16/9 should count as 16:9")
	}
}

func TestConversionRule(t *testing.T) {
	tests := []struct {
		name      string
		rule      ConversionRule
		mime      string
		size      int64
		exemption bool
		applies   bool
	}{
		{name: "plain conversion", rule: Convert("image", "image/jpeg"), mime: "image/png", size: 5, exemption: false, applies: true},
		{name: "bare exemption", rule: Exempt("image/png"), mime: "image/png", size: 5, exemption: true, applies: true},
		{name: "self target exemption", rule: Convert("image/png", "image/png"), mime: "image/png", size: 5, exemption: true, applies: true},
		{name: "target equals file type", rule: Convert("image", "image/png"), mime: "image/png", size: 5, exemption: true, applies: true},
		{name: "small exemption applies", rule: Convert("image/png", "image/png").WithThreshold(100), mime: "image/png", size: 100, exemption: true, applies: true},
		{name: "large exemption skipped", rule: Convert("image/png", "image/png").WithThreshold(100), mime: "image/png", size: 101, exemption: true, applies: false},
		{name: "conversion over threshold", rule: Convert("image/gif", "video/mp4").WithThreshold(100), mime: "image/gif", size: 100, exemption: false, applies: true},
		{name: "conversion under threshold", rule: Convert("image/gif", "video/mp4").WithThreshold(100), mime: "image/gif", size: 99, exemption: false, applies: false},
		{name: "multi target", rule: Convert("video", "video/mp4", "video/webm"), mime: "video/mp4", size: 5, exemption: false, applies: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.IsExemption(tt.mime); got != tt.exemption {
				t.Errorf("IsExemption(%q) = %v, want %v", tt.mime, got, tt.exemption)
			}
			if got := tt.rule.AppliesToSize(tt.size); got != tt.applies {
				t.Errorf("AppliesToSize(%d) = %v, want %v", tt.size, got, tt.applies)
			}
		})
	}
}

const samplePolicy = `
fields:
  avatar:
    collection: avatars
    name_max_length: 40
    validation:
      file_type: [image, gif-animated]
      max_size: 2097152
      min_dimensions: {image: [200, 0], video: [[320, 240], [240, 320]]}
      widest_aspect_ratio: "16:9"
      narrowest_aspect_ratio: {image: 0.5}
      max_duration: 30
      max_fps: 30
    hosting_limits:
      conversion:
        - [image, image/jpeg]
        - [image/png, 65536]
        - [gif-animated, video/mp4, video/webm, 1000000]
      max_dimensions: [512, 512]
      jpeg_quality: 90
      power_formula_coordinate: {bitrate: 2000000, edge_length: 720}
      max_bitrate: 1500000
      thumbnail: {axis: height, size: 128, directory: small}
      poster_directory: posters
`

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("ParsePolicy() error = %v", err)
	}

	f, ok := p.Field("avatar")
	if !ok {
		t.Fatal("avatar field missing")
	}
	if f.Collection != "avatars" || f.MaxNameLength() != 40 {
		t.Errorf("collection/name length = %q/%d", f.Collection, f.MaxNameLength())
	}

	v := f.Validation
	if size, ok := Resolve(v.MaxSize, mp4Video); !ok || size != 2097152 {
		t.Errorf("uniform max_size = %d, %v", size, ok)
	}
	if b, ok := Resolve(v.MinDimensions, jpegImage); !ok || b.Kind != BoundRect || b.Rects[0] != (Rect{W: 200, H: 0}) {
		t.Errorf("image min_dimensions = %+v, %v", b, ok)
	}
	if b, ok := Resolve(v.MinDimensions, mp4Video); !ok || b.Kind != BoundLShaped {
		t.Errorf("video min_dimensions = %+v, %v", b, ok)
	}
	if r, ok := Resolve(v.WidestAspectRatio, jpegImage); !ok || !r.Is16x9() {
		t.Errorf("widest ratio = %+v, %v", r, ok)
	}
	if r, ok := Resolve(v.NarrowestAspectRatio, jpegImage); !ok || r.Label != "0.500:1" {
		t.Errorf("narrowest ratio = %+v, %v", r, ok)
	}
	if _, ok := Resolve(v.NarrowestAspectRatio, mp4Video); ok {
		t.Error("narrowest ratio should not apply to video")
	}

	h := f.HostingLimits
	wantRules := []ConversionRule{
		Convert("image", "image/jpeg"),
		Exempt("image/png").WithThreshold(65536),
		Convert("gif-animated", "video/mp4", "video/webm").WithThreshold(1000000),
	}
	if !reflect.DeepEqual(h.Conversion, wantRules) {
		t.Errorf("conversion = %+v, want %+v", h.Conversion, wantRules)
	}
	if b, ok := Resolve(h.MaxDimensions, mp4Video); !ok || b.Rects[0] != (Rect{W: 512, H: 512}) {
		t.Errorf("max_dimensions = %+v, %v", b, ok)
	}
	if h.Quality() != 90 || h.MaxBitrate != 1500000 {
		t.Errorf("quality/max bitrate = %d/%v", h.Quality(), h.MaxBitrate)
	}
	if h.PowerFormulaCoordinate == nil || h.PowerFormulaCoordinate.EdgeLength != 720 {
		t.Errorf("coordinate = %+v", h.PowerFormulaCoordinate)
	}
	if h.Thumbnail == nil || h.Thumbnail.Axis != "height" || !h.Thumbnail.Exceeded(100, 129) {
		t.Errorf("thumbnail = %+v", h.Thumbnail)
	}
	if h.ExifDir() != "metadata" {
		t.Errorf("ExifDir() = %q, want metadata", h.ExifDir())
	}
}

func TestParsePolicyErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "no fields",
			doc:     "fields: {}",
			wantErr: "no fields",
		},
		{
			name:    "missing collection",
			doc:     "fields: {a: {validation: {}}}",
			wantErr: "collection is required",
		},
		{
			name:    "unknown selector",
			doc:     "fields: {a: {collection: a, validation: {file_type: [pictures]}}}",
			wantErr: `unknown selector "pictures"`,
		},
		{
			name:    "bad aspect ratio",
			doc:     `fields: {a: {collection: a, validation: {aspect_ratio: "x:y"}}}`,
			wantErr: "aspect ratio",
		},
		{
			name:    "unsupported conversion target",
			doc:     "fields: {a: {collection: a, hosting_limits: {conversion: [[image, image/webp]]}}}",
			wantErr: "not a supported MIME type",
		},
		{
			name:    "threshold not last",
			doc:     "fields: {a: {collection: a, hosting_limits: {conversion: [[image, 5, image/jpeg]]}}}",
			wantErr: "threshold must be the last entry",
		},
		{
			name:    "bad thumbnail axis",
			doc:     "fields: {a: {collection: a, hosting_limits: {thumbnail: {axis: depth, size: 5, directory: t}}}}",
			wantErr: "thumbnail axis",
		},
		{
			name:    "bad rectangle",
			doc:     "fields: {a: {collection: a, hosting_limits: {max_dimensions: [1, 2, 3]}}}",
			wantErr: "dimension bound",
		},
		{
			name:    "collection escapes media root",
			doc:     "fields: {a: {collection: ../etc}}",
			wantErr: "single directory name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tt.doc))
			if err == nil {
				t.Fatalf("ParsePolicy() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultPolicyRoundTrip(t *testing.T) {
	def := DefaultPolicy()
	if err := def.Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}

	data, err := def.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	back, err := ParsePolicy(data)
	if err != nil {
		t.Fatalf("ParsePolicy(marshalled default) error = %v\n%s", err, data)
	}
	if !reflect.DeepEqual(def, back) {
		t.Errorf("round trip mismatch\nwant %+v\ngot  %+v\nyaml:\n%s", def, back, data)
	}
}

func TestDefaultPolicyUploadField(t *testing.T) {
	f, ok := DefaultPolicy().Field("upload")
	if !ok {
		t.Fatal("upload field missing")
	}
	if size, _ := Resolve(f.Validation.MaxSize, mp4Video); size != 104857600 {
		t.Errorf("video max size = %d", size)
	}
	if size, _ := Resolve(f.Validation.MaxSize, jpegImage); size != 10485760 {
		t.Errorf("image max size = %d", size)
	}
	if f.HostingLimits.Thumbnail.Directory != "thumbnails" || f.HostingLimits.PosterDirectory != "posters" {
		t.Errorf("artifact directories = %+v / %q", f.HostingLimits.Thumbnail, f.HostingLimits.PosterDirectory)
	}
}
