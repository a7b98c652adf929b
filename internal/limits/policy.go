package limits

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"media-ingest/internal/mediatypes"
)

// DefaultNameMaxLength bounds stored file names when a field does not set one.
const DefaultNameMaxLength = 100

// FieldPolicy is the complete upload policy for one form field.
type FieldPolicy struct {
	// Collection is the directory, relative to the media root, uploads are stored in.
	Collection    string         `yaml:"collection"`
	NameMaxLength int            `yaml:"name_max_length,omitempty"`
	Validation    ConstraintSpec `yaml:"validation"`
	HostingLimits HostingLimits  `yaml:"hosting_limits"`
}

// MaxNameLength returns the name length bound for the field.
func (f FieldPolicy) MaxNameLength() int {
	if f.NameMaxLength <= 0 {
		return DefaultNameMaxLength
	}
	return f.NameMaxLength
}

// Policy holds the field policies. It is built once at startup and only read afterward.
type Policy struct {
	Fields map[string]FieldPolicy `yaml:"fields"`
}

// Field returns the policy for the named field.
func (p *Policy) Field(name string) (FieldPolicy, bool) {
	f, ok := p.Fields[name]
	return f, ok
}

// FieldNames returns the configured field names in sorted order.
func (p *Policy) FieldNames() []string {
	names := make([]string, 0, len(p.Fields))
	for name := range p.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadPolicy reads and validates a YAML policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// ParsePolicy decodes and validates a YAML policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Marshal encodes the policy as YAML.
func (p *Policy) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// Validate checks the policy for values the pipeline cannot act on.
func (p *Policy) Validate() error {
	if len(p.Fields) == 0 {
		return errors.New("policy defines no fields")
	}
	var errs []error
	for _, name := range p.FieldNames() {
		if err := p.Fields[name].validate(); err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (f FieldPolicy) validate() error {
	var errs []error
	if f.Collection == "" {
		errs = append(errs, errors.New("collection is required"))
	} else if strings.ContainsAny(f.Collection, `/\`) || f.Collection == "." || f.Collection == ".." {
		errs = append(errs, fmt.Errorf("collection %q must be a single directory name", f.Collection))
	}
	if f.NameMaxLength != 0 && f.NameMaxLength < 8 {
		errs = append(errs, fmt.Errorf("name_max_length %d leaves no room for a random suffix", f.NameMaxLength))
	}

	v := f.Validation
	for _, sel := range v.FileType {
		if !isSelector(sel) {
			errs = append(errs, fmt.Errorf("file_type: unknown selector %q", sel))
		}
	}
	errs = append(errs, checkKeys("max_size", v.MaxSize.Keys())...)
	errs = append(errs, checkKeys("min_dimensions", v.MinDimensions.Keys())...)
	errs = append(errs, checkKeys("widest_aspect_ratio", v.WidestAspectRatio.Keys())...)
	errs = append(errs, checkKeys("narrowest_aspect_ratio", v.NarrowestAspectRatio.Keys())...)
	errs = append(errs, checkKeys("aspect_ratio", v.AspectRatio.Keys())...)
	if v.MinDuration > 0 && v.MaxDuration > 0 && v.MinDuration > v.MaxDuration {
		errs = append(errs, errors.New("min_duration exceeds max_duration"))
	}

	h := f.HostingLimits
	for i, rule := range h.Conversion {
		if !isSelector(rule.From) {
			errs = append(errs, fmt.Errorf("conversion[%d]: unknown source %q", i, rule.From))
		}
		for _, to := range rule.To {
			if to != rule.From && !mediatypes.IsSupported(to) {
				errs = append(errs, fmt.Errorf("conversion[%d]: target %q is not a supported MIME type", i, to))
			}
		}
	}
	errs = append(errs, checkKeys("max_dimensions", h.MaxDimensions.Keys())...)
	for _, key := range h.MaxDimensions.Keys() {
		b, _ := h.MaxDimensions.Lookup(key)
		errs = append(errs, checkMaxBound(key, b)...)
	}
	if !h.MaxDimensions.IsPerType() && !h.MaxDimensions.IsZero() {
		b, _ := Resolve(h.MaxDimensions, Subject{})
		errs = append(errs, checkMaxBound("max_dimensions", b)...)
	}
	if h.JPEGQuality < 0 || h.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality %d out of range 1-100", h.JPEGQuality))
	}
	if c := h.PowerFormulaCoordinate; c != nil && (c.Bitrate <= 0 || c.EdgeLength <= 0) {
		errs = append(errs, errors.New("power_formula_coordinate needs a positive bitrate and edge_length"))
	}
	if h.MaxBitrate < 0 || h.HighFPSMultiplier < 0 || h.ReencodeMultiplier < 0 {
		errs = append(errs, errors.New("bitrate settings must not be negative"))
	}
	if t := h.Thumbnail; t != nil {
		if t.Axis != "width" && t.Axis != "height" {
			errs = append(errs, fmt.Errorf("thumbnail axis %q must be width or height", t.Axis))
		}
		if t.Size <= 0 || t.Directory == "" {
			errs = append(errs, errors.New("thumbnail needs a positive size and a directory"))
		}
	}
	return errors.Join(errs...)
}

func checkMaxBound(key string, b DimensionBound) []error {
	for _, r := range b.Rects[:boundRects(b)] {
		if r.W <= 0 || r.H <= 0 {
			return []error{fmt.Errorf("max_dimensions %s: rectangle %s must be positive", key, r)}
		}
	}
	return nil
}

func boundRects(b DimensionBound) int {
	if b.Kind == BoundLShaped {
		return 2
	}
	return 1
}

func checkKeys(setting string, keys []string) []error {
	var errs []error
	for _, key := range keys {
		if !isSelector(key) {
			errs = append(errs, fmt.Errorf("%s: unknown selector %q", setting, key))
		}
	}
	return errs
}

// isSelector reports whether s can key a policy mapping.
func isSelector(s string) bool {
	switch s {
	case string(mediatypes.MotionImage), string(mediatypes.MotionVideo), string(mediatypes.MotionFile),
		mediatypes.SelectorGIFStill, mediatypes.SelectorGIFAnimated, mediatypes.SelectorAll:
		return true
	}
	return mediatypes.IsSupported(s)
}

// DefaultPolicy returns the built-in policy used when no POLICY_FILE is configured.
func DefaultPolicy() *Policy {
	portraitLandscape := LShapedBound(Rect{W: 1920, H: 1200}, Rect{W: 1080, H: 1920})
	return &Policy{Fields: map[string]FieldPolicy{
		"upload": {
			Collection:    "uploads",
			NameMaxLength: DefaultNameMaxLength,
			Validation: ConstraintSpec{
				FileType:    []string{"image", "video"},
				MaxSize:     PerType(map[string]int64{"image": 10 << 20, "video": 100 << 20}),
				MaxFPS:      60,
				MaxDuration: 600,
			},
			HostingLimits: HostingLimits{
				Conversion: []ConversionRule{
					Convert("image", mediatypes.MIMEJPEG),
					Convert(mediatypes.MIMEPNG, mediatypes.MIMEPNG).WithThreshold(1 << 20),
					Convert("video", mediatypes.MIMEMP4),
				},
				MaxDimensions: PerType(map[string]DimensionBound{
					"image": portraitLandscape,
					"video": portraitLandscape,
				}),
				JPEGQuality:            95,
				PowerFormulaCoordinate: &Coordinate{Bitrate: 4000000, EdgeLength: 1080},
				HighFPSMultiplier:      1.5,
				ReencodeMultiplier:     0.75,
				Preset:                 "slow",
				Thumbnail:              &Thumbnail{Axis: "width", Size: 600, Directory: "thumbnails"},
				PosterDirectory:        "posters",
				ExifDirectory:          DefaultExifDirectory,
			},
		},
		"feedback": {
			Collection: "feedback_screenshots",
			Validation: ConstraintSpec{
				FileType: []string{"image"},
				MaxSize:  PerType(map[string]int64{"image": 10 << 20}),
			},
			HostingLimits: HostingLimits{
				Conversion: []ConversionRule{
					Convert("image", mediatypes.MIMEPNG),
					Convert(mediatypes.MIMEJPEG, mediatypes.MIMEJPEG),
				},
				JPEGQuality: 95,
			},
		},
	}}
}
