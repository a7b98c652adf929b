package limits

// ConstraintSpec describes which uploads a field accepts at all.
// Zero values mean "no constraint".
type ConstraintSpec struct {
	// FileType lists accepted selectors: motion types, exact MIME types,
	// gif-still, gif-animated, or all.
	FileType             []string              `yaml:"file_type,omitempty"`
	MaxSize              Keyed[int64]          `yaml:"max_size,omitempty"`
	ExactWidth           int                   `yaml:"exact_width,omitempty"`
	ExactHeight          int                   `yaml:"exact_height,omitempty"`
	MinDimensions        Keyed[DimensionBound] `yaml:"min_dimensions,omitempty"`
	WidestAspectRatio    Keyed[AspectRatio]    `yaml:"widest_aspect_ratio,omitempty"`
	NarrowestAspectRatio Keyed[AspectRatio]    `yaml:"narrowest_aspect_ratio,omitempty"`
	AspectRatio          Keyed[AspectRatio]    `yaml:"aspect_ratio,omitempty"`
	// Durations are in seconds.
	MaxDuration float64 `yaml:"max_duration,omitempty"`
	MinDuration float64 `yaml:"min_duration,omitempty"`
	MaxFPS      float64 `yaml:"max_fps,omitempty"`
}

// Coordinate anchors the power-of-0.75 bitrate curve: a 16:9 frame with the
// given short edge may use Bitrate bits per second.
type Coordinate struct {
	Bitrate    float64 `yaml:"bitrate"`
	EdgeLength float64 `yaml:"edge_length"`
}

// Thumbnail configures thumbnail generation.
type Thumbnail struct {
	// Axis is "width" or "height".
	Axis      string `yaml:"axis"`
	Size      int    `yaml:"size"`
	Directory string `yaml:"directory"`
}

// Exceeded reports whether a w x h file is larger than the thumbnail along its axis.
func (t Thumbnail) Exceeded(w, h int) bool {
	if t.Axis == "height" {
		return h > t.Size
	}
	return w > t.Size
}

// HostingLimits describes how an accepted upload is transformed before it is stored.
type HostingLimits struct {
	Conversion    []ConversionRule      `yaml:"conversion,omitempty"`
	MaxDimensions Keyed[DimensionBound] `yaml:"max_dimensions,omitempty"`
	// JPEGQuality of 0 means DefaultJPEGQuality.
	JPEGQuality            int         `yaml:"jpeg_quality,omitempty"`
	PowerFormulaCoordinate *Coordinate `yaml:"power_formula_coordinate,omitempty"`
	// MaxBitrate is an absolute cap in bits per second; 0 disables it.
	MaxBitrate         float64    `yaml:"max_bitrate,omitempty"`
	HighFPSMultiplier  float64    `yaml:"high_fps_multiplier,omitempty"`
	ReencodeMultiplier float64    `yaml:"reencode_multiplier,omitempty"`
	Thumbnail          *Thumbnail `yaml:"thumbnail,omitempty"`
	PosterDirectory    string     `yaml:"poster_directory,omitempty"`
	ExifDirectory      string     `yaml:"exif_directory,omitempty"`
	Preset             string     `yaml:"preset,omitempty"`
}

// DefaultJPEGQuality is used when a policy does not set jpeg_quality.
const DefaultJPEGQuality = 75

// DefaultExifDirectory is where raw EXIF blobs go when exif_directory is unset.
const DefaultExifDirectory = "metadata"

// Quality returns the JPEG quality to encode with.
func (h HostingLimits) Quality() int {
	if h.JPEGQuality <= 0 {
		return DefaultJPEGQuality
	}
	return h.JPEGQuality
}

// ExifDir returns the EXIF blob directory name.
func (h HostingLimits) ExifDir() string {
	if h.ExifDirectory == "" {
		return DefaultExifDirectory
	}
	return h.ExifDirectory
}
