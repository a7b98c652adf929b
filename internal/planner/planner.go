package planner

import (
	"fmt"
	"math"

	"media-ingest/internal/limits"
	"media-ingest/internal/mediatypes"
	"media-ingest/internal/metadata"
)

// highFPS is the frame rate above which the high_fps_multiplier applies.
const highFPS = 48

// powerLaw is the exponent relating frame area to bitrate.
const powerLaw = 0.75

// Dimensions is a target frame size in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

func (d Dimensions) area() float64 {
	return float64(d.Width) * float64(d.Height)
}

// Plan is the transformation an upload needs. Nil fields mean "leave as is".
type Plan struct {
	// SaveTypes lists target MIME types; the first is the canonical output.
	SaveTypes     []string    `json:"saveTypes,omitempty"`
	NewDimensions *Dimensions `json:"newDimensions,omitempty"`
	// GIFDimensions applies only to a GIF produced from a non-GIF source.
	GIFDimensions *Dimensions `json:"gifDimensions,omitempty"`
	// Bitrate is the ffmpeg bitrate such as "2500k"; empty for non-video.
	Bitrate    string  `json:"bitrate,omitempty"`
	BitrateBPS float64 `json:"bitrateBps,omitempty"`
	// NeedsBitrateLowering is set when the video must be re-encoded at
	// Bitrate even if nothing else changes.
	NeedsBitrateLowering bool        `json:"needsBitrateLowering"`
	Thumbnail            *Dimensions `json:"thumbnail,omitempty"`
	ThumbnailBitrate     string      `json:"thumbnailBitrate,omitempty"`
}

// Converts reports whether the file must be saved in other formats.
func (p Plan) Converts() bool { return len(p.SaveTypes) > 0 }

// Resizes reports whether the file must be scaled down.
func (p Plan) Resizes() bool { return p.NewDimensions != nil }

// Targets reports whether mimeType is one of the planned formats.
func (p Plan) Targets(mimeType string) bool {
	for _, t := range p.SaveTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// Make computes the plan for meta under hl. meta is not modified.
func Make(meta *metadata.MediaMetadata, hl limits.HostingLimits) Plan {
	var p Plan
	p.SaveTypes = SaveTypes(meta, hl.Conversion)

	if !hl.MaxDimensions.IsZero() && meta.HasDimensions() {
		if bound, ok := limits.Resolve(hl.MaxDimensions, meta.Subject()); ok {
			if d, resize := FitWithin(meta.Width, meta.Height, bound); resize {
				p.NewDimensions = &d
			}
		}
		p.GIFDimensions = gifDimensions(meta, hl.MaxDimensions, p.SaveTypes)
	}

	if mediatypes.Category(meta.MimeType) == "video" {
		if bps, lower, ok := Bitrate(meta, hl, p.NewDimensions); ok {
			p.BitrateBPS = bps
			p.Bitrate = FormatBitrate(bps)
			p.NeedsBitrateLowering = lower
		}
	}

	if hl.Thumbnail != nil && meta.HasDimensions() {
		w, h := meta.Width, meta.Height
		if p.NewDimensions != nil {
			w, h = p.NewDimensions.Width, p.NewDimensions.Height
		}
		if hl.Thumbnail.Exceeded(w, h) {
			thumb := ThumbnailDimensions(w, h, *hl.Thumbnail)
			p.Thumbnail = &thumb
			if meta.MotionType == mediatypes.MotionVideo {
				p.ThumbnailBitrate = ThumbnailBitrate(meta, hl, thumb)
			}
		}
	}
	return p
}

// SaveTypes resolves the conversion rules for meta. It returns nil when no
// rule matches or the matching rule is an exemption.
func SaveTypes(meta *metadata.MediaMetadata, rules []limits.ConversionRule) []string {
	applicable := make(map[string]limits.ConversionRule, len(rules))
	for _, r := range rules {
		if r.AppliesToSize(meta.FileSize) {
			// Later rules for the same source replace earlier ones.
			applicable[r.From] = r
		}
	}
	rule, ok := limits.Resolve(limits.PerType(applicable), meta.Subject())
	if !ok || rule.IsExemption(meta.MimeType) {
		return nil
	}
	return append([]string(nil), rule.To...)
}

// FitWithin scales w x h down to fit bound, preserving the aspect ratio. The
// second result is false when the frame already fits; frames are never
// scaled up.
func FitWithin(w, h int, bound limits.DimensionBound) (Dimensions, bool) {
	r := bound.Choose(w, h)
	return fitRect(w, h, r.W, r.H)
}

func fitRect(w, h, bw, bh int) (Dimensions, bool) {
	if w <= bw && h <= bh {
		return Dimensions{}, false
	}
	sx := float64(bw) / float64(w)
	sy := float64(bh) / float64(h)
	if sx < sy {
		return Dimensions{Width: bw, Height: int(math.RoundToEven(float64(h) * sx))}, true
	}
	return Dimensions{Width: int(math.RoundToEven(float64(w) * sy)), Height: bh}, true
}

// gifDimensions returns separate dimensions for a GIF rendered from a non-GIF
// source, when max_dimensions has an image/gif or gif-animated entry.
func gifDimensions(meta *metadata.MediaMetadata, maxDims limits.Keyed[limits.DimensionBound], saveTypes []string) *Dimensions {
	if !maxDims.IsPerType() || meta.IsGIF() || !contains(saveTypes, mediatypes.MIMEGIF) {
		return nil
	}
	bound, ok := maxDims.Lookup(mediatypes.MIMEGIF)
	if !ok {
		bound, ok = maxDims.Lookup(mediatypes.SelectorGIFAnimated)
	}
	if !ok {
		return nil
	}
	if d, resize := FitWithin(meta.Width, meta.Height, bound); resize {
		return &d
	}
	return nil
}

// Bitrate computes the target video bitrate in bits per second. resized is
// the planned frame size or nil. The second result reports whether the
// video must be re-encoded to reach that bitrate; the third is false when
// the file has no usable duration.
func Bitrate(meta *metadata.MediaMetadata, hl limits.HostingLimits, resized *Dimensions) (float64, bool, bool) {
	if meta.Duration <= 0 || !meta.HasDimensions() {
		return 0, false, false
	}
	bitrate := float64(meta.FileSize) * 8 / meta.Duration
	lower := false

	frame := Dimensions{Width: meta.Width, Height: meta.Height}
	if resized != nil {
		bitrate *= math.Pow(resized.area()/frame.area(), powerLaw)
		lower = true
		frame = *resized
	}

	ceiling, capped := Ceiling(frame, meta.FPS, hl)
	if capped && bitrate > ceiling {
		bitrate = ceiling
		lower = true
		if resized == nil && hl.ReencodeMultiplier > 0 {
			bitrate *= hl.ReencodeMultiplier
		}
	}
	return bitrate, lower, true
}

// Ceiling returns the highest bitrate allowed for a frame at fps. The
// power-formula coordinate gives the ceiling for a frame's area, raised for
// high frame rates; max_bitrate then caps it absolutely. The second result
// is false when hl sets neither.
func Ceiling(frame Dimensions, fps float64, hl limits.HostingLimits) (float64, bool) {
	ceiling, capped := 0.0, false
	if c := hl.PowerFormulaCoordinate; c != nil && c.EdgeLength > 0 {
		reference := c.EdgeLength * c.EdgeLength * 16 / 9
		ceiling = math.Pow(frame.area()/reference, powerLaw) * c.Bitrate
		capped = true
		if fps > highFPS && hl.HighFPSMultiplier > 0 {
			ceiling *= hl.HighFPSMultiplier
		}
	}
	if hl.MaxBitrate > 0 && (!capped || hl.MaxBitrate < ceiling) {
		ceiling, capped = hl.MaxBitrate, true
	}
	return ceiling, capped
}

// FormatBitrate renders bits per second as whole kbps, rounded up and never zero.
func FormatBitrate(bps float64) string {
	kbps := int64(math.Ceil(bps / 1000))
	if kbps < 1 {
		kbps = 1
	}
	return fmt.Sprintf("%dk", kbps)
}

// ThumbnailDimensions scales w x h so the thumbnail axis has the configured
// length. The other axis is truncated.
func ThumbnailDimensions(w, h int, t limits.Thumbnail) Dimensions {
	var d Dimensions
	if t.Axis == "height" {
		d = Dimensions{Width: int(float64(t.Size) / float64(h) * float64(w)), Height: t.Size}
	} else {
		d = Dimensions{Width: t.Size, Height: int(float64(t.Size) / float64(w) * float64(h))}
	}
	d.Width = max(d.Width, 1)
	d.Height = max(d.Height, 1)
	return d
}

// ThumbnailBitrate is the bitrate for a video thumbnail of size thumb, using
// the same rules as a resize.
func ThumbnailBitrate(meta *metadata.MediaMetadata, hl limits.HostingLimits, thumb Dimensions) string {
	bps, _, ok := Bitrate(meta, hl, &thumb)
	if !ok {
		return ""
	}
	return FormatBitrate(bps)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
