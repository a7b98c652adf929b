package metadata

import (
	"media-ingest/internal/limits"
	"media-ingest/internal/mediatypes"
)

// MediaMetadata describes one upload. It is created by the Extractor,
// corrected by the transcoder and finally copied into the stored record.
//
// Width and Height are always the displayed dimensions: EXIF orientations
// 5-8 and device-rotated video are already accounted for.
type MediaMetadata struct {
	MimeType          string                `json:"mimeType"`
	Extension         string                `json:"extension"`
	FileName          string                `json:"fileName"`
	OriginalFileName  string                `json:"originalFileName"`
	OriginalExtension string                `json:"originalExtension"`
	FileSize          int64                 `json:"fileSize"`
	Width             int                   `json:"width,omitempty"`
	Height            int                   `json:"height,omitempty"`
	Duration          float64               `json:"duration,omitempty"`
	FPS               float64               `json:"fps,omitempty"`
	HasAudio          bool                  `json:"hasAudio"`
	MotionType        mediatypes.MotionType `json:"motionType"`
	// OriginalEXIFOrientation is 0 when the file carried no orientation tag.
	OriginalEXIFOrientation int  `json:"originalExifOrientation,omitempty"`
	NeedsRotating           bool `json:"needsRotating,omitempty"`
	FrameCount              int  `json:"frameCount,omitempty"`

	// MimeTypes and Sizes list every stored format when more than one was
	// produced. The first entry is the canonical file.
	MimeTypes []string `json:"mimeTypes,omitempty"`
	Sizes     []int64  `json:"sizes,omitempty"`

	// EXIF may hold GPS coordinates and is never serialised.
	EXIF    map[string]any `json:"-"`
	RawEXIF []byte         `json:"-"`
}

// IsGIF reports whether the file is a GIF.
func (m *MediaMetadata) IsGIF() bool {
	return m.MimeType == mediatypes.MIMEGIF
}

// GIFSubtype returns gif-still, gif-animated, or "" for non-GIFs.
func (m *MediaMetadata) GIFSubtype() string {
	return m.Subject().GIFSubtype()
}

// Subject returns the selector subject used to resolve per-type policy values.
func (m *MediaMetadata) Subject() limits.Subject {
	return limits.Subject{MimeType: m.MimeType, Motion: m.MotionType}
}

// HasDimensions reports whether width and height were determined.
func (m *MediaMetadata) HasDimensions() bool {
	return m.Width > 0 && m.Height > 0
}

// HasDuration reports whether the file is timed media with a known duration.
func (m *MediaMetadata) HasDuration() bool {
	return m.Duration > 0
}

// Clone returns a deep copy.
func (m *MediaMetadata) Clone() *MediaMetadata {
	c := *m
	c.MimeTypes = append([]string(nil), m.MimeTypes...)
	c.Sizes = append([]int64(nil), m.Sizes...)
	c.RawEXIF = append([]byte(nil), m.RawEXIF...)
	if m.EXIF != nil {
		c.EXIF = make(map[string]any, len(m.EXIF))
		for k, v := range m.EXIF {
			c.EXIF[k] = v
		}
	}
	return &c
}

// MotionTypeFor classifies a file from its MIME type and frame count. Only
// GIFs use frameCount: more than one frame makes a GIF a video.
func MotionTypeFor(mimeType string, frameCount int) mediatypes.MotionType {
	switch mediatypes.Category(mimeType) {
	case "image":
		if mimeType == mediatypes.MIMEGIF && frameCount > 1 {
			return mediatypes.MotionVideo
		}
		return mediatypes.MotionImage
	case "video":
		return mediatypes.MotionVideo
	default:
		return mediatypes.MotionFile
	}
}
