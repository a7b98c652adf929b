package database

import "time"

// Alternate is one extra stored format of an upload.
type Alternate struct {
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Upload is the registry record of a stored upload.
type Upload struct {
	ID    string `json:"id"`
	Field string `json:"field"`
	Title string `json:"title,omitempty"`
	// FileName is the stored name without extension. It is unique
	// case-insensitively, and so is Slug.
	FileName   string  `json:"fileName"`
	Slug       string  `json:"slug"`
	Path       string  `json:"path"`
	MimeType   string  `json:"mimeType"`
	Extension  string  `json:"extension"`
	MotionType string  `json:"motionType"`
	FileSize   int64   `json:"fileSize"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	HasAudio   bool    `json:"hasAudio"`

	OriginalFileName        string `json:"originalFileName"`
	OriginalExtension       string `json:"originalExtension"`
	OriginalEXIFOrientation int    `json:"originalExifOrientation,omitempty"`

	Alternates []Alternate `json:"alternates,omitempty"`
	// Artifacts lists every file stored for the upload, canonical first.
	Artifacts []string `json:"artifacts"`
	// Checksum is the hex BLAKE2b-256 digest of the bytes as received.
	Checksum  string    `json:"checksum,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
