package mediatypes

import (
	"sort"
	"strings"
)

// MotionType classifies an upload by whether it has more than one rendered frame.
type MotionType string

const (
	// MotionImage is a still picture, including single-frame GIFs.
	MotionImage MotionType = "image"
	// MotionVideo is a true video or an animated GIF.
	MotionVideo MotionType = "video"
	// MotionFile is anything else.
	MotionFile MotionType = "file"
)

// Selector tokens usable as keys in constraint and hosting-limit mappings,
// alongside exact MIME types and the motion types above.
const (
	SelectorGIFStill    = "gif-still"
	SelectorGIFAnimated = "gif-animated"
	SelectorAll         = "all"
)

// Well-known MIME types referenced by the pipeline.
const (
	MIMEGIF         = "image/gif"
	MIMEJPEG        = "image/jpeg"
	MIMEPNG         = "image/png"
	MIMETIFF        = "image/tiff"
	MIMEMP4         = "video/mp4"
	MIMEWebM        = "video/webm"
	MIMEOgg         = "video/ogg"
	MIMEMatroska    = "video/x-matroska"
	MIMEASF         = "video/x-ms-asf"
	MIMEOctetStream = "application/octet-stream"
	MIMEOggGeneric  = "application/ogg"
)

// PreferredExtensions maps every MIME type the site accepts to the extension
// files of that type are stored under.
var PreferredExtensions = map[string]string{
	"image/gif":        ".gif",
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/tiff":       ".tif",
	"video/x-msvideo":  ".avi",
	"video/x-flv":      ".flv",
	"video/x-matroska": ".mkv",
	"video/quicktime":  ".mov",
	"video/mp4":        ".mp4",
	"video/mpeg":       ".mpg",
	"video/ogg":        ".ogv",
	"video/webm":       ".webm",
	"video/x-ms-asf":   ".asf",
	"video/x-ms-wmv":   ".asf",
}

// mimeAliases normalises names reported by different sniffers to the keys of
// PreferredExtensions.
var mimeAliases = map[string]string{
	"image/tif":              "image/tiff",
	"image/pjpeg":            "image/jpeg",
	"video/avi":              "video/x-msvideo",
	"video/msvideo":          "video/x-msvideo",
	"video/vnd.avi":          "video/x-msvideo",
	"video/mp2p":             "video/mpeg",
	"video/mpv":              "video/mpeg",
	"application/vnd.ms-asf": "video/x-ms-asf",
	"video/matroska":         "video/x-matroska",
	"application/x-matroska": "video/x-matroska",
	"video/x-ogg":            "video/ogg",
}

// RecognizedImageExtensions are the extensions an image upload may arrive with.
var RecognizedImageExtensions = map[string]bool{
	".gif":  true,
	".jpg":  true,
	".jpe":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
}

// RecognizedVideoExtensions are the extensions a video upload may arrive with.
// GIF appears here too because an animated GIF is a video for policy purposes.
var RecognizedVideoExtensions = map[string]bool{
	".gif":  true,
	".asf":  true,
	".wmv":  true,
	".avi":  true,
	".flv":  true,
	".mkv":  true,
	".mov":  true,
	".mp4":  true,
	".mpg":  true,
	".mpeg": true,
	".ogv":  true,
	".webm": true,
}

// CanonicalMIME lowercases m, drops any parameters, and resolves known aliases.
func CanonicalMIME(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	if alias, ok := mimeAliases[m]; ok {
		return alias
	}
	return m
}

// IsSupported reports whether the site accepts the MIME type at all.
func IsSupported(mimeType string) bool {
	_, ok := PreferredExtensions[mimeType]
	return ok
}

// PreferredExtension returns the storage extension for a supported MIME type.
func PreferredExtension(mimeType string) (string, bool) {
	ext, ok := PreferredExtensions[mimeType]
	return ext, ok
}

// MIMETypesForExtension lists the supported MIME types stored under ext.
func MIMETypesForExtension(ext string) []string {
	var types []string
	for m, e := range PreferredExtensions {
		if e == ext {
			types = append(types, m)
		}
	}
	sort.Strings(types)
	return types
}

// Category returns the type portion of a MIME type ("image", "video", ...).
func Category(mimeType string) string {
	if i := strings.IndexByte(mimeType, '/'); i >= 0 {
		return mimeType[:i]
	}
	return mimeType
}

// ExtensionMatchesCategory reports whether ext is a recognized extension for
// the MIME type's category. Categories other than image and video pass.
func ExtensionMatchesCategory(mimeType, ext string) bool {
	switch Category(mimeType) {
	case "image":
		return RecognizedImageExtensions[ext]
	case "video":
		return RecognizedVideoExtensions[ext]
	default:
		return true
	}
}

// ConvertibleImageTypes lists the supported image MIME types in a stable order.
func ConvertibleImageTypes() []string {
	return typesWithPrefix("image/")
}

// ConvertibleVideoTypes lists the supported video MIME types, led by GIF since
// animated GIFs are accepted wherever video is.
func ConvertibleVideoTypes() []string {
	return append([]string{MIMEGIF}, typesWithPrefix("video/")...)
}

func typesWithPrefix(prefix string) []string {
	var types []string
	for m := range PreferredExtensions {
		if strings.HasPrefix(m, prefix) {
			types = append(types, m)
		}
	}
	sort.Strings(types)
	return types
}

// contentTypes covers every extension the pipeline writes, including
// poster and thumbnail JPEGs.
var contentTypes = map[string]string{
	".gif":  "image/gif",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".avi":  "video/x-msvideo",
	".flv":  "video/x-flv",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".mp4":  "video/mp4",
	".mpg":  "video/mpeg",
	".ogv":  "video/ogg",
	".webm": "video/webm",
	".asf":  "video/x-ms-asf",
	".dat":  "application/octet-stream",
}

// GetMimeType returns the MIME type for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := contentTypes[ext]; ok {
		return mime
	}
	return MIMEOctetStream
}
