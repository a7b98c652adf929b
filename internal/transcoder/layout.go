package transcoder

import (
	"path/filepath"
	"strings"

	"media-ingest/internal/limits"
	"media-ingest/internal/mediatypes"
	"media-ingest/internal/metadata"
)

// Layout computes where an upload's artifacts live:
//
//	<collection>/<name><ext>
//	<collection>/<thumbnail dir>/<name><ext>
//	<collection>/<poster dir>/<name>.jpg
//	<collection>/<poster dir>/<thumbnail dir>/<name>.jpg
//	<collection>/<exif dir>/<name>.dat
type Layout struct {
	Dir  string
	Name string
	HL   limits.HostingLimits
}

// LayoutFor returns the layout of the primary file at path.
func LayoutFor(path string, hl limits.HostingLimits) Layout {
	base := filepath.Base(path)
	return Layout{
		Dir:  filepath.Dir(path),
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
		HL:   hl,
	}
}

// WithName returns the same layout for another name.
func (l Layout) WithName(name string) Layout {
	l.Name = name
	return l
}

// Primary is the path of the stored file with extension ext.
func (l Layout) Primary(ext string) string {
	return filepath.Join(l.Dir, l.Name+ext)
}

// Thumbnail is the thumbnail path, or "" when thumbnails are not configured.
func (l Layout) Thumbnail(ext string) string {
	if l.HL.Thumbnail == nil {
		return ""
	}
	return filepath.Join(l.Dir, l.HL.Thumbnail.Directory, l.Name+ext)
}

// Poster is the poster path, or "" when posters are not configured.
func (l Layout) Poster() string {
	if l.HL.PosterDirectory == "" {
		return ""
	}
	return filepath.Join(l.Dir, l.HL.PosterDirectory, l.Name+".jpg")
}

// PosterThumbnail is the poster thumbnail path, or "" unless both posters
// and thumbnails are configured.
func (l Layout) PosterThumbnail() string {
	if l.HL.PosterDirectory == "" || l.HL.Thumbnail == nil {
		return ""
	}
	return filepath.Join(l.Dir, l.HL.PosterDirectory, l.HL.Thumbnail.Directory, l.Name+".jpg")
}

// EXIF is the path of the raw EXIF blob.
func (l Layout) EXIF() string {
	return filepath.Join(l.Dir, l.HL.ExifDir(), l.Name+".dat")
}

// Paths lists every artifact path the upload may have, given the extensions
// of its stored formats. The first extension is the canonical one.
func (l Layout) Paths(exts []string) []string {
	var paths []string
	for _, ext := range exts {
		paths = append(paths, l.Primary(ext))
	}
	if len(exts) > 0 {
		paths = appendNonEmpty(paths, l.Thumbnail(exts[0]))
	}
	paths = appendNonEmpty(paths, l.Poster(), l.PosterThumbnail(), l.EXIF())
	return paths
}

func appendNonEmpty(list []string, paths ...string) []string {
	for _, p := range paths {
		if p != "" {
			list = append(list, p)
		}
	}
	return list
}

// Extensions lists the extensions of every stored format of meta, canonical first.
func Extensions(meta *metadata.MediaMetadata) []string {
	exts := []string{meta.Extension}
	for _, m := range meta.MimeTypes {
		ext, ok := mediatypes.PreferredExtension(m)
		if ok && !containsString(exts, ext) {
			exts = append(exts, ext)
		}
	}
	return exts
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
