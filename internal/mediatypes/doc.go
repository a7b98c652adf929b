// Package mediatypes holds the site-wide table of accepted media types and
// the vocabulary shared by the ingestion pipeline.
//
// This package is a dependency-free foundation that can be imported by other
// packages without creating import cycles.
//
// # Supported Types
//
// PreferredExtensions maps each accepted MIME type to the extension its
// files are stored under (image/jpeg is stored as .jpg, video/x-ms-wmv as
// .asf). A sniffed type outside this table is rejected outright.
//
//	mimeType := mediatypes.CanonicalMIME(sniffed)
//	if !mediatypes.IsSupported(mimeType) {
//	    // reject
//	}
//
// # Motion Types
//
// Uploads are classified as MotionImage, MotionVideo, or MotionFile. An
// animated GIF is a MotionVideo, so a "video" rule also covers it; the
// gif-still and gif-animated selectors address GIFs specifically.
//
// # Extension Checks
//
// RecognizedImageExtensions and RecognizedVideoExtensions list the
// extensions a file of each category may arrive with. ExtensionMatchesCategory
// combines them with the MIME type's category.
package mediatypes
