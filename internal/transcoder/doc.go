// Package transcoder carries out a processing plan on a stored upload.
//
// Images are re-rendered in process. Videos and animated GIFs go through
// ffmpeg: rotation, bitrate lowering, resizing, format conversion, posters,
// faststart and thumbnails. Every output is written to a staging directory
// inside the collection and moved into place only when the whole plan
// succeeded, so a failure leaves the collection as it was.
//
// Artifact paths follow Layout; Rename moves all of them together.
package transcoder
