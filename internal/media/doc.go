// Package media renders still images for the transcoder.
//
// Rendering always bakes the EXIF orientation into the pixels and drops all
// metadata from the output. libvips (through govips) is used when it has been
// initialised with InitVips; otherwise images are rendered in-process with
// the imaging library. The output format follows the destination extension.
package media
