// Package metadata inspects uploaded files and describes them as
// MediaMetadata.
//
// The MIME type always comes from the file's content. Images are read with
// the standard decoders plus golang.org/x/image, JPEG EXIF is decoded by a
// small IFD walker that follows the Exif and GPS sub-IFDs, and video is
// inspected with ffprobe.
package metadata
