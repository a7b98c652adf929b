package transcoder

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"media-ingest/internal/planner"
)

// evenFilter rounds odd frame sizes down. libx264 with yuv420p rejects odd
// widths and heights.
const evenFilter = "scale=trunc(iw/2)*2:trunc(ih/2)*2"

// encodeSpec describes one ffmpeg re-encode. The output container follows
// the extension of Out.
type encodeSpec struct {
	In      string
	Out     string
	Bitrate string
	Preset  string
	// FPS only applies to GIF output.
	FPS   float64
	Scale *planner.Dimensions
}

func baseArgs(in string) []string {
	return []string{"-y", "-hide_banner", "-loglevel", "error", "-i", in}
}

func scaleFilter(d *planner.Dimensions) string {
	return fmt.Sprintf("scale=%d:%d", d.Width, d.Height)
}

func encodeArgs(s encodeSpec) []string {
	args := baseArgs(s.In)

	switch strings.ToLower(filepath.Ext(s.Out)) {
	case ".gif":
		var filters []string
		if s.FPS > 0 {
			filters = append(filters, "fps="+strconv.FormatFloat(s.FPS, 'f', -1, 64))
		}
		if s.Scale != nil {
			filters = append(filters, scaleFilter(s.Scale))
		}
		if len(filters) > 0 {
			args = append(args, "-vf", strings.Join(filters, ","))
		}
		// GIF has no bitrate control
		return append(args, s.Out)

	case ".mp4":
		filters := []string{evenFilter}
		if s.Scale != nil {
			filters = []string{scaleFilter(s.Scale), evenFilter}
		}
		args = append(args,
			"-c:v", "libx264",
			"-pix_fmt", "yuv420p",
			"-vf", strings.Join(filters, ","),
		)
		if s.Preset != "" {
			args = append(args, "-preset", s.Preset)
		}
		args = appendBitrate(args, s.Bitrate)
		args = append(args, "-c:a", "aac")

	default:
		if s.Scale != nil {
			args = append(args, "-vf", scaleFilter(s.Scale))
		}
		args = appendBitrate(args, s.Bitrate)
	}

	return append(args, s.Out)
}

func appendBitrate(args []string, bitrate string) []string {
	if bitrate == "" {
		return args
	}
	return append(args, "-b:v", bitrate)
}

// rotateArgs re-encodes in with its display rotation applied to the pixels.
// Audio is copied untouched.
func rotateArgs(in, out, bitrate string) []string {
	args := append(baseArgs(in), "-c:a", "copy")
	if bitrate != "" {
		args = append(args, "-b:v", bitrate, "-bufsize", bitrate)
	}
	return append(args, "-metadata:s:v:0", "rotate=0", out)
}

// posterArgs grabs the first frame of in as a JPEG.
func posterArgs(in, out string) []string {
	return append(baseArgs(in), "-frames:v", "1", "-q:v", "2", out)
}

// faststartArgs remuxes an MP4 with the moov atom up front.
func faststartArgs(in, out string) []string {
	return append(baseArgs(in), "-c", "copy", "-movflags", "+faststart", out)
}
