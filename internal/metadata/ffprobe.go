package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"media-ingest/internal/mediaerr"
	"media-ingest/internal/metrics"
)

// Prober inspects a media container track by track.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// ProbeResult is the subset of container information the pipeline uses.
type ProbeResult struct {
	FormatName string
	Duration   float64
	Streams    []Stream
}

// Stream is one track of a container.
type Stream struct {
	CodecType string
	CodecName string
	Width     int
	Height    int
	FrameRate float64
	// Rotation in degrees as stored by the recording device.
	Rotation int
	Duration float64
}

// FirstVideo returns the first video track.
func (r *ProbeResult) FirstVideo() (Stream, bool) {
	for _, s := range r.Streams {
		if s.CodecType == "video" {
			return s, true
		}
	}
	return Stream{}, false
}

// HasAudio reports whether any track is audio.
func (r *ProbeResult) HasAudio() bool {
	for _, s := range r.Streams {
		if s.CodecType == "audio" {
			return true
		}
	}
	return false
}

// FFProbe runs the ffprobe binary.
type FFProbe struct {
	// Path is the ffprobe executable; empty means "ffprobe" from PATH.
	Path string
}

type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string            `json:"codec_type"`
		CodecName    string            `json:"codec_name"`
		Width        int               `json:"width"`
		Height       int               `json:"height"`
		AvgFrameRate string            `json:"avg_frame_rate"`
		RFrameRate   string            `json:"r_frame_rate"`
		Duration     string            `json:"duration"`
		Tags         map[string]string `json:"tags"`
		SideDataList []struct {
			SideDataType string  `json:"side_data_type"`
			Rotation     float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
}

// Probe implements Prober.
func (p FFProbe) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	bin := p.Path
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	metrics.ExternalProcessDuration.WithLabelValues("ffprobe").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &mediaerr.TranscodeIOError{Op: "probe", Tool: "ffprobe", Output: stderr.String(), Err: err}
	}
	return ParseFFProbe(stdout.Bytes())
}

// ParseFFProbe decodes ffprobe's JSON output.
func ParseFFProbe(data []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	res := &ProbeResult{FormatName: out.Format.FormatName}
	res.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	for _, s := range out.Streams {
		st := Stream{
			CodecType: s.CodecType,
			CodecName: s.CodecName,
			Width:     s.Width,
			Height:    s.Height,
			FrameRate: parseRate(s.AvgFrameRate),
		}
		if st.FrameRate == 0 {
			st.FrameRate = parseRate(s.RFrameRate)
		}
		st.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		if rot, ok := s.Tags["rotate"]; ok {
			if f, err := strconv.ParseFloat(rot, 64); err == nil {
				st.Rotation = int(f)
			}
		} else {
			for _, sd := range s.SideDataList {
				if sd.SideDataType == "Display Matrix" {
					st.Rotation = int(math.Round(sd.Rotation))
					break
				}
			}
		}
		res.Streams = append(res.Streams, st)
	}
	if res.Duration == 0 {
		if v, ok := res.FirstVideo(); ok {
			res.Duration = v.Duration
		}
	}
	return res, nil
}

// parseRate reads "30000/1001" or "25" style frame rates.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// containerMIME maps a probed container to a definite video MIME type. It
// returns "" when the file has no video track or the container is unknown.
func containerMIME(r *ProbeResult) string {
	v, ok := r.FirstVideo()
	if !ok {
		return ""
	}
	formats := strings.Split(r.FormatName, ",")
	has := func(name string) bool {
		for _, f := range formats {
			if f == name {
				return true
			}
		}
		return false
	}
	switch {
	case has("webm") && (v.CodecName == "vp8" || v.CodecName == "vp9" || v.CodecName == "av1"):
		return "video/webm"
	case has("matroska"):
		return "video/x-matroska"
	case has("ogg"):
		return "video/ogg"
	case has("asf"):
		return "video/x-ms-asf"
	case has("avi"):
		return "video/x-msvideo"
	case has("flv"):
		return "video/x-flv"
	case has("mp4"):
		return "video/mp4"
	case has("mpeg"):
		return "video/mpeg"
	}
	return ""
}
