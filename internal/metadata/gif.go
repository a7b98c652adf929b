package metadata

import (
	"fmt"
	"image/gif"
	"os"
)

// gifDefaultFPS is assumed when every frame delay is zero.
const gifDefaultFPS = 10.0

type gifInfo struct {
	Width, Height int
	Frames        int
	// Duration in seconds; zero for single-frame GIFs.
	Duration float64
}

func readGIF(path string) (*gifInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("decode gif: %w", err)
	}
	info := &gifInfo{
		Width:  g.Config.Width,
		Height: g.Config.Height,
		Frames: len(g.Image),
	}
	if (info.Width == 0 || info.Height == 0) && info.Frames > 0 {
		b := g.Image[0].Bounds()
		info.Width, info.Height = b.Dx(), b.Dy()
	}
	if info.Frames > 1 {
		info.Duration = gifDuration(g.Delay, info.Frames)
	}
	return info, nil
}

// gifDuration sums per-frame delays (hundredths of a second). A total of zero
// means the author left timing to the browser, which plays at 10 fps.
func gifDuration(delays []int, frames int) float64 {
	total := 0
	for _, d := range delays {
		total += d
	}
	if total == 0 {
		return float64(frames) / gifDefaultFPS
	}
	return float64(total) / 100
}
