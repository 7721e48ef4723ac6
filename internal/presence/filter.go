// Package presence turns per-frame face candidates into a debounced
// "someone else is watching" signal.
//
// A Worker owns the camera and the detector. Each cycle it preprocesses a
// frame, filters the detector output, feeds the face count into a Debouncer
// and publishes the annotated frame together with the state. Consumers read
// the published record through Latest or Snapshot.
package presence

import (
	"time"

	"github.com/ayusman/moyu/internal/capture"
	"github.com/ayusman/moyu/internal/config"
	"github.com/ayusman/moyu/internal/detector"
)

// Settings is the immutable per-worker configuration.
type Settings struct {
	ConfThreshold float64
	MinAreaRatio  float64
	MaxAreaRatio  float64
	OnFrames      int
	OffFrames     int
	MinFaces      int
	Preprocess    capture.PreprocessSettings
	DebugDraw     bool
	LoopInterval  time.Duration
}

// NewSettings derives worker settings from the application configuration.
func NewSettings(cfg config.Config) Settings {
	cam := cfg.Camera
	return Settings{
		ConfThreshold: cam.MinConfidence,
		MinAreaRatio:  cam.MinAreaRatio,
		MaxAreaRatio:  cam.MaxAreaRatio,
		OnFrames:      cam.DebounceOn,
		OffFrames:     cam.DebounceOff,
		MinFaces:      cfg.MinFaces,
		Preprocess: capture.PreprocessSettings{
			Contrast:   cam.Contrast,
			Brightness: cam.Brightness,
			LowLight:   cam.LowLight,
			Equalize:   cam.HistEqualization,
		},
		DebugDraw:    cam.DebugDraw,
		LoopInterval: cam.LoopInterval(),
	}
}

// Detection is a valid face region in pixel coordinates.
type Detection struct {
	X, Y          int
	Width, Height int
	Score         float64
}

// Area returns the region area in pixels.
func (d Detection) Area() int {
	return d.Width * d.Height
}

// FilterCandidates applies the confidence, clamping and area-ratio rules to
// raw detector output for a width x height frame.
//
// A candidate survives when its score is at least s.ConfThreshold and its
// clamped box covers between s.MinAreaRatio and s.MaxAreaRatio of the frame,
// both bounds inclusive.
func FilterCandidates(candidates []detector.Candidate, width, height int, s Settings) []Detection {
	if width <= 0 || height <= 0 {
		return nil
	}

	frameArea := float64(width * height)
	valid := make([]Detection, 0, len(candidates))

	for _, c := range candidates {
		if c.Score < s.ConfThreshold {
			continue
		}

		d := toPixels(c, width, height)
		ratio := float64(d.Area()) / frameArea
		if ratio < s.MinAreaRatio || ratio > s.MaxAreaRatio {
			continue
		}
		valid = append(valid, d)
	}

	return valid
}

// toPixels converts a candidate box to pixels, truncating toward zero, and
// clamps it so the result is never empty nor outside the frame.
func toPixels(c detector.Candidate, width, height int) Detection {
	b := c.Box
	var x, y, bw, bh int
	if b.Relative {
		x = int(b.X * float64(width))
		y = int(b.Y * float64(height))
		bw = int(b.Width * float64(width))
		bh = int(b.Height * float64(height))
	} else {
		x, y, bw, bh = int(b.X), int(b.Y), int(b.Width), int(b.Height)
	}

	x = clamp(x, 0, width-1)
	y = clamp(y, 0, height-1)
	bw = clamp(bw, 1, width-x)
	bh = clamp(bh, 1, height-y)

	return Detection{X: x, Y: y, Width: bw, Height: bh, Score: c.Score}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
