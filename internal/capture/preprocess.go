package capture

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when Process is given a nil or empty Mat.
var ErrEmptyFrame = errors.New("empty frame")

// PreprocessSettings controls the deterministic per-frame correction.
type PreprocessSettings struct {
	// Contrast and Brightness apply out = in*Contrast + Brightness, saturated to [0,255].
	Contrast   float64
	Brightness float64
	// LowLight is the mean gray level below which a frame is too dark to run detection on.
	LowLight float64
	// Equalize enables histogram equalization of the gray channel on bright frames.
	Equalize bool
}

// Frame is a preprocessed camera frame.
type Frame struct {
	// Color is the mirrored, contrast corrected BGR image handed to the detector.
	Color gocv.Mat
	// Gray is the grayscale channel, equalized when Equalized is true.
	Gray       gocv.Mat
	Brightness float64
	Equalized  bool
	lowLight   float64
}

// Bright reports whether the frame passes the low-light gate.
func (f *Frame) Bright() bool {
	return f.Brightness >= f.lowLight
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Color.Cols() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Color.Rows() }

// Close releases both Mats.
func (f *Frame) Close() {
	f.Color.Close()
	f.Gray.Close()
}

// Preprocessor mirrors, corrects and measures raw camera frames.
// It has no state between frames and is safe for concurrent use.
type Preprocessor struct {
	settings PreprocessSettings
}

// NewPreprocessor creates a Preprocessor with the given settings.
func NewPreprocessor(s PreprocessSettings) *Preprocessor {
	return &Preprocessor{settings: s}
}

// Process runs the correction pipeline on raw, which is left untouched.
//
// Steps:
// 1. Mirror horizontally
// 2. out = in*contrast + brightness, clamped to the 8-bit range
// 3. Convert to grayscale and measure the mean brightness
// 4. If the frame is bright enough and equalization is on, equalize the gray channel
//
// The caller closes the returned Frame.
func (p *Preprocessor) Process(raw *gocv.Mat) (*Frame, error) {
	if raw == nil || raw.Empty() {
		return nil, ErrEmptyFrame
	}

	src := *raw
	if raw.Channels() == 1 {
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(*raw, &bgr, gocv.ColorGrayToBGR)
		src = bgr
	}

	mirrored := gocv.NewMat()
	defer mirrored.Close()
	gocv.Flip(src, &mirrored, 1)

	color := gocv.NewMat()
	mirrored.ConvertToWithParams(&color, gocv.MatTypeCV8UC3, float32(p.settings.Contrast), float32(p.settings.Brightness))

	gray := gocv.NewMat()
	gocv.CvtColor(color, &gray, gocv.ColorBGRToGray)

	frame := &Frame{
		Color:      color,
		Gray:       gray,
		Brightness: gray.Mean().Val1,
		lowLight:   p.settings.LowLight,
	}

	if p.settings.Equalize && frame.Bright() {
		equalized := gocv.NewMat()
		gocv.EqualizeHist(frame.Gray, &equalized)
		frame.Gray.Close()
		frame.Gray = equalized
		frame.Equalized = true
	}

	return frame, nil
}
