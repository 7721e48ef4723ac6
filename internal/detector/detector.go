// Package detector provides the face-candidate detector capability.
package detector

import (
	"errors"
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// Supported backends.
const (
	BackendMediaPipe = "mediapipe"
	BackendDNN       = "dnn"
)

// ErrUnavailable is returned when a detector backend cannot be constructed.
// It is a startup failure, never a per-frame one.
var ErrUnavailable = errors.New("face detector unavailable")

// Box is a candidate bounding box. When Relative is true the coordinates are
// fractions of the frame size, otherwise they are pixels.
type Box struct {
	X, Y          float64
	Width, Height float64
	Relative      bool
}

// Candidate is one raw detector result.
type Candidate struct {
	Box   Box
	Score float64
}

// Detector defines the interface for face detection implementations.
type Detector interface {
	// Detect runs detection on a BGR frame. Returns an empty slice if no faces are found.
	Detect(frame *gocv.Mat) ([]Candidate, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for face detection.
type Config struct {
	// Backend is BackendMediaPipe or BackendDNN.
	Backend string

	// MinConfidence is passed to the backend as a detection hint (0.0-1.0).
	MinConfidence float64

	// Python and ScriptPath locate the MediaPipe service. Empty values are searched for.
	Python     string
	ScriptPath string

	// ModelPath and ConfigPath locate the DNN model files.
	ModelPath  string
	ConfigPath string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendMediaPipe,
		MinConfidence: 0.7,
	}
}

// New constructs the configured backend. Any failure wraps ErrUnavailable.
func New(cfg Config) (Detector, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMediaPipe:
		return NewMediaPipeDetector(cfg)
	case BackendDNN:
		return NewDNNDetector(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrUnavailable, cfg.Backend)
	}
}
