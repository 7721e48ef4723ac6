package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu         sync.Mutex
	candidates []Candidate
	err        error
	calls      int
	closes     int
	onDetect   func(frame *gocv.Mat)
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetCandidates sets the candidates that will be returned by Detect.
func (m *MockDetector) SetCandidates(candidates []Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = candidates
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// OnDetect registers a hook that runs inside every Detect call.
func (m *MockDetector) OnDetect(fn func(frame *gocv.Mat)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDetect = fn
}

// Detect returns the pre-configured candidates or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Candidate, error) {
	m.mu.Lock()
	m.calls++
	hook := m.onDetect
	m.mu.Unlock()

	// The hook may change the configured result for this call.
	if hook != nil {
		hook(frame)
	}

	m.mu.Lock()
	candidates := append([]Candidate(nil), m.candidates...)
	err := m.err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// Close records the call.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closes returns how many times Close was called.
func (m *MockDetector) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// Face returns a relative-coordinate candidate centred in the frame.
func Face(size, score float64) Candidate {
	return Candidate{
		Box: Box{
			X:        0.5 - size/2,
			Y:        0.5 - size/2,
			Width:    size,
			Height:   size,
			Relative: true,
		},
		Score: score,
	}
}
