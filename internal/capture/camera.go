// Package capture provides webcam acquisition and frame preprocessing using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ReadRetryDelay is how long callers back off after a failed read.
const ReadRetryDelay = 50 * time.Millisecond

var (
	// ErrCameraUnavailable is returned when the camera device cannot be opened.
	ErrCameraUnavailable = errors.New("camera unavailable")

	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")

	// ErrFrameNotReady is returned when the device produced no usable frame.
	// It is transient; the caller retries after ReadRetryDelay.
	ErrFrameNotReady = errors.New("frame not ready")
)

// Camera defines the camera source capability.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller closes the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	IsOpen() bool
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	index   int
	width   int
	height  int
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
}

// NewCamera creates a Camera for the given device index. A width or height of
// zero leaves the device default in place.
func NewCamera(index, width, height int) Camera {
	return &cameraImpl{
		index:  index,
		width:  width,
		height: height,
	}
}

// Open opens the device. Failure wraps ErrCameraUnavailable.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.index)
	if err != nil {
		return fmt.Errorf("%w: index %d: %v", ErrCameraUnavailable, c.index, err)
	}

	if c.width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
	}
	if c.height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
	}

	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%w: index %d", ErrCameraUnavailable, c.index)
	}

	c.capture = capture
	c.running = true

	return nil
}

// Close releases the device.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, ErrFrameNotReady
	}

	return &mat, nil
}

// IsOpen returns true if the camera is currently open.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
