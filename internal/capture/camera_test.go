package capture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCamera(t *testing.T) {
	tests := []struct {
		name   string
		index  int
		width  int
		height int
	}{
		{name: "default device", index: 0},
		{name: "device 1 with size hint", index: 1, width: 640, height: 480},
		{name: "device 2 width only", index: 2, width: 1280},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCamera(tt.index, tt.width, tt.height)
			require.NotNil(t, cam)
			assert.False(t, cam.IsOpen(), "camera should not be running initially")
		})
	}
}

func TestCamera_ReadFrame_NotOpened(t *testing.T) {
	cam := NewCamera(0, 0, 0)

	_, err := cam.ReadFrame()
	assert.True(t, errors.Is(err, ErrCameraNotOpen))
}

func TestCamera_Close_NotOpened(t *testing.T) {
	cam := NewCamera(0, 0, 0)

	// Close on not opened camera should not panic and return nil
	assert.NoError(t, cam.Close())
}

func TestCamera_OpenInvalidIndex(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping device probe in short mode")
	}

	cam := NewCamera(97, 0, 0)
	err := cam.Open()
	if err == nil {
		cam.Close()
		t.Skip("a device exists at index 97")
	}
	assert.True(t, errors.Is(err, ErrCameraUnavailable), "got %v", err)
	assert.False(t, cam.IsOpen())
}

func TestCamera_OpenClose_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewCamera(0, 640, 480)

	if err := cam.Open(); err != nil {
		t.Skipf("skipping test - camera not available: %v", err)
	}
	assert.True(t, cam.IsOpen())

	mat, err := cam.ReadFrame()
	if err != nil {
		t.Logf("ReadFrame() failed, device may still be warming up: %v", err)
	} else {
		assert.False(t, mat.Empty())
		if mat.Cols() != 640 || mat.Rows() != 480 {
			t.Logf("Frame dimensions: %dx%d (camera may not support 640x480)", mat.Cols(), mat.Rows())
		}
		mat.Close()
	}

	require.NoError(t, cam.Close())
	assert.False(t, cam.IsOpen())
}
