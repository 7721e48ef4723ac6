package capture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestMockCamera_Playback(t *testing.T) {
	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame1, &frame2}, false)
	require.NoError(t, cam.Open())
	defer cam.Close()

	for i := 0; i < 2; i++ {
		f, err := cam.ReadFrame()
		require.NoError(t, err, "read %d", i)
		f.Close()
	}

	// Third read should fail (no loop)
	_, err := cam.ReadFrame()
	assert.True(t, errors.Is(err, ErrNoMoreFrames))
}

func TestMockCamera_Loop(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	require.NoError(t, cam.Open())
	defer cam.Close()

	for i := 0; i < 5; i++ {
		f, err := cam.ReadFrame()
		require.NoError(t, err, "iteration %d", i)
		f.Close()
	}
	assert.Equal(t, 5, cam.Reads())
}

func TestMockCamera_FailNextReads(t *testing.T) {
	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	require.NoError(t, cam.Open())
	cam.FailNextReads(2)

	for i := 0; i < 2; i++ {
		_, err := cam.ReadFrame()
		assert.True(t, errors.Is(err, ErrFrameNotReady))
	}

	f, err := cam.ReadFrame()
	require.NoError(t, err)
	f.Close()
}

func TestMockCamera_OpenError(t *testing.T) {
	cam := NewMockCamera(nil, false)
	cam.SetOpenError(ErrCameraUnavailable)

	assert.ErrorIs(t, cam.Open(), ErrCameraUnavailable)
	assert.False(t, cam.IsOpen())

	_, err := cam.ReadFrame()
	assert.ErrorIs(t, err, ErrCameraNotOpen)
}
