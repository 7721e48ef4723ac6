package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func uniformFrame(t *testing.T, value float64) gocv.Mat {
	t.Helper()
	mat := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	mat.SetTo(gocv.NewScalar(value, value, value, 0))
	return mat
}

func TestPreprocessor_Brightness(t *testing.T) {
	tests := []struct {
		name       string
		value      float64
		contrast   float64
		brightness float64
		want       float64
		wantBright bool
	}{
		{name: "identity below threshold", value: 39, contrast: 1, brightness: 0, want: 39, wantBright: false},
		{name: "identity at threshold", value: 40, contrast: 1, brightness: 0, want: 40, wantBright: true},
		{name: "contrast and offset", value: 100, contrast: 1.1, brightness: -20, want: 90, wantBright: true},
		{name: "clamped low", value: 10, contrast: 1, brightness: -50, want: 0, wantBright: false},
		{name: "clamped high", value: 200, contrast: 2, brightness: 0, want: 255, wantBright: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := uniformFrame(t, tt.value)
			defer raw.Close()

			p := NewPreprocessor(PreprocessSettings{
				Contrast:   tt.contrast,
				Brightness: tt.brightness,
				LowLight:   40,
			})

			frame, err := p.Process(&raw)
			require.NoError(t, err)
			defer frame.Close()

			assert.InDelta(t, tt.want, frame.Brightness, 0.5)
			assert.Equal(t, tt.wantBright, frame.Bright())
			assert.Equal(t, 160, frame.Width())
			assert.Equal(t, 120, frame.Height())
		})
	}
}

func TestPreprocessor_Mirrors(t *testing.T) {
	raw := gocv.NewMatWithSize(10, 20, gocv.MatTypeCV8UC3)
	defer raw.Close()
	// Mark the leftmost column blue.
	for y := 0; y < 10; y++ {
		raw.SetUCharAt(y, 0, 255)
	}

	p := NewPreprocessor(PreprocessSettings{Contrast: 1})
	frame, err := p.Process(&raw)
	require.NoError(t, err)
	defer frame.Close()

	// The marked column moves to the right edge (column 19, first channel).
	assert.Equal(t, uint8(255), frame.Color.GetUCharAt(0, 19*3))
	assert.Equal(t, uint8(0), frame.Color.GetUCharAt(0, 0))
}

func TestPreprocessor_EqualizesOnlyBrightFrames(t *testing.T) {
	p := NewPreprocessor(PreprocessSettings{Contrast: 1, LowLight: 40, Equalize: true})

	dark := uniformFrame(t, 20)
	defer dark.Close()
	frame, err := p.Process(&dark)
	require.NoError(t, err)
	assert.False(t, frame.Equalized)
	frame.Close()

	bright := uniformFrame(t, 120)
	defer bright.Close()
	frame, err = p.Process(&bright)
	require.NoError(t, err)
	assert.True(t, frame.Equalized)
	frame.Close()
}

func TestPreprocessor_AcceptsGrayInput(t *testing.T) {
	raw := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8U)
	defer raw.Close()
	raw.SetTo(gocv.NewScalar(80, 0, 0, 0))

	p := NewPreprocessor(PreprocessSettings{Contrast: 1})
	frame, err := p.Process(&raw)
	require.NoError(t, err)
	defer frame.Close()

	assert.Equal(t, 3, frame.Color.Channels())
	assert.InDelta(t, 80, frame.Brightness, 0.5)
}

func TestPreprocessor_RejectsEmpty(t *testing.T) {
	p := NewPreprocessor(PreprocessSettings{Contrast: 1})

	_, err := p.Process(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	empty := gocv.NewMat()
	defer empty.Close()
	_, err = p.Process(&empty)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}
