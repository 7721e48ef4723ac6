package presence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/moyu/internal/config"
	"github.com/ayusman/moyu/internal/detector"
)

func defaultSettings() Settings {
	return NewSettings(config.Default())
}

func relBox(x, y, w, h, score float64) detector.Candidate {
	return detector.Candidate{
		Box:   detector.Box{X: x, Y: y, Width: w, Height: h, Relative: true},
		Score: score,
	}
}

func TestNewSettings_FromDefaults(t *testing.T) {
	s := defaultSettings()

	assert.Equal(t, 0.7, s.ConfThreshold)
	assert.Equal(t, 5, s.OnFrames)
	assert.Equal(t, 15, s.OffFrames)
	assert.Equal(t, 2, s.MinFaces)
	assert.Equal(t, 0.01, s.MinAreaRatio)
	assert.Equal(t, 0.6, s.MaxAreaRatio)
	assert.Equal(t, 40.0, s.Preprocess.LowLight)
	assert.Equal(t, 1.1, s.Preprocess.Contrast)
	assert.Equal(t, -20.0, s.Preprocess.Brightness)
	assert.True(t, s.Preprocess.Equalize)
}

func TestFilterCandidates_AreaRatio(t *testing.T) {
	s := defaultSettings()

	tests := []struct {
		name string
		cand detector.Candidate
		keep bool
	}{
		{name: "ratio 0.005 below minimum", cand: relBox(0, 0, 0.05, 0.1, 0.9), keep: false},
		{name: "ratio 0.01 at minimum", cand: relBox(0, 0, 0.1, 0.1, 0.9), keep: true},
		{name: "ratio 0.3 inside range", cand: relBox(0, 0, 0.5, 0.6, 0.9), keep: true},
		{name: "ratio 0.6 at maximum", cand: relBox(0, 0, 0.6, 1.0, 0.9), keep: true},
		{name: "ratio 0.7 above maximum", cand: relBox(0, 0, 0.7, 1.0, 0.9), keep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterCandidates([]detector.Candidate{tt.cand}, 100, 100, s)
			if tt.keep {
				assert.Len(t, got, 1)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestFilterCandidates_ConfidenceBoundary(t *testing.T) {
	s := defaultSettings()
	box := relBox(0.2, 0.2, 0.3, 0.3, 0)

	atThreshold := box
	atThreshold.Score = s.ConfThreshold
	below := box
	below.Score = math.Nextafter(s.ConfThreshold, 0)

	got := FilterCandidates([]detector.Candidate{atThreshold, below}, 200, 100, s)
	require.Len(t, got, 1)
	assert.Equal(t, s.ConfThreshold, got[0].Score)
}

func TestFilterCandidates_RelativeToPixels(t *testing.T) {
	s := defaultSettings()

	got := FilterCandidates([]detector.Candidate{relBox(0.25, 0.5, 0.25, 0.25, 0.9)}, 640, 480, s)
	require.Len(t, got, 1)
	assert.Equal(t, Detection{X: 160, Y: 240, Width: 160, Height: 120, Score: 0.9}, got[0])
}

func TestFilterCandidates_TruncatesTowardZero(t *testing.T) {
	s := defaultSettings()
	s.MinAreaRatio = 0

	got := FilterCandidates([]detector.Candidate{relBox(0.119, 0.119, 0.339, 0.339, 0.9)}, 100, 100, s)
	require.Len(t, got, 1)
	assert.Equal(t, 11, got[0].X)
	assert.Equal(t, 11, got[0].Y)
	assert.Equal(t, 33, got[0].Width)
	assert.Equal(t, 33, got[0].Height)
}

func TestFilterCandidates_Clamping(t *testing.T) {
	s := defaultSettings()
	s.MinAreaRatio = 0
	s.MaxAreaRatio = 1

	tests := []struct {
		name string
		cand detector.Candidate
		want Detection
	}{
		{
			name: "negative origin",
			cand: relBox(-0.1, -0.2, 0.3, 0.3, 0.9),
			want: Detection{X: 0, Y: 0, Width: 30, Height: 30, Score: 0.9},
		},
		{
			name: "overflows right and bottom",
			cand: relBox(0.8, 0.9, 0.5, 0.5, 0.9),
			want: Detection{X: 80, Y: 90, Width: 20, Height: 10, Score: 0.9},
		},
		{
			name: "origin past the frame",
			cand: relBox(1.5, 1.5, 0.2, 0.2, 0.9),
			want: Detection{X: 99, Y: 99, Width: 1, Height: 1, Score: 0.9},
		},
		{
			name: "zero size becomes one pixel",
			cand: relBox(0.5, 0.5, 0, -0.1, 0.9),
			want: Detection{X: 50, Y: 50, Width: 1, Height: 1, Score: 0.9},
		},
		{
			name: "absolute pixel box",
			cand: detector.Candidate{Box: detector.Box{X: 10.9, Y: 20.2, Width: 500, Height: 30.7}, Score: 0.9},
			want: Detection{X: 10, Y: 20, Width: 90, Height: 30, Score: 0.9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterCandidates([]detector.Candidate{tt.cand}, 100, 100, s)
			require.Len(t, got, 1)
			d := got[0]
			assert.Equal(t, tt.want, d)
			assert.GreaterOrEqual(t, d.Width, 1)
			assert.GreaterOrEqual(t, d.Height, 1)
			assert.LessOrEqual(t, d.X+d.Width, 100)
			assert.LessOrEqual(t, d.Y+d.Height, 100)
		})
	}
}

func TestFilterCandidates_EmptyFrame(t *testing.T) {
	assert.Nil(t, FilterCandidates([]detector.Candidate{relBox(0, 0, 0.5, 0.5, 1)}, 0, 100, defaultSettings()))
}
