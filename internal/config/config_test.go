package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 0.7, cfg.Camera.MinConfidence)
	assert.Equal(t, 5, cfg.Camera.DebounceOn)
	assert.Equal(t, 15, cfg.Camera.DebounceOff)
	assert.Equal(t, 0.01, cfg.Camera.MinAreaRatio)
	assert.Equal(t, 0.6, cfg.Camera.MaxAreaRatio)
	assert.Equal(t, 40.0, cfg.Camera.LowLight)
	assert.Equal(t, 1.1, cfg.Camera.Contrast)
	assert.Equal(t, -20.0, cfg.Camera.Brightness)
	assert.True(t, cfg.Camera.HistEqualization)
	assert.Equal(t, 0, cfg.Camera.FrameWidth)
	assert.Equal(t, 0, cfg.Camera.FrameHeight)
	assert.Equal(t, 0, cfg.CameraIndex)
	assert.Equal(t, 2, cfg.MinFaces)
	assert.Equal(t, 15*time.Second, cfg.Cooldown())
	assert.Equal(t, 10*time.Millisecond, cfg.Camera.LoopInterval())
	assert.Equal(t, "mediapipe", cfg.Detector.Backend)
	assert.True(t, cfg.Snapshot.Enabled)
	assert.True(t, cfg.Plugins.Enabled)
	assert.Equal(t, filepath.Join(DataDir(), "plugins"), cfg.Plugins.Directory)
	assert.Equal(t, 5*time.Second, cfg.Plugins.Timeout())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_OverrideMergesOnlyGivenKeys(t *testing.T) {
	path := writeConfig(t, `
camera:
  contrast: 1.5
  debounce_on_frames: 3
min_faces_for_alert: 3
work_app:
  active: vscode
  targets:
    vscode:
      macos_command: open -a "Visual Studio Code"
      window_keywords: ["visual studio code"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1.5, cfg.Camera.Contrast)
	assert.Equal(t, 3, cfg.Camera.DebounceOn)
	assert.Equal(t, 15, cfg.Camera.DebounceOff, "unset keys keep their defaults")
	assert.Equal(t, 3, cfg.MinFaces)
	assert.Equal(t, []string{path}, cfg.SourceFiles)

	target, ok := cfg.WorkApp.Targets["vscode"]
	require.True(t, ok)
	assert.Equal(t, `open -a "Visual Studio Code"`, target.MacOSCommand)
	assert.Equal(t, []string{"visual studio code"}, target.WindowKeywords)
}

func TestLoad_BrokenOverrideIsIgnored(t *testing.T) {
	path := writeConfig(t, "camera: [this is: not valid")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.SourceFiles)
	assert.Equal(t, 5, cfg.Camera.DebounceOn)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("MOYU_CAMERA_LOW_LIGHT_THRESHOLD", "55")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, 55.0, cfg.Camera.LowLight)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "confidence above one", body: "camera:\n  mp_min_confidence: 1.5\n"},
		{name: "zero on frames", body: "camera:\n  debounce_on_frames: 0\n"},
		{name: "zero off frames", body: "camera:\n  debounce_off_frames: 0\n"},
		{name: "inverted area range", body: "camera:\n  min_area_ratio: 0.7\n  max_area_ratio: 0.2\n"},
		{name: "zero contrast", body: "camera:\n  contrast: 0\n"},
		{name: "zero min faces", body: "min_faces_for_alert: 0\n"},
		{name: "negative cooldown", body: "alert_cooldown_seconds: -1\n"},
		{name: "negative plugin timeout", body: "plugins:\n  timeout_ms: -5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "error %v should wrap ErrInvalid", err)
		})
	}
}

func TestUI_NotificationDurationIsClamped(t *testing.T) {
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{seconds: 1, want: 5 * time.Second},
		{seconds: 8, want: 8 * time.Second},
		{seconds: 30, want: 10 * time.Second},
	}

	for _, tt := range tests {
		ui := UI{NotificationSeconds: tt.seconds}
		assert.Equal(t, tt.want, ui.NotificationDuration(), "seconds=%d", tt.seconds)
	}
}
