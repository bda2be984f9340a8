package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeClamps(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Recording)
		check  func(*testing.T, Recording)
	}{
		{
			name:   "webcam size below minimum",
			mutate: func(r *Recording) { r.Webcam.Size = 10 },
			check:  func(t *testing.T, r Recording) { assert.Equal(t, MinWebcamSize, r.Webcam.Size) },
		},
		{
			name:   "webcam size above maximum",
			mutate: func(r *Recording) { r.Webcam.Size = 9000 },
			check:  func(t *testing.T, r Recording) { assert.Equal(t, MaxWebcamSize, r.Webcam.Size) },
		},
		{
			name:   "window scale below minimum",
			mutate: func(r *Recording) { r.WindowScale = 0.01 },
			check:  func(t *testing.T, r Recording) { assert.Equal(t, MinWindowScale, r.WindowScale) },
		},
		{
			name:   "window scale above maximum",
			mutate: func(r *Recording) { r.WindowScale = 3.5 },
			check:  func(t *testing.T, r Recording) { assert.Equal(t, MaxWindowScale, r.WindowScale) },
		},
		{
			name:   "zero device scale becomes 1.0",
			mutate: func(r *Recording) { r.DeviceScale = 0 },
			check:  func(t *testing.T, r Recording) { assert.Equal(t, 1.0, r.DeviceScale) },
		},
		{
			name:   "negative gain becomes silence",
			mutate: func(r *Recording) { r.Audio.Gain = -0.5 },
			check:  func(t *testing.T, r Recording) { assert.Equal(t, 0.0, r.Audio.Gain) },
		},
		{
			name:   "gain above unity is clamped",
			mutate: func(r *Recording) { r.Audio.Gain = 2.0 },
			check:  func(t *testing.T, r Recording) { assert.Equal(t, 1.0, r.Audio.Gain) },
		},
		{
			name:   "non-positive fps falls back to 30",
			mutate: func(r *Recording) { r.Output.FPS = 0 },
			check:  func(t *testing.T, r Recording) { assert.Equal(t, 30, r.Output.FPS) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Default()
			tt.mutate(&r)
			tt.check(t, r.Normalize())
		})
	}
}

func TestNormalizeKeepsInRangeValues(t *testing.T) {
	r := Default()
	r.Webcam.Size = 250
	r.WindowScale = 0.8

	got := r.Normalize()
	assert.Equal(t, 250, got.Webcam.Size)
	assert.Equal(t, 0.8, got.WindowScale)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Output.Path = "out.mp4"
	require.NoError(t, valid.Validate())

	t.Run("missing output path", func(t *testing.T) {
		r := Default()
		assert.Error(t, r.Validate())
	})

	t.Run("gradient with one color", func(t *testing.T) {
		r := valid
		r.Background.GradientColors = []color.RGBA{{R: 0xff, A: 0xff}}
		assert.Error(t, r.Validate())
	})

	t.Run("unknown background kind", func(t *testing.T) {
		r := valid
		r.Background.Kind = "plaid"
		assert.Error(t, r.Validate())
	})

	t.Run("width without height", func(t *testing.T) {
		r := valid
		r.Output.Width = 1920
		r.Output.Height = 0
		assert.Error(t, r.Validate())
	})

	t.Run("explicit dimensions", func(t *testing.T) {
		r := valid
		r.Output.Width = 1920
		r.Output.Height = 1080
		assert.NoError(t, r.Validate())
	})
}

func TestAudioQualityBitrate(t *testing.T) {
	assert.Equal(t, 128, AudioQualityLow.BitrateKbps())
	assert.Equal(t, 192, AudioQualityStandard.BitrateKbps())
	assert.Equal(t, 256, AudioQualityHigh.BitrateKbps())
	assert.Equal(t, 192, AudioQuality("").BitrateKbps())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recording.yaml")
	data := `
output:
  path: session.mp4
  fps: 60
webcam:
  enabled: true
  shape: squircle
  size: 50
audio:
  enabled: true
  quality: high
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "session.mp4", cfg.Output.Path)
	assert.Equal(t, 60, cfg.Output.FPS)
	assert.True(t, cfg.Webcam.Enabled)
	assert.Equal(t, ShapeSquircle, cfg.Webcam.Shape)
	// Out-of-range values from the file are normalized on load.
	assert.Equal(t, MinWebcamSize, cfg.Webcam.Size)
	assert.Equal(t, AudioQualityHigh, cfg.Audio.Quality)
	// Absent keys keep their defaults.
	assert.Equal(t, BackgroundGradient, cfg.Background.Kind)
	assert.Equal(t, "h264", cfg.Output.Codec)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
