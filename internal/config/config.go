package config

import (
	"fmt"
	"image/color"
	"os"

	"gopkg.in/yaml.v3"
)

// Webcam size and scale limits enforced by Normalize.
const (
	MinWebcamSize = 100
	MaxWebcamSize = 400

	MinWindowScale = 0.2
	MaxWindowScale = 1.0
)

// Shape selects the webcam crop mask.
type Shape string

const (
	ShapeCircle      Shape = "circle"
	ShapeRoundedRect Shape = "rounded-rect"
	ShapeSquircle    Shape = "squircle"
)

// Position places the webcam overlay on the canvas.
type Position string

const (
	PositionTopLeft     Position = "top-left"
	PositionTopRight    Position = "top-right"
	PositionBottomLeft  Position = "bottom-left"
	PositionBottomRight Position = "bottom-right"
	PositionCustom      Position = "custom"
)

// BackgroundKind tags the BackgroundStyle variant. The set is closed;
// renderers dispatch on it exhaustively.
type BackgroundKind string

const (
	BackgroundSolid    BackgroundKind = "solid"
	BackgroundGradient BackgroundKind = "gradient"
	BackgroundImage    BackgroundKind = "image"
)

// UnitPoint is a point in [0,1]x[0,1] canvas-relative coordinates.
type UnitPoint struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// BackgroundStyle describes how the canvas behind the window is painted.
// Exactly one variant is active, selected by Kind.
type BackgroundStyle struct {
	Kind BackgroundKind `yaml:"kind"`

	// Solid
	Color color.RGBA `yaml:"color"`

	// Gradient: two or more colors interpolated from Start to End.
	GradientColors []color.RGBA `yaml:"gradient_colors"`
	GradientStart  UnitPoint    `yaml:"gradient_start"`
	GradientEnd    UnitPoint    `yaml:"gradient_end"`

	// Image
	ImagePath string `yaml:"image_path"`
}

// Webcam configures the camera overlay. Values may change during a live
// preview; the engine freezes a copy at session start.
type Webcam struct {
	Enabled     bool     `yaml:"enabled"`
	Shape       Shape    `yaml:"shape"`
	Position    Position `yaml:"position"`
	CustomX     int      `yaml:"custom_x"` // points; multiplied by the device scale factor
	CustomY     int      `yaml:"custom_y"`
	Size        int      `yaml:"size"` // pixels, clamped to [MinWebcamSize, MaxWebcamSize]
	Device      int      `yaml:"device"`
	BorderWidth int      `yaml:"border_width"`
}

// AudioQuality maps to a fixed AAC bitrate at 48 kHz.
type AudioQuality string

const (
	AudioQualityLow      AudioQuality = "low"      // 128 kbps
	AudioQualityStandard AudioQuality = "standard" // 192 kbps
	AudioQualityHigh     AudioQuality = "high"     // 256 kbps
)

// BitrateKbps returns the AAC bitrate for the tier.
func (q AudioQuality) BitrateKbps() int {
	switch q {
	case AudioQualityLow:
		return 128
	case AudioQualityHigh:
		return 256
	default:
		return 192
	}
}

// Audio configures the microphone source.
type Audio struct {
	Enabled bool         `yaml:"enabled"`
	Device  string       `yaml:"device"` // avfoundation audio device index, "" = default
	Gain    float64      `yaml:"gain"`   // [0.0, 1.0]
	Quality AudioQuality `yaml:"quality"`
}

// SampleRate is the capture sample rate for all quality tiers.
const SampleRate = 48000

// Channels is the capture channel count.
const Channels = 2

// Output describes the encoded artifact.
type Output struct {
	Path   string `yaml:"path"`
	Width  int    `yaml:"width"`  // 0 = native canvas size
	Height int    `yaml:"height"` // 0 = native canvas size
	FPS    int    `yaml:"fps"`
	Codec  string `yaml:"codec"`
}

// Recording is the immutable description of one session. It is constructed
// once per session and never mutated after the session starts; UI changes
// apply to the next session.
type Recording struct {
	WindowID    uint64          `yaml:"window_id"`
	Background  BackgroundStyle `yaml:"background"`
	Webcam      Webcam          `yaml:"webcam"`
	Audio       Audio           `yaml:"audio"`
	Output      Output          `yaml:"output"`
	WindowScale float64         `yaml:"window_scale"` // [MinWindowScale, MaxWindowScale]
	DeviceScale float64         `yaml:"device_scale"` // display backing scale, 1.0 or 2.0
}

// Default returns a Recording with the defaults a fresh session uses.
func Default() Recording {
	return Recording{
		Background: BackgroundStyle{
			Kind: BackgroundGradient,
			GradientColors: []color.RGBA{
				{R: 0x4c, G: 0x6e, B: 0xf5, A: 0xff},
				{R: 0x9b, G: 0x59, B: 0xb6, A: 0xff},
			},
			GradientStart: UnitPoint{X: 0, Y: 0},
			GradientEnd:   UnitPoint{X: 1, Y: 1},
		},
		Webcam: Webcam{
			Shape:    ShapeCircle,
			Position: PositionBottomRight,
			Size:     200,
		},
		Audio: Audio{
			Gain:    1.0,
			Quality: AudioQualityStandard,
		},
		Output: Output{
			FPS:   30,
			Codec: "h264",
		},
		WindowScale: 1.0,
		DeviceScale: 1.0,
	}
}

// Normalize clamps out-of-range values and returns the adjusted copy.
func (r Recording) Normalize() Recording {
	if r.Webcam.Size < MinWebcamSize {
		r.Webcam.Size = MinWebcamSize
	}
	if r.Webcam.Size > MaxWebcamSize {
		r.Webcam.Size = MaxWebcamSize
	}
	if r.WindowScale < MinWindowScale {
		r.WindowScale = MinWindowScale
	}
	if r.WindowScale > MaxWindowScale {
		r.WindowScale = MaxWindowScale
	}
	if r.DeviceScale <= 0 {
		r.DeviceScale = 1.0
	}
	if r.Audio.Gain < 0 {
		r.Audio.Gain = 0
	}
	if r.Audio.Gain > 1 {
		r.Audio.Gain = 1
	}
	if r.Output.FPS <= 0 {
		r.Output.FPS = 30
	}
	return r
}

// Validate reports configuration errors that cannot be fixed by clamping.
func (r Recording) Validate() error {
	if r.Output.Path == "" {
		return fmt.Errorf("output path is required")
	}
	switch r.Background.Kind {
	case BackgroundSolid, BackgroundImage:
	case BackgroundGradient:
		if len(r.Background.GradientColors) < 2 {
			return fmt.Errorf("gradient background needs at least 2 colors, got %d", len(r.Background.GradientColors))
		}
	default:
		return fmt.Errorf("unknown background kind %q", r.Background.Kind)
	}
	if (r.Output.Width == 0) != (r.Output.Height == 0) {
		return fmt.Errorf("output width and height must both be set or both be native")
	}
	return nil
}

// Load reads a Recording from a YAML file, applying defaults for absent keys.
func Load(path string) (Recording, error) {
	r := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("parse config: %w", err)
	}
	return r.Normalize(), nil
}
