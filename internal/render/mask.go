package render

import (
	"image"
	"image/color"
	"math"
	"sync"

	"windowcast.app/recorder/internal/config"
)

// Corner radii as a fraction of mask size.
const (
	roundedCornerFraction  = 0.20
	squircleCornerFraction = 0.22
)

type maskKey struct {
	shape config.Shape
	size  int
}

var (
	maskMu    sync.Mutex
	maskCache = map[maskKey]*image.Alpha{}
)

// Mask returns a single-channel alpha mask for the shape at size×size
// pixels. Deterministic: identical inputs yield bit-identical masks, and
// repeat calls return the same cached instance. Callers must not mutate
// the returned image.
func Mask(shape config.Shape, size int) *image.Alpha {
	if size < 1 {
		size = 1
	}
	key := maskKey{shape: shape, size: size}

	maskMu.Lock()
	defer maskMu.Unlock()
	if m, ok := maskCache[key]; ok {
		return m
	}

	m := image.NewAlpha(image.Rect(0, 0, size, size))
	switch shape {
	case config.ShapeRoundedRect:
		fillRoundedRect(m, size, roundedCornerFraction*float64(size), 2)
	case config.ShapeSquircle:
		fillRoundedRect(m, size, squircleCornerFraction*float64(size), 4)
	default:
		fillCircle(m, size)
	}
	maskCache[key] = m
	return m
}

// fillCircle rasterizes a hard-edged disk with a 1px feather to avoid
// rasterization seams.
func fillCircle(m *image.Alpha, size int) {
	center := float64(size) / 2
	radius := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x) + 0.5 - center
			dy := float64(y) + 0.5 - center
			d := math.Sqrt(dx*dx + dy*dy)
			m.SetAlpha(x, y, alphaCoverage(radius-d))
		}
	}
}

// fillRoundedRect rasterizes a filled rectangle with corners rounded at the
// given radius. Exponent 2 gives circular corners; higher even exponents
// give the flatter superellipse-like corner used for the squircle.
func fillRoundedRect(m *image.Alpha, size int, radius, exponent float64) {
	half := float64(size) / 2
	inner := half - radius
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := math.Abs(float64(x)+0.5-half) - inner
			dy := math.Abs(float64(y)+0.5-half) - inner
			if dx < 0 {
				dx = 0
			}
			if dy < 0 {
				dy = 0
			}
			d := math.Pow(math.Pow(dx, exponent)+math.Pow(dy, exponent), 1/exponent)
			m.SetAlpha(x, y, alphaCoverage(radius-d))
		}
	}
}

// alphaCoverage converts a signed distance to the shape edge into an alpha
// value with a 1px feather band.
func alphaCoverage(d float64) color.Alpha {
	c := d + 0.5
	if c <= 0 {
		return color.Alpha{}
	}
	if c >= 1 {
		return color.Alpha{A: 0xff}
	}
	return color.Alpha{A: uint8(math.Round(c * 255))}
}
