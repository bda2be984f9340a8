package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windowcast.app/recorder/internal/config"
)

func webcamFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestOverlayRenderNilFrame(t *testing.T) {
	o := NewOverlay()
	cell, _ := o.Render(nil, config.Webcam{Size: 200}, image.Pt(1000, 800), 1)
	assert.Nil(t, cell)
}

func TestOverlayCellGeometry(t *testing.T) {
	o := NewOverlay()
	cfg := config.Webcam{Shape: config.ShapeCircle, Size: 200, Position: config.PositionBottomRight}
	frame := webcamFrame(640, 480, color.RGBA{R: 0xff, A: 0xff})

	cell, _ := o.Render(frame, cfg, image.Pt(1000, 800), 1)
	require.NotNil(t, cell)

	px := 200
	pad := 2 * shadowRadius(px)
	assert.Equal(t, px+2*pad, cell.Bounds().Dx())
	assert.Equal(t, px+2*pad+px/16, cell.Bounds().Dy())

	// The masked webcam square is centered horizontally in the cell.
	center := cell.RGBAAt(pad+px/2, pad+px/2)
	assert.Equal(t, uint8(0xff), center.A)
	assert.Equal(t, uint8(0xff), center.R)
}

func TestOverlaySizeClamped(t *testing.T) {
	o := NewOverlay()
	frame := webcamFrame(320, 240, color.RGBA{G: 0xff, A: 0xff})

	cell, _ := o.Render(frame, config.Webcam{Shape: config.ShapeCircle, Size: 10}, image.Pt(1000, 800), 1)
	require.NotNil(t, cell)
	pad := 2 * shadowRadius(config.MinWebcamSize)
	assert.Equal(t, config.MinWebcamSize+2*pad, cell.Bounds().Dx())

	cell, _ = o.Render(frame, config.Webcam{Shape: config.ShapeCircle, Size: 5000}, image.Pt(1000, 800), 1)
	require.NotNil(t, cell)
	pad = 2 * shadowRadius(config.MaxWebcamSize)
	assert.Equal(t, config.MaxWebcamSize+2*pad, cell.Bounds().Dx())
}

func TestOverlayPositions(t *testing.T) {
	o := NewOverlay()
	canvas := image.Pt(1000, 800)
	frame := webcamFrame(640, 480, color.RGBA{B: 0xff, A: 0xff})

	const px = 200
	pad := 2 * shadowRadius(px)
	edge := overlayEdgePadding

	tests := []struct {
		position config.Position
		want     image.Point
	}{
		{config.PositionTopLeft, image.Pt(edge-pad, edge-pad)},
		{config.PositionTopRight, image.Pt(canvas.X-edge-px-pad, edge-pad)},
		{config.PositionBottomLeft, image.Pt(edge-pad, canvas.Y-edge-px-pad)},
		{config.PositionBottomRight, image.Pt(canvas.X-edge-px-pad, canvas.Y-edge-px-pad)},
	}

	for _, tt := range tests {
		t.Run(string(tt.position), func(t *testing.T) {
			cfg := config.Webcam{Shape: config.ShapeCircle, Size: px, Position: tt.position}
			_, at := o.Render(frame, cfg, canvas, 1)
			assert.Equal(t, tt.want, at)
		})
	}
}

func TestOverlayCustomPosition(t *testing.T) {
	o := NewOverlay()
	frame := webcamFrame(640, 480, color.RGBA{B: 0xff, A: 0xff})

	cfg := config.Webcam{
		Shape:    config.ShapeCircle,
		Size:     200,
		Position: config.PositionCustom,
		CustomX:  300,
		CustomY:  150,
	}
	_, at := o.Render(frame, cfg, image.Pt(1000, 800), 1)

	pad := 2 * shadowRadius(200)
	assert.Equal(t, image.Pt(300-pad, 150-pad), at)

	// Custom coordinates are points and scale with the display, like the
	// corner padding does.
	_, at = o.Render(frame, cfg, image.Pt(2000, 1600), 2)
	pad = 2 * shadowRadius(400)
	assert.Equal(t, image.Pt(600-pad, 300-pad), at)
}

func TestOverlayDeviceScaleDoublesPixels(t *testing.T) {
	o := NewOverlay()
	frame := webcamFrame(640, 480, color.RGBA{R: 0xff, A: 0xff})

	cfg := config.Webcam{Shape: config.ShapeCircle, Size: 200}
	cell, _ := o.Render(frame, cfg, image.Pt(2000, 1600), 2)
	require.NotNil(t, cell)

	px := 400
	pad := 2 * shadowRadius(px)
	assert.Equal(t, px+2*pad, cell.Bounds().Dx())
}

func TestApplyMaskClearsOutside(t *testing.T) {
	img := webcamFrame(100, 100, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
	applyMask(img, Mask(config.ShapeCircle, 100))

	// Corner is outside the circle, center inside.
	assert.Equal(t, color.RGBA{}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, img.RGBAAt(50, 50))
}

func TestAspectFillSquareCropsCentered(t *testing.T) {
	// Left half red, right half blue: the centered square crop of a wide
	// frame keeps both halves.
	frame := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			if x < 100 {
				frame.SetRGBA(x, y, color.RGBA{R: 0xff, A: 0xff})
			} else {
				frame.SetRGBA(x, y, color.RGBA{B: 0xff, A: 0xff})
			}
		}
	}

	square := aspectFillSquare(frame, 50)
	assert.Equal(t, 50, square.Bounds().Dx())
	assert.Equal(t, 50, square.Bounds().Dy())
	assert.Equal(t, uint8(0xff), square.RGBAAt(10, 25).R)
	assert.Equal(t, uint8(0xff), square.RGBAAt(40, 25).B)
}
