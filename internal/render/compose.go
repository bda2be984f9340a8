package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"

	"windowcast.app/recorder/internal/config"
)

// defaultMargin is the background border around the window, in points.
const defaultMargin = 48

// maxCanvasDim caps canvas allocation; anything beyond this is treated as
// an allocation failure and the frame is dropped.
const maxCanvasDim = 16384

// Composer combines a window frame, the styled background and an optional
// webcam overlay into one output canvas per tick. It is session-free state:
// one Composer outlives individual recording sessions and is reused.
type Composer struct {
	background *Background
	overlay    *Overlay

	// Margin in points; scaled by the device scale factor at compose time.
	Margin int
}

// NewComposer creates a composer with fresh render caches.
func NewComposer() *Composer {
	return &Composer{
		background: NewBackground(),
		overlay:    NewOverlay(),
		Margin:     defaultMargin,
	}
}

// Close releases renderer resources.
func (c *Composer) Close() {
	c.background.Close()
}

// Compose renders one output frame. webcam may be nil when the overlay is
// disabled or no camera frame has arrived yet. A nil return means the
// canvas could not be allocated; the caller counts the frame as dropped
// and continues.
//
// Compositing always happens at the native canvas size (window + margin);
// only the final step resamples, letterboxed, to the target resolution.
func (c *Composer) Compose(windowFrame *image.RGBA, cfg config.Recording, webcam *image.RGBA) *image.RGBA {
	if windowFrame == nil {
		return nil
	}

	margin := int(float64(c.Margin) * cfg.DeviceScale)
	native := image.Pt(
		windowFrame.Bounds().Dx()+2*margin,
		windowFrame.Bounds().Dy()+2*margin,
	)
	if native.X <= 0 || native.Y <= 0 || native.X > maxCanvasDim || native.Y > maxCanvasDim {
		return nil
	}

	canvas := c.background.Render(native, cfg.Background)

	// Window layer, scaled and centered, always above the background.
	scale := cfg.WindowScale
	if scale <= 0 || scale > 1 {
		scale = 1
	}
	ww := int(math.Round(float64(windowFrame.Bounds().Dx()) * scale))
	wh := int(math.Round(float64(windowFrame.Bounds().Dy()) * scale))
	target := image.Rect(0, 0, ww, wh).Add(image.Pt((native.X-ww)/2, (native.Y-wh)/2))
	if scale == 1 {
		// Captured pixels are opaque; a straight copy avoids the per-pixel
		// blend on the hot path.
		draw.Draw(canvas, target, windowFrame, windowFrame.Bounds().Min, draw.Src)
	} else {
		xdraw.CatmullRom.Scale(canvas, target, windowFrame, windowFrame.Bounds(), xdraw.Over, nil)
	}

	if cfg.Webcam.Enabled && webcam != nil {
		cell, at := c.overlay.Render(webcam, cfg.Webcam, native, cfg.DeviceScale)
		if cell != nil {
			draw.Draw(canvas, cell.Bounds().Add(at), cell, image.Point{}, draw.Over)
		}
	}

	out := image.Pt(cfg.Output.Width, cfg.Output.Height)
	if out.X == 0 || out.Y == 0 || out == native {
		return canvas
	}
	return letterbox(canvas, out)
}

// letterbox fits src into a size-sized black canvas with a single uniform
// scale factor, centered; the remainder on the shorter axis stays black.
func letterbox(src *image.RGBA, size image.Point) *image.RGBA {
	if size.X <= 0 || size.Y <= 0 || size.X > maxCanvasDim || size.Y > maxCanvasDim {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.RGBA{A: 0xff}), image.Point{}, draw.Src)

	scale := math.Min(
		float64(size.X)/float64(src.Bounds().Dx()),
		float64(size.Y)/float64(src.Bounds().Dy()),
	)
	fw := int(math.Round(float64(src.Bounds().Dx()) * scale))
	fh := int(math.Round(float64(src.Bounds().Dy()) * scale))
	target := image.Rect(0, 0, fw, fh).Add(image.Pt((size.X-fw)/2, (size.Y-fh)/2))
	xdraw.CatmullRom.Scale(dst, target, src, src.Bounds(), xdraw.Src, nil)
	return dst
}
