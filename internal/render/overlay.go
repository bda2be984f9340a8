package render

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	xdraw "golang.org/x/image/draw"

	"windowcast.app/recorder/internal/config"
)

// Edge padding between the overlay and the canvas border, in points
// (multiplied by the device scale factor).
const overlayEdgePadding = 20

// shadowAlpha is the peak opacity of the synthesized drop shadow.
const shadowAlpha = 90

// Overlay turns a live webcam frame into a positioned, masked, shadowed
// image ready to composite. Masks and their blurred shadow copies are the
// most expensive per-frame inputs; both are cached per (shape, size).
type Overlay struct {
	mu      sync.Mutex
	shadows map[maskKey]*image.Alpha
}

// NewOverlay creates a renderer with empty caches.
func NewOverlay() *Overlay {
	return &Overlay{shadows: make(map[maskKey]*image.Alpha)}
}

// Render produces the overlay cell image and the canvas point to composite
// it at. The cell is larger than the configured size to leave room for the
// shadow bleed.
func (o *Overlay) Render(frame *image.RGBA, cfg config.Webcam, canvas image.Point, deviceScale float64) (*image.RGBA, image.Point) {
	if frame == nil {
		return nil, image.Point{}
	}
	size := cfg.Size
	if size < config.MinWebcamSize {
		size = config.MinWebcamSize
	}
	if size > config.MaxWebcamSize {
		size = config.MaxWebcamSize
	}
	if deviceScale <= 0 {
		deviceScale = 1
	}
	px := int(float64(size) * deviceScale)

	square := aspectFillSquare(frame, px)
	mask := Mask(cfg.Shape, px)
	applyMask(square, mask)

	shadow := o.shadow(cfg.Shape, px)
	blur := shadowRadius(px)
	pad := blur * 2
	drop := px / 16 // vertical shadow offset

	cell := image.NewRGBA(image.Rect(0, 0, px+2*pad, px+2*pad+drop))

	// Shadow first, beneath everything.
	draw.DrawMask(cell, shadow.Bounds().Add(image.Pt(pad-blur, pad-blur+drop)),
		image.NewUniform(color.RGBA{A: shadowAlpha}), image.Point{}, shadow, image.Point{}, draw.Over)

	// Optional border ring: a slightly larger white mask under the frame.
	if cfg.BorderWidth > 0 {
		bw := int(float64(cfg.BorderWidth) * deviceScale)
		ring := Mask(cfg.Shape, px+2*bw)
		draw.DrawMask(cell, ring.Bounds().Add(image.Pt(pad-bw, pad-bw)),
			image.NewUniform(color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}), image.Point{}, ring, image.Point{}, draw.Over)
	}

	draw.Draw(cell, square.Bounds().Add(image.Pt(pad, pad)), square, image.Point{}, draw.Over)

	return cell, o.position(cfg, canvas, px, pad, deviceScale)
}

// position computes the cell's top-left point so that the visible webcam
// square sits overlayEdgePadding points from the chosen corner. Custom
// coordinates are in points too, scaled like the corner padding.
func (o *Overlay) position(cfg config.Webcam, canvas image.Point, px, pad int, deviceScale float64) image.Point {
	edge := int(overlayEdgePadding * deviceScale)
	switch cfg.Position {
	case config.PositionTopLeft:
		return image.Pt(edge-pad, edge-pad)
	case config.PositionTopRight:
		return image.Pt(canvas.X-edge-px-pad, edge-pad)
	case config.PositionBottomLeft:
		return image.Pt(edge-pad, canvas.Y-edge-px-pad)
	case config.PositionCustom:
		cx := int(float64(cfg.CustomX) * deviceScale)
		cy := int(float64(cfg.CustomY) * deviceScale)
		return image.Pt(cx-pad, cy-pad)
	default: // bottom-right
		return image.Pt(canvas.X-edge-px-pad, canvas.Y-edge-px-pad)
	}
}

// shadow returns the cached blurred copy of the shape mask.
func (o *Overlay) shadow(shape config.Shape, px int) *image.Alpha {
	key := maskKey{shape: shape, size: px}
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.shadows[key]; ok {
		return s
	}

	radius := shadowRadius(px)
	mask := Mask(shape, px)
	// Expand so the blur has room to bleed.
	expanded := image.NewAlpha(image.Rect(0, 0, px+4*radius, px+4*radius))
	draw.Draw(expanded, mask.Bounds().Add(image.Pt(2*radius, 2*radius)), mask, image.Point{}, draw.Src)

	blurred := expanded
	for i := 0; i < 3; i++ {
		blurred = boxBlurAlpha(blurred, radius)
	}
	o.shadows[key] = blurred
	return blurred
}

func shadowRadius(px int) int {
	r := px / 24
	if r < 2 {
		r = 2
	}
	return r
}

// aspectFillSquare scales the frame to cover a px×px square, cropping the
// longer dimension centered.
func aspectFillSquare(frame *image.RGBA, px int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, px, px))
	sw := frame.Bounds().Dx()
	sh := frame.Bounds().Dy()
	if sw == 0 || sh == 0 {
		return dst
	}

	var crop image.Rectangle
	if sw > sh {
		off := (sw - sh) / 2
		crop = image.Rect(frame.Bounds().Min.X+off, frame.Bounds().Min.Y,
			frame.Bounds().Min.X+off+sh, frame.Bounds().Max.Y)
	} else {
		off := (sh - sw) / 2
		crop = image.Rect(frame.Bounds().Min.X, frame.Bounds().Min.Y+off,
			frame.Bounds().Max.X, frame.Bounds().Min.Y+off+sw)
	}
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, crop, xdraw.Src, nil)
	return dst
}

// applyMask multiplies the premultiplied RGBA pixels by the mask coverage.
func applyMask(img *image.RGBA, mask *image.Alpha) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			m := uint32(mask.AlphaAt(x-bounds.Min.X, y-bounds.Min.Y).A)
			if m == 0xff {
				continue
			}
			i := img.PixOffset(x, y)
			if m == 0 {
				img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 0, 0, 0, 0
				continue
			}
			img.Pix[i] = uint8(uint32(img.Pix[i]) * m / 0xff)
			img.Pix[i+1] = uint8(uint32(img.Pix[i+1]) * m / 0xff)
			img.Pix[i+2] = uint8(uint32(img.Pix[i+2]) * m / 0xff)
			img.Pix[i+3] = uint8(uint32(img.Pix[i+3]) * m / 0xff)
		}
	}
}

// boxBlurAlpha applies one horizontal and one vertical box blur pass.
// Three stacked passes approximate a gaussian.
func boxBlurAlpha(src *image.Alpha, radius int) *image.Alpha {
	if radius < 1 {
		return src
	}
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	tmp := image.NewAlpha(src.Bounds())
	dst := image.NewAlpha(src.Bounds())
	window := 2*radius + 1

	// Horizontal pass.
	for y := 0; y < h; y++ {
		sum := 0
		for x := -radius; x <= radius; x++ {
			sum += int(alphaAtClamped(src, x, y, w, h))
		}
		for x := 0; x < w; x++ {
			tmp.SetAlpha(x, y, color.Alpha{A: uint8(sum / window)})
			sum += int(alphaAtClamped(src, x+radius+1, y, w, h))
			sum -= int(alphaAtClamped(src, x-radius, y, w, h))
		}
	}

	// Vertical pass.
	for x := 0; x < w; x++ {
		sum := 0
		for y := -radius; y <= radius; y++ {
			sum += int(alphaAtClamped(tmp, x, y, w, h))
		}
		for y := 0; y < h; y++ {
			dst.SetAlpha(x, y, color.Alpha{A: uint8(sum / window)})
			sum += int(alphaAtClamped(tmp, x, y+radius+1, w, h))
			sum -= int(alphaAtClamped(tmp, x, y-radius, w, h))
		}
	}
	return dst
}

func alphaAtClamped(img *image.Alpha, x, y, w, h int) uint8 {
	if x < 0 || y < 0 || x >= w || y >= h {
		return 0
	}
	return img.AlphaAt(img.Bounds().Min.X+x, img.Bounds().Min.Y+y).A
}
