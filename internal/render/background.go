package render

import (
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"

	"windowcast.app/recorder/internal/config"
	"windowcast.app/recorder/internal/log"
)

// fallbackColor is painted whenever an image background cannot be decoded.
// Background is decorative; it must never block recording.
var fallbackColor = color.RGBA{A: 0xff}

// Background renders the full-canvas layer behind the window. The style is
// constant for a session, so the fully rendered canvas is cached by
// (size, style) and repeat calls cost a single block copy; image backgrounds
// additionally hold a one-entry decode cache, invalidated when the source
// path changes or the file is rewritten on disk.
type Background struct {
	mu      sync.Mutex
	path    string
	decoded image.Image
	failed  bool
	watcher *fsnotify.Watcher

	canvas      *image.RGBA
	canvasSize  image.Point
	canvasStyle config.BackgroundStyle

	logger zerolog.Logger
}

// NewBackground creates a renderer with an empty cache.
func NewBackground() *Background {
	return &Background{logger: log.WithComponent("background")}
}

// Close releases the file watcher, if one was started.
func (b *Background) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watcher != nil {
		_ = b.watcher.Close()
		b.watcher = nil
	}
}

// Render paints a size-sized canvas in the given style. The returned image
// always has exactly the requested dimensions and is owned by the caller;
// the cached canvas behind it is never handed out directly.
func (b *Background) Render(size image.Point, style config.BackgroundStyle) *image.RGBA {
	b.mu.Lock()
	if b.canvas == nil || b.canvasSize != size || !styleEqual(b.canvasStyle, style) {
		b.canvas = b.renderLocked(size, style)
		b.canvasSize = size
		b.canvasStyle = cloneStyle(style)
	}
	src := b.canvas
	b.mu.Unlock()

	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(dst, dst.Bounds(), src, image.Point{}, draw.Src)
	return dst
}

func (b *Background) renderLocked(size image.Point, style config.BackgroundStyle) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	switch style.Kind {
	case config.BackgroundSolid:
		fill(canvas, style.Color)
	case config.BackgroundGradient:
		b.renderGradient(canvas, style)
	case config.BackgroundImage:
		b.renderImageLocked(canvas, style.ImagePath)
	default:
		fill(canvas, fallbackColor)
	}
	return canvas
}

func cloneStyle(s config.BackgroundStyle) config.BackgroundStyle {
	s.GradientColors = append([]color.RGBA(nil), s.GradientColors...)
	return s
}

func styleEqual(a, b config.BackgroundStyle) bool {
	if a.Kind != b.Kind || a.Color != b.Color || a.ImagePath != b.ImagePath ||
		a.GradientStart != b.GradientStart || a.GradientEnd != b.GradientEnd ||
		len(a.GradientColors) != len(b.GradientColors) {
		return false
	}
	for i := range a.GradientColors {
		if a.GradientColors[i] != b.GradientColors[i] {
			return false
		}
	}
	return true
}

func fill(dst *image.RGBA, c color.RGBA) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// renderGradient interpolates linearly along the start→end unit vector
// mapped into pixel space. Unit points use a bottom-left origin, so the
// y axis is flipped onto the top-left-origin canvas.
func (b *Background) renderGradient(dst *image.RGBA, style config.BackgroundStyle) {
	colors := style.GradientColors
	if len(colors) == 0 {
		fill(dst, fallbackColor)
		return
	}
	if len(colors) == 1 {
		fill(dst, colors[0])
		return
	}

	w := float64(dst.Bounds().Dx())
	h := float64(dst.Bounds().Dy())
	sx := style.GradientStart.X * w
	sy := (1 - style.GradientStart.Y) * h
	ex := style.GradientEnd.X * w
	ey := (1 - style.GradientEnd.Y) * h
	dx := ex - sx
	dy := ey - sy
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		fill(dst, colors[0])
		return
	}

	for y := 0; y < dst.Bounds().Dy(); y++ {
		for x := 0; x < dst.Bounds().Dx(); x++ {
			t := ((float64(x)-sx)*dx + (float64(y)-sy)*dy) / lenSq
			dst.SetRGBA(x, y, gradientAt(colors, t))
		}
	}
}

// gradientAt samples the color ramp at t in [0,1].
func gradientAt(colors []color.RGBA, t float64) color.RGBA {
	if t <= 0 {
		return colors[0]
	}
	if t >= 1 {
		return colors[len(colors)-1]
	}
	pos := t * float64(len(colors)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, c := colors[i], colors[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*frac))
	}
	return color.RGBA{
		R: lerp(a.R, c.R),
		G: lerp(a.G, c.G),
		B: lerp(a.B, c.B),
		A: lerp(a.A, c.A),
	}
}

// renderImageLocked paints the cached decode scaled to cover the canvas,
// cropping the overflow. Decode failures paint the fallback color.
func (b *Background) renderImageLocked(dst *image.RGBA, path string) {
	src := b.cachedImageLocked(path)
	if src == nil {
		fill(dst, fallbackColor)
		return
	}

	sw := float64(src.Bounds().Dx())
	sh := float64(src.Bounds().Dy())
	dw := float64(dst.Bounds().Dx())
	dh := float64(dst.Bounds().Dy())
	if sw == 0 || sh == 0 || dw == 0 || dh == 0 {
		fill(dst, fallbackColor)
		return
	}

	// Scale to cover, never letterbox.
	scale := math.Max(dw/sw, dh/sh)
	scaledW := sw * scale
	scaledH := sh * scale
	offX := int((dw - scaledW) / 2)
	offY := int((dh - scaledH) / 2)
	target := image.Rect(offX, offY, offX+int(math.Ceil(scaledW)), offY+int(math.Ceil(scaledH)))
	xdraw.CatmullRom.Scale(dst, target, src, src.Bounds(), xdraw.Src, nil)
}

func (b *Background) cachedImageLocked(path string) image.Image {
	if path == "" {
		return nil
	}
	if path == b.path && (b.decoded != nil || b.failed) {
		return b.decoded
	}

	f, err := os.Open(path)
	if err != nil {
		b.logger.Warn().Err(err).Str("path", path).Msg("background image unreadable")
		b.path = path
		b.decoded = nil
		b.failed = true
		return nil
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		b.logger.Warn().Err(err).Str("path", path).Msg("background image decode failed")
		b.path = path
		b.decoded = nil
		b.failed = true
		return nil
	}

	b.path = path
	b.decoded = img
	b.failed = false
	b.watchLocked(path)
	return img
}

// watchLocked points the fsnotify watcher at the decoded file so an
// on-disk rewrite invalidates the cache between frames.
func (b *Background) watchLocked(path string) {
	if b.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			b.logger.Debug().Err(err).Msg("background watcher unavailable")
			return
		}
		b.watcher = w
		go b.watchLoop(w)
	} else {
		for _, p := range b.watcher.WatchList() {
			_ = b.watcher.Remove(p)
		}
	}
	if err := b.watcher.Add(path); err != nil {
		b.logger.Debug().Err(err).Str("path", path).Msg("background watch failed")
	}
}

func (b *Background) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				b.mu.Lock()
				b.decoded = nil
				b.failed = false
				b.canvas = nil
				b.mu.Unlock()
			}
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}
