package capture

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/kbinani/screenshot"
	xdraw "golang.org/x/image/draw"
)

var (
	// ErrWindowNotFound is returned when the target window no longer
	// exists, both at session setup and mid-stream.
	ErrWindowNotFound = errors.New("window not found")
)

// WindowDescriptor identifies one on-screen window. Identity is the
// platform window ID and is immutable; bounds and title may change while
// the window is alive, so equality is by ID only.
type WindowDescriptor struct {
	ID        uint64
	OwnerName string
	OwnerPID  int
	BundleID  string
	Title     string
	Bounds    image.Rectangle
	Layer     int
	Opacity   float64
	OnScreen  bool
}

// Equal reports identity equality.
func (w WindowDescriptor) Equal(o WindowDescriptor) bool {
	return w.ID == o.ID
}

func (w WindowDescriptor) String() string {
	return fmt.Sprintf("%s - %s (%dx%d)", w.OwnerName, w.Title, w.Bounds.Dx(), w.Bounds.Dy())
}

// Lister enumerates windows. The robotgo-backed implementation is the
// production provider; tests supply fakes.
type Lister interface {
	Windows() ([]WindowDescriptor, error)
}

// Recordable-window heuristics. This is a best-effort allowlist by
// exclusion: legitimate windows with unusual titles or layers may be
// misclassified. ListWindows with IncludeAll bypasses the whole filter.
const (
	minWindowDim   = 100
	minAspectRatio = 0.3
	maxAspectRatio = 5.0
)

var blockedTitles = map[string]struct{}{
	"dock":              {},
	"wallpaper":         {},
	"backstop menu bar": {},
	"menubar":           {},
	"item-0":            {},
	"notification cent": {},
}

var blockedTitlePrefixes = []string{
	"display",
	"desktop picture",
}

var blockedBundlePrefixes = []string{
	"com.apple.dock",
	"com.apple.wallpaper",
	"com.apple.windowmanager",
	"com.apple.controlcenter",
	"com.apple.notificationcenter",
	"app.windowcast",
}

// Recordable reports whether the heuristic filter accepts the window.
func Recordable(w WindowDescriptor, selfPID int) bool {
	if !w.OnScreen || w.Opacity <= 0 {
		return false
	}
	if w.Layer != 0 {
		return false
	}
	if w.Bounds.Dx() < minWindowDim || w.Bounds.Dy() < minWindowDim {
		return false
	}
	title := strings.TrimSpace(w.Title)
	if title == "" {
		return false
	}
	lower := strings.ToLower(title)
	if _, blocked := blockedTitles[lower]; blocked {
		return false
	}
	for _, prefix := range blockedTitlePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	bundle := strings.ToLower(w.BundleID)
	for _, prefix := range blockedBundlePrefixes {
		if bundle != "" && strings.HasPrefix(bundle, prefix) {
			return false
		}
	}
	if selfPID > 0 && w.OwnerPID == selfPID {
		return false
	}
	ratio := float64(w.Bounds.Dx()) / float64(w.Bounds.Dy())
	if ratio < minAspectRatio || ratio > maxAspectRatio {
		return false
	}
	return true
}

// ListMode controls filtering in ListWindows.
type ListMode int

const (
	// RecordableOnly applies the heuristic filter.
	RecordableOnly ListMode = iota
	// IncludeAll bypasses the filter (the "show all windows" escape hatch).
	IncludeAll
)

// ListWindows returns an enumeration snapshot. With RecordableOnly the
// heuristic filter is applied. Permission refusal surfaces as a
// *PermissionError with an empty list.
func ListWindows(lister Lister, perms Permissions, mode ListMode, selfPID int) ([]WindowDescriptor, error) {
	if perms != nil {
		if err := perms.Ensure(PermissionScreen); err != nil {
			return nil, err
		}
	}
	windows, err := lister.Windows()
	if err != nil {
		return nil, fmt.Errorf("enumerate windows: %w", err)
	}
	if mode == IncludeAll {
		return windows, nil
	}
	out := windows[:0:0]
	for _, w := range windows {
		if Recordable(w, selfPID) {
			out = append(out, w)
		}
	}
	return out, nil
}

// FindWindow resolves a descriptor by ID from a fresh enumeration snapshot.
// A stale ID yields ErrWindowNotFound.
func FindWindow(lister Lister, id uint64) (WindowDescriptor, error) {
	windows, err := lister.Windows()
	if err != nil {
		return WindowDescriptor{}, fmt.Errorf("enumerate windows: %w", err)
	}
	for _, w := range windows {
		if w.ID == id {
			return w, nil
		}
	}
	return WindowDescriptor{}, ErrWindowNotFound
}

// Thumbnail captures a single still of the window, scaled to fit inside
// maxSize. Best-effort: returns nil on any failure.
func Thumbnail(w WindowDescriptor, maxSize int) *image.RGBA {
	img, err := screenshot.CaptureRect(w.Bounds)
	if err != nil || img == nil {
		return nil
	}
	if maxSize <= 0 || (img.Bounds().Dx() <= maxSize && img.Bounds().Dy() <= maxSize) {
		return img
	}
	scale := float64(maxSize) / float64(img.Bounds().Dx())
	if v := float64(maxSize) / float64(img.Bounds().Dy()); v < scale {
		scale = v
	}
	dst := image.NewRGBA(image.Rect(0, 0,
		int(float64(img.Bounds().Dx())*scale),
		int(float64(img.Bounds().Dy())*scale)))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}
