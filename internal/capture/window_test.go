package capture

import (
	"errors"
	"image"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testSelfPID = 4242

func recordableWindow() WindowDescriptor {
	return WindowDescriptor{
		ID:        77,
		OwnerName: "My App",
		OwnerPID:  1234,
		BundleID:  "com.example.myapp",
		Title:     "main.go",
		Bounds:    image.Rect(0, 0, 800, 600),
		Layer:     0,
		Opacity:   1.0,
		OnScreen:  true,
	}
}

func TestRecordable(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*WindowDescriptor)
		want   bool
	}{
		{"normal app window", func(w *WindowDescriptor) {}, true},
		{"off screen", func(w *WindowDescriptor) { w.OnScreen = false }, false},
		{"fully transparent", func(w *WindowDescriptor) { w.Opacity = 0 }, false},
		{"non-zero layer", func(w *WindowDescriptor) { w.Layer = 25 }, false},
		{"too narrow", func(w *WindowDescriptor) { w.Bounds = image.Rect(0, 0, 99, 600) }, false},
		{"too short", func(w *WindowDescriptor) { w.Bounds = image.Rect(0, 0, 800, 99) }, false},
		{"empty title", func(w *WindowDescriptor) { w.Title = "   " }, false},
		{"dock", func(w *WindowDescriptor) { w.Title = "Dock" }, false},
		{"wallpaper", func(w *WindowDescriptor) { w.Title = "Wallpaper" }, false},
		{"menu bar backstop", func(w *WindowDescriptor) { w.Title = "Backstop Menu Bar" }, false},
		{"display prefix", func(w *WindowDescriptor) { w.Title = "Display 1" }, false},
		{"desktop picture prefix", func(w *WindowDescriptor) { w.Title = "Desktop Picture - Sonoma" }, false},
		{"system bundle", func(w *WindowDescriptor) { w.BundleID = "com.apple.dock.extra" }, false},
		{"control center bundle", func(w *WindowDescriptor) { w.BundleID = "com.apple.controlcenter" }, false},
		{"own process", func(w *WindowDescriptor) { w.OwnerPID = testSelfPID }, false},
		{"extreme tall aspect", func(w *WindowDescriptor) { w.Bounds = image.Rect(0, 0, 100, 2000) }, false},
		{"extreme wide aspect", func(w *WindowDescriptor) { w.Bounds = image.Rect(0, 0, 2000, 100) }, false},
		{"wide but within aspect", func(w *WindowDescriptor) { w.Bounds = image.Rect(0, 0, 1900, 400) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := recordableWindow()
			tt.mutate(&w)
			assert.Equal(t, tt.want, Recordable(w, testSelfPID))
		})
	}
}

type fakeLister struct {
	windows []WindowDescriptor
	err     error
}

func (f *fakeLister) Windows() ([]WindowDescriptor, error) {
	return f.windows, f.err
}

type fakePermissions struct {
	denied map[PermissionKind]bool
}

func (f *fakePermissions) Ensure(kind PermissionKind) error {
	if f.denied[kind] {
		return &PermissionError{Kind: kind}
	}
	return nil
}

func TestListWindowsFilters(t *testing.T) {
	app := recordableWindow()
	dock := recordableWindow()
	dock.ID = 2
	dock.Title = "Dock"

	lister := &fakeLister{windows: []WindowDescriptor{app, dock}}

	got, err := ListWindows(lister, &fakePermissions{}, RecordableOnly, testSelfPID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, app.ID, got[0].ID)
}

func TestListWindowsIncludeAll(t *testing.T) {
	app := recordableWindow()
	dock := recordableWindow()
	dock.ID = 2
	dock.Title = "Dock"

	lister := &fakeLister{windows: []WindowDescriptor{app, dock}}

	got, err := ListWindows(lister, &fakePermissions{}, IncludeAll, testSelfPID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestListWindowsPermissionDenied(t *testing.T) {
	lister := &fakeLister{windows: []WindowDescriptor{recordableWindow()}}
	perms := &fakePermissions{denied: map[PermissionKind]bool{PermissionScreen: true}}

	got, err := ListWindows(lister, perms, RecordableOnly, testSelfPID)
	assert.Nil(t, got)

	var perr *PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PermissionScreen, perr.Kind)
}

func TestListWindowsEnumerationError(t *testing.T) {
	lister := &fakeLister{err: errors.New("window server unavailable")}
	_, err := ListWindows(lister, &fakePermissions{}, RecordableOnly, testSelfPID)
	assert.Error(t, err)
}

func TestFindWindow(t *testing.T) {
	w := recordableWindow()
	lister := &fakeLister{windows: []WindowDescriptor{w}}

	got, err := FindWindow(lister, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Equal(w))

	_, err = FindWindow(lister, 999)
	assert.ErrorIs(t, err, ErrWindowNotFound)
}

func TestRecordableIgnoresUnknownSelfPID(t *testing.T) {
	// selfPID 0 (unknown) never excludes anything; os.Getpid is always > 0
	// in production, this covers the fallback path.
	w := recordableWindow()
	w.OwnerPID = os.Getpid()
	assert.True(t, Recordable(w, 0))
}
