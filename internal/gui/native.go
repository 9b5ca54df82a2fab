package gui

import (
	"errors"

	"cellxgene-desktop/internal/engine"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver"
)

var ErrNoNativeHandle = errors.New("window has no native handle")

// NativeHandle returns the platform handle of a realized window: an X11 window
// id, an HWND or an NSWindow pointer. It must be called on the UI thread after
// the window is shown.
func NativeHandle(w fyne.Window) (engine.NativeWindowRef, error) {
	nw, ok := w.(driver.NativeWindow)
	if !ok {
		return 0, ErrNoNativeHandle
	}

	var ref engine.NativeWindowRef
	nw.RunNative(func(ctx any) {
		switch c := ctx.(type) {
		case driver.X11WindowContext:
			ref = engine.NativeWindowRef(c.WindowHandle)
		case driver.WindowsWindowContext:
			ref = engine.NativeWindowRef(c.HWND)
		case driver.MacWindowContext:
			ref = engine.NativeWindowRef(c.NSWindow)
		}
	})

	if !ref.Valid() {
		return 0, ErrNoNativeHandle
	}
	return ref, nil
}
