// Package engine defines the contract of the embedded browser engine and the
// process-wide runtime that brackets every call into it.
package engine

import "fmt"

// NativeWindowRef is a platform window handle (HWND, NSWindow*, X11 Window or
// GtkWindow*). The zero value means no window.
type NativeWindowRef uintptr

func (r NativeWindowRef) Valid() bool {
	return r != 0
}

type Bounds struct {
	X, Y          int
	Width, Height int
}

func (b Bounds) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

func (b Bounds) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", b.Width, b.Height, b.X, b.Y)
}

// WindowInfo describes where a browser is created.
type WindowInfo struct {
	Parent NativeWindowRef
	Bounds Bounds
}

type Settings struct {
	ExternalMessagePump bool
	Debug               bool
}

// Capabilities are fixed per platform and read once at startup.
type Capabilities struct {
	// ExternalPump means the engine is integrated with the OS event loop and
	// needs no periodic PumpOnce.
	ExternalPump bool
	// ChildEmbedding means a browser can be parented directly to a foreign
	// native window. Without it the engine embeds into a hidden window of its
	// own that the host keeps positioned over the visible widget.
	ChildEmbedding bool
}

// Browser is one live browser instance. All methods are UI-thread only and
// must not block.
type Browser interface {
	Navigate(url string)
	SetFocus(focused bool)
	NotifyMoveOrResizeStarted()
	Resize(bounds Bounds)
	CloseBrowser(force bool)
}

// HiddenWindow is the intermediate native window used when the engine cannot
// embed into a foreign child window. It is created inside the application
// window; geometry is relative to that window and empty bounds hide it.
type HiddenWindow interface {
	Handle() NativeWindowRef
	SetGeometry(bounds Bounds)
	Destroy()
}

// Engine is implemented by concrete browser engines. Initialize and Shutdown
// are process-wide and called at most once each; Runtime enforces that.
type Engine interface {
	Name() string
	Capabilities() Capabilities
	Initialize(settings Settings) error
	Shutdown()
	CreateBrowserSync(info WindowInfo, url string) (Browser, error)
	NewHiddenWindow(parent NativeWindowRef) (HiddenWindow, error)
	PumpOnce()
	// HandleCrash is the engine's crash hook. It force-terminates any engine
	// subprocesses; the caller exits afterwards.
	HandleCrash(reason interface{})
}
