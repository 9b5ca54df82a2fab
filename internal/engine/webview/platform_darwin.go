//go:build cgo && darwin

package webview

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa
#import <Cocoa/Cocoa.h>

static void *cx_child_new(void *parent) {
	NSWindow *w = [[NSWindow alloc] initWithContentRect:NSMakeRect(0, 0, 1, 1)
		styleMask:NSWindowStyleMaskBorderless
		backing:NSBackingStoreBuffered
		defer:NO];
	[w setReleasedWhenClosed:NO];
	[w setHasShadow:NO];
	return w;
}

// Bounds are device pixels from the parent's top-left content corner; Cocoa
// wants points from the screen's bottom-left.
static void cx_geometry(void *parent, void *child, int x, int y, int width, int height) {
	NSWindow *p = (NSWindow *)parent;
	NSWindow *w = (NSWindow *)child;
	if (width <= 0 || height <= 0) {
		[p removeChildWindow:w];
		[w orderOut:nil];
		return;
	}
	CGFloat scale = [p backingScaleFactor];
	NSRect content = [p contentRectForFrameRect:[p frame]];
	NSRect r = NSMakeRect(
		content.origin.x + x / scale,
		content.origin.y + content.size.height - (y + height) / scale,
		width / scale,
		height / scale);
	[w setFrame:r display:YES];
	if ([w parentWindow] != p) {
		[p addChildWindow:w ordered:NSWindowAbove];
	}
	[w orderFront:nil];
}

static void cx_destroy(void *parent, void *child) {
	NSWindow *w = (NSWindow *)child;
	[(NSWindow *)parent removeChildWindow:w];
	[w close];
	[w release];
}
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"

	"cellxgene-desktop/internal/engine"
	"cellxgene-desktop/internal/logger"
)

// cocoaPlatform hosts each view in a borderless child NSWindow kept over the
// application window. The view fills that window, so placing the child places
// the browser. fyne already runs the Cocoa loop.
type cocoaPlatform struct {
	logger logger.Logger

	mu      sync.Mutex
	windows map[engine.NativeWindowRef]*cocoaWindow
}

func newPlatform(log logger.Logger) platform {
	return &cocoaPlatform{logger: log, windows: make(map[engine.NativeWindowRef]*cocoaWindow)}
}

func (p *cocoaPlatform) capabilities() engine.Capabilities {
	return engine.Capabilities{ExternalPump: true, ChildEmbedding: false}
}

func (p *cocoaPlatform) init() error { return nil }

func (p *cocoaPlatform) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ref, w := range p.windows {
		C.cx_destroy(w.parent, w.window)
		delete(p.windows, ref)
	}
}

func (p *cocoaPlatform) newHiddenWindow(parent engine.NativeWindowRef) (engine.HiddenWindow, error) {
	if !parent.Valid() {
		return nil, ErrNoParent
	}
	parentWindow := unsafe.Pointer(uintptr(parent))
	child := C.cx_child_new(parentWindow)
	if child == nil {
		return nil, errors.New("webview: NSWindow allocation failed")
	}

	w := &cocoaWindow{
		platform: p,
		parent:   parentWindow,
		window:   child,
		handle:   engine.NativeWindowRef(uintptr(child)),
	}

	p.mu.Lock()
	p.windows[w.handle] = w
	p.mu.Unlock()

	p.logger.Debug("WebView", "hidden window created", map[string]interface{}{
		"nswindow": uint64(w.handle),
	})
	return w, nil
}

// parentPointer returns the child NSWindow itself, which is what webview takes
// on macOS.
func (p *cocoaPlatform) parentPointer(ref engine.NativeWindowRef) unsafe.Pointer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.windows[ref]; ok {
		return w.window
	}
	return nil
}

func (p *cocoaPlatform) pump() {}

type cocoaWindow struct {
	platform *cocoaPlatform
	parent   unsafe.Pointer
	window   unsafe.Pointer
	handle   engine.NativeWindowRef
}

func (w *cocoaWindow) Handle() engine.NativeWindowRef {
	return w.handle
}

func (w *cocoaWindow) SetGeometry(b engine.Bounds) {
	C.cx_geometry(w.parent, w.window, C.int(b.X), C.int(b.Y), C.int(b.Width), C.int(b.Height))
}

func (w *cocoaWindow) Destroy() {
	w.platform.mu.Lock()
	_, live := w.platform.windows[w.handle]
	delete(w.platform.windows, w.handle)
	w.platform.mu.Unlock()

	if live {
		C.cx_destroy(w.parent, w.window)
	}
}
