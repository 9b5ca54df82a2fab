//go:build cgo && windows

package webview

/*
#cgo LDFLAGS: -luser32
#include <windows.h>

static HWND cx_child_new(HWND parent) {
	return CreateWindowExW(0, L"STATIC", L"", WS_CHILD | WS_CLIPCHILDREN,
		0, 0, 0, 0, parent, NULL, GetModuleHandleW(NULL), NULL);
}

static BOOL CALLBACK cx_fit(HWND child, LPARAM lp) {
	RECT r;
	if (GetParent(child) != (HWND)lp) {
		return TRUE;
	}
	GetClientRect((HWND)lp, &r);
	SetWindowPos(child, NULL, 0, 0, r.right, r.bottom, SWP_NOZORDER | SWP_NOACTIVATE);
	return TRUE;
}

static void cx_geometry(HWND w, int x, int y, int width, int height) {
	if (width <= 0 || height <= 0) {
		ShowWindow(w, SW_HIDE);
		return;
	}
	SetWindowPos(w, HWND_TOP, x, y, width, height, SWP_NOACTIVATE | SWP_SHOWWINDOW);
	EnumChildWindows(w, cx_fit, (LPARAM)w);
}

static void cx_destroy(HWND w) {
	DestroyWindow(w);
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

// win32Platform hosts each view in a hidden child window of the application
// window. The view fills that child, so moving and sizing the child places the
// browser. fyne already runs the thread's message loop.
type win32Platform struct {
	logger logger.Logger

	mu      sync.Mutex
	windows map[engine.NativeWindowRef]*win32Window
}

func newPlatform(log logger.Logger) platform {
	return &win32Platform{logger: log, windows: make(map[engine.NativeWindowRef]*win32Window)}
}

func (p *win32Platform) capabilities() engine.Capabilities {
	return engine.Capabilities{ExternalPump: true, ChildEmbedding: false}
}

func (p *win32Platform) init() error { return nil }

func (p *win32Platform) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ref, w := range p.windows {
		C.cx_destroy(w.hwnd)
		delete(p.windows, ref)
	}
}

func (p *win32Platform) newHiddenWindow(parent engine.NativeWindowRef) (engine.HiddenWindow, error) {
	if !parent.Valid() {
		return nil, ErrNoParent
	}
	hwnd := C.cx_child_new(C.HWND(unsafe.Pointer(uintptr(parent))))
	if hwnd == nil {
		return nil, errors.New("webview: CreateWindowEx failed")
	}

	w := &win32Window{
		platform: p,
		hwnd:     hwnd,
		handle:   engine.NativeWindowRef(uintptr(unsafe.Pointer(hwnd))),
	}

	p.mu.Lock()
	p.windows[w.handle] = w
	p.mu.Unlock()

	p.logger.Debug("WebView", "hidden window created", map[string]interface{}{
		"hwnd": uint64(w.handle),
	})
	return w, nil
}

// parentPointer returns a pointer to the child's HWND, which is what webview
// reads on Windows.
func (p *win32Platform) parentPointer(ref engine.NativeWindowRef) unsafe.Pointer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.windows[ref]; ok {
		return unsafe.Pointer(&w.hwnd)
	}
	return nil
}

func (p *win32Platform) pump() {}

type win32Window struct {
	platform *win32Platform
	hwnd     C.HWND
	handle   engine.NativeWindowRef
}

func (w *win32Window) Handle() engine.NativeWindowRef {
	return w.handle
}

func (w *win32Window) SetGeometry(b engine.Bounds) {
	C.cx_geometry(w.hwnd, C.int(b.X), C.int(b.Y), C.int(b.Width), C.int(b.Height))
}

func (w *win32Window) Destroy() {
	w.platform.mu.Lock()
	_, live := w.platform.windows[w.handle]
	delete(w.platform.windows, w.handle)
	w.platform.mu.Unlock()

	if live {
		C.cx_destroy(w.hwnd)
	}
}
