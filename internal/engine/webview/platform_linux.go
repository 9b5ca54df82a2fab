//go:build cgo && linux

package webview

/*
#cgo pkg-config: gtk+-3.0 x11
#include <gtk/gtk.h>
#include <gdk/gdkx.h>
#include <X11/Xlib.h>

static int cx_init(void) {
	return gtk_init_check(NULL, NULL);
}

static GtkWidget *cx_hidden_new(unsigned long parent) {
	GtkWidget *w = gtk_window_new(GTK_WINDOW_TOPLEVEL);
	gtk_window_set_decorated(GTK_WINDOW(w), FALSE);
	gtk_widget_realize(w);

	GdkWindow *gw = gtk_widget_get_window(w);
	Display *dpy = GDK_DISPLAY_XDISPLAY(gdk_window_get_display(gw));
	XReparentWindow(dpy, GDK_WINDOW_XID(gw), (Window)parent, 0, 0);
	XFlush(dpy);
	return w;
}

static unsigned long cx_xid(GtkWidget *w) {
	return GDK_WINDOW_XID(gtk_widget_get_window(w));
}

static void cx_geometry(GtkWidget *w, int x, int y, int width, int height) {
	if (width <= 0 || height <= 0) {
		gtk_widget_hide(w);
		return;
	}
	gtk_widget_show_all(w);
	gdk_window_move_resize(gtk_widget_get_window(w), x, y, width, height);
}

static void cx_destroy(GtkWidget *w) {
	gtk_widget_destroy(w);
}

static int cx_pump(int max) {
	int n = 0;
	while (n < max && gtk_events_pending()) {
		gtk_main_iteration_do(FALSE);
		n++;
	}
	return n;
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

// maxEventsPerPump bounds one pump so a busy engine cannot starve the UI loop.
const maxEventsPerPump = 64

// gtkPlatform embeds through a GTK window reparented into the application's
// X11 window. GTK has no loop of its own here, so it is pumped from the UI
// timer.
type gtkPlatform struct {
	logger logger.Logger

	mu      sync.Mutex
	windows map[engine.NativeWindowRef]*gtkWindow
}

func newPlatform(log logger.Logger) platform {
	return &gtkPlatform{logger: log, windows: make(map[engine.NativeWindowRef]*gtkWindow)}
}

func (p *gtkPlatform) capabilities() engine.Capabilities {
	return engine.Capabilities{ExternalPump: false, ChildEmbedding: false}
}

func (p *gtkPlatform) init() error {
	if C.cx_init() == 0 {
		return errors.New("webview: gtk_init_check failed (no display?)")
	}
	return nil
}

func (p *gtkPlatform) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ref, w := range p.windows {
		C.cx_destroy(w.widget)
		delete(p.windows, ref)
	}
}

func (p *gtkPlatform) newHiddenWindow(parent engine.NativeWindowRef) (engine.HiddenWindow, error) {
	if !parent.Valid() {
		return nil, ErrNoParent
	}
	widget := C.cx_hidden_new(C.ulong(parent))
	w := &gtkWindow{
		platform: p,
		widget:   widget,
		handle:   engine.NativeWindowRef(C.cx_xid(widget)),
	}

	p.mu.Lock()
	p.windows[w.handle] = w
	p.mu.Unlock()

	p.logger.Debug("WebView", "hidden window created", map[string]interface{}{
		"xid": uint64(w.handle),
	})
	return w, nil
}

func (p *gtkPlatform) parentPointer(ref engine.NativeWindowRef) unsafe.Pointer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.windows[ref]; ok {
		return unsafe.Pointer(w.widget)
	}
	return nil
}

func (p *gtkPlatform) pump() {
	C.cx_pump(maxEventsPerPump)
}

type gtkWindow struct {
	platform *gtkPlatform
	widget   *C.GtkWidget
	handle   engine.NativeWindowRef
}

func (w *gtkWindow) Handle() engine.NativeWindowRef {
	return w.handle
}

func (w *gtkWindow) SetGeometry(b engine.Bounds) {
	C.cx_geometry(w.widget, C.int(b.X), C.int(b.Y), C.int(b.Width), C.int(b.Height))
}

func (w *gtkWindow) Destroy() {
	w.platform.mu.Lock()
	_, live := w.platform.windows[w.handle]
	delete(w.platform.windows, w.handle)
	w.platform.mu.Unlock()

	if live {
		C.cx_destroy(w.widget)
	}
}
