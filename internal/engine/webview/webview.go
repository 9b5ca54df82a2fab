//go:build cgo && (linux || darwin || windows)

// Package webview adapts github.com/webview/webview_go to the engine contract.
// Every method except New must run on the UI thread.
package webview

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"cellxgene-desktop/internal/engine"
	"cellxgene-desktop/internal/logger"

	webview "github.com/webview/webview_go"
)

var ErrNoParent = errors.New("webview: no native parent window")

// platform is the per-OS part of the adapter.
type platform interface {
	capabilities() engine.Capabilities
	init() error
	shutdown()
	newHiddenWindow(parent engine.NativeWindowRef) (engine.HiddenWindow, error)
	// parentPointer turns a window handle into what webview.NewWindow expects
	// on this platform, or nil when the handle is unknown.
	parentPointer(ref engine.NativeWindowRef) unsafe.Pointer
	pump()
}

type Engine struct {
	logger   logger.Logger
	platform platform
	settings engine.Settings

	mu    sync.Mutex
	views map[*Browser]struct{}
}

func New(log logger.Logger) *Engine {
	return &Engine{
		logger:   log,
		platform: newPlatform(log),
		views:    make(map[*Browser]struct{}),
	}
}

func (e *Engine) Name() string { return "webview" }

func (e *Engine) Capabilities() engine.Capabilities {
	return e.platform.capabilities()
}

func (e *Engine) Initialize(settings engine.Settings) error {
	e.settings = settings
	if err := e.platform.init(); err != nil {
		return err
	}
	e.logger.Info("WebView", "engine initialized", map[string]interface{}{
		"external_pump": settings.ExternalMessagePump,
		"debug":         settings.Debug,
	})
	return nil
}

func (e *Engine) Shutdown() {
	for _, b := range e.liveViews() {
		e.logger.Warning("WebView", "destroying view left open at shutdown", nil)
		b.CloseBrowser(true)
	}
	e.platform.shutdown()
	e.logger.Info("WebView", "engine shut down", nil)
}

func (e *Engine) CreateBrowserSync(info engine.WindowInfo, url string) (engine.Browser, error) {
	parent := e.platform.parentPointer(info.Parent)
	if parent == nil {
		return nil, fmt.Errorf("%w: %#x", ErrNoParent, uintptr(info.Parent))
	}

	view := webview.NewWindow(e.settings.Debug, parent)
	if view == nil {
		return nil, errors.New("webview: view creation failed")
	}
	view.Navigate(url)

	b := &Browser{engine: e, view: view, url: url, bounds: info.Bounds}
	e.mu.Lock()
	e.views[b] = struct{}{}
	e.mu.Unlock()

	e.logger.Debug("WebView", "view created", map[string]interface{}{
		"parent": fmt.Sprintf("%#x", uintptr(info.Parent)),
		"bounds": info.Bounds.String(),
	})
	return b, nil
}

func (e *Engine) NewHiddenWindow(parent engine.NativeWindowRef) (engine.HiddenWindow, error) {
	return e.platform.newHiddenWindow(parent)
}

func (e *Engine) PumpOnce() {
	e.platform.pump()
}

// HandleCrash destroys every live view so no engine process outlives us.
func (e *Engine) HandleCrash(reason interface{}) {
	for _, b := range e.liveViews() {
		b.CloseBrowser(true)
	}
	e.logger.Error("WebView", fmt.Errorf("crash: %v", reason), nil)
}

func (e *Engine) liveViews() []*Browser {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Browser, 0, len(e.views))
	for b := range e.views {
		out = append(out, b)
	}
	return out
}

func (e *Engine) forget(b *Browser) {
	e.mu.Lock()
	delete(e.views, b)
	e.mu.Unlock()
}

// Browser is one webview instance. The view fills the hidden window it is
// parented to on every platform, so that window carries geometry and
// visibility; Resize only remembers the last bounds.
type Browser struct {
	engine *Engine
	view   webview.WebView
	url    string
	bounds engine.Bounds
	closed bool
}

func (b *Browser) Navigate(url string) {
	if b.closed {
		return
	}
	b.url = url
	b.view.Navigate(url)
}

// SetFocus is a no-op: the native view takes focus from the window system.
func (b *Browser) SetFocus(bool) {}

// NotifyMoveOrResizeStarted is a no-op: webview repositions no popups of its own.
func (b *Browser) NotifyMoveOrResizeStarted() {}

func (b *Browser) Resize(bounds engine.Bounds) {
	b.bounds = bounds
}

func (b *Browser) CloseBrowser(force bool) {
	if b.closed {
		return
	}
	b.closed = true
	b.view.Destroy()
	b.engine.forget(b)

	b.engine.logger.Debug("WebView", "view destroyed", map[string]interface{}{
		"force": force,
		"url":   b.url,
	})
}
