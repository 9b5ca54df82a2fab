//go:build !cgo || !(linux || darwin || windows)

package webview

import (
	"errors"

	"cellxgene-desktop/internal/engine"
	"cellxgene-desktop/internal/logger"
)

// ErrUnavailable is returned by Initialize when the binary was built without
// the native browser engine.
var ErrUnavailable = errors.New("webview: built without cgo support for this platform")

// Engine is a placeholder that refuses to initialize.
type Engine struct {
	logger logger.Logger
}

func New(log logger.Logger) *Engine {
	return &Engine{logger: log}
}

func (e *Engine) Name() string { return "webview" }

func (e *Engine) Capabilities() engine.Capabilities { return engine.Capabilities{} }

func (e *Engine) Initialize(engine.Settings) error { return ErrUnavailable }

func (e *Engine) Shutdown() {}

func (e *Engine) CreateBrowserSync(engine.WindowInfo, string) (engine.Browser, error) {
	return nil, ErrUnavailable
}

func (e *Engine) NewHiddenWindow(engine.NativeWindowRef) (engine.HiddenWindow, error) {
	return nil, ErrUnavailable
}

func (e *Engine) PumpOnce() {}

func (e *Engine) HandleCrash(reason interface{}) {}
