// Package browser hosts the single embedded browser instance of the main
// window. Host is confined to the UI thread and is not safe for concurrent use.
package browser

import (
	"errors"
	"fmt"

	"cellxgene-desktop/internal/engine"
	"cellxgene-desktop/internal/logger"
)

var (
	ErrNoWindow        = errors.New("no native window to embed into")
	ErrAlreadyEmbedded = errors.New("browser already embedded")
	ErrNotEmbedded     = errors.New("browser not embedded")
)

type Host struct {
	runtime  *engine.Runtime
	strategy Strategy
	logger   logger.Logger

	browser engine.Browser
	bounds  engine.Bounds
	dropped int
}

func NewHost(rt *engine.Runtime, strategy Strategy, log logger.Logger) *Host {
	return &Host{
		runtime:  rt,
		strategy: strategy,
		logger:   log,
	}
}

// Embed creates the browser synchronously. The window must already be
// realized; an embed target captured earlier is invalid on some platforms.
func (h *Host) Embed(ref engine.NativeWindowRef, initialURL string) error {
	if h.browser != nil {
		return ErrAlreadyEmbedded
	}
	if !ref.Valid() {
		return ErrNoWindow
	}

	b, err := h.strategy.Embed(h.runtime, ref, h.bounds, initialURL)
	if err != nil {
		return fmt.Errorf("embed browser: %w", err)
	}
	h.browser = b

	h.logger.Info("BrowserHost", "browser embedded", map[string]interface{}{
		"strategy":         h.strategy.Name(),
		"window":           uintptr(ref),
		"url":              initialURL,
		"dropped_geometry": h.dropped,
	})
	return nil
}

func (h *Host) Embedded() bool {
	return h.browser != nil
}

// ForwardGeometry passes a move or resize of the hosting widget to the engine.
// Before Embed there is nothing to notify and the event is dropped; the last
// bounds seen become the initial size of the browser.
func (h *Host) ForwardGeometry(bounds engine.Bounds) {
	h.bounds = bounds
	if h.browser == nil {
		h.dropped++
		return
	}
	h.runtime.Assert("ForwardGeometry")
	h.strategy.ForwardGeometry(h.browser, bounds)
}

func (h *Host) ForwardFocus(gained bool) {
	if h.browser == nil {
		return
	}
	h.runtime.Assert("ForwardFocus")
	h.strategy.ForwardFocus(h.browser, gained)
}

func (h *Host) Navigate(url string) error {
	if h.browser == nil {
		return ErrNotEmbedded
	}
	h.runtime.Assert("Navigate")
	h.browser.Navigate(url)

	h.logger.Debug("BrowserHost", "navigated", map[string]interface{}{"url": url})
	return nil
}

// Dispose force-closes the browser and drops the handle. It must run on the
// UI thread before the engine shuts down. Calling it again is a no-op.
func (h *Host) Dispose() {
	if h.browser == nil {
		return
	}

	b := h.browser
	h.browser = nil

	h.runtime.Assert("CloseBrowser")
	b.CloseBrowser(true)
	h.runtime.Release(b)
	h.strategy.Release()

	h.logger.Info("BrowserHost", "browser disposed", nil)
}
