package browser

import (
	"fmt"

	"cellxgene-desktop/internal/engine"
)

// Strategy is how a browser is attached to the host window. It is chosen once
// at startup from the engine's capabilities.
type Strategy interface {
	Name() string
	Embed(rt *engine.Runtime, parent engine.NativeWindowRef, bounds engine.Bounds, url string) (engine.Browser, error)
	ForwardGeometry(b engine.Browser, bounds engine.Bounds)
	ForwardFocus(b engine.Browser, gained bool)
	Release()
}

func SelectStrategy(caps engine.Capabilities) Strategy {
	if caps.ChildEmbedding {
		return &DirectStrategy{}
	}
	return &HiddenWindowStrategy{}
}

// DirectStrategy parents the browser straight into the host window.
type DirectStrategy struct{}

func (*DirectStrategy) Name() string { return "direct" }

func (*DirectStrategy) Embed(rt *engine.Runtime, parent engine.NativeWindowRef, bounds engine.Bounds, url string) (engine.Browser, error) {
	return rt.CreateBrowser(engine.WindowInfo{Parent: parent, Bounds: bounds}, url)
}

func (*DirectStrategy) ForwardGeometry(b engine.Browser, bounds engine.Bounds) {
	b.Resize(bounds)
	b.NotifyMoveOrResizeStarted()
}

func (*DirectStrategy) ForwardFocus(b engine.Browser, gained bool) {
	b.SetFocus(gained)
}

func (*DirectStrategy) Release() {}

// HiddenWindowStrategy embeds the browser into an intermediate native window
// owned by the engine. The visible widget only tracks that window: geometry
// goes to the hidden window, and the engine watches its own window for focus,
// so focus forwarding is a no-op.
type HiddenWindowStrategy struct {
	window engine.HiddenWindow
}

func (*HiddenWindowStrategy) Name() string { return "hidden-window" }

func (s *HiddenWindowStrategy) Embed(rt *engine.Runtime, parent engine.NativeWindowRef, bounds engine.Bounds, url string) (engine.Browser, error) {
	if s.window == nil {
		w, err := rt.NewHiddenWindow(parent)
		if err != nil {
			return nil, fmt.Errorf("hidden window: %w", err)
		}
		s.window = w
	}
	if !bounds.Empty() {
		s.window.SetGeometry(bounds)
	}
	return rt.CreateBrowser(engine.WindowInfo{Parent: s.window.Handle(), Bounds: bounds}, url)
}

func (s *HiddenWindowStrategy) ForwardGeometry(b engine.Browser, bounds engine.Bounds) {
	if s.window != nil {
		s.window.SetGeometry(bounds)
	}
	b.NotifyMoveOrResizeStarted()
}

func (*HiddenWindowStrategy) ForwardFocus(engine.Browser, bool) {}

func (s *HiddenWindowStrategy) Release() {
	if s.window != nil {
		s.window.Destroy()
		s.window = nil
	}
}
