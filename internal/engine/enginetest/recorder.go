// Package enginetest provides a recording engine for tests.
package enginetest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cellxgene-desktop/internal/engine"
)

// Call is one recorded engine invocation. Seq is global across the engine and
// every browser and hidden window it created.
type Call struct {
	Seq  uint64
	At   time.Time
	Op   string
	Args string
}

// Engine records every call it receives.
type Engine struct {
	Caps engine.Capabilities
	// InitErr and CreateErr make Initialize and CreateBrowserSync fail.
	InitErr   error
	CreateErr error
	// OnPump runs inside PumpOnce.
	OnPump func()

	seq   atomic.Uint64
	pumps atomic.Uint64

	mu       sync.Mutex
	calls    []Call
	browsers []*Browser
	windows  []*HiddenWindow
	crashed  []interface{}
}

func New(caps engine.Capabilities) *Engine {
	return &Engine{Caps: caps}
}

func (e *Engine) record(op, format string, args ...interface{}) {
	c := Call{
		Seq:  e.seq.Add(1),
		At:   time.Now(),
		Op:   op,
		Args: fmt.Sprintf(format, args...),
	}
	e.mu.Lock()
	e.calls = append(e.calls, c)
	e.mu.Unlock()
}

// Mark records a non-engine event in the same sequence, so tests can order
// their own steps against engine calls.
func (e *Engine) Mark(op string) {
	e.record(op, "")
}

func (e *Engine) Name() string { return "recorder" }

func (e *Engine) Capabilities() engine.Capabilities { return e.Caps }

func (e *Engine) Initialize(settings engine.Settings) error {
	e.record("Initialize", "external_pump=%t", settings.ExternalMessagePump)
	return e.InitErr
}

func (e *Engine) Shutdown() {
	e.record("Shutdown", "")
}

func (e *Engine) CreateBrowserSync(info engine.WindowInfo, url string) (engine.Browser, error) {
	e.record("CreateBrowserSync", "parent=%d url=%s", info.Parent, url)
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	if !info.Parent.Valid() {
		return nil, errors.New("invalid parent window")
	}

	b := &Browser{engine: e, URL: url}
	e.mu.Lock()
	e.browsers = append(e.browsers, b)
	e.mu.Unlock()
	return b, nil
}

func (e *Engine) NewHiddenWindow(parent engine.NativeWindowRef) (engine.HiddenWindow, error) {
	if !parent.Valid() {
		return nil, errors.New("enginetest: hidden window needs a parent")
	}
	e.mu.Lock()
	w := &HiddenWindow{engine: e, handle: engine.NativeWindowRef(0x1000 + len(e.windows))}
	e.windows = append(e.windows, w)
	e.mu.Unlock()

	e.record("NewHiddenWindow", "parent=%d handle=%d", parent, w.handle)
	return w, nil
}

// PumpOnce is not recorded as a call; it is counted.
func (e *Engine) PumpOnce() {
	e.pumps.Add(1)
	if e.OnPump != nil {
		e.OnPump()
	}
}

func (e *Engine) HandleCrash(reason interface{}) {
	e.record("HandleCrash", "%v", reason)
	e.mu.Lock()
	e.crashed = append(e.crashed, reason)
	e.mu.Unlock()
}

func (e *Engine) Pumps() uint64 {
	return e.pumps.Load()
}

// Calls returns a snapshot of the recorded calls in order.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, len(e.calls))
	copy(out, e.calls)
	return out
}

// Ops returns the recorded operation names in order.
func (e *Engine) Ops() []string {
	calls := e.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many times op was recorded.
func (e *Engine) Count(op string) int {
	n := 0
	for _, c := range e.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// First returns the first recorded call of op.
func (e *Engine) First(op string) (Call, bool) {
	for _, c := range e.Calls() {
		if c.Op == op {
			return c, true
		}
	}
	return Call{}, false
}

func (e *Engine) Browsers() []*Browser {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Browser, len(e.browsers))
	copy(out, e.browsers)
	return out
}

func (e *Engine) HiddenWindows() []*HiddenWindow {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*HiddenWindow, len(e.windows))
	copy(out, e.windows)
	return out
}

func (e *Engine) Crashes() []interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]interface{}(nil), e.crashed...)
}

type Browser struct {
	engine *Engine

	mu      sync.Mutex
	URL     string
	Focused bool
	Bounds  engine.Bounds
	Closed  bool
}

func (b *Browser) Navigate(url string) {
	b.engine.record("Navigate", "%s", url)
	b.mu.Lock()
	b.URL = url
	b.mu.Unlock()
}

func (b *Browser) SetFocus(focused bool) {
	b.engine.record("SetFocus", "%t", focused)
	b.mu.Lock()
	b.Focused = focused
	b.mu.Unlock()
}

func (b *Browser) NotifyMoveOrResizeStarted() {
	b.engine.record("NotifyMoveOrResizeStarted", "")
}

func (b *Browser) Resize(bounds engine.Bounds) {
	b.engine.record("Resize", "%s", bounds)
	b.mu.Lock()
	b.Bounds = bounds
	b.mu.Unlock()
}

func (b *Browser) CloseBrowser(force bool) {
	b.engine.record("CloseBrowser", "force=%t", force)
	b.mu.Lock()
	b.Closed = true
	b.mu.Unlock()
}

func (b *Browser) CurrentURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.URL
}

type HiddenWindow struct {
	engine *Engine
	handle engine.NativeWindowRef

	mu        sync.Mutex
	Geometry  engine.Bounds
	Destroyed bool
}

func (w *HiddenWindow) Handle() engine.NativeWindowRef { return w.handle }

func (w *HiddenWindow) SetGeometry(bounds engine.Bounds) {
	w.engine.record("HiddenWindow.SetGeometry", "%s", bounds)
	w.mu.Lock()
	w.Geometry = bounds
	w.mu.Unlock()
}

func (w *HiddenWindow) Destroy() {
	w.engine.record("HiddenWindow.Destroy", "")
	w.mu.Lock()
	w.Destroyed = true
	w.mu.Unlock()
}
