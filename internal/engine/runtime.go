package engine

import (
	"errors"
	"fmt"
	"sync"

	"cellxgene-desktop/internal/logger"
)

var (
	ErrAlreadyInitialized = errors.New("engine already initialized")
	ErrShutDown           = errors.New("engine already shut down")
)

type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseActive
	PhaseShutDown
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseActive:
		return "active"
	case PhaseShutDown:
		return "shut down"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Runtime owns the process-wide engine state. Every engine call goes through
// it, and any call outside the Initialize/Shutdown bracket panics: those are
// programming errors the engine itself turns into undefined behaviour.
type Runtime struct {
	engine Engine
	logger logger.Logger

	mu    sync.Mutex
	phase Phase
	live  int
	caps  Capabilities
}

func NewRuntime(e Engine, log logger.Logger) *Runtime {
	return &Runtime{
		engine: e,
		logger: log,
		caps:   e.Capabilities(),
	}
}

func (r *Runtime) Initialize(settings Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.phase {
	case PhaseActive:
		return ErrAlreadyInitialized
	case PhaseShutDown:
		return ErrShutDown
	}

	if err := r.engine.Initialize(settings); err != nil {
		return fmt.Errorf("%s engine initialization failed: %w", r.engine.Name(), err)
	}
	r.phase = PhaseActive

	r.logger.Info("Engine", "initialized", map[string]interface{}{
		"engine":          r.engine.Name(),
		"external_pump":   settings.ExternalMessagePump,
		"child_embedding": r.caps.ChildEmbedding,
	})
	return nil
}

// Shutdown tears the engine down. Every browser must have been released.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseActive {
		panic(fmt.Sprintf("engine: Shutdown called while %s", r.phase))
	}
	if r.live > 0 {
		panic(fmt.Sprintf("engine: Shutdown called with %d browser reference(s) still held", r.live))
	}

	r.engine.Shutdown()
	r.phase = PhaseShutDown
	r.logger.Info("Engine", "shut down", nil)
}

func (r *Runtime) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Runtime) Capabilities() Capabilities {
	return r.caps
}

// LiveBrowsers is the number of browser handles not yet released.
func (r *Runtime) LiveBrowsers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

func (r *Runtime) CreateBrowser(info WindowInfo, url string) (Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeActive("CreateBrowser")

	b, err := r.engine.CreateBrowserSync(info, url)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("engine returned no browser")
	}
	r.live++
	return b, nil
}

// Release records that the caller dropped its browser reference.
func (r *Runtime) Release(Browser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.live == 0 {
		panic("engine: Release without a live browser")
	}
	r.live--
}

func (r *Runtime) NewHiddenWindow(parent NativeWindowRef) (HiddenWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeActive("NewHiddenWindow")
	return r.engine.NewHiddenWindow(parent)
}

func (r *Runtime) PumpOnce() {
	r.mu.Lock()
	r.mustBeActive("PumpOnce")
	r.mu.Unlock()

	r.engine.PumpOnce()
}

// Assert panics unless the engine is between Initialize and Shutdown. Browser
// operations call it before touching a handle.
func (r *Runtime) Assert(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeActive(op)
}

func (r *Runtime) mustBeActive(op string) {
	if r.phase != PhaseActive {
		panic(fmt.Sprintf("engine: %s called while %s", op, r.phase))
	}
}

// HandleCrash forwards an unrecovered failure to the engine crash hook.
func (r *Runtime) HandleCrash(reason interface{}) {
	r.logger.Error("Engine", fmt.Errorf("unrecovered failure: %v", reason), map[string]interface{}{
		"phase": r.Phase().String(),
	})
	r.engine.HandleCrash(reason)
}
