package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cellxgene-desktop/internal/backend"
	"cellxgene-desktop/internal/browser"
	"cellxgene-desktop/internal/dataset"
	"cellxgene-desktop/internal/engine"
	"cellxgene-desktop/internal/logger"
	"cellxgene-desktop/internal/metrics"
	"cellxgene-desktop/internal/pump"
	"cellxgene-desktop/internal/relay"
	"cellxgene-desktop/internal/shutdown"
	"cellxgene-desktop/internal/worker"
)

// View is the part of the UI the controller drives. Every method is called on
// the UI thread.
type View interface {
	ShowLoadPanel()
	ShowBrowserPanel()
	SetLoadError(text string)
	SetDatasetTitle(title string)
}

// Backend is the local server collaborator.
type Backend interface {
	Run(host string, port int) error
	Attach(ds *dataset.Dataset, title string) backend.Attachment
	URL() string
	Stop(ctx context.Context) error
}

// LoadRequest is the payload of a DataLoad task.
type LoadRequest struct {
	Seq   uint64
	Path  string
	Title string
	Mode  dataset.Mode
}

type Deps struct {
	Runtime    *engine.Runtime
	Host       *browser.Host
	Pump       pump.Pump
	Dispatcher *worker.Dispatcher
	Relay      *relay.Relay
	Backend    Backend
	Loader     dataset.Loader
	View       View
	Metrics    *metrics.Metrics
	Logger     logger.Logger

	ServerHost string
	ServerPort int
	InitialURL string
	// StopTimeout bounds the graceful backend stop at the end of Shutdown.
	StopTimeout time.Duration
}

// Controller owns startup and shutdown ordering. Apart from Shutdown, which
// runs once the UI loop has returned, its methods are UI-thread only.
type Controller struct {
	Deps

	state atomic.Int32

	mode        dataset.Mode
	loadSeq     uint64
	latestLoad  uint64
	serverTask  uint64
	datasetName string

	shutdownOnce sync.Once
}

func NewController(deps Deps) *Controller {
	if deps.InitialURL == "" {
		deps.InitialURL = "about:blank"
	}
	if deps.StopTimeout <= 0 {
		deps.StopTimeout = 5 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	c := &Controller{
		Deps: deps,
		mode: dataset.DefaultMode(),
	}
	c.state.Store(int32(StateInit))
	return c
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) transition(to State) error {
	from := c.State()
	if !canTransition(from, to) || !c.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	c.Logger.Info("Controller", "state changed", map[string]interface{}{
		"from": from.String(),
		"to":   to.String(),
	})
	return nil
}

// Start runs once the window is realized. It starts the backend on the pool,
// embeds the browser into ref and starts the message pump.
func (c *Controller) Start(ref engine.NativeWindowRef) error {
	if err := c.transition(StateStarting); err != nil {
		return err
	}

	id, err := c.Dispatcher.Submit(worker.Task{
		Kind:      worker.KindServerRun,
		Payload:   fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort),
		Body:      c.runServer,
		OnOutcome: c.onServerExit,
	})
	if err != nil {
		return fmt.Errorf("start backend: %w", err)
	}
	c.serverTask = id

	if err := c.Host.Embed(ref, c.InitialURL); err != nil {
		return err
	}
	c.Pump.Start()

	c.View.ShowLoadPanel()
	return c.transition(StateRunning)
}

func (c *Controller) runServer(context.Context) (interface{}, error) {
	return nil, c.Backend.Run(c.ServerHost, c.ServerPort)
}

func (c *Controller) onServerExit(out worker.Outcome) {
	if c.State() >= StateShuttingDown {
		return
	}
	c.View.SetLoadError(fmt.Sprintf("Error: local server stopped: %v", out.Err))
	c.View.ShowLoadPanel()
}

// Mode is the embedding the next load will use.
func (c *Controller) Mode() dataset.Mode {
	return c.mode
}

func (c *Controller) SelectMode(name string) error {
	m, err := dataset.ParseMode(name)
	if err != nil {
		return err
	}
	c.mode = m
	c.Logger.Debug("Controller", "mode selected", map[string]interface{}{"mode": name})
	return nil
}

// RequestLoad submits a DataLoad task for path with the current mode. An empty
// path means the file prompt was cancelled. It returns the request sequence
// number, or zero when nothing was submitted.
func (c *Controller) RequestLoad(path string) (uint64, error) {
	if path == "" {
		return 0, nil
	}
	if c.State() != StateRunning {
		return 0, fmt.Errorf("cannot load while %s", c.State())
	}

	c.loadSeq++
	req := LoadRequest{
		Seq:   c.loadSeq,
		Path:  path,
		Title: dataset.Title(path),
		Mode:  c.mode,
	}

	loader := c.Loader
	_, err := c.Dispatcher.Submit(worker.Task{
		Kind:    worker.KindDataLoad,
		Payload: req,
		Body: func(context.Context) (interface{}, error) {
			return loader.Load(req.Path, req.Mode)
		},
		OnOutcome: func(out worker.Outcome) { c.onLoadOutcome(req, out) },
	})
	if err != nil {
		c.View.SetLoadError(fmt.Sprintf("Error: %v", err))
		return 0, err
	}
	c.latestLoad = req.Seq

	c.Logger.Info("Controller", "load requested", map[string]interface{}{
		"seq":  req.Seq,
		"path": path,
		"mode": string(req.Mode),
	})
	return req.Seq, nil
}

func (c *Controller) onLoadOutcome(req LoadRequest, out worker.Outcome) {
	if c.State() != StateRunning {
		return
	}
	if req.Seq < c.latestLoad {
		c.Metrics.LoadHandled("stale")
		c.Logger.Info("Controller", "discarding superseded load", map[string]interface{}{
			"seq":    req.Seq,
			"latest": c.latestLoad,
			"path":   req.Path,
		})
		return
	}

	if !out.OK() {
		c.Metrics.LoadHandled("error")
		c.Logger.Warning("Controller", "load failed", map[string]interface{}{
			"path":  req.Path,
			"error": out.Err.Error(),
		})
		c.View.SetLoadError(fmt.Sprintf("Error: %v", out.Err))
		return
	}

	ds, ok := out.Value.(*dataset.Dataset)
	if !ok || ds == nil {
		c.Metrics.LoadHandled("error")
		c.View.SetLoadError("Error: loader returned no dataset")
		return
	}

	c.Metrics.LoadHandled("ok")
	c.Backend.Attach(ds, req.Title)
	c.datasetName = req.Title

	c.View.SetLoadError("")
	c.View.SetDatasetTitle(req.Title)
	c.View.ShowBrowserPanel()
	if err := c.Host.Navigate(c.Backend.URL()); err != nil {
		c.Logger.Error("Controller", err, nil)
	}
}

// ShowLoad returns to the load panel without touching the current dataset.
func (c *Controller) ShowLoad() {
	c.View.ShowLoadPanel()
}

// Close handles a window close request on the UI thread: the browser is
// force-closed and every handle dropped while the engine is still live.
func (c *Controller) Close() {
	if c.State() >= StateShuttingDown {
		return
	}
	if err := c.transition(StateShuttingDown); err != nil {
		c.Logger.Error("Controller", err, nil)
		return
	}
	c.Host.Dispose()
}

// Shutdown runs after the UI loop has stopped dispatching. The order is fixed:
// browser disposed, pump stopped, UI released, engine shut down. releaseUI
// drops the UI application object.
func (c *Controller) Shutdown(releaseUI func()) {
	c.shutdownOnce.Do(func() {
		if c.State() < StateShuttingDown {
			c.Close()
		}

		seq := shutdown.NewManager(c.Logger)
		seq.Register("browser", c.Host.Dispose)
		seq.Register("message pump", c.Pump.Stop)
		seq.Register("completion relay", c.Relay.Close)
		seq.Register("ui", releaseUI)
		seq.Register("engine", c.Runtime.Shutdown)
		seq.Register("dispatcher", c.Dispatcher.Close)
		seq.Register("backend", c.stopBackend)
		seq.Shutdown()

		if err := c.transition(StateTerminated); err != nil {
			c.Logger.Error("Controller", err, nil)
		}
	})
}

func (c *Controller) stopBackend() {
	ctx, cancel := context.WithTimeout(context.Background(), c.StopTimeout)
	defer cancel()

	if err := c.Backend.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.Logger.Error("Controller", err, nil)
	}
}
