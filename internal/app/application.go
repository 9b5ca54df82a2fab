package app

import (
	"fmt"
	"runtime"

	"cellxgene-desktop/internal/backend"
	"cellxgene-desktop/internal/browser"
	"cellxgene-desktop/internal/config"
	"cellxgene-desktop/internal/dataset"
	"cellxgene-desktop/internal/engine"
	"cellxgene-desktop/internal/gui"
	"cellxgene-desktop/internal/logger"
	"cellxgene-desktop/internal/metrics"
	"cellxgene-desktop/internal/pump"
	"cellxgene-desktop/internal/relay"
	"cellxgene-desktop/internal/uithread"
	"cellxgene-desktop/internal/worker"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
)

const (
	AppName    = "cellxgene"
	AppID      = "org.cellxgene.desktop"
	AppVersion = "0.1.0"
)

// Application is the composition root: it owns the fyne app and window, the
// engine runtime and the controller that orders startup and shutdown.
type Application struct {
	cfg    *config.Config
	logger logger.Logger

	fyneApp    fyne.App
	window     fyne.Window
	guiManager *gui.Manager

	runtime    *engine.Runtime
	scheduler  *uithread.Fyne
	controller *Controller
	backend    *backend.Server
	metrics    *metrics.Metrics

	startErr    error
	stopSignals func()
}

// NewApplication initializes the engine and builds every component. An
// engine that fails to initialize is fatal; nothing else has started yet.
func NewApplication(cfg *config.Config, eng engine.Engine, log logger.Logger) (*Application, error) {
	rt := engine.NewRuntime(eng, log)

	external := eng.Capabilities().ExternalPump
	if cfg.Engine.ExternalPump != nil {
		external = *cfg.Engine.ExternalPump
	}
	if err := rt.Initialize(engine.Settings{ExternalMessagePump: external, Debug: cfg.Engine.Debug}); err != nil {
		return nil, fmt.Errorf("initialize %s engine: %w", eng.Name(), err)
	}

	fyneApp := fyneapp.NewWithID(AppID)
	fyneApp.SetMetadata(&fyne.AppMetadata{
		ID:      AppID,
		Name:    AppName,
		Version: AppVersion,
	})

	window := fyneApp.NewWindow(cfg.Window.Title)
	window.Resize(fyne.NewSize(float32(cfg.Window.Width), float32(cfg.Window.Height)))
	window.SetPadded(false)
	window.CenterOnScreen()
	window.SetMaster()

	guiManager := gui.NewManager(window, log)

	m := metrics.New()
	server := backend.NewServer(cfg.Server.Host, cfg.Server.Port, m, log)
	scheduler := uithread.NewFyne()
	completions := relay.New(scheduler, log)

	size := cfg.Workers.Size
	if size <= 0 {
		size = worker.DefaultSize()
	}
	dispatcher := worker.NewDispatcher(size, completions, m, log)

	strategy := browser.SelectStrategy(rt.Capabilities())
	host := browser.NewHost(rt, strategy, log)

	controller := NewController(Deps{
		Runtime:    rt,
		Host:       host,
		Pump:       pump.New(rt, scheduler, cfg.Engine.PumpInterval, external, log),
		Dispatcher: dispatcher,
		Relay:      completions,
		Backend:    server,
		Loader:     dataset.NewFileLoader(log),
		View:       guiManager,
		Metrics:    m,
		Logger:     log,
		ServerHost: cfg.Server.Host,
		ServerPort: cfg.Server.Port,
		InitialURL: cfg.Engine.InitialURL,
	})

	a := &Application{
		cfg:        cfg,
		logger:     log,
		fyneApp:    fyneApp,
		window:     window,
		guiManager: guiManager,
		runtime:    rt,
		scheduler:  scheduler,
		controller: controller,
		backend:    server,
		metrics:    m,
	}
	a.setupHandlers(host)
	guiManager.SetupMenus()

	log.Info("Application", "initialization complete", map[string]interface{}{
		"version":       AppVersion,
		"engine":        eng.Name(),
		"strategy":      strategy.Name(),
		"external_pump": external,
		"workers":       size,
		"window_size":   fmt.Sprintf("%dx%d", cfg.Window.Width, cfg.Window.Height),
		"go_version":    runtime.Version(),
	})
	return a, nil
}

func (a *Application) setupHandlers(host *browser.Host) {
	a.guiManager.SetLoadHandler(func(path string) {
		if _, err := a.controller.RequestLoad(path); err != nil {
			a.logger.Error("Application", err, map[string]interface{}{"path": path})
		}
	})
	a.guiManager.SetModeChangeHandler(func(mode string) {
		if err := a.controller.SelectMode(mode); err != nil {
			a.logger.Error("Application", err, nil)
		}
	})
	a.guiManager.SetShowLoadHandler(a.controller.ShowLoad)
	a.guiManager.SetGeometryHandler(host.ForwardGeometry)
	a.guiManager.SetFocusHandler(host.ForwardFocus)
}

func (a *Application) Runtime() *engine.Runtime {
	return a.runtime
}

// Run shows the window and blocks in the UI loop. Once the loop returns it
// runs the ordered shutdown on this goroutine, which is the one that
// initialized the engine.
func (a *Application) Run() error {
	a.bindLifecycle()

	a.window.SetContent(a.guiManager.GetMainContainer())
	a.window.Show()

	a.logger.Info("Application", "GUI displayed", nil)
	a.fyneApp.Run()

	a.logger.Info("Application", "UI loop returned", nil)
	a.scheduler.Close()
	a.stopSignals()
	a.controller.Shutdown(a.releaseUI)

	return a.startErr
}

// releaseUI drops every reference to the fyne application and window so the
// engine is the last thing torn down.
func (a *Application) releaseUI() {
	a.guiManager = nil
	a.window = nil
	a.fyneApp = nil
}
