package gui

import (
	"cellxgene-desktop/internal/dataset"
	"cellxgene-desktop/internal/engine"
	"cellxgene-desktop/internal/gui/components"
	"cellxgene-desktop/internal/logger"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/storage"
)

const (
	panelLoad    = "load"
	panelBrowser = "browser"
)

// Manager owns the window content: the load panel and the browser panel
// stacked on top of each other, with exactly one visible. All methods run on
// the UI thread.
type Manager struct {
	window fyne.Window
	logger logger.Logger

	loadPanel    *components.LoadPanel
	browserPanel *components.BrowserPanel
	stack        *fyne.Container
	visible      string

	loadHandler     func(path string)
	showLoadHandler func()

	// pickFile shows the open prompt and reports the chosen path, or "" when
	// the prompt was dismissed.
	pickFile func(onPicked func(path string))
}

func NewManager(window fyne.Window, log logger.Logger) *Manager {
	m := &Manager{
		window:       window,
		logger:       log,
		loadPanel:    components.NewLoadPanel(dataset.ModeNames(), string(dataset.DefaultMode())),
		browserPanel: components.NewBrowserPanel(),
	}
	m.pickFile = m.showFileOpen

	m.stack = container.NewStack(m.loadPanel.GetContainer(), m.browserPanel)
	m.loadPanel.SetOpenHandler(m.onOpen)
	m.showPanel(panelLoad)

	m.logger.Debug("GUIManager", "initialized", map[string]interface{}{
		"modes": len(dataset.Modes),
	})
	return m
}

func (m *Manager) GetMainContainer() *fyne.Container {
	return m.stack
}

func (m *Manager) GetWindow() fyne.Window {
	return m.window
}

func (m *Manager) LoadPanel() *components.LoadPanel {
	return m.loadPanel
}

func (m *Manager) BrowserPanel() *components.BrowserPanel {
	return m.browserPanel
}

// VisiblePanel is "load" or "browser".
func (m *Manager) VisiblePanel() string {
	return m.visible
}

func (m *Manager) SetLoadHandler(handler func(path string)) {
	m.loadHandler = handler
}

func (m *Manager) SetModeChangeHandler(handler func(string)) {
	m.loadPanel.SetModeChangeHandler(func(mode string) {
		m.logger.Debug("GUIManager", "embedding mode changed", map[string]interface{}{
			"mode": mode,
		})
		handler(mode)
	})
}

func (m *Manager) SetShowLoadHandler(handler func()) {
	m.showLoadHandler = handler
}

func (m *Manager) SetGeometryHandler(handler func(engine.Bounds)) {
	m.browserPanel.SetGeometryHandler(handler)
}

func (m *Manager) SetFocusHandler(handler func(bool)) {
	m.browserPanel.SetFocusHandler(handler)
}

func (m *Manager) ShowLoadPanel() {
	m.showPanel(panelLoad)
}

func (m *Manager) ShowBrowserPanel() {
	m.showPanel(panelBrowser)
}

func (m *Manager) SetLoadError(text string) {
	m.loadPanel.SetError(text)
}

func (m *Manager) SetDatasetTitle(title string) {
	if title == "" {
		m.window.SetTitle(components.AppTitle)
		return
	}
	m.window.SetTitle(components.AppTitle + ": " + title)
}

func (m *Manager) showPanel(name string) {
	if m.visible == name {
		return
	}
	m.visible = name

	switch name {
	case panelBrowser:
		m.loadPanel.GetContainer().Hide()
		m.browserPanel.Show()
		m.browserPanel.Reveal()
	default:
		// The native view sits above fyne's canvas, so it is collapsed rather
		// than just hidden.
		m.browserPanel.Conceal()
		m.browserPanel.Hide()
		m.loadPanel.GetContainer().Show()
	}
	m.stack.Refresh()
}

// SetupMenus installs File > Load file... with the platform open shortcut.
func (m *Manager) SetupMenus() {
	shortcut := &desktop.CustomShortcut{KeyName: fyne.KeyO, Modifier: fyne.KeyModifierShortcutDefault}

	loadItem := fyne.NewMenuItem("Load file...", m.onShowLoad)
	loadItem.Shortcut = shortcut

	m.window.SetMainMenu(fyne.NewMainMenu(fyne.NewMenu("File", loadItem)))
	m.window.Canvas().AddShortcut(shortcut, func(fyne.Shortcut) { m.onShowLoad() })
}

func (m *Manager) onShowLoad() {
	if m.showLoadHandler != nil {
		m.showLoadHandler()
		return
	}
	m.ShowLoadPanel()
}

func (m *Manager) onOpen() {
	m.pickFile(func(path string) {
		if path == "" {
			m.logger.Debug("GUIManager", "file prompt dismissed", nil)
		}
		if m.loadHandler != nil {
			m.loadHandler(path)
		}
	})
}

func (m *Manager) showFileOpen(onPicked func(path string)) {
	d := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			m.logger.Error("GUIManager", err, nil)
			m.SetLoadError("Error: " + err.Error())
			return
		}
		if reader == nil {
			onPicked("")
			return
		}

		path := reader.URI().Path()
		if cerr := reader.Close(); cerr != nil {
			m.logger.Warning("GUIManager", "closing picked file", map[string]interface{}{
				"error": cerr.Error(),
			})
		}
		onPicked(path)
	}, m.window)

	d.SetFilter(storage.NewExtensionFileFilter([]string{dataset.FileExtension}))
	d.Resize(fyne.NewSize(components.MaxContentWidth*1.6, components.MaxContentWidth*1.2))
	d.Show()
}
