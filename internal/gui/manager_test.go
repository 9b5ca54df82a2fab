package gui

import (
	"errors"
	"testing"

	"cellxgene-desktop/internal/engine"
	"cellxgene-desktop/internal/logger"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, fyne.Window) {
	t.Helper()
	test.NewTempApp(t)

	w := test.NewTempWindow(t, nil)
	m := NewManager(w, logger.Nop())
	w.SetContent(m.GetMainContainer())
	w.Resize(fyne.NewSize(640, 480))
	return m, w
}

func TestManagerStartsOnLoadPanel(t *testing.T) {
	m, _ := newTestManager(t)

	assert.Equal(t, panelLoad, m.VisiblePanel())
	assert.True(t, m.LoadPanel().GetContainer().Visible())
	assert.False(t, m.BrowserPanel().Visible())
}

func TestManagerPanelSwitchForwardsGeometry(t *testing.T) {
	m, _ := newTestManager(t)

	var got []engine.Bounds
	m.SetGeometryHandler(func(b engine.Bounds) { got = append(got, b) })

	m.ShowBrowserPanel()
	require.NotEmpty(t, got)
	shown := got[len(got)-1]
	assert.False(t, shown.Empty(), "revealed browser must get real geometry")
	assert.Equal(t, panelBrowser, m.VisiblePanel())
	assert.False(t, m.LoadPanel().GetContainer().Visible())

	m.ShowLoadPanel()
	assert.True(t, got[len(got)-1].Empty(), "native view collapses behind the load panel")
	assert.Equal(t, panelLoad, m.VisiblePanel())
}

func TestManagerOpenReportsPickedPath(t *testing.T) {
	m, _ := newTestManager(t)

	var paths []string
	m.SetLoadHandler(func(p string) { paths = append(paths, p) })

	m.pickFile = func(onPicked func(string)) { onPicked("/data/pbmc3k.h5ad") }
	test.Tap(m.LoadPanel().OpenButton)

	m.pickFile = func(onPicked func(string)) { onPicked("") }
	test.Tap(m.LoadPanel().OpenButton)

	assert.Equal(t, []string{"/data/pbmc3k.h5ad", ""}, paths)
}

func TestManagerErrorAndTitle(t *testing.T) {
	m, w := newTestManager(t)

	m.SetLoadError("Error: not an HDF5 file")
	assert.Equal(t, "Error: not an HDF5 file", m.LoadPanel().ErrorText())

	m.SetDatasetTitle("pbmc3k")
	assert.Equal(t, "cellxgene: pbmc3k", w.Title())
	m.SetDatasetTitle("")
	assert.Equal(t, "cellxgene", w.Title())
}

func TestLoadMenuItem(t *testing.T) {
	m, w := newTestManager(t)
	m.SetupMenus()

	menu := w.MainMenu()
	require.NotNil(t, menu)
	require.Len(t, menu.Items, 1)
	assert.Equal(t, "File", menu.Items[0].Label)

	item := menu.Items[0].Items[0]
	assert.Equal(t, "Load file...", item.Label)
	require.NotNil(t, item.Shortcut)

	m.ShowBrowserPanel()
	item.Action()
	assert.Equal(t, panelLoad, m.VisiblePanel())

	called := 0
	m.SetShowLoadHandler(func() { called++ })
	item.Action()
	assert.Equal(t, 1, called)
}

func TestNativeHandleWithoutDriverWindow(t *testing.T) {
	_, w := newTestManager(t)

	ref, err := NativeHandle(w)
	assert.True(t, errors.Is(err, ErrNoNativeHandle))
	assert.False(t, ref.Valid())
}
