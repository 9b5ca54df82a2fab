package browser

import (
	"errors"
	"testing"

	"cellxgene-desktop/internal/engine"
	"cellxgene-desktop/internal/engine/enginetest"
	"cellxgene-desktop/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHost(t *testing.T, caps engine.Capabilities) (*Host, *engine.Runtime, *enginetest.Engine) {
	t.Helper()
	rec := enginetest.New(caps)
	rt := engine.NewRuntime(rec, logger.Nop())
	require.NoError(t, rt.Initialize(engine.Settings{}))
	return NewHost(rt, SelectStrategy(caps), logger.Nop()), rt, rec
}

var forwardingOps = map[string]bool{
	"Resize":                    true,
	"NotifyMoveOrResizeStarted": true,
	"SetFocus":                  true,
	"HiddenWindow.SetGeometry":  true,
}

func TestGeometryBeforeEmbedIsDropped(t *testing.T) {
	host, _, rec := newHost(t, engine.Capabilities{ChildEmbedding: true})

	for i := 1; i <= 20; i++ {
		host.ForwardGeometry(engine.Bounds{X: i, Y: i, Width: 100 + i, Height: 80 + i})
		host.ForwardFocus(i%2 == 0)
	}
	assert.Equal(t, []string{"Initialize"}, rec.Ops(), "nothing may reach the engine before embed")

	require.NoError(t, host.Embed(7, "about:blank"))

	for _, c := range rec.Calls() {
		assert.False(t, forwardingOps[c.Op], "unexpected %s after embed without new events", c.Op)
	}

	// The pre-embed events were not replayed; only the next one is forwarded.
	host.ForwardGeometry(engine.Bounds{Width: 640, Height: 480})
	assert.Equal(t, 1, rec.Count("Resize"))
	assert.Equal(t, 1, rec.Count("NotifyMoveOrResizeStarted"))
}

func TestEmbedValidation(t *testing.T) {
	host, _, _ := newHost(t, engine.Capabilities{ChildEmbedding: true})

	assert.ErrorIs(t, host.Embed(0, "about:blank"), ErrNoWindow)
	assert.ErrorIs(t, host.Navigate("http://localhost:8000/"), ErrNotEmbedded)

	require.NoError(t, host.Embed(3, "about:blank"))
	assert.ErrorIs(t, host.Embed(3, "about:blank"), ErrAlreadyEmbedded)
	assert.True(t, host.Embedded())
}

func TestEmbedEngineFailure(t *testing.T) {
	rec := enginetest.New(engine.Capabilities{ChildEmbedding: true})
	rec.CreateErr = errors.New("gpu process crashed")
	rt := engine.NewRuntime(rec, logger.Nop())
	require.NoError(t, rt.Initialize(engine.Settings{}))

	host := NewHost(rt, &DirectStrategy{}, logger.Nop())
	assert.ErrorContains(t, host.Embed(9, "about:blank"), "gpu process crashed")
	assert.False(t, host.Embedded())
	assert.Zero(t, rt.LiveBrowsers())
}

func TestEmbedRequiresInitializedEngine(t *testing.T) {
	rec := enginetest.New(engine.Capabilities{ChildEmbedding: true})
	rt := engine.NewRuntime(rec, logger.Nop())
	host := NewHost(rt, &DirectStrategy{}, logger.Nop())

	assert.Panics(t, func() { _ = host.Embed(1, "about:blank") })
}

func TestDisposeTwiceClosesOnce(t *testing.T) {
	host, rt, rec := newHost(t, engine.Capabilities{ChildEmbedding: true})
	require.NoError(t, host.Embed(5, "about:blank"))

	host.Dispose()
	host.Dispose()

	assert.Equal(t, 1, rec.Count("CloseBrowser"))
	assert.False(t, host.Embedded())
	assert.Zero(t, rt.LiveBrowsers())

	b := rec.Browsers()[0]
	assert.True(t, b.Closed)

	// After disposal forwarding is dropped again.
	host.ForwardGeometry(engine.Bounds{Width: 10, Height: 10})
	host.ForwardFocus(true)
	assert.Zero(t, rec.Count("Resize"))
	assert.Zero(t, rec.Count("SetFocus"))

	assert.NotPanics(t, rt.Shutdown)
}

func TestDirectStrategyForwarding(t *testing.T) {
	host, _, rec := newHost(t, engine.Capabilities{ChildEmbedding: true})
	require.NoError(t, host.Embed(5, "about:blank"))

	host.ForwardGeometry(engine.Bounds{X: 0, Y: 30, Width: 1024, Height: 738})
	host.ForwardFocus(true)
	require.NoError(t, host.Navigate("http://localhost:8000/"))

	b := rec.Browsers()[0]
	assert.Equal(t, engine.Bounds{X: 0, Y: 30, Width: 1024, Height: 738}, b.Bounds)
	assert.True(t, b.Focused)
	assert.Equal(t, "http://localhost:8000/", b.CurrentURL())
}

func TestHiddenWindowStrategy(t *testing.T) {
	host, rt, rec := newHost(t, engine.Capabilities{ChildEmbedding: false})

	host.ForwardGeometry(engine.Bounds{Width: 800, Height: 600})
	require.NoError(t, host.Embed(11, "about:blank"))

	windows := rec.HiddenWindows()
	require.Len(t, windows, 1)

	hidden, ok := rec.First("NewHiddenWindow")
	require.True(t, ok)
	assert.Contains(t, hidden.Args, "parent=11")

	create, ok := rec.First("CreateBrowserSync")
	require.True(t, ok)
	assert.Contains(t, create.Args, "parent=4096", "browser is parented to the hidden window, not the host")

	host.ForwardGeometry(engine.Bounds{X: 5, Y: 5, Width: 1000, Height: 700})
	assert.Equal(t, engine.Bounds{X: 5, Y: 5, Width: 1000, Height: 700}, windows[0].Geometry)
	assert.Zero(t, rec.Count("Resize"), "geometry goes to the hidden window")

	host.ForwardFocus(true)
	assert.Zero(t, rec.Count("SetFocus"))

	host.Dispose()
	assert.True(t, windows[0].Destroyed)
	assert.Zero(t, rt.LiveBrowsers())
}

func TestSelectStrategy(t *testing.T) {
	assert.Equal(t, "direct", SelectStrategy(engine.Capabilities{ChildEmbedding: true}).Name())
	assert.Equal(t, "hidden-window", SelectStrategy(engine.Capabilities{}).Name())
}

func TestHiddenWindowCollapsesOnEmptyBounds(t *testing.T) {
	host, _, rec := newHost(t, engine.Capabilities{ExternalPump: true})

	host.ForwardGeometry(engine.Bounds{Width: 640, Height: 480})
	require.NoError(t, host.Embed(11, "about:blank"))
	windows := rec.HiddenWindows()
	require.Len(t, windows, 1)
	assert.Equal(t, engine.Bounds{Width: 640, Height: 480}, windows[0].Geometry)

	host.ForwardGeometry(engine.Bounds{})
	assert.True(t, windows[0].Geometry.Empty(), "concealing hides the hidden window")

	host.ForwardGeometry(engine.Bounds{X: 2, Y: 30, Width: 640, Height: 450})
	assert.Equal(t, engine.Bounds{X: 2, Y: 30, Width: 640, Height: 450}, windows[0].Geometry)
	host.Dispose()
}
