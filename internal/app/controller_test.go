package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cellxgene-desktop/internal/backend"
	"cellxgene-desktop/internal/browser"
	"cellxgene-desktop/internal/dataset"
	"cellxgene-desktop/internal/engine"
	"cellxgene-desktop/internal/engine/enginetest"
	"cellxgene-desktop/internal/logger"
	"cellxgene-desktop/internal/metrics"
	"cellxgene-desktop/internal/pump"
	"cellxgene-desktop/internal/relay"
	"cellxgene-desktop/internal/uithread"
	"cellxgene-desktop/internal/worker"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeView struct {
	loop *uithread.Loop

	mu       sync.Mutex
	panel    string
	errText  string
	title    string
	offLoop  int
	switches []string
}

func (v *fakeView) check() {
	if !v.loop.OnLoop() {
		v.offLoop++
	}
}

func (v *fakeView) ShowLoadPanel() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.check()
	v.panel = "load"
	v.switches = append(v.switches, "load")
}

func (v *fakeView) ShowBrowserPanel() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.check()
	v.panel = "browser"
	v.switches = append(v.switches, "browser")
}

func (v *fakeView) SetLoadError(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.check()
	v.errText = text
}

func (v *fakeView) SetDatasetTitle(title string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.check()
	v.title = title
}

func (v *fakeView) snapshot() (panel, errText, title string, offLoop int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.panel, v.errText, v.title, v.offLoop
}

type fakeBackend struct {
	started chan struct{}
	stop    chan struct{}
	runErr  error

	mu       sync.Mutex
	attached []string
	once     sync.Once
	stopOnce sync.Once
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{started: make(chan struct{}), stop: make(chan struct{})}
}

func (b *fakeBackend) Run(string, int) error {
	b.once.Do(func() { close(b.started) })
	if b.runErr != nil {
		return b.runErr
	}
	<-b.stop
	return nil
}

func (b *fakeBackend) Attach(ds *dataset.Dataset, title string) backend.Attachment {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attached = append(b.attached, title)
	return backend.Attachment{Title: title, Dataset: ds}
}

func (b *fakeBackend) URL() string { return "http://localhost:8000/" }

func (b *fakeBackend) Stop(context.Context) error {
	b.stopOnce.Do(func() { close(b.stop) })
	return nil
}

func (b *fakeBackend) attachments() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.attached...)
}

// gatedLoader blocks loads of paths that have a gate until the gate closes.
type gatedLoader struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	fail  map[string]error
	modes map[string]dataset.Mode
}

func (l *gatedLoader) Load(path string, mode dataset.Mode) (*dataset.Dataset, error) {
	l.mu.Lock()
	gate := l.gates[path]
	err := l.fail[path]
	l.modes[path] = mode
	l.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &dataset.Dataset{Path: path, Title: dataset.Title(path), Mode: mode, Embedding: mode.Key()}, nil
}

// recordingPump marks Stop in the engine's call sequence.
type recordingPump struct {
	pump.Pump
	rec *enginetest.Engine
}

func (p recordingPump) Stop() {
	p.Pump.Stop()
	p.rec.Mark("PumpStop")
}

type harness struct {
	loop       *uithread.Loop
	rec        *enginetest.Engine
	runtime    *engine.Runtime
	view       *fakeView
	backend    *fakeBackend
	loader     *gatedLoader
	dispatcher *worker.Dispatcher
	metrics    *metrics.Metrics
	c          *Controller
}

func newHarness(t *testing.T, caps engine.Capabilities) *harness {
	t.Helper()

	loop := uithread.NewLoop()
	go loop.Run()
	t.Cleanup(loop.Quit)

	rec := enginetest.New(caps)
	rt := engine.NewRuntime(rec, logger.Nop())
	require.NoError(t, rt.Initialize(engine.Settings{ExternalMessagePump: caps.ExternalPump}))

	r := relay.New(loop, logger.Nop())
	m := metrics.New()
	d := worker.NewDispatcher(4, r, m, logger.Nop())
	view := &fakeView{loop: loop}
	be := newFakeBackend()
	loader := &gatedLoader{
		gates: map[string]chan struct{}{},
		fail:  map[string]error{},
		modes: map[string]dataset.Mode{},
	}

	p := pump.New(rt, loop, time.Millisecond, caps.ExternalPump, logger.Nop())

	c := NewController(Deps{
		Runtime:    rt,
		Host:       browser.NewHost(rt, browser.SelectStrategy(caps), logger.Nop()),
		Pump:       recordingPump{Pump: p, rec: rec},
		Dispatcher: d,
		Relay:      r,
		Backend:    be,
		Loader:     loader,
		View:       view,
		Metrics:    m,
		Logger:     logger.Nop(),
		ServerHost: "localhost",
		ServerPort: 8000,
	})

	t.Cleanup(func() { _ = be.Stop(context.Background()) })

	return &harness{
		loop: loop, rec: rec, runtime: rt, view: view, backend: be,
		loader: loader, dispatcher: d, metrics: m, c: c,
	}
}

func (h *harness) onUI(t *testing.T, fn func()) {
	t.Helper()
	require.True(t, h.loop.Call(fn), "UI loop stopped")
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	var err error
	h.onUI(t, func() { err = h.c.Start(engine.NativeWindowRef(0xbeef)) })
	require.NoError(t, err)
	require.Equal(t, StateRunning, h.c.State())
}

// settle waits until no load is in flight and every queued completion has been
// delivered on the loop.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.dispatcher.InFlight(worker.KindDataLoad) == 0
	}, 5*time.Second, time.Millisecond)
	h.onUI(t, func() {})
	h.onUI(t, func() {})
}

func (h *harness) finish(t *testing.T) {
	t.Helper()
	h.onUI(t, h.c.Close)
	h.loop.Quit()
	<-h.loop.Done()
	h.c.Shutdown(func() { h.rec.Mark("ReleaseUI") })
}

func TestStartupSubmitsServerAndEmbeds(t *testing.T) {
	h := newHarness(t, engine.Capabilities{ChildEmbedding: true})
	h.start(t)

	select {
	case <-h.backend.started:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("server task did not start blocking in time")
	}

	assert.Equal(t, 1, h.dispatcher.InFlight(worker.KindServerRun))
	assert.Equal(t, 1, h.rec.Count("CreateBrowserSync"))
	panel, _, _, _ := h.view.snapshot()
	assert.Equal(t, "load", panel)

	h.finish(t)
}

func TestSuccessfulLoadSwitchesToBrowser(t *testing.T) {
	h := newHarness(t, engine.Capabilities{ChildEmbedding: true})
	h.start(t)
	<-h.backend.started

	h.onUI(t, func() {
		require.NoError(t, h.c.SelectMode("umap"))
		_, err := h.c.RequestLoad("/data/pbmc3k.h5ad")
		require.NoError(t, err)
	})
	h.settle(t)

	panel, errText, title, offLoop := h.view.snapshot()
	assert.Equal(t, "browser", panel)
	assert.Empty(t, errText)
	assert.Equal(t, "pbmc3k", title)
	assert.Zero(t, offLoop)

	assert.Equal(t, []string{"pbmc3k"}, h.backend.attachments())
	b := h.rec.Browsers()[0]
	assert.Equal(t, "http://localhost:8000/", b.CurrentURL())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.LoadOutcomes.WithLabelValues("ok")))

	h.finish(t)
}

func TestFailedLoadStaysOnLoadPanel(t *testing.T) {
	h := newHarness(t, engine.Capabilities{ChildEmbedding: true})
	h.start(t)

	h.loader.mu.Lock()
	h.loader.fail["/data/corrupt.h5ad"] = errors.New("file is not an HDF5 container")
	h.loader.mu.Unlock()

	h.onUI(t, func() {
		_, err := h.c.RequestLoad("/data/corrupt.h5ad")
		require.NoError(t, err)
	})
	h.settle(t)

	panel, errText, _, _ := h.view.snapshot()
	assert.Equal(t, "load", panel)
	assert.Contains(t, errText, "Error:")
	assert.Contains(t, errText, "file is not an HDF5 container")
	assert.Empty(t, h.backend.attachments())
	assert.Equal(t, 0, h.rec.Count("Navigate"))

	// The user can retry with a good file.
	h.onUI(t, func() {
		_, err := h.c.RequestLoad("/data/good.h5ad")
		require.NoError(t, err)
	})
	h.settle(t)

	panel, errText, _, _ = h.view.snapshot()
	assert.Equal(t, "browser", panel)
	assert.Empty(t, errText)

	h.finish(t)
}

func TestCancelledPromptSubmitsNothing(t *testing.T) {
	h := newHarness(t, engine.Capabilities{ChildEmbedding: true})
	h.start(t)

	h.onUI(t, func() {
		seq, err := h.c.RequestLoad("")
		assert.NoError(t, err)
		assert.Zero(t, seq)
	})
	assert.Zero(t, h.dispatcher.InFlight(worker.KindDataLoad))

	h.finish(t)
}

func TestSupersededLoadIsDiscarded(t *testing.T) {
	h := newHarness(t, engine.Capabilities{ChildEmbedding: true})
	h.start(t)

	slow := make(chan struct{})
	h.loader.gates["/data/old.h5ad"] = slow

	h.onUI(t, func() {
		_, err := h.c.RequestLoad("/data/old.h5ad")
		require.NoError(t, err)
		_, err = h.c.RequestLoad("/data/new.h5ad")
		require.NoError(t, err)
	})

	require.Eventually(t, func() bool {
		return len(h.backend.attachments()) == 1
	}, 5*time.Second, time.Millisecond)

	close(slow)
	h.settle(t)

	assert.Equal(t, []string{"new"}, h.backend.attachments())
	_, _, title, _ := h.view.snapshot()
	assert.Equal(t, "new", title)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.LoadOutcomes.WithLabelValues("stale")))

	h.finish(t)
}

func TestModeSelectionIsCapturedAtSubmit(t *testing.T) {
	h := newHarness(t, engine.Capabilities{ChildEmbedding: true})
	h.start(t)

	gate := make(chan struct{})
	h.loader.gates["/data/a.h5ad"] = gate

	h.onUI(t, func() {
		require.NoError(t, h.c.SelectMode("tsne"))
		_, err := h.c.RequestLoad("/data/a.h5ad")
		require.NoError(t, err)
		require.NoError(t, h.c.SelectMode("phate"))
		assert.Error(t, h.c.SelectMode("pca3d"))
		assert.Equal(t, dataset.ModePHATE, h.c.Mode())
	})

	close(gate)
	h.settle(t)

	h.loader.mu.Lock()
	got := h.loader.modes["/data/a.h5ad"]
	h.loader.mu.Unlock()
	assert.Equal(t, dataset.ModeTSNE, got)

	h.finish(t)
}

func TestShutdownOrder(t *testing.T) {
	for _, caps := range []engine.Capabilities{
		{ChildEmbedding: true, ExternalPump: true},
		{ChildEmbedding: false, ExternalPump: false},
	} {
		h := newHarness(t, caps)
		h.start(t)

		h.onUI(t, func() {
			_, err := h.c.RequestLoad("/data/pbmc3k.h5ad")
			require.NoError(t, err)
		})
		h.settle(t)

		h.finish(t)
		assert.Equal(t, StateTerminated, h.c.State())

		closeCall, ok := h.rec.First("CloseBrowser")
		require.True(t, ok)
		pumpStop, ok := h.rec.First("PumpStop")
		require.True(t, ok)
		release, ok := h.rec.First("ReleaseUI")
		require.True(t, ok)
		shutdownCall, ok := h.rec.First("Shutdown")
		require.True(t, ok)

		assert.Less(t, closeCall.Seq, pumpStop.Seq, "browser disposed before pump stop")
		assert.Less(t, pumpStop.Seq, release.Seq, "pump stopped before UI release")
		assert.Less(t, release.Seq, shutdownCall.Seq, "UI released before engine shutdown")
		assert.False(t, closeCall.At.After(pumpStop.At))
		assert.False(t, pumpStop.At.After(shutdownCall.At))

		assert.Equal(t, 1, h.rec.Count("CloseBrowser"))
		assert.Equal(t, engine.PhaseShutDown, h.runtime.Phase())
		assert.Zero(t, h.runtime.LiveBrowsers())

		// Shutdown is idempotent.
		assert.NotPanics(t, func() { h.c.Shutdown(nil) })
	}
}

func TestShutdownWithoutCloseRequest(t *testing.T) {
	h := newHarness(t, engine.Capabilities{ChildEmbedding: true})
	h.start(t)

	h.loop.Quit()
	<-h.loop.Done()
	h.c.Shutdown(nil)

	assert.Equal(t, StateTerminated, h.c.State())
	assert.Equal(t, 1, h.rec.Count("CloseBrowser"))
	assert.Equal(t, 1, h.rec.Count("Shutdown"))
}

func TestLoadOutcomeAfterCloseIsIgnored(t *testing.T) {
	h := newHarness(t, engine.Capabilities{ChildEmbedding: true})
	h.start(t)

	gate := make(chan struct{})
	h.loader.gates["/data/late.h5ad"] = gate
	h.onUI(t, func() {
		_, err := h.c.RequestLoad("/data/late.h5ad")
		require.NoError(t, err)
	})

	h.onUI(t, h.c.Close)
	close(gate)
	h.settle(t)

	assert.Empty(t, h.backend.attachments())
	assert.Zero(t, h.rec.Count("Navigate"))

	h.onUI(t, func() {
		_, err := h.c.RequestLoad("/data/other.h5ad")
		assert.Error(t, err)
	})

	h.loop.Quit()
	<-h.loop.Done()
	h.c.Shutdown(nil)
}

func TestServerExitSurfacesError(t *testing.T) {
	h := newHarness(t, engine.Capabilities{ChildEmbedding: true})
	h.backend.runErr = errors.New("address already in use")
	h.start(t)

	require.Eventually(t, func() bool {
		_, errText, _, _ := h.view.snapshot()
		return errText != ""
	}, 5*time.Second, time.Millisecond)

	_, errText, _, _ := h.view.snapshot()
	assert.Contains(t, errText, "Error: local server stopped")
	assert.Contains(t, errText, "address already in use")

	h.finish(t)
}

func TestIllegalTransitions(t *testing.T) {
	h := newHarness(t, engine.Capabilities{ChildEmbedding: true})
	h.start(t)

	h.onUI(t, func() {
		assert.Error(t, h.c.Start(engine.NativeWindowRef(1)))
	})
	assert.False(t, canTransition(StateTerminated, StateRunning))
	assert.True(t, canTransition(StateInit, StateShuttingDown))
	assert.Equal(t, "shutting_down", StateShuttingDown.String())

	h.finish(t)
}
