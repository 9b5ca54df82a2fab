package components

import (
	"math"

	"cellxgene-desktop/internal/engine"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// BrowserPanel reserves the area the native browser is drawn into. It draws
// nothing itself; its job is to tell the host where that area is and when it
// gains or loses keyboard focus.
type BrowserPanel struct {
	widget.BaseWidget

	geometryHandler func(engine.Bounds)
	focusHandler    func(bool)

	// position reports the panel's top-left corner in window coordinates.
	position func(fyne.CanvasObject) fyne.Position
	scale    func(fyne.CanvasObject) float32

	last    engine.Bounds
	focused bool
}

func NewBrowserPanel() *BrowserPanel {
	p := &BrowserPanel{
		position: absolutePosition,
		scale:    canvasScale,
	}
	p.ExtendBaseWidget(p)
	return p
}

func (p *BrowserPanel) SetGeometryHandler(handler func(engine.Bounds)) {
	p.geometryHandler = handler
}

func (p *BrowserPanel) SetFocusHandler(handler func(bool)) {
	p.focusHandler = handler
}

// Bounds is the last geometry forwarded, in device pixels.
func (p *BrowserPanel) Bounds() engine.Bounds {
	return p.last
}

// Conceal collapses the native view while another panel is on top. The next
// Reveal or layout sends the real geometry again.
func (p *BrowserPanel) Conceal() {
	if p.last.Empty() {
		return
	}
	p.last = engine.Bounds{}
	if p.geometryHandler != nil {
		p.geometryHandler(p.last)
	}
}

func (p *BrowserPanel) Reveal() {
	p.forwardGeometry(p.Size())
}

func (p *BrowserPanel) Focused() bool {
	return p.focused
}

func (p *BrowserPanel) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(theme.Color(theme.ColorNameBackground))
	return &browserPanelRenderer{panel: p, background: bg}
}

// forwardGeometry converts the laid out area to device pixels and hands it to
// the host. Repeats of the same geometry are suppressed, and nothing is sent
// while the panel is hidden.
func (p *BrowserPanel) forwardGeometry(size fyne.Size) {
	if !p.Visible() {
		return
	}
	pos := p.position(p)
	s := p.scale(p)
	if s <= 0 {
		s = 1
	}

	b := engine.Bounds{
		X:      int(math.Round(float64(pos.X * s))),
		Y:      int(math.Round(float64(pos.Y * s))),
		Width:  int(math.Round(float64(size.Width * s))),
		Height: int(math.Round(float64(size.Height * s))),
	}
	if b == p.last {
		return
	}
	p.last = b

	if p.geometryHandler != nil {
		p.geometryHandler(b)
	}
}

func (p *BrowserPanel) Tapped(*fyne.PointEvent) {
	if c := fyne.CurrentApp().Driver().CanvasForObject(p); c != nil {
		c.Focus(p)
	}
}

func (p *BrowserPanel) FocusGained() {
	p.focused = true
	if p.focusHandler != nil {
		p.focusHandler(true)
	}
}

func (p *BrowserPanel) FocusLost() {
	p.focused = false
	if p.focusHandler != nil {
		p.focusHandler(false)
	}
}

// Keyboard input goes to the native browser window directly.
func (p *BrowserPanel) TypedRune(rune)          {}
func (p *BrowserPanel) TypedKey(*fyne.KeyEvent) {}

func absolutePosition(o fyne.CanvasObject) fyne.Position {
	a := fyne.CurrentApp()
	if a == nil {
		return fyne.NewPos(0, 0)
	}
	return a.Driver().AbsolutePositionForObject(o)
}

func canvasScale(o fyne.CanvasObject) float32 {
	a := fyne.CurrentApp()
	if a == nil {
		return 1
	}
	if c := a.Driver().CanvasForObject(o); c != nil {
		return c.Scale()
	}
	return 1
}

type browserPanelRenderer struct {
	panel      *BrowserPanel
	background *canvas.Rectangle
}

func (r *browserPanelRenderer) Layout(size fyne.Size) {
	r.background.Resize(size)
	r.panel.forwardGeometry(size)
}

func (r *browserPanelRenderer) MinSize() fyne.Size {
	return fyne.NewSize(theme.Padding()*4, theme.Padding()*4)
}

func (r *browserPanelRenderer) Refresh() {
	r.background.FillColor = theme.Color(theme.ColorNameBackground)
	r.background.Refresh()
}

func (r *browserPanelRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.background}
}

func (r *browserPanelRenderer) Destroy() {}
