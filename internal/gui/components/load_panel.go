package components

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

const (
	MaxContentWidth = 500
	AppTitle        = "cellxgene"
)

// LoadPanel is the file picker shown before a dataset is attached and after a
// failed load.
type LoadPanel struct {
	container  *fyne.Container
	logo       *widget.Label
	modeSelect *widget.Select
	OpenButton *widget.Button
	errorLabel *widget.Label

	modeChangeHandler func(string)
	openHandler       func()
}

func NewLoadPanel(modes []string, selected string) *LoadPanel {
	p := &LoadPanel{}
	p.setup(modes, selected)
	return p
}

func (p *LoadPanel) setup(modes []string, selected string) {
	p.logo = widget.NewLabelWithStyle(AppTitle, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	p.logo.SizeName = theme.SizeNameHeadingText

	p.modeSelect = widget.NewSelect(modes, p.onModeSelected)
	if selected != "" {
		p.modeSelect.SetSelected(selected)
	}

	p.OpenButton = widget.NewButton("Open...", p.onOpen)
	p.OpenButton.Importance = widget.HighImportance

	form := container.NewGridWithColumns(2,
		widget.NewLabel("embedding: "),
		widget.NewLabel("file: "),
		p.modeSelect,
		p.OpenButton,
	)

	p.errorLabel = widget.NewLabel("")
	p.errorLabel.Wrapping = fyne.TextWrapWord
	p.errorLabel.Importance = widget.DangerImportance

	content := container.NewVBox(p.logo, form, p.errorLabel)
	column := container.New(&maxWidthLayout{width: MaxContentWidth}, content)

	p.container = container.NewPadded(column)
}

func (p *LoadPanel) GetContainer() *fyne.Container {
	return p.container
}

func (p *LoadPanel) SetModeChangeHandler(handler func(string)) {
	p.modeChangeHandler = handler
}

func (p *LoadPanel) SetOpenHandler(handler func()) {
	p.openHandler = handler
}

func (p *LoadPanel) SelectedMode() string {
	return p.modeSelect.Selected
}

// SetError shows text under the picker. An empty string clears it.
func (p *LoadPanel) SetError(text string) {
	p.errorLabel.SetText(text)
}

func (p *LoadPanel) ErrorText() string {
	return p.errorLabel.Text
}

func (p *LoadPanel) onModeSelected(mode string) {
	if p.modeChangeHandler != nil {
		p.modeChangeHandler(mode)
	}
}

func (p *LoadPanel) onOpen() {
	if p.openHandler != nil {
		p.openHandler()
	}
}

// maxWidthLayout centres its objects horizontally and caps their width.
type maxWidthLayout struct {
	width float32
}

func (l *maxWidthLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	w := size.Width
	if w > l.width {
		w = l.width
	}
	x := (size.Width - w) / 2
	for _, o := range objects {
		o.Move(fyne.NewPos(x, 0))
		o.Resize(fyne.NewSize(w, size.Height))
	}
}

func (l *maxWidthLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	size := fyne.NewSize(0, 0)
	for _, o := range objects {
		size = size.Max(o.MinSize())
	}
	return size
}
