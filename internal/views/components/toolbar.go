package components

import (
	"strconv"

	"filter-explorer/internal/models"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// Toolbar holds the session actions, the kernel entry and one button per
// filter. Setters must run on the UI thread.
type Toolbar struct {
	container     *fyne.Container
	loadButton    *widget.Button
	resetButton   *widget.Button
	exportButton  *widget.Button
	kernelEntry   *widget.Entry
	filterButtons map[models.FilterKey]*widget.Button
	filterOrder   []models.FilterKey

	// Event handlers
	loadHandler   func()
	resetHandler  func()
	exportHandler func()
	filterHandler func(models.FilterKey)
}

// NewToolbar creates the toolbar with the kernel entry set to defaultKernel.
func NewToolbar(defaultKernel models.KernelSize) *Toolbar {
	toolbar := &Toolbar{
		filterButtons: make(map[models.FilterKey]*widget.Button),
	}
	toolbar.createComponents(defaultKernel)
	toolbar.buildLayout()
	return toolbar
}

func (t *Toolbar) createComponents(defaultKernel models.KernelSize) {
	t.loadButton = widget.NewButtonWithIcon("Load Image", theme.FolderOpenIcon(), func() {
		if t.loadHandler != nil {
			t.loadHandler()
		}
	})
	t.loadButton.Importance = widget.HighImportance

	t.resetButton = widget.NewButtonWithIcon("Reset", theme.ViewRestoreIcon(), func() {
		if t.resetHandler != nil {
			t.resetHandler()
		}
	})
	t.resetButton.Disable()

	t.exportButton = widget.NewButtonWithIcon("Export", theme.DocumentSaveIcon(), func() {
		if t.exportHandler != nil {
			t.exportHandler()
		}
	})
	t.exportButton.Disable()

	t.kernelEntry = widget.NewEntry()
	t.kernelEntry.SetText(strconv.Itoa(int(defaultKernel)))
	t.kernelEntry.Validator = func(s string) error {
		_, err := models.ParseKernelSize(s)
		return err
	}

	for _, spec := range models.Filters() {
		key := spec.Key
		btn := widget.NewButton(spec.ButtonLabel, func() {
			if t.filterHandler != nil {
				t.filterHandler(key)
			}
		})
		btn.Disable()
		t.filterButtons[key] = btn
		t.filterOrder = append(t.filterOrder, key)
	}
}

func (t *Toolbar) buildLayout() {
	actionSection := container.NewHBox(
		t.loadButton,
		t.resetButton,
		t.exportButton,
	)

	kernelSection := container.NewHBox(
		widget.NewLabel("Kernel"),
		container.NewGridWrap(fyne.NewSize(80, t.kernelEntry.MinSize().Height), t.kernelEntry),
	)

	blurs := container.NewHBox()
	edges := container.NewHBox()
	for _, key := range t.filterOrder {
		spec, _ := models.LookupFilter(key)
		if spec.RequiresKernel {
			blurs.Add(t.filterButtons[key])
		} else {
			edges.Add(t.filterButtons[key])
		}
	}

	t.container = container.NewVBox(
		container.NewHBox(actionSection, widget.NewSeparator(), kernelSection),
		container.NewHBox(
			widget.NewLabel("Blur"), blurs,
			widget.NewSeparator(),
			widget.NewLabel("Edges"), edges,
		),
	)
}

func (t *Toolbar) SetLoadHandler(handler func()) {
	t.loadHandler = handler
}

func (t *Toolbar) SetResetHandler(handler func()) {
	t.resetHandler = handler
}

func (t *Toolbar) SetExportHandler(handler func()) {
	t.exportHandler = handler
}

func (t *Toolbar) SetFilterHandler(handler func(models.FilterKey)) {
	t.filterHandler = handler
}

// Apply updates enablement from a snapshot.
func (t *Toolbar) Apply(snap models.Snapshot) {
	for _, btn := range t.filterButtons {
		setEnabled(btn, snap.CanApply)
	}
	setEnabled(t.resetButton, snap.CanReset)
	setEnabled(t.exportButton, snap.CanExport)

	if snap.InFlight {
		t.kernelEntry.Disable()
	} else {
		t.kernelEntry.Enable()
	}
}

// KernelText returns the raw kernel entry contents.
func (t *Toolbar) KernelText() string {
	return t.kernelEntry.Text
}

func (t *Toolbar) GetContainer() *fyne.Container {
	return t.container
}

func setEnabled(btn *widget.Button, enabled bool) {
	if enabled {
		btn.Enable()
	} else {
		btn.Disable()
	}
}
