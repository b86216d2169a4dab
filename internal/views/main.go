package views

import (
	"errors"
	"io"

	"filter-explorer/internal/controllers"
	"filter-explorer/internal/models"
	"filter-explorer/internal/services"
	"filter-explorer/internal/views/components"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
)

// MainView is the application window. It implements controllers.View and
// marshals every update onto the UI thread with fyne.Do.
type MainView struct {
	window        fyne.Window
	mainContainer *fyne.Container
	toolbar       *components.Toolbar
	imageDisplay  *components.ImageDisplay
	statusBar     *components.StatusBar
}

func NewMainView(window fyne.Window, defaultKernel models.KernelSize) *MainView {
	view := &MainView{
		window: window,
	}

	view.initializeComponents(defaultKernel)
	view.buildLayout()

	return view
}

func (mv *MainView) initializeComponents(defaultKernel models.KernelSize) {
	mv.toolbar = components.NewToolbar(defaultKernel)
	mv.imageDisplay = components.NewImageDisplay()
	mv.statusBar = components.NewStatusBar()
}

func (mv *MainView) buildLayout() {
	mv.mainContainer = container.NewBorder(
		mv.toolbar.GetContainer(),
		mv.statusBar.GetContainer(),
		nil,
		nil,
		mv.imageDisplay.GetContainer(),
	)

	mv.window.SetContent(mv.mainContainer)
}

// SetHandlers connects toolbar events to the controller.
func (mv *MainView) SetHandlers(h controllers.Handlers) {
	mv.toolbar.SetLoadHandler(h.Load)
	mv.toolbar.SetResetHandler(h.Reset)
	mv.toolbar.SetExportHandler(h.Export)
	mv.toolbar.SetFilterHandler(h.Apply)
}

// Render redraws the window from state.
func (mv *MainView) Render(state controllers.ViewState) {
	fyne.Do(func() {
		snap := state.Snapshot
		mv.toolbar.Apply(snap)
		mv.imageDisplay.SetImages(state.Original, state.Current)
		mv.statusBar.SetHistory(snap.HistoryText())
		mv.statusBar.SetStatus(state.Status)
		mv.statusBar.SetSession(snap.SessionID)
		mv.statusBar.SetBusy(snap.InFlight)
	})
}

func (mv *MainView) ShowError(title, message string) {
	fyne.Do(func() {
		dialog.NewError(errors.New(message), mv.window).Show()
		mv.statusBar.SetStatus(title + ": " + message)
	})
}

// KernelText returns the raw kernel entry. It is called from toolbar
// handlers, which already run on the UI thread.
func (mv *MainView) KernelText() string {
	return mv.toolbar.KernelText()
}

// ChooseImage shows an open dialog restricted to image files. A cancelled
// dialog reports a nil reader.
func (mv *MainView) ChooseImage(cb func(reader io.ReadCloser, name string, err error)) {
	fyne.Do(func() {
		fileDialog := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
			if err != nil || reader == nil {
				cb(nil, "", err)
				return
			}
			cb(reader, reader.URI().Name(), nil)
		}, mv.window)
		fileDialog.SetFilter(storage.NewExtensionFileFilter(services.SupportedExtensions()))
		fileDialog.Show()
	})
}

// ChooseExportTarget shows a save dialog proposing defaultName.
func (mv *MainView) ChooseExportTarget(defaultName string, cb func(writer io.WriteCloser, name string, err error)) {
	fyne.Do(func() {
		saveDialog := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
			if err != nil || writer == nil {
				cb(nil, "", err)
				return
			}
			cb(writer, services.ExportName(writer.URI().Name()), nil)
		}, mv.window)
		saveDialog.SetFileName(defaultName)
		saveDialog.Show()
	})
}

func (mv *MainView) GetContainer() *fyne.Container {
	return mv.mainContainer
}
