package components

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// StatusBar shows the filter history, the session status and an activity
// indicator while a request is in flight. Setters must run on the UI thread.
type StatusBar struct {
	container    *fyne.Container
	historyLabel *widget.Label
	statusLabel  *widget.Label
	sessionLabel *widget.Label
	progressBar  *widget.ProgressBarInfinite
}

func NewStatusBar() *StatusBar {
	sb := &StatusBar{}
	sb.createComponents()
	sb.buildLayout()
	return sb
}

func (sb *StatusBar) createComponents() {
	sb.historyLabel = widget.NewLabel("")
	sb.historyLabel.Wrapping = fyne.TextWrapWord
	sb.statusLabel = widget.NewLabel("Ready")
	sb.sessionLabel = widget.NewLabel("")
	sb.sessionLabel.TextStyle = fyne.TextStyle{Monospace: true}

	sb.progressBar = widget.NewProgressBarInfinite()
	sb.progressBar.Stop()
	sb.progressBar.Hide()
}

func (sb *StatusBar) buildLayout() {
	history := container.NewBorder(nil, nil,
		widget.NewLabelWithStyle("Applied filters:", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		nil,
		sb.historyLabel,
	)

	sb.container = container.NewVBox(
		history,
		sb.progressBar,
		container.NewHBox(sb.statusLabel, widget.NewSeparator(), sb.sessionLabel),
	)
}

func (sb *StatusBar) SetHistory(text string) {
	sb.historyLabel.SetText(text)
}

func (sb *StatusBar) SetStatus(status string) {
	sb.statusLabel.SetText(status)
}

// SetSession shows a short form of the session identifier.
func (sb *StatusBar) SetSession(id string) {
	if len(id) > 8 {
		id = id[:8]
	}
	sb.sessionLabel.SetText(id)
}

// SetBusy toggles the activity indicator.
func (sb *StatusBar) SetBusy(busy bool) {
	if busy {
		sb.progressBar.Show()
		sb.progressBar.Start()
	} else {
		sb.progressBar.Stop()
		sb.progressBar.Hide()
	}
}

func (sb *StatusBar) GetContainer() *fyne.Container {
	return sb.container
}
