package controllers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"filter-explorer/internal/codec"
	"filter-explorer/internal/logger"
	"filter-explorer/internal/models"
	"filter-explorer/internal/services"
	"filter-explorer/internal/session"
)

const component = "MainController"

// Handlers are the user intents the view forwards to the controller.
type Handlers struct {
	Load   func()
	Apply  func(key models.FilterKey)
	Reset  func()
	Export func()
}

// ViewState is everything the view needs to redraw itself.
type ViewState struct {
	Snapshot models.Snapshot
	Original image.Image
	Current  image.Image
	Status   string
}

// View is implemented by the window. Implementations marshal every call onto
// the UI thread themselves.
type View interface {
	SetHandlers(h Handlers)
	Render(state ViewState)
	ShowError(title, message string)
	KernelText() string
	ChooseImage(cb func(reader io.ReadCloser, name string, err error))
	ChooseExportTarget(defaultName string, cb func(writer io.WriteCloser, name string, err error))
}

// Renderer turns encoded bytes into a displayable image.
type Renderer func(data []byte) (image.Image, error)

// MainController maps view intents to session transitions and session
// snapshots back to view updates.
type MainController struct {
	machine    *session.Machine
	images     *services.ImageService
	view       View
	logger     logger.Logger
	render     Renderer
	exportName string

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	unsubscribe func()
	generation  uint64
	original    renderedImage
	current     renderedImage
}

type renderedImage struct {
	data models.Image
	img  image.Image
}

type Option func(*MainController)

// WithRenderer replaces codec.ToImage for display conversion.
func WithRenderer(r Renderer) Option {
	return func(mc *MainController) {
		mc.render = r
	}
}

// WithExportName sets the name proposed by the export dialog.
func WithExportName(name string) Option {
	return func(mc *MainController) {
		if name != "" {
			mc.exportName = name
		}
	}
}

func NewMainController(machine *session.Machine, images *services.ImageService, view View, log logger.Logger, opts ...Option) *MainController {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	mc := &MainController{
		machine:    machine,
		images:     images,
		view:       view,
		logger:     log,
		render:     codec.ToImage,
		exportName: models.DefaultExportName,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(mc)
	}
	return mc
}

// Start connects the view and renders the current snapshot.
func (mc *MainController) Start() {
	mc.view.SetHandlers(Handlers{
		Load:   mc.LoadImage,
		Apply:  mc.ApplyFilter,
		Reset:  mc.Reset,
		Export: mc.Export,
	})

	unsubscribe := mc.machine.Subscribe(mc.onSessionChanged)
	mc.mu.Lock()
	mc.unsubscribe = unsubscribe
	mc.mu.Unlock()

	if state, ok := mc.buildViewState(mc.machine.Snapshot()); ok {
		mc.view.Render(state)
	}
}

// LoadImage opens the image picker and loads the chosen file.
func (mc *MainController) LoadImage() {
	mc.view.ChooseImage(func(reader io.ReadCloser, name string, err error) {
		if err != nil {
			mc.showError("Load failed", err)
			return
		}
		if reader == nil {
			return
		}

		go func() {
			data, err := mc.images.ReadImage(mc.ctx, reader, name)
			if err != nil {
				mc.logger.Error(component, err, map[string]interface{}{"name": name})
				mc.showError("Load failed", err)
				return
			}
			// Failures reach the view through the session listener.
			mc.machine.LoadImage(data)
		}()
	})
}

// ApplyFilter issues key with the kernel currently in the view.
func (mc *MainController) ApplyFilter(key models.FilterKey) {
	spec, ok := models.LookupFilter(key)
	if !ok {
		mc.showError("Filter failed", models.NewValidationError("filter", string(key), models.ErrUnknownFilter))
		return
	}

	var kernel *models.KernelSize
	if spec.RequiresKernel {
		k, err := models.ParseKernelSize(mc.view.KernelText())
		if err != nil {
			mc.showError("Invalid kernel size", err)
			return
		}
		kernel = &k
	}

	err := mc.machine.ApplyFilterAsync(mc.ctx, key, kernel, func(_ models.Snapshot, err error) {
		if errors.Is(err, session.ErrStale) {
			mc.logger.Debug(component, "stale filter result ignored", map[string]interface{}{
				"filter": string(key),
			})
		}
	})
	if err != nil {
		mc.logger.Debug(component, "apply rejected", map[string]interface{}{
			"filter": string(key),
			"error":  err.Error(),
		})
	}
}

// Reset restores the original image.
func (mc *MainController) Reset() {
	mc.machine.Reset()
}

// Export asks for a destination and writes the current image to it.
func (mc *MainController) Export() {
	data, err := mc.machine.Export()
	if err != nil {
		mc.showError("Export failed", err)
		return
	}

	mc.view.ChooseExportTarget(mc.exportName, func(writer io.WriteCloser, name string, err error) {
		if err != nil {
			mc.showError("Export failed", err)
			return
		}
		if writer == nil {
			return
		}

		go func() {
			if err := mc.images.WriteImage(mc.ctx, writer, name, data); err != nil {
				mc.logger.Error(component, err, map[string]interface{}{"name": name})
				mc.showError("Export failed", err)
			}
		}()
	})
}

func (mc *MainController) onSessionChanged(snap models.Snapshot, err error) {
	state, ok := mc.buildViewState(snap)
	if !ok {
		mc.logger.Debug(component, "superseded snapshot dropped", map[string]interface{}{
			"generation": snap.Generation,
		})
		return
	}
	mc.view.Render(state)
	if err != nil && !errors.Is(err, session.ErrStale) {
		mc.showError(errorTitle(err), err)
	}
}

// buildViewState reports false for a snapshot older than the last one
// rendered. Listeners run outside the session lock, so a snapshot from a
// replaced session can arrive after the load that replaced it.
func (mc *MainController) buildViewState(snap models.Snapshot) (ViewState, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if snap.Generation < mc.generation {
		return ViewState{}, false
	}
	mc.generation = snap.Generation

	return ViewState{
		Snapshot: snap,
		Original: mc.renderCached(&mc.original, snap.Original),
		Current:  mc.renderCached(&mc.current, snap.Current),
		Status:   statusText(snap),
	}, true
}

// renderCached re-decodes only when the bytes changed since the last render.
func (mc *MainController) renderCached(cache *renderedImage, data models.Image) image.Image {
	if len(data) == 0 {
		*cache = renderedImage{}
		return nil
	}
	if cache.img != nil && bytes.Equal(cache.data, data) {
		return cache.img
	}

	img, err := mc.render(data)
	if err != nil {
		mc.logger.Warning(component, "image render failed", map[string]interface{}{
			"size_bytes": len(data),
			"error":      err.Error(),
		})
		*cache = renderedImage{}
		return nil
	}
	*cache = renderedImage{data: data, img: img}
	return img
}

func (mc *MainController) showError(title string, err error) {
	mc.view.ShowError(title, UserMessage(err))
}

// Shutdown stops listening to the session and cancels in-flight work.
func (mc *MainController) Shutdown() {
	mc.mu.Lock()
	unsubscribe := mc.unsubscribe
	mc.unsubscribe = nil
	mc.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	mc.cancel()
}

func statusText(snap models.Snapshot) string {
	switch snap.State {
	case models.StateEmpty:
		return "Load an image to begin"
	case models.StateBusy:
		return fmt.Sprintf("Applying %s...", snap.PendingFilter)
	}
	if snap.HasResult {
		return fmt.Sprintf("Ready, %d filter(s) applied", len(snap.History))
	}
	return "Ready"
}

func errorTitle(err error) string {
	var fe *models.FilterError
	if errors.As(err, &fe) {
		if fe.Kind == models.FailureDecode && fe.Filter == "" {
			return "Load failed"
		}
		return "Filter failed"
	}
	return "Action not available"
}

// UserMessage extracts the message shown to the user for err.
func UserMessage(err error) string {
	var fe *models.FilterError
	if errors.As(err, &fe) {
		return fe.UserMessage()
	}
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return ve.Err.Error()
	}
	return err.Error()
}
