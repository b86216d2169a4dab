// Package session owns the state of one image-filtering session: the original
// image, the current (possibly filtered) image, the history of applied filters
// and the in-flight request. Every mutating intent goes through Machine.
package session

import (
	"context"
	"errors"
	"sync"

	"filter-explorer/internal/codec"
	"filter-explorer/internal/logger"
	"filter-explorer/internal/models"

	"github.com/google/uuid"
)

const component = "Session"

// ErrStale is returned by ApplyFilter when a newer load superseded the request
// while it was in flight. The outcome was discarded.
var ErrStale = errors.New("result discarded: a new image was loaded while the filter was running")

// FilterSender performs one filter exchange with the filtering service.
type FilterSender interface {
	Send(ctx context.Context, encodedImage string, key models.FilterKey, kernel *models.KernelSize) (string, error)
}

// ImageCodec converts images to and from the protocol text form.
type ImageCodec interface {
	Encode(data []byte) string
	Decode(text string) ([]byte, error)
	Validate(data []byte) (codec.Info, error)
}

// Listener is notified after every committed transition and every failure.
// err is nil for successful transitions.
type Listener func(snap models.Snapshot, err error)

// Stats counts intents handled by a Machine.
type Stats struct {
	Loads    int
	Applied  int
	Failed   int
	Stale    int
	Rejected int
}

// Machine is the sole authority on session state. Transitions are serialized
// by an internal mutex; no lock is held during the network exchange.
type Machine struct {
	mu        sync.Mutex
	state     models.SessionState
	stats     Stats
	listeners map[int]Listener
	nextID    int

	sender FilterSender
	codec  ImageCodec
	logger logger.Logger
	newID  func() string
}

// Option customizes a Machine.
type Option func(*Machine)

// WithIDGenerator overrides how session IDs are generated.
func WithIDGenerator(fn func() string) Option {
	return func(m *Machine) {
		m.newID = fn
	}
}

// New creates an empty session.
func New(sender FilterSender, imageCodec ImageCodec, log logger.Logger, opts ...Option) *Machine {
	if log == nil {
		log = logger.Nop()
	}
	m := &Machine{
		listeners: make(map[int]Listener),
		sender:    sender,
		codec:     imageCodec,
		logger:    log,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Snapshot()
}

// InFlight reports whether a filter request is outstanding.
func (m *Machine) InFlight() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InFlight()
}

// Stats returns intent counters.
func (m *Machine) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Subscribe registers l and returns a function that removes it.
func (m *Machine) Subscribe(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = l

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// LoadImage starts a new session from data. It is accepted in every state;
// a request in flight is superseded and its outcome will be discarded.
// If data does not decode as an image the previous session is kept.
func (m *Machine) LoadImage(data []byte) (models.Snapshot, error) {
	info, err := m.codec.Validate(data)
	if err != nil {
		m.logger.Warning(component, "image load rejected", map[string]interface{}{
			"size_bytes": len(data),
			"error":      err.Error(),
		})
		snap := m.Snapshot()
		m.notify(snap, err)
		return snap, err
	}

	m.mu.Lock()
	superseded := m.state.InFlight()
	m.state.Load(m.newID(), data)
	m.stats.Loads++
	snap := m.state.Snapshot()
	m.mu.Unlock()

	fields := map[string]interface{}{
		"session_id": snap.SessionID,
		"generation": snap.Generation,
		"size_bytes": len(data),
		"width":      info.Width,
		"height":     info.Height,
		"channels":   info.Channels,
	}
	if superseded {
		fields["superseded_request"] = true
	}
	m.logger.Info(component, "image loaded", fields)

	m.notify(snap, nil)
	return snap, nil
}

// pendingApply is everything captured when a filter request is issued.
type pendingApply struct {
	generation uint64
	filter     models.FilterSpec
	kernel     *models.KernelSize
	encoded    string
}

// ApplyFilter sends the current image through filter key and blocks until the
// exchange completes. kernel is required for filters that consume one and is
// captured at call time.
//
// Precondition violations return a *models.ValidationError without contacting
// the service. Service failures return a *models.FilterError and leave the
// images and history untouched. ErrStale means a newer load won.
func (m *Machine) ApplyFilter(ctx context.Context, key models.FilterKey, kernel *models.KernelSize) (models.Snapshot, error) {
	req, err := m.begin(key, kernel)
	if err != nil {
		return m.reject(err)
	}
	return m.run(ctx, req)
}

// ApplyFilterAsync validates synchronously, then runs the exchange on its own
// goroutine and calls done with the outcome. A validation error is returned
// directly and done is not called.
func (m *Machine) ApplyFilterAsync(ctx context.Context, key models.FilterKey, kernel *models.KernelSize, done func(models.Snapshot, error)) error {
	req, err := m.begin(key, kernel)
	if err != nil {
		_, err = m.reject(err)
		return err
	}

	go func() {
		snap, err := m.run(ctx, req)
		if done != nil {
			done(snap, err)
		}
	}()
	return nil
}

func (m *Machine) begin(key models.FilterKey, kernel *models.KernelSize) (*pendingApply, error) {
	spec, ok := models.LookupFilter(key)
	if !ok {
		return nil, models.NewValidationError("filter", string(key), models.ErrUnknownFilter)
	}

	var captured *models.KernelSize
	if spec.RequiresKernel {
		if kernel == nil {
			return nil, models.NewValidationError("kernel_size", nil, models.ErrKernelRequired)
		}
		if err := kernel.Validate(); err != nil {
			return nil, err
		}
		captured = kernel.Ptr()
	}

	m.mu.Lock()
	switch m.state.State {
	case models.StateEmpty:
		m.mu.Unlock()
		return nil, models.NewValidationError("image", nil, models.ErrNoImage)
	case models.StateBusy:
		m.mu.Unlock()
		return nil, models.NewValidationError("filter", string(key), models.ErrBusy)
	}

	req := &pendingApply{
		generation: m.state.Generation,
		filter:     spec,
		kernel:     captured,
		encoded:    m.codec.Encode(m.state.Current),
	}
	m.state.State = models.StateBusy
	m.state.Pending = &models.PendingRequest{
		Generation: req.generation,
		Filter:     spec,
		Kernel:     captured,
	}
	snap := m.state.Snapshot()
	m.mu.Unlock()

	m.notify(snap, nil)
	return req, nil
}

func (m *Machine) run(ctx context.Context, req *pendingApply) (models.Snapshot, error) {
	fields := map[string]interface{}{
		"filter":     string(req.filter.Key),
		"generation": req.generation,
	}
	if req.kernel != nil {
		fields["kernel_size"] = int(*req.kernel)
	}
	m.logger.Debug(component, "filter request issued", fields)

	encoded, err := m.sender.Send(ctx, req.encoded, req.filter.Key, req.kernel)

	var result []byte
	if err == nil {
		result, err = m.decodeResult(req.filter.Key, encoded)
	}

	return m.complete(req, result, err)
}

func (m *Machine) decodeResult(key models.FilterKey, encoded string) ([]byte, error) {
	result, err := m.codec.Decode(encoded)
	if err == nil {
		_, err = m.codec.Validate(result)
	}
	if err != nil {
		var fe *models.FilterError
		if errors.As(err, &fe) {
			fe.Filter = key
			return nil, fe
		}
		return nil, &models.FilterError{Kind: models.FailureDecode, Filter: key, Err: err}
	}
	return result, nil
}

func (m *Machine) complete(req *pendingApply, result []byte, sendErr error) (models.Snapshot, error) {
	m.mu.Lock()

	if m.state.Generation != req.generation {
		m.stats.Stale++
		snap := m.state.Snapshot()
		m.mu.Unlock()

		m.logger.Info(component, "discarding stale filter result", map[string]interface{}{
			"filter":             string(req.filter.Key),
			"request_generation": req.generation,
			"session_generation": snap.Generation,
			"request_failed":     sendErr != nil,
		})
		return snap, ErrStale
	}

	if sendErr != nil {
		m.state.Rollback()
		m.stats.Failed++
		snap := m.state.Snapshot()
		m.mu.Unlock()

		m.logger.Error(component, sendErr, map[string]interface{}{
			"filter":     string(req.filter.Key),
			"generation": req.generation,
		})
		m.notify(snap, sendErr)
		return snap, sendErr
	}

	m.state.Commit(result, req.filter.Label)
	m.stats.Applied++
	snap := m.state.Snapshot()
	m.mu.Unlock()

	m.logger.Info(component, "filter applied", map[string]interface{}{
		"filter":       string(req.filter.Key),
		"history_len":  len(snap.History),
		"result_bytes": len(result),
	})
	m.notify(snap, nil)
	return snap, nil
}

// Reset restores the original image and clears the history. With an empty
// history it is a no-op.
func (m *Machine) Reset() (models.Snapshot, error) {
	m.mu.Lock()
	switch m.state.State {
	case models.StateEmpty:
		m.mu.Unlock()
		return m.reject(models.NewValidationError("image", nil, models.ErrNoImage))
	case models.StateBusy:
		m.mu.Unlock()
		return m.reject(models.NewValidationError("reset", nil, models.ErrBusy))
	}

	if len(m.state.History) == 0 {
		snap := m.state.Snapshot()
		m.mu.Unlock()
		return snap, nil
	}

	cleared := len(m.state.History)
	m.state.Reset()
	snap := m.state.Snapshot()
	m.mu.Unlock()

	m.logger.Info(component, "session reset to original", map[string]interface{}{
		"cleared_filters": cleared,
	})
	m.notify(snap, nil)
	return snap, nil
}

// Export returns a copy of the current image. It never mutates state.
func (m *Machine) Export() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.HasImage() {
		return nil, models.NewValidationError("export", nil, models.ErrNothingToExport)
	}
	return m.state.Current.Clone(), nil
}

func (m *Machine) reject(err error) (models.Snapshot, error) {
	m.mu.Lock()
	m.stats.Rejected++
	snap := m.state.Snapshot()
	m.mu.Unlock()

	m.logger.Debug(component, "intent rejected", map[string]interface{}{
		"state": snap.State.String(),
		"error": err.Error(),
	})
	m.notify(snap, err)
	return snap, err
}

func (m *Machine) notify(snap models.Snapshot, err error) {
	m.mu.Lock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(snap, err)
	}
}
