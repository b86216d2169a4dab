package models

import (
	"bytes"
	"strings"
)

// Image is an opaque encoded raster image (PNG, JPEG, ...).
type Image []byte

// Clone returns an independent copy of the image bytes.
func (img Image) Clone() Image {
	if img == nil {
		return nil
	}
	dup := make(Image, len(img))
	copy(dup, img)
	return dup
}

// Equal reports whether both images hold the same bytes.
func (img Image) Equal(other Image) bool {
	return bytes.Equal(img, other)
}

// State is the lifecycle state of a session.
type State int

const (
	StateEmpty State = iota
	StateReady
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// History is the ordered list of display labels of successfully applied filters.
type History []string

const (
	historySeparator = " → "
	emptyHistoryText = "Nenhum filtro aplicado."
)

// JoinHistory renders the history for display.
func JoinHistory(h History) string {
	if len(h) == 0 {
		return emptyHistoryText
	}
	return strings.Join(h, historySeparator)
}

// DefaultExportName is the file name proposed when exporting the result.
const DefaultExportName = "imagem_filtrada.png"

// SessionState is the authoritative record of one editing session.
// Original and Current are both set once the session leaves StateEmpty.
type SessionState struct {
	ID         string
	State      State
	Original   Image
	Current    Image
	History    History
	Generation uint64
	Pending    *PendingRequest
}

// PendingRequest describes the filter request currently in flight.
type PendingRequest struct {
	Generation uint64
	Filter     FilterSpec
	Kernel     *KernelSize
}

// InFlight reports whether a filter request is outstanding.
func (s *SessionState) InFlight() bool {
	return s.State == StateBusy
}

// HasImage reports whether an image has been loaded.
func (s *SessionState) HasImage() bool {
	return s.State != StateEmpty
}

// Load replaces the whole session with a freshly loaded image.
func (s *SessionState) Load(id string, data Image) {
	s.ID = id
	s.State = StateReady
	s.Original = data.Clone()
	s.Current = s.Original
	s.History = nil
	s.Pending = nil
	s.Generation++
}

// Commit records a successful filter application.
func (s *SessionState) Commit(result Image, label string) {
	s.Current = result.Clone()
	s.History = append(s.History, label)
	s.State = StateReady
	s.Pending = nil
}

// Rollback leaves the images and history untouched and returns to ready.
func (s *SessionState) Rollback() {
	s.State = StateReady
	s.Pending = nil
}

// Reset restores the original image and clears the history.
func (s *SessionState) Reset() {
	s.Current = s.Original
	s.History = nil
}

// Snapshot is an immutable view of the session for rendering.
type Snapshot struct {
	SessionID     string
	State         State
	Original      Image
	Current       Image
	History       History
	InFlight      bool
	Generation    uint64
	PendingFilter string

	CanApply  bool
	CanReset  bool
	CanExport bool
	HasResult bool
}

// Snapshot copies the state into a value safe to hand to other goroutines.
// Image buffers are shared, not copied: the session only ever replaces them,
// so readers must not modify them.
func (s *SessionState) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:  s.ID,
		State:      s.State,
		Original:   s.Original,
		Current:    s.Current,
		History:    append(History(nil), s.History...),
		InFlight:   s.InFlight(),
		Generation: s.Generation,
	}
	if s.Pending != nil {
		snap.PendingFilter = s.Pending.Filter.Label
	}

	snap.CanApply = s.State == StateReady
	snap.CanReset = s.State == StateReady && len(s.History) > 0
	snap.CanExport = s.State == StateReady
	snap.HasResult = len(s.History) > 0
	return snap
}

// HistoryText returns the history joined for display.
func (s Snapshot) HistoryText() string {
	return JoinHistory(s.History)
}
