package canvas

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDuplicateID is returned by AddLayer when the id is already taken.
// Layer ids come from uuid generation, so hitting this indicates a caller bug.
var ErrDuplicateID = errors.New("canvas: duplicate layer id")

// Direction moves a layer one step through the stacking order.
type Direction string

const (
	Forward  Direction = "forward"  // toward the top (higher zIndex)
	Backward Direction = "backward" // toward the bottom
)

// Model owns one client's CanvasState and its local history. Every local
// operation records an undo snapshot; the ApplyRemote* variants never do,
// which is what keeps each user's undo stack private to their own edits.
//
// Model is not safe for concurrent use. Each editing session owns exactly
// one instance and drives it from a single goroutine.
type Model struct {
	state   CanvasState
	history *History
}

// NewModel seeds a model from the loaded state (persisted snapshot or draft)
// and records it as the first history entry.
func NewModel(initial CanvasState) *Model {
	m := &Model{
		state:   initial.Clone(),
		history: NewHistory(DefaultHistoryCapacity),
	}
	m.normalize()
	m.history.Record(m.state)
	return m
}

// State returns a deep copy of the current state.
func (m *Model) State() CanvasState {
	return m.state.Clone()
}

// Layers returns a deep copy of the current layer list, bottom to top.
func (m *Model) Layers() []Layer {
	return m.state.Clone().Layers
}

// SelectedLayerID returns the current selection, empty when none.
func (m *Model) SelectedLayerID() string {
	return m.state.SelectedLayerID
}

// Layer looks up a layer by id.
func (m *Model) Layer(id string) (Layer, bool) {
	if i := m.indexOf(id); i >= 0 {
		return m.state.Layers[i].Clone(), true
	}
	return Layer{}, false
}

// AddLayer appends the layer at the top of the stack.
func (m *Model) AddLayer(l Layer) error {
	if m.indexOf(l.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateID, l.ID)
	}
	m.state.Layers = append(m.state.Layers, l.Clone())
	m.commit()
	return nil
}

// UpdateLayer replaces the layer with the same id wholesale. Unknown ids are
// ignored; callers that care should look the layer up first.
func (m *Model) UpdateLayer(id string, replacement Layer) {
	i := m.indexOf(id)
	if i < 0 {
		return
	}
	replacement.ID = id
	m.state.Layers[i] = replacement.Clone()
	m.commit()
}

// DeleteLayer removes the layer. Deleting the selected layer clears the
// selection.
func (m *Model) DeleteLayer(id string) {
	i := m.indexOf(id)
	if i < 0 {
		return
	}
	m.state.Layers = append(m.state.Layers[:i], m.state.Layers[i+1:]...)
	if m.state.SelectedLayerID == id {
		m.state.SelectedLayerID = ""
	}
	m.commit()
}

// ReorderLayer swaps the layer's zIndex with its single neighbor in the
// given direction. At the top/bottom boundary it is a no-op.
func (m *Model) ReorderLayer(id string, dir Direction) {
	m.sortByZ()
	i := m.indexOf(id)
	if i < 0 {
		return
	}
	j := i + 1
	if dir == Backward {
		j = i - 1
	}
	if j < 0 || j >= len(m.state.Layers) {
		return
	}
	m.state.Layers[i].ZIndex, m.state.Layers[j].ZIndex = m.state.Layers[j].ZIndex, m.state.Layers[i].ZIndex
	m.commit()
}

// RenameLayer sets the display name. A name that trims to empty, or that
// matches the current one, is ignored; neither records history.
func (m *Model) RenameLayer(id, name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	i := m.indexOf(id)
	if i < 0 || m.state.Layers[i].Name == name {
		return
	}
	m.state.Layers[i].Name = name
	m.commit()
}

// ToggleVisibility flips the render flag.
func (m *Model) ToggleVisibility(id string) {
	i := m.indexOf(id)
	if i < 0 {
		return
	}
	m.state.Layers[i].Visible = !m.state.Layers[i].Visible
	m.commit()
}

// ToggleLock flips the editability flag. A layer that just became locked
// cannot stay selected.
func (m *Model) ToggleLock(id string) {
	i := m.indexOf(id)
	if i < 0 {
		return
	}
	m.state.Layers[i].Locked = !m.state.Layers[i].Locked
	if m.state.Layers[i].Locked && m.state.SelectedLayerID == id {
		m.state.SelectedLayerID = ""
	}
	m.commit()
}

// SelectLayer sets the active selection; pass "" to clear it.
func (m *Model) SelectLayer(id string) {
	if id != "" && m.indexOf(id) < 0 {
		return
	}
	m.state.SelectedLayerID = id
	m.commit()
}

// Undo steps the local history back one snapshot and restores it. Returns
// false at the oldest retained snapshot.
func (m *Model) Undo() bool {
	s, ok := m.history.Undo()
	if !ok {
		return false
	}
	m.state = s.Clone()
	return true
}

// Redo steps the local history forward one snapshot and restores it.
func (m *Model) Redo() bool {
	s, ok := m.history.Redo()
	if !ok {
		return false
	}
	m.state = s.Clone()
	return true
}

// History exposes the undo stack for inspection (length, cursor).
func (m *Model) History() *History {
	return m.history
}

// ApplyRemoteUpsert applies an add or full-replacement update that arrived
// from a peer. History is deliberately not touched: recording remote edits
// would let one user's undo revert another's work.
func (m *Model) ApplyRemoteUpsert(l Layer) {
	if i := m.indexOf(l.ID); i >= 0 {
		m.state.Layers[i] = l.Clone()
	} else {
		m.state.Layers = append(m.state.Layers, l.Clone())
	}
	m.normalize()
}

// ApplyRemoteDelete removes a layer on behalf of a peer, bypassing history.
func (m *Model) ApplyRemoteDelete(id string) {
	i := m.indexOf(id)
	if i < 0 {
		return
	}
	m.state.Layers = append(m.state.Layers[:i], m.state.Layers[i+1:]...)
	if m.state.SelectedLayerID == id {
		m.state.SelectedLayerID = ""
	}
	m.normalize()
}

// ApplyRemoteReplaceAll substitutes the whole layer collection, used for
// remote reorder/undo-redo and the late-join state response. Last write
// wins: any concurrent local edit is overwritten, by policy. The local
// selection survives only if its layer still exists.
func (m *Model) ApplyRemoteReplaceAll(layers []Layer) {
	replaced := make([]Layer, len(layers))
	for i, l := range layers {
		replaced[i] = l.Clone()
	}
	m.state.Layers = replaced
	if m.state.SelectedLayerID != "" && m.indexOf(m.state.SelectedLayerID) < 0 {
		m.state.SelectedLayerID = ""
	}
	m.normalize()
}

// commit normalizes and records one undoable unit.
func (m *Model) commit() {
	m.normalize()
	m.history.Record(m.state)
}

// normalize re-packs zIndex values into the dense sequence 0..n-1,
// preserving relative order. Holds after every mutation, local or remote.
func (m *Model) normalize() {
	m.sortByZ()
	for i := range m.state.Layers {
		m.state.Layers[i].ZIndex = i
	}
}

func (m *Model) sortByZ() {
	sort.SliceStable(m.state.Layers, func(i, j int) bool {
		return m.state.Layers[i].ZIndex < m.state.Layers[j].ZIndex
	})
}

func (m *Model) indexOf(id string) int {
	for i := range m.state.Layers {
		if m.state.Layers[i].ID == id {
			return i
		}
	}
	return -1
}
