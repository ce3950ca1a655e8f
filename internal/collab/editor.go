package collab

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"craftboard/api/internal/canvas"
)

// EditTransport is the slice of the Coordinator the editor needs. It is an
// interface so editor tests can run against an in-memory fake.
type EditTransport interface {
	Join(designID string) error
	Leave(designID string) error
	SendEdit(designID string, action EditAction, layerID string, layer *canvas.Layer, layers []canvas.Layer) error
	RequestCurrentState(designID string) error
	SendCurrentState(designID, requestingParticipantID string, layers []canvas.Layer) error
	SendComment(designID string, comment json.RawMessage) error
}

// Editor ties one design's layer model to one collaboration session. Local
// operations mutate the model (recording undo history) and broadcast to the
// room; incoming room events are reconciled into the model bypassing
// history. A mutex serializes the two directions so every operation runs
// to completion before the next, mirroring an event-loop client.
//
// The model and transport are injected; the editor never reaches for any
// ambient state.
type Editor struct {
	mu            sync.Mutex
	designID      string
	participantID string
	model         *canvas.Model
	reconciler    *Reconciler
	transport     EditTransport

	rosterSeen bool

	// Notify, when set, receives room events after the editor has applied
	// them, for presence UI and the like. Assign before Start.
	Notify Handlers
}

func NewEditor(designID, participantID string, model *canvas.Model) *Editor {
	return &Editor{
		designID:      designID,
		participantID: participantID,
		model:         model,
		reconciler:    NewReconciler(model, participantID),
	}
}

// Start attaches the transport and joins the design's room. The first
// roster snapshot decides whether a late-join state request goes out.
func (e *Editor) Start(transport EditTransport) error {
	e.mu.Lock()
	e.transport = transport
	e.mu.Unlock()
	return transport.Join(e.designID)
}

// Stop leaves the room. The coordinator connection itself is owned by the
// caller, which may be sharing it across designs.
func (e *Editor) Stop() {
	e.mu.Lock()
	transport := e.transport
	e.mu.Unlock()
	if transport != nil {
		if err := transport.Leave(e.designID); err != nil {
			log.Printf("collab: leave %s: %v", e.designID, err)
		}
	}
}

// Handlers returns the event handlers to register with Dial.
func (e *Editor) Handlers() Handlers {
	return Handlers{
		Roster:        e.handleRoster,
		RemoteEdit:    e.handleRemoteEdit,
		StateRequest:  e.handleStateRequest,
		StateResponse: e.handleStateResponse,
		PeerJoined:    func(env Envelope) { e.forward(e.Notify.PeerJoined, env) },
		PeerLeft:      func(env Envelope) { e.forward(e.Notify.PeerLeft, env) },
		CursorMoved:   func(env Envelope) { e.forward(e.Notify.CursorMoved, env) },
		NewComment:    func(env Envelope) { e.forward(e.Notify.NewComment, env) },
		Disconnected: func(err error) {
			if e.Notify.Disconnected != nil {
				e.Notify.Disconnected(err)
			}
		},
	}
}

// State returns a deep copy of the current canvas.
func (e *Editor) State() canvas.CanvasState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.State()
}

// History exposes the local undo stack for inspection.
func (e *Editor) History() *canvas.History {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.History()
}

// AddLayer inserts the layer locally and broadcasts it. A missing id is
// filled in; that generation is what makes duplicate ids a caller bug.
func (e *Editor) AddLayer(l canvas.Layer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if err := e.model.AddLayer(l); err != nil {
		return err
	}
	added, _ := e.model.Layer(l.ID)
	e.broadcast(ActionAdd, added.ID, &added, nil)
	return nil
}

// UpdateLayer replaces a layer wholesale and broadcasts the replacement.
func (e *Editor) UpdateLayer(id string, replacement canvas.Layer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.model.Layer(id); !ok {
		return
	}
	e.model.UpdateLayer(id, replacement)
	updated, _ := e.model.Layer(id)
	e.broadcast(ActionUpdate, id, &updated, nil)
}

// DeleteLayer removes a layer and broadcasts the removal.
func (e *Editor) DeleteLayer(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.model.Layer(id); !ok {
		return
	}
	e.model.DeleteLayer(id)
	e.broadcast(ActionDelete, id, nil, nil)
}

// ReorderLayer nudges a layer through the stack. Reorders ripple across
// zIndexes, so the broadcast carries the whole layer array.
func (e *Editor) ReorderLayer(id string, dir canvas.Direction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	before := e.model.State()
	e.model.ReorderLayer(id, dir)
	if statesEqual(before, e.model.State()) {
		return
	}
	e.broadcast(ActionReorder, "", nil, e.model.Layers())
}

// RenameLayer renames and broadcasts the renamed layer as an update.
func (e *Editor) RenameLayer(id, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	before, ok := e.model.Layer(id)
	if !ok {
		return
	}
	e.model.RenameLayer(id, name)
	after, _ := e.model.Layer(id)
	if before.Name == after.Name {
		return
	}
	e.broadcast(ActionUpdate, id, &after, nil)
}

// ToggleVisibility flips render visibility and broadcasts the layer.
func (e *Editor) ToggleVisibility(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.model.Layer(id); !ok {
		return
	}
	e.model.ToggleVisibility(id)
	updated, _ := e.model.Layer(id)
	e.broadcast(ActionUpdate, id, &updated, nil)
}

// ToggleLock flips editability and broadcasts the layer.
func (e *Editor) ToggleLock(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.model.Layer(id); !ok {
		return
	}
	e.model.ToggleLock(id)
	updated, _ := e.model.Layer(id)
	e.broadcast(ActionUpdate, id, &updated, nil)
}

// SelectLayer changes the local selection. Selection is per-client view
// state and is never broadcast.
func (e *Editor) SelectLayer(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.model.SelectLayer(id)
}

// Undo steps local history back and broadcasts the restored layer set.
func (e *Editor) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.model.Undo() {
		return false
	}
	e.broadcast(ActionUndoRedo, "", nil, e.model.Layers())
	return true
}

// Redo steps local history forward and broadcasts the restored layer set.
func (e *Editor) Redo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.model.Redo() {
		return false
	}
	e.broadcast(ActionUndoRedo, "", nil, e.model.Layers())
	return true
}

// Comment relays an opaque comment payload through the room.
func (e *Editor) Comment(comment json.RawMessage) {
	e.mu.Lock()
	transport := e.transport
	e.mu.Unlock()
	if transport == nil {
		return
	}
	if err := transport.SendComment(e.designID, comment); err != nil {
		log.Printf("collab: comment dropped: %v", err)
	}
}

func (e *Editor) handleRoster(env Envelope) {
	e.mu.Lock()
	first := !e.rosterSeen
	e.rosterSeen = true
	transport := e.transport
	e.mu.Unlock()

	// Joining a room that already has members means the persisted snapshot
	// we loaded may be stale; pull the live state from a peer.
	if first && len(env.ParticipantIDs) > 1 && transport != nil {
		if err := transport.RequestCurrentState(e.designID); err != nil {
			log.Printf("collab: state request dropped: %v", err)
		}
	}
	e.forward(e.Notify.Roster, env)
}

func (e *Editor) handleRemoteEdit(env Envelope) {
	e.mu.Lock()
	e.reconciler.ApplyEdit(env)
	e.mu.Unlock()
	e.forward(e.Notify.RemoteEdit, env)
}

func (e *Editor) handleStateRequest(env Envelope) {
	if env.ParticipantID == e.participantID {
		return
	}
	e.forward(e.Notify.StateRequest, env)
	e.mu.Lock()
	layers := e.model.Layers()
	transport := e.transport
	e.mu.Unlock()
	if transport == nil {
		return
	}
	if err := transport.SendCurrentState(e.designID, env.ParticipantID, layers); err != nil {
		log.Printf("collab: state response dropped: %v", err)
	}
}

func (e *Editor) handleStateResponse(env Envelope) {
	e.mu.Lock()
	e.reconciler.ApplyStateResponse(env)
	e.mu.Unlock()
	e.forward(e.Notify.StateResponse, env)
}

// broadcast fires the edit at the room. Failures are logged and dropped;
// there is no queueing or retry, the handshake covers rejoining clients.
// Callers hold e.mu.
func (e *Editor) broadcast(action EditAction, layerID string, layer *canvas.Layer, layers []canvas.Layer) {
	if e.transport == nil {
		return
	}
	if err := e.transport.SendEdit(e.designID, action, layerID, layer, layers); err != nil {
		log.Printf("collab: %s edit dropped: %v", action, err)
	}
}

func (e *Editor) forward(fn func(Envelope), env Envelope) {
	if fn != nil {
		fn(env)
	}
}

func statesEqual(a, b canvas.CanvasState) bool {
	if a.SelectedLayerID != b.SelectedLayerID || len(a.Layers) != len(b.Layers) {
		return false
	}
	for i := range a.Layers {
		if a.Layers[i].ID != b.Layers[i].ID || a.Layers[i].ZIndex != b.Layers[i].ZIndex {
			return false
		}
	}
	return true
}
