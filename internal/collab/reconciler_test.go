package collab

import (
	"testing"

	"craftboard/api/internal/canvas"
)

func testLayer(id string, z int) canvas.Layer {
	return canvas.Layer{
		ID:      id,
		Kind:    canvas.KindShape,
		Name:    "Shape " + id,
		ZIndex:  z,
		Visible: true,
		Shape:   &canvas.ShapePayload{ShapeKind: canvas.ShapeCircle, FillHex: "#00ff00"},
	}
}

func TestSelfEchoSuppressed(t *testing.T) {
	m := canvas.NewModel(canvas.CanvasState{})
	r := NewReconciler(m, "me")

	l := testLayer("x", 0)
	r.ApplyEdit(Envelope{
		Type:          EventDesignUpdate,
		ParticipantID: "me",
		Action:        ActionAdd,
		Layer:         &l,
	})
	if len(m.Layers()) != 0 {
		t.Error("self-originated edit was applied")
	}
}

func TestRemoteEditBypassesHistory(t *testing.T) {
	m := canvas.NewModel(canvas.CanvasState{})
	r := NewReconciler(m, "me")
	lenBefore, cursorBefore := m.History().Len(), m.History().Cursor()

	l := testLayer("x", 0)
	r.ApplyEdit(Envelope{
		Type:          EventDesignUpdate,
		ParticipantID: "peer",
		Action:        ActionAdd,
		Layer:         &l,
	})

	if len(m.Layers()) != 1 {
		t.Fatal("remote add not applied")
	}
	if m.History().Len() != lenBefore || m.History().Cursor() != cursorBefore {
		t.Error("remote edit changed the local history")
	}
	// Nothing new to undo: the remote edit left no snapshot behind.
	if m.Undo() {
		t.Error("undo succeeded immediately after a remote-only update")
	}
}

func TestRemoteDelete(t *testing.T) {
	m := canvas.NewModel(canvas.CanvasState{Layers: []canvas.Layer{testLayer("x", 0), testLayer("y", 1)}})
	r := NewReconciler(m, "me")

	r.ApplyEdit(Envelope{
		Type:          EventDesignUpdate,
		ParticipantID: "peer",
		Action:        ActionDelete,
		LayerID:       "x",
	})
	layers := m.Layers()
	if len(layers) != 1 || layers[0].ID != "y" {
		t.Errorf("layers after remote delete = %+v, want just y", layers)
	}
	if layers[0].ZIndex != 0 {
		t.Errorf("zIndex = %d after remote delete, want renormalized 0", layers[0].ZIndex)
	}
}

func TestRemoteReorderIsWholesaleReplacement(t *testing.T) {
	m := canvas.NewModel(canvas.CanvasState{Layers: []canvas.Layer{testLayer("a", 0), testLayer("b", 1)}})
	r := NewReconciler(m, "me")

	r.ApplyEdit(Envelope{
		Type:          EventDesignUpdate,
		ParticipantID: "peer",
		Action:        ActionReorder,
		Layers:        []canvas.Layer{testLayer("b", 0), testLayer("a", 1)},
	})
	layers := m.Layers()
	if layers[0].ID != "b" || layers[1].ID != "a" {
		t.Errorf("order after remote reorder = [%s %s], want [b a]", layers[0].ID, layers[1].ID)
	}
}

func TestStateResponseOnlyForRequester(t *testing.T) {
	m := canvas.NewModel(canvas.CanvasState{})
	r := NewReconciler(m, "me")

	// Addressed to someone else: ignored.
	r.ApplyStateResponse(Envelope{
		Type:                    EventSendCurrentState,
		ParticipantID:           "peer",
		RequestingParticipantID: "someone-else",
		Layers:                  []canvas.Layer{testLayer("x", 0)},
	})
	if len(m.Layers()) != 0 {
		t.Fatal("state response for another requester was applied")
	}

	// Addressed to us: wholesale replacement, history untouched.
	r.ApplyStateResponse(Envelope{
		Type:                    EventSendCurrentState,
		ParticipantID:           "peer",
		RequestingParticipantID: "me",
		Layers:                  []canvas.Layer{testLayer("x", 0), testLayer("y", 1)},
	})
	if len(m.Layers()) != 2 {
		t.Fatal("state response for us not applied")
	}
	if m.History().Len() != 1 {
		t.Errorf("history len = %d after state recovery, want 1 (initial snapshot only)", m.History().Len())
	}
}

func TestUnknownActionIgnored(t *testing.T) {
	m := canvas.NewModel(canvas.CanvasState{Layers: []canvas.Layer{testLayer("a", 0)}})
	r := NewReconciler(m, "me")
	before := m.State()

	r.ApplyEdit(Envelope{Type: EventDesignUpdate, ParticipantID: "peer", Action: "explode"})
	r.ApplyEdit(Envelope{Type: EventDesignUpdate, ParticipantID: "peer", Action: ActionAdd}) // nil layer

	after := m.State()
	if len(after.Layers) != len(before.Layers) {
		t.Error("malformed remote edits mutated the model")
	}
}
