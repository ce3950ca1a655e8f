package collab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"craftboard/api/internal/canvas"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(NewRoomRegistry())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

type eventSink struct {
	rosters   chan Envelope
	joins     chan Envelope
	leaves    chan Envelope
	edits     chan Envelope
	cursors   chan Envelope
	requests  chan Envelope
	responses chan Envelope
	comments  chan Envelope
}

func newEventSink() *eventSink {
	return &eventSink{
		rosters:   make(chan Envelope, 16),
		joins:     make(chan Envelope, 16),
		leaves:    make(chan Envelope, 16),
		edits:     make(chan Envelope, 16),
		cursors:   make(chan Envelope, 16),
		requests:  make(chan Envelope, 16),
		responses: make(chan Envelope, 16),
		comments:  make(chan Envelope, 16),
	}
}

func (s *eventSink) handlers() Handlers {
	return Handlers{
		Roster:        func(env Envelope) { s.rosters <- env },
		PeerJoined:    func(env Envelope) { s.joins <- env },
		PeerLeft:      func(env Envelope) { s.leaves <- env },
		RemoteEdit:    func(env Envelope) { s.edits <- env },
		CursorMoved:   func(env Envelope) { s.cursors <- env },
		StateRequest:  func(env Envelope) { s.requests <- env },
		StateResponse: func(env Envelope) { s.responses <- env },
		NewComment:    func(env Envelope) { s.comments <- env },
	}
}

func waitFor(t *testing.T, ch chan Envelope, what string) Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return Envelope{}
	}
}

func dialSink(t *testing.T, url, participantID string) (*Coordinator, *eventSink) {
	t.Helper()
	sink := newEventSink()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	coord, err := Dial(ctx, url, participantID, "User "+participantID, sink.handlers())
	if err != nil {
		t.Fatalf("dial %s: %v", participantID, err)
	}
	t.Cleanup(func() { coord.Close() })
	return coord, sink
}

func TestPresenceOverWebsocket(t *testing.T) {
	hub, url := startHub(t)

	a, sinkA := dialSink(t, url, "A")
	if err := a.Join("d1"); err != nil {
		t.Fatalf("A join: %v", err)
	}
	roster := waitFor(t, sinkA.rosters, "A's first roster")
	if !reflect.DeepEqual(roster.ParticipantIDs, []string{"A"}) {
		t.Fatalf("roster = %v, want [A]", roster.ParticipantIDs)
	}

	b, sinkB := dialSink(t, url, "B")
	if err := b.Join("d1"); err != nil {
		t.Fatalf("B join: %v", err)
	}

	roster = waitFor(t, sinkA.rosters, "A's updated roster")
	if !reflect.DeepEqual(roster.ParticipantIDs, []string{"A", "B"}) {
		t.Fatalf("roster = %v, want [A B]", roster.ParticipantIDs)
	}
	joined := waitFor(t, sinkA.joins, "A's peer-joined")
	if joined.ParticipantID != "B" {
		t.Fatalf("peer-joined from %s, want B", joined.ParticipantID)
	}
	if joined.Timestamp.IsZero() {
		t.Error("peer-joined has no timestamp")
	}
	roster = waitFor(t, sinkB.rosters, "B's roster")
	if !reflect.DeepEqual(roster.ParticipantIDs, []string{"A", "B"}) {
		t.Fatalf("B's roster = %v, want [A B]", roster.ParticipantIDs)
	}

	// B disconnects without an explicit leave; the server notices the
	// transport close and clears its membership.
	b.Close()
	left := waitFor(t, sinkA.leaves, "A's peer-left")
	if left.ParticipantID != "B" {
		t.Fatalf("peer-left from %s, want B", left.ParticipantID)
	}
	roster = waitFor(t, sinkA.rosters, "A's roster after B left")
	if !reflect.DeepEqual(roster.ParticipantIDs, []string{"A"}) {
		t.Fatalf("roster = %v, want [A]", roster.ParticipantIDs)
	}
	if hub.Registry().RoomCount() != 1 {
		t.Errorf("room count = %d, want 1 (A still present)", hub.Registry().RoomCount())
	}
}

func TestRelayFanOutExcludesSenderOverWebsocket(t *testing.T) {
	_, url := startHub(t)

	a, sinkA := dialSink(t, url, "A")
	b, sinkB := dialSink(t, url, "B")
	for _, coord := range []*Coordinator{a, b} {
		if err := coord.Join("d1"); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	waitFor(t, sinkA.rosters, "A roster")
	waitFor(t, sinkB.rosters, "B roster")

	l := testLayer("l1", 0)
	if err := a.SendEdit("d1", ActionAdd, l.ID, &l, nil); err != nil {
		t.Fatalf("send edit: %v", err)
	}

	edit := waitFor(t, sinkB.edits, "B's remote edit")
	if edit.Action != ActionAdd || edit.Layer == nil || edit.Layer.ID != "l1" {
		t.Fatalf("remote edit = %+v, want add of l1", edit)
	}
	if edit.ParticipantID != "A" {
		t.Errorf("edit sender = %s, want A", edit.ParticipantID)
	}

	select {
	case env := <-sinkA.edits:
		t.Fatalf("sender received its own edit back: %+v", env)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCommentRelayRewritesType(t *testing.T) {
	_, url := startHub(t)

	a, sinkA := dialSink(t, url, "A")
	b, sinkB := dialSink(t, url, "B")
	for _, coord := range []*Coordinator{a, b} {
		if err := coord.Join("d1"); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	waitFor(t, sinkA.rosters, "A roster")
	waitFor(t, sinkB.rosters, "B roster")

	if err := a.SendComment("d1", []byte(`{"body":"nice gradient"}`)); err != nil {
		t.Fatalf("send comment: %v", err)
	}
	comment := waitFor(t, sinkB.comments, "B's new-comment")
	if comment.Type != EventNewComment {
		t.Errorf("type = %s, want %s", comment.Type, EventNewComment)
	}
	if !strings.Contains(string(comment.Comment), "nice gradient") {
		t.Errorf("comment payload %s lost its body", comment.Comment)
	}
}

func TestCursorRelay(t *testing.T) {
	_, url := startHub(t)

	a, sinkA := dialSink(t, url, "A")
	b, sinkB := dialSink(t, url, "B")
	for _, coord := range []*Coordinator{a, b} {
		if err := coord.Join("d1"); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	waitFor(t, sinkA.rosters, "A roster")
	waitFor(t, sinkB.rosters, "B roster")

	if err := a.SendCursor("d1", 120.5, 80.25); err != nil {
		t.Fatalf("send cursor: %v", err)
	}
	cursor := waitFor(t, sinkB.cursors, "B's cursor event")
	if cursor.X != 120.5 || cursor.Y != 80.25 {
		t.Errorf("cursor = (%v, %v), want (120.5, 80.25)", cursor.X, cursor.Y)
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	_, url := startHub(t)

	a, sinkA := dialSink(t, url, "A")
	b, sinkB := dialSink(t, url, "B")
	if err := a.Join("d1"); err != nil {
		t.Fatal(err)
	}
	if err := b.Join("d2"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, sinkA.rosters, "A roster")
	waitFor(t, sinkB.rosters, "B roster")

	l := testLayer("x", 0)
	if err := a.SendEdit("d1", ActionAdd, l.ID, &l, nil); err != nil {
		t.Fatal(err)
	}
	select {
	case env := <-sinkB.edits:
		t.Fatalf("edit leaked across rooms: %+v", env)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestLateJoinHandshake runs the full editor-level scenario: A edits alone,
// B joins afterward and recovers A's unsaved state from the live handshake,
// with B's undo history left untouched.
func TestLateJoinHandshake(t *testing.T) {
	_, url := startHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	modelA := canvas.NewModel(canvas.CanvasState{})
	editorA := NewEditor("d1", "A", modelA)
	coordA, err := Dial(ctx, url, "A", "Ava", editorA.Handlers())
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	t.Cleanup(func() { coordA.Close() })
	if err := editorA.Start(coordA); err != nil {
		t.Fatalf("start A: %v", err)
	}

	// A builds up unsaved state while alone in the room.
	if err := editorA.AddLayer(testLayer("X", 0)); err != nil {
		t.Fatal(err)
	}
	if err := editorA.AddLayer(testLayer("Y", 1)); err != nil {
		t.Fatal(err)
	}

	modelB := canvas.NewModel(canvas.CanvasState{})
	editorB := NewEditor("d1", "B", modelB)
	coordB, err := Dial(ctx, url, "B", "Ben", editorB.Handlers())
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	t.Cleanup(func() { coordB.Close() })
	if err := editorB.Start(coordB); err != nil {
		t.Fatalf("start B: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		state := editorB.State()
		if len(state.Layers) == 2 && state.Layers[0].ID == "X" && state.Layers[1].ID == "Y" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("B never recovered A's state; got %+v", state.Layers)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Recovery bypassed history: B still has only its initial snapshot.
	if got := editorB.History().Len(); got != 1 {
		t.Errorf("B's history len = %d after recovery, want 1", got)
	}
	if editorB.Undo() {
		t.Error("B could undo state it never edited")
	}
}

// TestEditPropagationBetweenEditors checks the full local-edit → relay →
// reconcile path, including that the receiver's history stays local.
func TestEditPropagationBetweenEditors(t *testing.T) {
	_, url := startHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	editors := make(map[string]*Editor)
	for _, id := range []string{"A", "B"} {
		model := canvas.NewModel(canvas.CanvasState{})
		editor := NewEditor("d1", id, model)
		coord, err := Dial(ctx, url, id, "", editor.Handlers())
		if err != nil {
			t.Fatalf("dial %s: %v", id, err)
		}
		t.Cleanup(func() { coord.Close() })
		if err := editor.Start(coord); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
		editors[id] = editor
	}

	if err := editors["A"].AddLayer(testLayer("shared", 0)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if layers := editors["B"].State().Layers; len(layers) == 1 && layers[0].ID == "shared" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("B never saw A's edit")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := editors["B"].History().Len(); got != 1 {
		t.Errorf("B's history len = %d, want 1 (remote edit must not record)", got)
	}
	if got := editors["A"].History().Len(); got != 2 {
		t.Errorf("A's history len = %d, want 2 (initial + local add)", got)
	}
}
