package canvas

import (
	"fmt"
	"reflect"
	"testing"
)

func stateWithLayers(n int) CanvasState {
	s := CanvasState{}
	for i := 0; i < n; i++ {
		s.Layers = append(s.Layers, textLayer(fmt.Sprintf("h%d", i), i))
	}
	return s
}

func TestHistoryRecordUndoRedo(t *testing.T) {
	h := NewHistory(DefaultHistoryCapacity)
	s1 := stateWithLayers(1)
	s2 := stateWithLayers(2)
	h.Record(s1)
	h.Record(s2)

	got, ok := h.Undo()
	if !ok {
		t.Fatal("undo failed")
	}
	if !reflect.DeepEqual(got, s1) {
		t.Error("undo did not return the first snapshot")
	}

	got, ok = h.Redo()
	if !ok {
		t.Fatal("redo failed")
	}
	if !reflect.DeepEqual(got, s2) {
		t.Error("redo did not return the second snapshot")
	}
}

func TestHistoryUndoAtOldestIsNoOp(t *testing.T) {
	h := NewHistory(DefaultHistoryCapacity)
	h.Record(stateWithLayers(1))
	if _, ok := h.Undo(); ok {
		t.Error("undo at the oldest snapshot should be a no-op")
	}
	if h.Cursor() != 0 {
		t.Errorf("cursor = %d, want 0", h.Cursor())
	}
}

func TestHistoryRedoAtHeadIsNoOp(t *testing.T) {
	h := NewHistory(DefaultHistoryCapacity)
	h.Record(stateWithLayers(1))
	if _, ok := h.Redo(); ok {
		t.Error("redo at the newest snapshot should be a no-op")
	}
}

func TestHistoryRecordTruncatesRedoBranch(t *testing.T) {
	h := NewHistory(DefaultHistoryCapacity)
	h.Record(stateWithLayers(1))
	h.Record(stateWithLayers(2))
	h.Record(stateWithLayers(3))
	if _, ok := h.Undo(); !ok {
		t.Fatal("undo failed")
	}
	if _, ok := h.Undo(); !ok {
		t.Fatal("second undo failed")
	}

	h.Record(stateWithLayers(4))
	if h.Len() != 2 {
		t.Fatalf("len = %d, want 2 (redo branch truncated)", h.Len())
	}
	if _, ok := h.Redo(); ok {
		t.Error("redo should be empty after recording over the branch")
	}
}

func TestHistorySlidingWindowCapacity(t *testing.T) {
	h := NewHistory(DefaultHistoryCapacity)
	for i := 1; i <= 25; i++ {
		h.Record(stateWithLayers(i))
	}
	if h.Len() > DefaultHistoryCapacity {
		t.Fatalf("len = %d, want <= %d", h.Len(), DefaultHistoryCapacity)
	}
	if h.Cursor() != DefaultHistoryCapacity-1 {
		t.Fatalf("cursor = %d, want %d (pointing at the newest entry)", h.Cursor(), DefaultHistoryCapacity-1)
	}

	// 19 undos walk back to the oldest retained snapshot (6 layers in,
	// since snapshots 1..5 slid out); the 20th is a no-op.
	var last CanvasState
	for i := 0; i < DefaultHistoryCapacity-1; i++ {
		s, ok := h.Undo()
		if !ok {
			t.Fatalf("undo %d failed", i+1)
		}
		last = s
	}
	if len(last.Layers) != 6 {
		t.Errorf("oldest retained snapshot has %d layers, want 6", len(last.Layers))
	}
	if _, ok := h.Undo(); ok {
		t.Error("undo past the evicted window should be a no-op")
	}
}
