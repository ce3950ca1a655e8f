package canvas

// DefaultHistoryCapacity bounds the per-client undo stack.
const DefaultHistoryCapacity = 20

// History is a bounded stack of immutable CanvasState snapshots with a
// cursor. A new record truncates everything after the cursor (the redo
// branch) before appending; once the capacity is reached the oldest
// snapshot slides out.
//
// Only local edits feed it. Remote reconciliation bypasses History
// entirely so one user's undo stays meaningful under concurrent editing.
type History struct {
	snapshots []CanvasState
	cursor    int
	capacity  int
}

func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{cursor: -1, capacity: capacity}
}

// Record appends a deep copy of state as the new head.
func (h *History) Record(state CanvasState) {
	h.snapshots = append(h.snapshots[:h.cursor+1], state.Clone())
	h.cursor++
	if len(h.snapshots) > h.capacity {
		h.snapshots = h.snapshots[1:]
		h.cursor = h.capacity - 1
	}
}

// Undo moves the cursor back and returns that snapshot. At the oldest
// retained snapshot it returns ok=false; this is a boundary, not an error.
func (h *History) Undo() (CanvasState, bool) {
	if h.cursor <= 0 {
		return CanvasState{}, false
	}
	h.cursor--
	return h.snapshots[h.cursor].Clone(), true
}

// Redo moves the cursor forward and returns that snapshot.
func (h *History) Redo() (CanvasState, bool) {
	if h.cursor >= len(h.snapshots)-1 {
		return CanvasState{}, false
	}
	h.cursor++
	return h.snapshots[h.cursor].Clone(), true
}

// Len returns the number of retained snapshots.
func (h *History) Len() int { return len(h.snapshots) }

// Cursor returns the index of the current snapshot.
func (h *History) Cursor() int { return h.cursor }
