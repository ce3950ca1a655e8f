// Package collab implements the realtime collaboration layer: the
// server-side room presence registry and update relay, and the client-side
// session coordinator, remote reconciler and editor facade.
package collab

import (
	"encoding/json"
	"time"

	"craftboard/api/internal/canvas"
)

// EventType identifies a message on the collaboration socket.
type EventType string

const (
	// Client → server.
	EventJoinDesign          EventType = "join-design"
	EventLeaveDesign         EventType = "leave-design"
	EventDesignUpdate        EventType = "design-update"
	EventCursorPosition      EventType = "cursor-position"
	EventRequestCurrentState EventType = "request-current-state"
	EventSendCurrentState    EventType = "send-current-state"
	EventCommentAdded        EventType = "comment-added"

	// Server → client.
	EventPeerJoined EventType = "peer-joined"
	EventPeerLeft   EventType = "peer-left"
	EventRoster     EventType = "roster"
	EventNewComment EventType = "new-comment"
)

// EditAction is the kind of a design-update event.
type EditAction string

const (
	ActionAdd    EditAction = "add"
	ActionUpdate EditAction = "update"
	ActionDelete EditAction = "delete"
	// ActionReorder and ActionUndoRedo carry the full layer array because
	// they change relative order across many layers at once; receivers
	// apply them as a wholesale replacement.
	ActionReorder  EditAction = "reorder"
	ActionUndoRedo EditAction = "undo-redo"
)

// Envelope is the single wire format for every collaboration event. Fields
// irrelevant to a given type stay zero and are omitted from the JSON. The
// relay only ever reads Type, DesignID and ParticipantID; everything else
// passes through untouched.
type Envelope struct {
	Type          EventType `json:"type"`
	DesignID      string    `json:"designId,omitempty"`
	ParticipantID string    `json:"participantId,omitempty"`
	DisplayName   string    `json:"displayName,omitempty"`

	// design-update
	Action  EditAction     `json:"action,omitempty"`
	LayerID string         `json:"layerId,omitempty"`
	Layer   *canvas.Layer  `json:"layer,omitempty"`
	Layers  []canvas.Layer `json:"layers,omitempty"`

	// cursor-position
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`

	// request-current-state / send-current-state
	RequestingParticipantID string `json:"requestingParticipantId,omitempty"`

	// roster
	ParticipantIDs []string `json:"participantIds,omitempty"`

	// comment-added / new-comment; opaque to this layer, persistence is
	// the API's problem.
	Comment json.RawMessage `json:"comment,omitempty"`

	// Set by the server on peer-joined / peer-left.
	Timestamp time.Time `json:"timestamp,omitzero"`
}
