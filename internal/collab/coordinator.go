package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"craftboard/api/internal/canvas"
)

// Handlers receives the events a Coordinator reads off the wire. Nil
// handlers are skipped. Handlers run on the coordinator's read goroutine,
// one event at a time.
type Handlers struct {
	PeerJoined    func(Envelope)
	PeerLeft      func(Envelope)
	Roster        func(Envelope)
	RemoteEdit    func(Envelope)
	CursorMoved   func(Envelope)
	StateRequest  func(Envelope)
	StateResponse func(Envelope)
	NewComment    func(Envelope)
	// Disconnected fires once when the connection dies, with the read
	// error that killed it (nil after an explicit Close).
	Disconnected func(error)
}

// Coordinator is the client side of one collaboration session: a single
// websocket connection plus join/leave/send primitives. Sends are
// fire-and-forget — once the connection is gone they are dropped, not
// queued, and missed edits are only recovered through the late-join
// state handshake.
type Coordinator struct {
	participantID string
	displayName   string
	ws            *websocket.Conn
	handlers      Handlers

	writeMu sync.Mutex
	closed  atomic.Bool
}

// Dial connects to the collaboration endpoint and starts reading events.
func Dial(ctx context.Context, url, participantID, displayName string, handlers Handlers) (*Coordinator, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial collab socket: %w", err)
	}
	c := &Coordinator{
		participantID: participantID,
		displayName:   displayName,
		ws:            ws,
		handlers:      handlers,
	}
	go c.readLoop()
	return c, nil
}

// ParticipantID returns the id this coordinator sends as.
func (c *Coordinator) ParticipantID() string { return c.participantID }

// Connected reports whether the transport is still up.
func (c *Coordinator) Connected() bool { return !c.closed.Load() }

// Join enters a design's room. Idempotent per connection.
func (c *Coordinator) Join(designID string) error {
	return c.send(Envelope{
		Type:          EventJoinDesign,
		DesignID:      designID,
		ParticipantID: c.participantID,
		DisplayName:   c.displayName,
	})
}

// Leave exits a design's room. Call on session teardown; the server also
// treats a transport close as leaving every joined room.
func (c *Coordinator) Leave(designID string) error {
	return c.send(Envelope{
		Type:          EventLeaveDesign,
		DesignID:      designID,
		ParticipantID: c.participantID,
	})
}

// SendEdit broadcasts a local edit to the rest of the room.
func (c *Coordinator) SendEdit(designID string, action EditAction, layerID string, layer *canvas.Layer, layers []canvas.Layer) error {
	return c.send(Envelope{
		Type:          EventDesignUpdate,
		DesignID:      designID,
		ParticipantID: c.participantID,
		Action:        action,
		LayerID:       layerID,
		Layer:         layer,
		Layers:        layers,
	})
}

// SendCursor broadcasts an ephemeral cursor position. Best effort only.
func (c *Coordinator) SendCursor(designID string, x, y float64) error {
	return c.send(Envelope{
		Type:          EventCursorPosition,
		DesignID:      designID,
		ParticipantID: c.participantID,
		DisplayName:   c.displayName,
		X:             x,
		Y:             y,
	})
}

// RequestCurrentState asks the room's existing members for their latest
// unsaved canvas. There is no timeout: a requester with no live peer to
// answer simply stays on the state it loaded.
func (c *Coordinator) RequestCurrentState(designID string) error {
	return c.send(Envelope{
		Type:          EventRequestCurrentState,
		DesignID:      designID,
		ParticipantID: c.participantID,
	})
}

// SendCurrentState answers a state request with this client's full layer
// set, addressed to the requester.
func (c *Coordinator) SendCurrentState(designID, requestingParticipantID string, layers []canvas.Layer) error {
	return c.send(Envelope{
		Type:                    EventSendCurrentState,
		DesignID:                designID,
		ParticipantID:           c.participantID,
		RequestingParticipantID: requestingParticipantID,
		Layers:                  layers,
	})
}

// SendComment relays an opaque comment payload to the room.
func (c *Coordinator) SendComment(designID string, comment json.RawMessage) error {
	return c.send(Envelope{
		Type:          EventCommentAdded,
		DesignID:      designID,
		ParticipantID: c.participantID,
		Comment:       comment,
	})
}

// Close tears the connection down. Safe to call more than once.
func (c *Coordinator) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.writeMu.Lock()
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Coordinator) send(env Envelope) error {
	if c.closed.Load() {
		return fmt.Errorf("collab: not connected, %s dropped", env.Type)
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

func (c *Coordinator) readLoop() {
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			explicit := c.closed.Swap(true)
			c.ws.Close()
			if c.handlers.Disconnected != nil {
				if explicit {
					c.handlers.Disconnected(nil)
				} else {
					c.handlers.Disconnected(err)
				}
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			log.Printf("collab: client dropping malformed frame: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Coordinator) dispatch(env Envelope) {
	switch env.Type {
	case EventPeerJoined:
		if c.handlers.PeerJoined != nil {
			c.handlers.PeerJoined(env)
		}
	case EventPeerLeft:
		if c.handlers.PeerLeft != nil {
			c.handlers.PeerLeft(env)
		}
	case EventRoster:
		if c.handlers.Roster != nil {
			c.handlers.Roster(env)
		}
	case EventDesignUpdate:
		if c.handlers.RemoteEdit != nil {
			c.handlers.RemoteEdit(env)
		}
	case EventCursorPosition:
		if c.handlers.CursorMoved != nil {
			c.handlers.CursorMoved(env)
		}
	case EventRequestCurrentState:
		if c.handlers.StateRequest != nil {
			c.handlers.StateRequest(env)
		}
	case EventSendCurrentState:
		if c.handlers.StateResponse != nil {
			c.handlers.StateResponse(env)
		}
	case EventNewComment:
		if c.handlers.NewComment != nil {
			c.handlers.NewComment(env)
		}
	default:
		log.Printf("collab: client ignoring unknown event type %q", env.Type)
	}
}
