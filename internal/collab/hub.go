package collab

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // canvases with embedded layer arrays get big
	outboxSize     = 256
)

// Hub owns the websocket endpoint. Each connection gets a read loop and a
// write pump; room membership and fan-out go through the RoomRegistry. The
// hub itself holds no design state and never looks inside edit payloads.
type Hub struct {
	registry *RoomRegistry
	upgrader websocket.Upgrader
}

func NewHub(registry *RoomRegistry) *Hub {
	return &Hub{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The HTTP layer handles CORS; the socket accepts any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Registry exposes the room registry for roster lookups over HTTP.
func (h *Hub) Registry() *RoomRegistry {
	return h.registry
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("collab: upgrade failed: %v", err)
		return
	}
	c := &wsConn{
		hub:   h,
		ws:    ws,
		send:  make(chan []byte, outboxSize),
		done:  make(chan struct{}),
		rooms: make(map[string]string),
	}
	go c.writePump()
	c.readPump()
}

// wsConn is one connected client.
type wsConn struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	// rooms maps designID → participantID for the joins made on this
	// connection, so an abnormal close can leave them. The send channel is
	// never closed — the registry may still hold it for a beat after leave —
	// the write pump exits on done instead.
	rooms map[string]string
}

func (c *wsConn) readPump() {
	defer func() {
		c.leaveAll()
		close(c.done)
		c.ws.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("collab: read error: %v", err)
			}
			return
		}
		c.dispatch(frame)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) dispatch(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		log.Printf("collab: dropping malformed frame: %v", err)
		return
	}
	if env.DesignID == "" || env.ParticipantID == "" {
		return
	}

	switch env.Type {
	case EventJoinDesign:
		c.handleJoin(env)
	case EventLeaveDesign:
		c.handleLeave(env.DesignID, env.ParticipantID)
	case EventDesignUpdate, EventCursorPosition, EventRequestCurrentState, EventSendCurrentState:
		// Pure fan-out: the original frame goes to everyone else verbatim.
		c.hub.registry.Relay(env.DesignID, env.ParticipantID, frame)
	case EventCommentAdded:
		// The one rewritten event: comments go back out as new-comment.
		env.Type = EventNewComment
		if out, err := json.Marshal(env); err == nil {
			c.hub.registry.Relay(env.DesignID, env.ParticipantID, out)
		}
	default:
		log.Printf("collab: ignoring unknown event type %q", env.Type)
	}
}

func (c *wsConn) handleJoin(env Envelope) {
	roster := c.hub.registry.Join(env.DesignID, env.ParticipantID, env.DisplayName, c.send)
	c.rooms[env.DesignID] = env.ParticipantID

	// Everyone, joiner included, gets the full-set roster snapshot; order
	// and duplication don't matter, the set self-corrects.
	c.hub.registry.Broadcast(env.DesignID, marshalEnvelope(Envelope{
		Type:           EventRoster,
		DesignID:       env.DesignID,
		ParticipantIDs: roster,
	}))
	c.hub.registry.Relay(env.DesignID, env.ParticipantID, marshalEnvelope(Envelope{
		Type:          EventPeerJoined,
		DesignID:      env.DesignID,
		ParticipantID: env.ParticipantID,
		DisplayName:   env.DisplayName,
		Timestamp:     time.Now().UTC(),
	}))
}

func (c *wsConn) handleLeave(designID, participantID string) {
	roster, existed := c.hub.registry.Leave(designID, participantID)
	delete(c.rooms, designID)
	if !existed {
		return
	}
	c.hub.registry.Broadcast(designID, marshalEnvelope(Envelope{
		Type:           EventRoster,
		DesignID:       designID,
		ParticipantIDs: roster,
	}))
	c.hub.registry.Broadcast(designID, marshalEnvelope(Envelope{
		Type:          EventPeerLeft,
		DesignID:      designID,
		ParticipantID: participantID,
		Timestamp:     time.Now().UTC(),
	}))
}

// leaveAll handles transport-level close: the server-detected equivalent of
// an explicit leave for every room joined on this connection.
func (c *wsConn) leaveAll() {
	for designID, participantID := range c.rooms {
		c.handleLeave(designID, participantID)
	}
}

func marshalEnvelope(env Envelope) []byte {
	out, err := json.Marshal(env)
	if err != nil {
		log.Printf("collab: marshal envelope: %v", err)
		return nil
	}
	return out
}
