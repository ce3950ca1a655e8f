package collab

import (
	"sort"
	"sync"
)

// outbox is where a room member receives broadcast frames. Sends are
// non-blocking; a slow consumer loses frames rather than stalling the room.
type outbox chan<- []byte

type roomMember struct {
	displayName string
	send        outbox
}

// RoomRegistry is the single owned map of design room → connected
// participants. All membership mutations go through it; a room entry is
// created on first join and deleted as soon as its last member leaves.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*roomMember
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]map[string]*roomMember)}
}

// Join adds the participant to the design's room (idempotently — rejoining
// replaces the outbox) and returns the updated roster.
func (r *RoomRegistry) Join(designID, participantID, displayName string, send outbox) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[designID]
	if !ok {
		room = make(map[string]*roomMember)
		r.rooms[designID] = room
	}
	room[participantID] = &roomMember{displayName: displayName, send: send}
	return rosterOf(room)
}

// Leave removes the participant and returns the remaining roster. The
// second return is false when the participant was not in the room.
func (r *RoomRegistry) Leave(designID, participantID string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[designID]
	if !ok {
		return nil, false
	}
	if _, ok := room[participantID]; !ok {
		return rosterOf(room), false
	}
	delete(room, participantID)
	if len(room) == 0 {
		delete(r.rooms, designID)
		return nil, true
	}
	return rosterOf(room), true
}

// Roster returns the current participant ids of a room, sorted.
func (r *RoomRegistry) Roster(designID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return rosterOf(r.rooms[designID])
}

// RoomCount returns the number of live rooms.
func (r *RoomRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Broadcast sends a frame to every member of the room, the sender included.
func (r *RoomRegistry) Broadcast(designID string, frame []byte) {
	for _, member := range r.members(designID, "") {
		member.deliver(frame)
	}
}

// Relay sends a frame to every room member except the sender. This is the
// whole of the update relay: no transformation, no validation, no storage.
func (r *RoomRegistry) Relay(designID, senderID string, frame []byte) {
	for _, member := range r.members(designID, senderID) {
		member.deliver(frame)
	}
}

func (r *RoomRegistry) members(designID, excludeID string) []*roomMember {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[designID]
	out := make([]*roomMember, 0, len(room))
	for id, member := range room {
		if id == excludeID {
			continue
		}
		out = append(out, member)
	}
	return out
}

func (m *roomMember) deliver(frame []byte) {
	select {
	case m.send <- frame:
	default:
		// Receiver's outbox is full; drop. Per-connection FIFO is the only
		// delivery guarantee this layer makes.
	}
}

func rosterOf(room map[string]*roomMember) []string {
	if len(room) == 0 {
		return nil
	}
	ids := make([]string, 0, len(room))
	for id := range room {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
