package runtime

import (
	"sync"

	"chat-relay/domain"
)

type Set map[domain.ConnectionID]struct{}

// Membership is the bidirectional connection <-> room table. The forward
// index answers fan-out ("who is in this room"), the reverse index answers
// the disconnect cascade ("which rooms must hear the departure").
type Membership struct {
	mu          sync.RWMutex
	roomMembers map[domain.RoomID]Set
	connRooms   map[domain.ConnectionID]map[domain.RoomID]struct{}
}

func NewMembership() *Membership {
	return &Membership{
		roomMembers: make(map[domain.RoomID]Set),
		connRooms:   make(map[domain.ConnectionID]map[domain.RoomID]struct{}),
	}
}

// Join adds the membership edge and reports whether it is new. Joining an
// already-joined room is a no-op on membership.
func (m *Membership) Join(id domain.ConnectionID, room domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connRooms[id][room]; ok {
		return false
	}
	if _, ok := m.roomMembers[room]; !ok {
		m.roomMembers[room] = make(Set)
	}
	m.roomMembers[room][id] = struct{}{}

	if _, ok := m.connRooms[id]; !ok {
		m.connRooms[id] = make(map[domain.RoomID]struct{})
	}
	m.connRooms[id][room] = struct{}{}
	return true
}

// Leave removes one membership edge and reports whether it existed.
// Empty room sets are dropped entirely to prevent memory leaks over time.
func (m *Membership) Leave(id domain.ConnectionID, room domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(id, room)
}

func (m *Membership) leaveLocked(id domain.ConnectionID, room domain.RoomID) bool {
	if _, ok := m.connRooms[id][room]; !ok {
		return false
	}
	delete(m.connRooms[id], room)
	if len(m.connRooms[id]) == 0 {
		delete(m.connRooms, id)
	}

	if members, ok := m.roomMembers[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(m.roomMembers, room)
		}
	}
	return true
}

// RemoveAll drops every edge of a connection and returns the rooms it was a
// member of.
func (m *Membership) RemoveAll(id domain.ConnectionID) []domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rooms []domain.RoomID
	for room := range m.connRooms[id] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		m.leaveLocked(id, room)
	}
	return rooms
}

// MembersOf returns a copy of the room's member set, safe to use after the
// lock is released.
func (m *Membership) MembersOf(room domain.RoomID) Set {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, ok := m.roomMembers[room]
	if !ok {
		return nil
	}
	snapshot := make(Set, len(members))
	for id := range members {
		snapshot[id] = struct{}{}
	}
	return snapshot
}

// RoomsOf returns the rooms a connection has joined.
func (m *Membership) RoomsOf(id domain.ConnectionID) []domain.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rooms []domain.RoomID
	for room := range m.connRooms[id] {
		rooms = append(rooms, room)
	}
	return rooms
}

// IsMember reports whether the edge exists.
func (m *Membership) IsMember(id domain.ConnectionID, room domain.RoomID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.connRooms[id][room]
	return ok
}
