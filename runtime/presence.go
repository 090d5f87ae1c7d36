package runtime

import (
	"sort"
	"sync"

	"chat-relay/domain"
)

// Presence tracks the user profile behind each live connection and the
// per-room typing state. Operations on unknown connection ids are no-ops:
// disconnect races are expected and must stay harmless.
type Presence struct {
	mu       sync.RWMutex
	profiles map[domain.ConnectionID]domain.Profile
	order    []domain.ConnectionID
	typing   map[domain.RoomID]map[domain.ConnectionID]string
}

func NewPresence() *Presence {
	return &Presence{
		profiles: make(map[domain.ConnectionID]domain.Profile),
		typing:   make(map[domain.RoomID]map[domain.ConnectionID]string),
	}
}

// SetProfile records or renames the identity of a connection. First-time
// registration fixes the connection's position in join order; a rename
// keeps it.
func (p *Presence) SetProfile(id domain.ConnectionID, displayName string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, known := p.profiles[id]; !known {
		p.order = append(p.order, id)
	}
	p.profiles[id] = domain.Profile{ConnectionID: id, DisplayName: displayName}
}

func (p *Presence) RemoveProfile(id domain.ConnectionID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, known := p.profiles[id]; !known {
		return
	}
	delete(p.profiles, id)
	for i, other := range p.order {
		if other == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Profiles returns every live profile in join order, stable for UI lists.
func (p *Presence) Profiles() []domain.Profile {
	p.mu.RLock()
	defer p.mu.RUnlock()

	profiles := make([]domain.Profile, 0, len(p.profiles))
	for _, id := range p.order {
		profiles = append(profiles, p.profiles[id])
	}
	return profiles
}

// ProfilesAmong returns the profiles of the given connections, still in
// join order. Connections without a profile (anonymous) are skipped.
func (p *Presence) ProfilesAmong(ids map[domain.ConnectionID]struct{}) []domain.Profile {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var profiles []domain.Profile
	for _, id := range p.order {
		if _, ok := ids[id]; !ok {
			continue
		}
		profiles = append(profiles, p.profiles[id])
	}
	return profiles
}

// SetTyping marks a connection as typing in one room.
func (p *Presence) SetTyping(id domain.ConnectionID, room domain.RoomID, displayName string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, known := p.profiles[id]; !known {
		return
	}
	if _, ok := p.typing[room]; !ok {
		p.typing[room] = make(map[domain.ConnectionID]string)
	}
	p.typing[room][id] = displayName
}

// ClearTyping removes a connection's typing mark from one room.
func (p *Presence) ClearTyping(id domain.ConnectionID, room domain.RoomID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearTypingLocked(id, room)
}

// ClearAllTyping removes a connection from every room's typing set and
// returns the rooms that were affected, so the caller can refresh them.
func (p *Presence) ClearAllTyping(id domain.ConnectionID) []domain.RoomID {
	p.mu.Lock()
	defer p.mu.Unlock()

	var affected []domain.RoomID
	for room, set := range p.typing {
		if _, ok := set[id]; ok {
			affected = append(affected, room)
			p.clearTypingLocked(id, room)
		}
	}
	return affected
}

func (p *Presence) clearTypingLocked(id domain.ConnectionID, room domain.RoomID) {
	set, ok := p.typing[room]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(p.typing, room)
	}
}

// Typing returns the display names currently typing in a room, sorted so
// every observer sees the same snapshot.
func (p *Presence) Typing(room domain.RoomID) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	set, ok := p.typing[room]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(set))
	for _, name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
