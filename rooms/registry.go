// Package rooms tracks which connections are joined to which collaboration room.
package rooms

import (
	"sort"
	"sync"
)

// Registry maps room ids to member connection ids. Rooms are created on
// first join and removed when their last member leaves.
//
// Each connection also has a current room: the room it joined most recently.
// Joining another room replaces the current room without leaving the old one.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]struct{}
	current map[string]string
	// joined is the reverse index used to clean up after a disconnect
	joined map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]map[string]struct{}),
		current: make(map[string]string),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join adds connID to roomID and returns the room's membership count.
// Joining a room twice does not count twice.
func (r *Registry) Join(connID, roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[connID] = struct{}{}

	joined, ok := r.joined[connID]
	if !ok {
		joined = make(map[string]struct{})
		r.joined[connID] = joined
	}
	joined[roomID] = struct{}{}
	r.current[connID] = roomID

	return len(members)
}

// Leave removes connID from roomID and returns the remaining membership count.
// Leaving a room the connection is not in is a no-op.
func (r *Registry) Leave(connID, roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(connID, roomID)
}

func (r *Registry) leaveLocked(connID, roomID string) int {
	if joined, ok := r.joined[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.joined, connID)
		}
	}
	if r.current[connID] == roomID {
		delete(r.current, connID)
	}

	members, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
		return 0
	}
	return len(members)
}

// LeaveAll removes connID from every room it joined and returns the
// remaining count per affected room.
func (r *Registry) LeaveAll(connID string) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.joined[connID]
	remaining := make(map[string]int, len(joined))
	for roomID := range joined {
		remaining[roomID] = r.leaveLocked(connID, roomID)
	}
	delete(r.current, connID)
	return remaining
}

func (r *Registry) MembershipCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[roomID])
}

func (r *Registry) Exists(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[roomID]
	return ok
}

// Members returns the connection ids in roomID, sorted.
func (r *Registry) Members(roomID string) []string {
	r.mu.RLock()
	members := make([]string, 0, len(r.rooms[roomID]))
	for connID := range r.rooms[roomID] {
		members = append(members, connID)
	}
	r.mu.RUnlock()

	sort.Strings(members)
	return members
}

func (r *Registry) CurrentRoom(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.current[connID]
	return roomID, ok
}

// RoomsOf returns every room connID is a member of, sorted.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	rooms := make([]string, 0, len(r.joined[connID]))
	for roomID := range r.joined[connID] {
		rooms = append(rooms, roomID)
	}
	r.mu.RUnlock()

	sort.Strings(rooms)
	return rooms
}

// Snapshot returns the membership count of every live room.
func (r *Registry) Snapshot() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int, len(r.rooms))
	for roomID, members := range r.rooms {
		counts[roomID] = len(members)
	}
	return counts
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}
