package core

import (
	"sort"
	"sync"
)

// Registry tracks which connections are members of which rooms.
// Rooms are created on first join and discarded when their last member leaves.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Connection // room key -> conn id -> conn
	byConn map[string]map[string]struct{}    // conn id -> room keys
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[string]*Connection),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join adds conn to room. Returns true if newly added.
func (r *Registry) Join(conn *Connection, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Connection)
		r.rooms[room] = members
	}
	if _, exists := members[conn.ID]; exists {
		return false
	}
	members[conn.ID] = conn

	joined, ok := r.byConn[conn.ID]
	if !ok {
		joined = make(map[string]struct{})
		r.byConn[conn.ID] = joined
	}
	joined[room] = struct{}{}
	return true
}

// Leave removes a connection from room. Returns true if it was a member.
func (r *Registry) Leave(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connID, room)
}

// LeaveAll removes a connection from every room and returns the rooms it left.
func (r *Registry) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.byConn[connID]
	left := make([]string, 0, len(joined))
	for room := range joined {
		if r.leaveLocked(connID, room) {
			left = append(left, room)
		}
	}
	sort.Strings(left)
	return left
}

func (r *Registry) leaveLocked(connID, room string) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}

	if joined, ok := r.byConn[connID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.byConn, connID)
		}
	}
	return true
}

// Members returns a point-in-time snapshot of the room's connections.
func (r *Registry) Members(room string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// Rooms returns the sorted room keys a connection has joined.
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.byConn[connID]
	out := make([]string, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
