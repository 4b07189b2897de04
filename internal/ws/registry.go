package ws

import "sync"

// Registry tracks live connections and which room each one is bound to.
// It is the source of truth for reconnect handling: a participant slot
// whose connection id is no longer registered is considered detached
// and may be rebound by a rejoin. It implements match.Attachments.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*clientConn // connID -> live conn
	rooms map[string]string      // connID -> roomID
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*clientConn),
		rooms: make(map[string]string),
	}
}

func (g *Registry) Add(connID string, c *clientConn) {
	g.mu.Lock()
	g.conns[connID] = c
	g.mu.Unlock()
}

// Attach binds a live connection to a room.
func (g *Registry) Attach(connID, roomID string) {
	g.mu.Lock()
	g.rooms[connID] = roomID
	g.mu.Unlock()
}

// Detach clears the room binding but keeps the connection alive, e.g.
// after an explicit leaveRoom.
func (g *Registry) Detach(connID string) {
	g.mu.Lock()
	delete(g.rooms, connID)
	g.mu.Unlock()
}

// Remove drops the connection entirely. Called on disconnect; the room
// itself is untouched so the client can rejoin later.
func (g *Registry) Remove(connID string) {
	g.mu.Lock()
	delete(g.conns, connID)
	delete(g.rooms, connID)
	g.mu.Unlock()
}

// RoomOf returns the room a connection is bound to, if any.
func (g *Registry) RoomOf(connID string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	roomID, ok := g.rooms[connID]
	return roomID, ok
}

// Detached reports whether the connection id has no live transport.
func (g *Registry) Detached(connID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, live := g.conns[connID]
	return !live
}

// Attached reports whether any live connection is bound to the room.
func (g *Registry) Attached(roomID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, id := range g.rooms {
		if id == roomID {
			return true
		}
	}
	return false
}

// Counts reports live connections and room bindings.
func (g *Registry) Counts() (conns, attached int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns), len(g.rooms)
}
