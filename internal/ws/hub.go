package ws

import (
	"sync"
)

// Hub keeps connection sets per roomID and fans server events out to
// them. It implements match.Broadcaster.
type Hub struct {
	rooms sync.Map // roomID -> *connSet
}

func NewHub() *Hub { return &Hub{} }

// Broadcast sends an event frame to every connection in the room.
func (h *Hub) Broadcast(roomID, event string, body any) {
	if v, ok := h.rooms.Load(roomID); ok {
		v.(*connSet).broadcast(event, body, "")
	}
}

// BroadcastExcept sends to every room member except the named
// connection; used to relay one side's progress to the opponent only.
func (h *Hub) BroadcastExcept(roomID, exceptConnID, event string, body any) {
	if v, ok := h.rooms.Load(roomID); ok {
		v.(*connSet).broadcast(event, body, exceptConnID)
	}
}

func (h *Hub) Join(roomID string, c *clientConn) {
	s, _ := h.rooms.LoadOrStore(roomID, newConnSet())
	s.(*connSet).add(c)
}

func (h *Hub) Leave(roomID string, c *clientConn) {
	if v, ok := h.rooms.Load(roomID); ok {
		v.(*connSet).remove(c)
	}
}

type connSet struct {
	mu    sync.RWMutex
	conns map[*clientConn]struct{}
}

func newConnSet() *connSet { return &connSet{conns: map[*clientConn]struct{}{}} }

func (s *connSet) add(c *clientConn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *connSet) remove(c *clientConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *connSet) broadcast(event string, body any, exceptConnID string) {
	// Take a quick snapshot of the current connections
	s.mu.RLock()
	conns := make([]*clientConn, 0, len(s.conns))
	for c := range s.conns {
		if exceptConnID != "" && c.id == exceptConnID {
			continue
		}
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	// Do the I/O outside the lock
	frame := outEnvelope{Event: event, Body: body}
	var failed []*clientConn
	for _, c := range conns {
		if err := c.writeJSON(frame); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		s.remove(c)
		c.rawConn.Close()
	}
}
