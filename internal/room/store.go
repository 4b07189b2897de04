package room

import (
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const roomIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
const roomIDLength = 8

// Store is the single in-memory authority over rooms. The outer map is
// guarded by mu; each room additionally carries its own mutex, held for
// the whole of Mutate, so that cross-participant decisions (admission,
// outcome) are single critical sections per room.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*entry
	clock clockwork.Clock
}

type entry struct {
	mu   sync.Mutex
	room *Room
}

func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		rooms: make(map[string]*entry),
		clock: clock,
	}
}

// Create inserts a new Open room holding only the creator and returns a
// snapshot. The id is collision-checked against the live map.
func (s *Store) Create(creatorConnID, text string) Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := newRoomID()
	for {
		if _, taken := s.rooms[id]; !taken {
			break
		}
		id = newRoomID()
	}

	now := s.clock.Now()
	r := &Room{
		ID:    id,
		Text:  text,
		Phase: PhaseOpen,
		Participants: map[string]*Participant{
			creatorConnID: {ConnID: creatorConnID},
		},
		CreatedAt:  now,
		LastActive: now,
	}
	s.rooms[id] = &entry{room: r}
	return r.snapshot()
}

// Get returns a snapshot copy for read-only use (broadcast payloads,
// REST reads). Staleness is acceptable for everything except the
// outcome, which callers obtain from Mutate's post-mutation snapshot.
func (s *Store) Get(id string) (Room, error) {
	s.mu.RLock()
	e, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok {
		return Room{}, ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.room.snapshot(), nil
}

// Mutate applies fn to the room under its exclusive lock and returns
// the post-mutation snapshot. If fn errors the room is left as fn left
// it; fn is expected to mutate nothing on its error paths.
func (s *Store) Mutate(id string, fn func(*Room) error) (Room, error) {
	s.mu.RLock()
	e, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok {
		return Room{}, ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.room); err != nil {
		return Room{}, err
	}
	e.room.LastActive = s.clock.Now()
	return e.room.snapshot(), nil
}

// Sweep evicts rooms that have outlived their usefulness: concluded
// rooms past the retention window, any room idle past idleTTL, and
// rooms whose participants have all left. Rooms that still have live
// connections attached are skipped; they are reclaimed on a later pass
// once those connections detach or idle out.
func (s *Store) Sweep(retention, idleTTL time.Duration, attached func(roomID string) bool) int {
	now := s.clock.Now()

	s.mu.RLock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	evicted := 0
	for _, id := range ids {
		s.mu.RLock()
		e, ok := s.rooms[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		e.mu.Lock()
		r := e.room
		expired := len(r.Participants) == 0 ||
			(r.Phase == PhaseConcluded && now.Sub(r.LastActive) >= retention) ||
			now.Sub(r.LastActive) >= idleTTL
		e.mu.Unlock()

		if !expired || attached(id) {
			continue
		}
		s.Remove(id)
		evicted++
	}
	return evicted
}

// Remove drops a room outright.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.rooms, id)
	s.mu.Unlock()
}

// Len reports the number of live rooms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// CountByPhase reports live rooms bucketed by phase.
func (s *Store) CountByPhase() map[Phase]int {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.rooms))
	for _, e := range s.rooms {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make(map[Phase]int, 3)
	for _, e := range entries {
		e.mu.Lock()
		out[e.room.Phase]++
		e.mu.Unlock()
	}
	return out
}

// newRoomID mints a short lowercase token in the style clients paste to
// each other.
func newRoomID() string {
	b := make([]byte, roomIDLength)
	for i := range b {
		b[i] = roomIDAlphabet[rand.Intn(len(roomIDAlphabet))]
	}
	return string(b)
}
