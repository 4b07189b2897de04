package room

import "time"

type Phase string

const (
	PhaseOpen      Phase = "OPEN"
	PhaseActive    Phase = "ACTIVE"
	PhaseConcluded Phase = "CONCLUDED"
)

// Outcome reasons, visible on the wire in gameOver frames.
const (
	ReasonFinishedFirst = "opponent_finished_first"
	ReasonTimeout       = "timeout"
	ReasonTie           = "tie"
)

const maxParticipants = 2

// Participant is one side of a match. ConnID may change across
// reconnects while the slot (progress, finish state) stays the same.
type Participant struct {
	ConnID     string
	Progress   float64
	ErrorCount int
	Finished   bool
}

// Outcome is the single authoritative result of a room. It is written
// exactly once; Conclude enforces that.
type Outcome struct {
	WinnerID string // empty on a tie
	Reason   string
}

// Room is one two-party match with a fixed challenge text. Every field
// is guarded by the Store's per-room critical section; code outside
// Mutate only ever sees snapshot copies.
type Room struct {
	ID           string
	Text         string
	Phase        Phase
	Participants map[string]*Participant
	Outcome      *Outcome
	CreatedAt    time.Time
	LastActive   time.Time
}

// AddParticipant admits a connection. When the addition brings the
// count to exactly two, the room flips to Active in the same critical
// section, so two concurrent joiners can never both observe themselves
// completing the pair.
func (r *Room) AddParticipant(connID string) (started bool, err error) {
	if _, ok := r.Participants[connID]; ok {
		return false, nil
	}
	if len(r.Participants) >= maxParticipants {
		return false, ErrRoomFull
	}
	r.Participants[connID] = &Participant{ConnID: connID}
	if len(r.Participants) == maxParticipants && r.Phase == PhaseOpen {
		r.Phase = PhaseActive
		return true, nil
	}
	return false, nil
}

// RemoveParticipant frees a slot. Only meaningful while the room is
// still Open; once a match runs, leaving is a transport-level detach.
func (r *Room) RemoveParticipant(connID string) {
	delete(r.Participants, connID)
}

// Rebind re-attaches a reconnecting participant under a new connection
// id. The slot to claim is the one whose old connection the detached
// predicate reports as gone. Participant count, progress and phase are
// untouched.
func (r *Room) Rebind(newConnID string, detached func(connID string) bool) bool {
	if _, ok := r.Participants[newConnID]; ok {
		return true
	}
	for id, p := range r.Participants {
		if detached(id) {
			delete(r.Participants, id)
			p.ConnID = newConnID
			r.Participants[newConnID] = p
			return true
		}
	}
	return false
}

// SetProgress records the caller's typed-length ratio. Values are taken
// at face value; keystroke validation is out of scope.
func (r *Room) SetProgress(connID string, progress float64) error {
	if progress < 0 || progress > 1 {
		return ErrInvalidProgress
	}
	p, ok := r.Participants[connID]
	if !ok {
		return ErrNotInRoom
	}
	p.Progress = progress
	return nil
}

// Conclude sets the outcome exactly once and advances the phase to
// Concluded. A second call, from any trigger, is a no-op and reports
// false.
func (r *Room) Conclude(winnerID, reason string) bool {
	if r.Phase == PhaseConcluded || r.Outcome != nil {
		return false
	}
	r.Outcome = &Outcome{WinnerID: winnerID, Reason: reason}
	r.Phase = PhaseConcluded
	return true
}

// Opponent returns the other participant, or nil if the caller is alone.
func (r *Room) Opponent(connID string) *Participant {
	for id, p := range r.Participants {
		if id != connID {
			return p
		}
	}
	return nil
}

// snapshot deep-copies the room for use outside the store lock.
func (r *Room) snapshot() Room {
	cp := *r
	cp.Participants = make(map[string]*Participant, len(r.Participants))
	for id, p := range r.Participants {
		pc := *p
		cp.Participants[id] = &pc
	}
	if r.Outcome != nil {
		oc := *r.Outcome
		cp.Outcome = &oc
	}
	return cp
}
