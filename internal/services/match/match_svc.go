package match

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"typeracego/internal/room"
	"typeracego/internal/texts"
)

// Server-to-client event names.
const (
	EventStartGame        = "startGame"
	EventOpponentProgress = "opponentProgress"
	EventGameOver         = "gameOver"
)

type StartGameBody struct {
	Text   string `json:"text"`
	RoomID string `json:"roomId"`
}

type OpponentProgressBody struct {
	Progress float64 `json:"progress"`
}

type GameOverBody struct {
	WinnerID string `json:"winnerId"`
	Reason   string `json:"reason"`
}

// Broadcaster delivers server events to room members. Implemented by
// the websocket hub.
type Broadcaster interface {
	Broadcast(roomID, event string, body any)
	BroadcastExcept(roomID, exceptConnID, event string, body any)
}

// Attachments answers liveness questions about connections. Implemented
// by the connection registry.
type Attachments interface {
	// Attached reports whether any live connection is bound to the room.
	Attached(roomID string) bool
	// Detached reports whether the connection id has no live transport.
	Detached(connID string) bool
}

type Options struct {
	MatchDuration time.Duration
	SweepInterval time.Duration
	RoomRetention time.Duration
	RoomIdleTTL   time.Duration
}

type IMatchService interface {
	CreateRoom(ctx context.Context, connID string) (string, error)
	JoinRoom(ctx context.Context, connID, roomID string) error
	Rejoin(ctx context.Context, connID, roomID string) error
	LeaveRoom(ctx context.Context, connID, roomID string) error
	ReportProgress(ctx context.Context, connID, roomID string, progress float64) error
	ReportFinished(ctx context.Context, connID, roomID string, errorCount int) error
	RoomInfo(roomID string) (room.Room, error)
	Stats() StatsDTO
	RunSweeper(ctx context.Context)
}

type StatsDTO struct {
	Rooms   int                `json:"rooms"`
	ByPhase map[room.Phase]int `json:"by_phase"`
}

type matchService struct {
	store *room.Store
	texts *texts.Provider
	hub   Broadcaster
	reg   Attachments
	clock clockwork.Clock
	opts  Options

	mu     sync.Mutex
	timers map[string]*matchTimer
}

type matchTimer struct {
	timer clockwork.Timer
	done  chan struct{}
}

var _ IMatchService = (*matchService)(nil)

func NewMatchService(store *room.Store, texts *texts.Provider, hub Broadcaster, reg Attachments, clock clockwork.Clock, opts Options) IMatchService {
	return &matchService{
		store:  store,
		texts:  texts,
		hub:    hub,
		reg:    reg,
		clock:  clock,
		opts:   opts,
		timers: make(map[string]*matchTimer),
	}
}

// CreateRoom mints a room holding only the creator. The challenge text
// is fixed here and never regenerated.
func (svc *matchService) CreateRoom(ctx context.Context, connID string) (string, error) {
	snap := svc.store.Create(connID, svc.texts.ChallengeText())
	zap.L().Info("room_created",
		zap.String("room_id", snap.ID),
		zap.String("conn_id", connID))
	return snap.ID, nil
}

// JoinRoom admits a second participant. Admission and the Open→Active
// flip happen in one store critical section; the joiner that completes
// the pair is the only caller that observes started==true, which keeps
// the startGame broadcast and the match timer single-shot.
func (svc *matchService) JoinRoom(ctx context.Context, connID, roomID string) error {
	var started bool
	snap, err := svc.store.Mutate(roomID, func(r *room.Room) error {
		var err error
		started, err = r.AddParticipant(connID)
		return err
	})
	if err != nil {
		return err
	}

	zap.L().Info("room_joined",
		zap.String("room_id", roomID),
		zap.String("conn_id", connID))

	if started {
		svc.startMatchTimer(roomID)
		svc.hub.Broadcast(roomID, EventStartGame, StartGameBody{
			Text:   snap.Text,
			RoomID: roomID,
		})
		zap.L().Info("match_started", zap.String("room_id", roomID))
	}
	return nil
}

// Rejoin re-attaches a reconnecting client to its old room under a new
// connection id. It never changes participant count, progress or phase;
// if no detached slot exists the caller is not a lapsed participant and
// the attempt fails.
func (svc *matchService) Rejoin(ctx context.Context, connID, roomID string) error {
	_, err := svc.store.Mutate(roomID, func(r *room.Room) error {
		if !r.Rebind(connID, svc.reg.Detached) {
			return room.ErrNotInRoom
		}
		return nil
	})
	if err != nil {
		return err
	}
	zap.L().Info("room_rejoined",
		zap.String("room_id", roomID),
		zap.String("conn_id", connID))
	return nil
}

// LeaveRoom frees the caller's slot while the room is still Open. Once
// a match is Active, leaving is indistinguishable from a disconnect:
// the slot stays and the opponent keeps racing the timer.
func (svc *matchService) LeaveRoom(ctx context.Context, connID, roomID string) error {
	_, err := svc.store.Mutate(roomID, func(r *room.Room) error {
		if r.Phase != room.PhaseOpen {
			return nil
		}
		r.RemoveParticipant(connID)
		return nil
	})
	return err
}

// ReportProgress stores the caller's latest typed ratio and relays it
// to the opponent only. No history is kept.
func (svc *matchService) ReportProgress(ctx context.Context, connID, roomID string, progress float64) error {
	_, err := svc.store.Mutate(roomID, func(r *room.Room) error {
		return r.SetProgress(connID, progress)
	})
	if err != nil {
		return err
	}
	svc.hub.BroadcastExcept(roomID, connID, EventOpponentProgress, OpponentProgressBody{
		Progress: progress,
	})
	return nil
}

// ReportFinished records a completion report and, for a clean finish,
// concludes the match. The checks run in order inside one critical
// section: room exists, room not already concluded, then the trigger.
// A late report against a concluded room is a silent no-op; an
// error-laden finish only records state and waits for the timer.
func (svc *matchService) ReportFinished(ctx context.Context, connID, roomID string, errorCount int) error {
	var concluded bool
	snap, err := svc.store.Mutate(roomID, func(r *room.Room) error {
		p, ok := r.Participants[connID]
		if !ok {
			return room.ErrNotInRoom
		}
		if r.Phase == room.PhaseConcluded {
			return nil
		}
		p.Progress = 1.0
		p.Finished = true
		p.ErrorCount = errorCount
		if errorCount == 0 {
			concluded = r.Conclude(connID, room.ReasonFinishedFirst)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if concluded {
		svc.cancelMatchTimer(roomID)
		svc.publishOutcome(snap)
	}
	return nil
}

func (svc *matchService) RoomInfo(roomID string) (room.Room, error) {
	return svc.store.Get(roomID)
}

func (svc *matchService) Stats() StatsDTO {
	return StatsDTO{
		Rooms:   svc.store.Len(),
		ByPhase: svc.store.CountByPhase(),
	}
}

// RunSweeper evicts expired rooms until ctx is cancelled. Start once at
// service boot.
func (svc *matchService) RunSweeper(ctx context.Context) {
	ticker := svc.clock.NewTicker(svc.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			n := svc.store.Sweep(svc.opts.RoomRetention, svc.opts.RoomIdleTTL, svc.reg.Attached)
			if n > 0 {
				zap.L().Info("rooms_swept", zap.Int("count", n))
			}
		}
	}
}

// startMatchTimer arms the fixed-length countdown for a freshly Active
// room. The timer goroutine exits either when the countdown lands or
// when an early conclusion cancels it.
func (svc *matchService) startMatchTimer(roomID string) {
	mt := &matchTimer{
		timer: svc.clock.NewTimer(svc.opts.MatchDuration),
		done:  make(chan struct{}),
	}
	svc.mu.Lock()
	svc.timers[roomID] = mt
	svc.mu.Unlock()

	go func() {
		select {
		case <-mt.timer.Chan():
			svc.concludeOnTimeout(roomID)
		case <-mt.done:
		}
	}()
}

func (svc *matchService) cancelMatchTimer(roomID string) {
	svc.mu.Lock()
	mt, ok := svc.timers[roomID]
	delete(svc.timers, roomID)
	svc.mu.Unlock()
	if ok {
		mt.timer.Stop()
		close(mt.done)
	}
}

// concludeOnTimeout decides the match by comparing last-known progress:
// strictly greater wins, equal ties. A fire against a room already
// concluded by finish-first is a no-op; against an evicted room it is
// logged and dropped.
func (svc *matchService) concludeOnTimeout(roomID string) {
	svc.mu.Lock()
	delete(svc.timers, roomID)
	svc.mu.Unlock()

	var decided bool
	snap, err := svc.store.Mutate(roomID, func(r *room.Room) error {
		if r.Phase == room.PhaseConcluded {
			return nil
		}
		var a, b *room.Participant
		for _, p := range r.Participants {
			if a == nil {
				a = p
			} else {
				b = p
			}
		}
		switch {
		case a == nil:
			return nil
		case b == nil || a.Progress > b.Progress:
			decided = r.Conclude(a.ConnID, room.ReasonTimeout)
		case b.Progress > a.Progress:
			decided = r.Conclude(b.ConnID, room.ReasonTimeout)
		default:
			decided = r.Conclude("", room.ReasonTie)
		}
		return nil
	})
	if err != nil {
		zap.L().Debug("timeout_on_missing_room",
			zap.String("room_id", roomID),
			zap.Error(err))
		return
	}
	if decided {
		svc.publishOutcome(snap)
	}
}

// publishOutcome fans the write-once result out to both participants.
// Callers only reach here from the critical section that set the
// outcome, so exactly one gameOver is ever emitted per room.
func (svc *matchService) publishOutcome(snap room.Room) {
	svc.hub.Broadcast(snap.ID, EventGameOver, GameOverBody{
		WinnerID: snap.Outcome.WinnerID,
		Reason:   snap.Outcome.Reason,
	})
	zap.L().Info("match_concluded",
		zap.String("room_id", snap.ID),
		zap.String("winner_id", snap.Outcome.WinnerID),
		zap.String("reason", snap.Outcome.Reason))
}
