package match_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typeracego/internal/room"
	"typeracego/internal/services/match"
	"typeracego/internal/texts"
)

const matchDuration = 30 * time.Second

type broadcastEvent struct {
	roomID string
	except string
	event  string
	body   any
}

// fakeHub captures everything the service fans out.
type fakeHub struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (h *fakeHub) Broadcast(roomID, event string, body any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, broadcastEvent{roomID: roomID, event: event, body: body})
}

func (h *fakeHub) BroadcastExcept(roomID, exceptConnID, event string, body any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, broadcastEvent{roomID: roomID, except: exceptConnID, event: event, body: body})
}

func (h *fakeHub) count(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (h *fakeHub) last(event string) (broadcastEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].event == event {
			return h.events[i], true
		}
	}
	return broadcastEvent{}, false
}

// fakeRegistry scripts connection liveness.
type fakeRegistry struct {
	mu   sync.Mutex
	gone map[string]bool
	live map[string]bool // roomID -> has attached conns
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{gone: make(map[string]bool), live: make(map[string]bool)}
}

func (f *fakeRegistry) Detached(connID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gone[connID]
}

func (f *fakeRegistry) Attached(roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[roomID]
}

func (f *fakeRegistry) markGone(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gone[connID] = true
}

type testEnv struct {
	svc   match.IMatchService
	hub   *fakeHub
	reg   *fakeRegistry
	clock *clockwork.FakeClock
	store *room.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := room.NewStore(clock)
	hub := &fakeHub{}
	reg := newFakeRegistry()
	svc := match.NewMatchService(store, texts.NewProvider(40), hub, reg, clock, match.Options{
		MatchDuration: matchDuration,
		SweepInterval: time.Minute,
		RoomRetention: 5 * time.Minute,
		RoomIdleTTL:   10 * time.Minute,
	})
	return &testEnv{svc: svc, hub: hub, reg: reg, clock: clock, store: store}
}

// startMatch creates a room as connA and joins connB, returning the id.
func (e *testEnv) startMatch(t *testing.T, connA, connB string) string {
	t.Helper()
	ctx := context.Background()
	roomID, err := e.svc.CreateRoom(ctx, connA)
	require.NoError(t, err)
	require.NoError(t, e.svc.JoinRoom(ctx, connB, roomID))
	return roomID
}

func (e *testEnv) waitGameOver(t *testing.T, want int) match.GameOverBody {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.hub.count(match.EventGameOver) == want
	}, time.Second, 5*time.Millisecond)
	ev, ok := e.hub.last(match.EventGameOver)
	require.True(t, ok)
	return ev.body.(match.GameOverBody)
}

func TestCreateAndJoinStartsMatch(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	roomID, err := e.svc.CreateRoom(ctx, "conn-a")
	require.NoError(t, err)
	require.NotEmpty(t, roomID)
	assert.Zero(t, e.hub.count(match.EventStartGame), "no start with one participant")

	require.NoError(t, e.svc.JoinRoom(ctx, "conn-b", roomID))

	require.Equal(t, 1, e.hub.count(match.EventStartGame))
	ev, _ := e.hub.last(match.EventStartGame)
	body := ev.body.(match.StartGameBody)
	assert.Equal(t, roomID, body.RoomID)
	assert.NotEmpty(t, body.Text)

	snap, err := e.svc.RoomInfo(roomID)
	require.NoError(t, err)
	assert.Equal(t, room.PhaseActive, snap.Phase)
	assert.Equal(t, body.Text, snap.Text, "both sides race the room's fixed text")
}

func TestJoinRejections(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, e.svc.JoinRoom(ctx, "conn-b", "no-such-id"), room.ErrRoomNotFound)

	roomID := e.startMatch(t, "conn-a", "conn-b")
	assert.ErrorIs(t, e.svc.JoinRoom(ctx, "conn-c", roomID), room.ErrRoomFull)
	assert.Equal(t, 1, e.hub.count(match.EventStartGame), "rejected join must not re-trigger a start")
}

func TestFinishFirstWins(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomID := e.startMatch(t, "conn-a", "conn-b")

	require.NoError(t, e.svc.ReportFinished(ctx, "conn-a", roomID, 0))

	body := e.waitGameOver(t, 1)
	assert.Equal(t, "conn-a", body.WinnerID)
	assert.Equal(t, room.ReasonFinishedFirst, body.Reason)

	// A late clean finish from the loser is a silent no-op.
	require.NoError(t, e.svc.ReportFinished(ctx, "conn-b", roomID, 0))
	assert.Equal(t, 1, e.hub.count(match.EventGameOver))

	// So is a duplicate report from the winner.
	require.NoError(t, e.svc.ReportFinished(ctx, "conn-a", roomID, 0))
	assert.Equal(t, 1, e.hub.count(match.EventGameOver))
}

func TestConcurrentCleanFinishesSingleWinner(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomID := e.startMatch(t, "conn-a", "conn-b")

	var wg sync.WaitGroup
	for _, connID := range []string{"conn-a", "conn-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, e.svc.ReportFinished(ctx, id, roomID, 0))
		}(connID)
	}
	wg.Wait()

	body := e.waitGameOver(t, 1)
	assert.Contains(t, []string{"conn-a", "conn-b"}, body.WinnerID)
	assert.Equal(t, room.ReasonFinishedFirst, body.Reason)
}

func TestFinishWithErrorsWaitsForTimeout(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomID := e.startMatch(t, "conn-a", "conn-b")

	require.NoError(t, e.svc.ReportProgress(ctx, "conn-b", roomID, 0.6))
	require.NoError(t, e.svc.ReportFinished(ctx, "conn-a", roomID, 3))
	assert.Zero(t, e.hub.count(match.EventGameOver), "an error-laden finish does not end the match")

	e.clock.Advance(matchDuration)

	// At timeout the error-laden 1.0 still beats 0.6 on raw progress.
	body := e.waitGameOver(t, 1)
	assert.Equal(t, "conn-a", body.WinnerID)
	assert.Equal(t, room.ReasonTimeout, body.Reason)
}

func TestTimeoutHigherProgressWins(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomID := e.startMatch(t, "conn-a", "conn-b")

	require.NoError(t, e.svc.ReportProgress(ctx, "conn-a", roomID, 0.3))
	require.NoError(t, e.svc.ReportProgress(ctx, "conn-b", roomID, 0.7))

	e.clock.Advance(matchDuration)

	body := e.waitGameOver(t, 1)
	assert.Equal(t, "conn-b", body.WinnerID)
	assert.Equal(t, room.ReasonTimeout, body.Reason)
}

func TestTimeoutEqualProgressTies(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomID := e.startMatch(t, "conn-a", "conn-b")

	require.NoError(t, e.svc.ReportProgress(ctx, "conn-a", roomID, 0.5))
	require.NoError(t, e.svc.ReportProgress(ctx, "conn-b", roomID, 0.5))

	e.clock.Advance(matchDuration)

	body := e.waitGameOver(t, 1)
	assert.Empty(t, body.WinnerID)
	assert.Equal(t, room.ReasonTie, body.Reason)
}

func TestTimerCancelledOnFinishFirst(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomID := e.startMatch(t, "conn-a", "conn-b")

	require.NoError(t, e.svc.ReportFinished(ctx, "conn-a", roomID, 0))
	e.waitGameOver(t, 1)

	// The countdown elapsing afterwards must not produce a second
	// verdict.
	e.clock.Advance(matchDuration * 2)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, e.hub.count(match.EventGameOver))
}

func TestLateTimerFireAfterEviction(t *testing.T) {
	e := newTestEnv(t)
	roomID := e.startMatch(t, "conn-a", "conn-b")

	e.store.Remove(roomID)
	e.clock.Advance(matchDuration)

	// The trigger lands on a missing room: reported and dropped, never
	// a broadcast or a panic.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, e.hub.count(match.EventGameOver))
}

func TestProgressRelay(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomID := e.startMatch(t, "conn-a", "conn-b")

	require.NoError(t, e.svc.ReportProgress(ctx, "conn-a", roomID, 0.42))

	ev, ok := e.hub.last(match.EventOpponentProgress)
	require.True(t, ok)
	assert.Equal(t, "conn-a", ev.except, "the reporter must not echo its own progress")
	assert.Equal(t, 0.42, ev.body.(match.OpponentProgressBody).Progress)
}

func TestProgressValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomID := e.startMatch(t, "conn-a", "conn-b")

	assert.ErrorIs(t, e.svc.ReportProgress(ctx, "conn-a", roomID, 1.5), room.ErrInvalidProgress)
	assert.ErrorIs(t, e.svc.ReportProgress(ctx, "conn-a", roomID, -0.1), room.ErrInvalidProgress)
	assert.Zero(t, e.hub.count(match.EventOpponentProgress), "rejected values are not relayed")

	assert.ErrorIs(t, e.svc.ReportProgress(ctx, "conn-a", "no-such-id", 0.5), room.ErrRoomNotFound)
}

func TestRejoinKeepsParticipantState(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomID := e.startMatch(t, "conn-a", "conn-b")
	require.NoError(t, e.svc.ReportProgress(ctx, "conn-a", roomID, 0.8))

	// conn-a's transport drops and comes back as conn-a2.
	e.reg.markGone("conn-a")
	require.NoError(t, e.svc.Rejoin(ctx, "conn-a2", roomID))

	snap, err := e.svc.RoomInfo(roomID)
	require.NoError(t, err)
	assert.Len(t, snap.Participants, 2)
	assert.Equal(t, room.PhaseActive, snap.Phase)
	require.Contains(t, snap.Participants, "conn-a2")
	assert.Equal(t, 0.8, snap.Participants["conn-a2"].Progress)

	// The rebound connection can keep playing.
	require.NoError(t, e.svc.ReportFinished(ctx, "conn-a2", roomID, 0))
	body := e.waitGameOver(t, 1)
	assert.Equal(t, "conn-a2", body.WinnerID)
}

func TestRejoinRejectsStrangersAndStaleRooms(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomID := e.startMatch(t, "conn-a", "conn-b")

	// Both slots still live: nothing to rebind.
	assert.ErrorIs(t, e.svc.Rejoin(ctx, "conn-x", roomID), room.ErrNotInRoom)

	assert.ErrorIs(t, e.svc.Rejoin(ctx, "conn-a", "no-such-id"), room.ErrRoomNotFound)
}

func TestLeaveRoomWhileOpen(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	roomID, err := e.svc.CreateRoom(ctx, "conn-a")
	require.NoError(t, err)
	require.NoError(t, e.svc.LeaveRoom(ctx, "conn-a", roomID))

	snap, err := e.svc.RoomInfo(roomID)
	require.NoError(t, err)
	assert.Empty(t, snap.Participants)
	assert.Equal(t, room.PhaseOpen, snap.Phase)
}

func TestLeaveDuringActiveMatchIsDetachOnly(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomID := e.startMatch(t, "conn-a", "conn-b")
	require.NoError(t, e.svc.ReportProgress(ctx, "conn-b", roomID, 0.2))

	require.NoError(t, e.svc.LeaveRoom(ctx, "conn-a", roomID))

	snap, err := e.svc.RoomInfo(roomID)
	require.NoError(t, err)
	assert.Len(t, snap.Participants, 2, "quitting never frees a slot mid-match")

	// The opponent wins the timeout comparison by default.
	e.clock.Advance(matchDuration)
	body := e.waitGameOver(t, 1)
	assert.Equal(t, "conn-b", body.WinnerID)
	assert.Equal(t, room.ReasonTimeout, body.Reason)
}

func TestRunSweeperEvictsExpiredRooms(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roomID := e.startMatch(t, "conn-a", "conn-b")
	require.NoError(t, e.svc.ReportFinished(ctx, "conn-a", roomID, 0))
	e.waitGameOver(t, 1)

	go e.svc.RunSweeper(ctx)
	e.clock.BlockUntil(1)

	// Past retention plus one sweep tick.
	e.clock.Advance(6 * time.Minute)

	require.Eventually(t, func() bool {
		return e.store.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStats(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.svc.CreateRoom(ctx, "conn-a")
	require.NoError(t, err)
	e.startMatch(t, "conn-c", "conn-d")

	stats := e.svc.Stats()
	assert.Equal(t, 2, stats.Rooms)
	assert.Equal(t, 1, stats.ByPhase[room.PhaseOpen])
	assert.Equal(t, 1, stats.ByPhase[room.PhaseActive])
}
