package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"typeracego/internal/room"
	"typeracego/internal/services/match"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10 // must be < pongWait
	maxMessageSize  = 512
	dispatchTimeout = 1900 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true }, // dev-only
}

// ConnContext carries per-connection state into event handlers.
type ConnContext struct {
	ConnID string
	conn   *clientConn
}

type WsServer struct {
	hub      *Hub
	registry *Registry
	router   *Router
	matchSvc match.IMatchService
}

func NewWsServer(h *Hub, reg *Registry, matchSvc match.IMatchService) *WsServer {
	srv := &WsServer{
		hub:      h,
		registry: reg,
		router:   NewRouter(),
		matchSvc: matchSvc,
	}
	srv.registerHandlers() // ← all WS endpoints configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxMessageSize)

	// ─────────────────── Client connected ─────────────────────
	connID := uuid.NewString()
	wsConn := &clientConn{id: connID, rawConn: rawConn}
	s.registry.Add(connID, wsConn)
	zap.L().Debug("ws.connected", zap.String("conn_id", connID))

	go s.reader(connID, wsConn)
	go s.pinger(wsConn)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	// 🔹 createRoom -----------------------------------------------------------
	Register(
		s.router,
		"createRoom",
		func(ctx context.Context, cc *ConnContext, _ EmptyBody) (*Reply, error) {
			roomID, err := s.matchSvc.CreateRoom(ctx, cc.ConnID)
			if err != nil {
				return nil, err
			}
			s.registry.Attach(cc.ConnID, roomID)
			s.hub.Join(roomID, cc.conn)
			return &Reply{Event: "roomCreated", Body: RoomCreatedBody{RoomID: roomID}}, nil
		},
	)

	// 🔹 joinRoom -------------------------------------------------------------
	Register(
		s.router,
		"joinRoom",
		func(ctx context.Context, cc *ConnContext, req JoinRoomBody) (*Reply, error) {
			// Join the fan-out set first so the startGame broadcast
			// triggered by this admission reaches the joiner too.
			s.hub.Join(req.JoinRoomID, cc.conn)
			if err := s.matchSvc.JoinRoom(ctx, cc.ConnID, req.JoinRoomID); err != nil {
				s.hub.Leave(req.JoinRoomID, cc.conn)
				return nil, err
			}
			s.registry.Attach(cc.ConnID, req.JoinRoomID)
			return &Reply{Event: "roomJoined", Body: RoomJoinedBody{RoomID: req.JoinRoomID}}, nil
		},
	)

	// 🔹 rejoinRoom -----------------------------------------------------------
	Register(
		s.router,
		"rejoinRoom",
		func(ctx context.Context, cc *ConnContext, req RejoinRoomBody) (*Reply, error) {
			if err := s.matchSvc.Rejoin(ctx, cc.ConnID, req.RoomID); err != nil {
				// Stale room id after eviction: absorb and let the
				// client fall back to matchmaking.
				zap.L().Debug("ws.rejoin_failed",
					zap.String("room_id", req.RoomID),
					zap.Error(err))
				return nil, nil
			}
			s.registry.Attach(cc.ConnID, req.RoomID)
			s.hub.Join(req.RoomID, cc.conn)
			return nil, nil
		},
	)

	// 🔹 leaveRoom ------------------------------------------------------------
	Register(
		s.router,
		"leaveRoom",
		func(ctx context.Context, cc *ConnContext, req LeaveRoomBody) (*Reply, error) {
			err := s.matchSvc.LeaveRoom(ctx, cc.ConnID, req.RoomID)
			s.hub.Leave(req.RoomID, cc.conn)
			s.registry.Detach(cc.ConnID)
			if err != nil && !errors.Is(err, room.ErrRoomNotFound) {
				return nil, err
			}
			return nil, nil
		},
	)

	// 🔹 progressUpdate -------------------------------------------------------
	Register(
		s.router,
		"progressUpdate",
		func(ctx context.Context, cc *ConnContext, req ProgressUpdateBody) (*Reply, error) {
			return nil, s.matchSvc.ReportProgress(ctx, cc.ConnID, req.RoomID, req.Progress)
		},
	)

	// 🔹 playerFinished -------------------------------------------------------
	Register(
		s.router,
		"playerFinished",
		func(ctx context.Context, cc *ConnContext, req PlayerFinishedBody) (*Reply, error) {
			return nil, s.matchSvc.ReportFinished(ctx, cc.ConnID, req.RoomID, req.ErrorCount)
		},
	)
}

func (s *WsServer) reader(connID string, conn *clientConn) {
	defer func() {
		// Disconnect detaches the transport only; the room entry stays
		// for the rejoin window.
		if roomID, ok := s.registry.RoomOf(connID); ok {
			s.hub.Leave(roomID, conn)
		}
		s.registry.Remove(connID)
		conn.rawConn.Close()
		zap.L().Debug("ws.disconnected", zap.String("conn_id", connID))
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	cc := &ConnContext{ConnID: connID, conn: conn}

	for {
		var env Envelope
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			return // client closed or errored
		}

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		reply, err := s.router.dispatch(ctx, cc, env)
		cancel()

		// ---- error -> {"event":"error", "body":{...}} ---------------
		if err != nil {
			_ = conn.writeJSON(outEnvelope{
				Event: "error",
				Body:  ErrorBody{Error: err.Error()},
			})
			continue
		}

		// ---- success -> named reply frame, if any -------------------
		if reply != nil {
			_ = conn.writeJSON(outEnvelope{Event: reply.Event, Body: reply.Body})
		}
	}
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.write(websocket.PingMessage, nil); err != nil {
			return // conn closed; reader defer handles cleanup
		}
	}
}
