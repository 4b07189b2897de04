package ws

import "encoding/json"

// Envelope wraps every inbound WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "progressUpdate"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// outEnvelope wraps every outbound frame.
type outEnvelope struct {
	Event string `json:"event"`
	Body  any    `json:"body,omitempty"`
}

// ──────────────────────────── Request / Response DTOs ─────────────────────────

type JoinRoomBody struct {
	JoinRoomID string `json:"joinRoomId"`
}

type RejoinRoomBody struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomBody struct {
	RoomID string `json:"roomId"`
}

type ProgressUpdateBody struct {
	RoomID   string  `json:"roomId"`
	Progress float64 `json:"progress"`
}

type PlayerFinishedBody struct {
	RoomID     string `json:"roomId"`
	ErrorCount int    `json:"errors"`
}

type RoomCreatedBody struct {
	RoomID string `json:"roomId"`
}

type RoomJoinedBody struct {
	RoomID string `json:"roomId"`
}

// Empty request body (createRoom carries no payload).
type EmptyBody struct{}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
}
