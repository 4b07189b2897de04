package room

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room full")
	ErrInvalidProgress = errors.New("progress out of range")
	ErrNotInRoom       = errors.New("connection not in room")
)
