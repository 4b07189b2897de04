package roomhandler

import "time"

type RoomResponse struct {
	ID           string           `json:"id"`
	Phase        string           `json:"phase"`
	Participants int              `json:"participants"`
	Outcome      *OutcomeResponse `json:"outcome,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
} // @name RoomResponse

type OutcomeResponse struct {
	WinnerID string `json:"winner_id"`
	Reason   string `json:"reason"`
} // @name OutcomeResponse

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse
