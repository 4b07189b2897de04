package roomhandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"typeracego/internal/room"
	"typeracego/internal/services/match"
)

type Handler struct {
	svc match.IMatchService
}

func New(svc match.IMatchService) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/rooms/:id", h.info)
	r.GET("/stats", h.stats)
	r.GET("/healthz", h.health)
}

// info returns a read-only snapshot of one room. All mutations ride the
// websocket; this surface exists for dashboards and debugging.
func (h *Handler) info(c *gin.Context) {
	snap, err := h.svc.RoomInfo(c.Param("id"))
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := RoomResponse{
		ID:           snap.ID,
		Phase:        string(snap.Phase),
		Participants: len(snap.Participants),
		CreatedAt:    snap.CreatedAt,
	}
	if snap.Outcome != nil {
		resp.Outcome = &OutcomeResponse{
			WinnerID: snap.Outcome.WinnerID,
			Reason:   snap.Outcome.Reason,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Stats())
}

func (h *Handler) health(c *gin.Context) {
	c.Status(http.StatusOK)
}
