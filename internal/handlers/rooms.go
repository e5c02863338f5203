package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/consult-signaling/internal/relay"
)

// PresenceCounter reports cluster-wide occupancy of a room.
type PresenceCounter interface {
	Count(ctx context.Context, room string) (int64, error)
}

// RoomsHandler serves read-only views of room membership.
type RoomsHandler struct {
	relay    *relay.Relay
	presence PresenceCounter
	logger   *slog.Logger
}

// NewRoomsHandler accepts a nil presence when the mirror is disabled.
func NewRoomsHandler(r *relay.Relay, presence PresenceCounter, logger *slog.Logger) *RoomsHandler {
	return &RoomsHandler{relay: r, presence: presence, logger: logger}
}

// GetRoom returns the local roster of a room with each participant's phase.
// Unknown rooms are reported as empty, never as 404: rooms exist only
// through their members.
func (h *RoomsHandler) GetRoom(c *gin.Context) {
	roomID := c.Param("roomId")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	info, err := h.relay.Room(ctx, roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, relay.ErrRelayClosed) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "Failed to read room"})
		return
	}

	if h.presence != nil {
		count, err := h.presence.Count(ctx, roomID)
		if err != nil {
			h.logger.Warn("presence count failed", "room", roomID, "error", err)
		} else {
			info.ClusterCount = &count
		}
	}

	c.JSON(http.StatusOK, info)
}
