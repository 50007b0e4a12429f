package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const notificationsPath = "/notifications"

type socketTicketRequest struct {
	RoomID string `json:"room_id"`
}

// IssueSocketTicket returns a short-lived ticket for /signal/<room_id> when
// room_id is given and the caller is a member, else for /notifications.
func (h Handlers) IssueSocketTicket(c *gin.Context) {
	if h.Tickets == nil {
		notConfigured(c, "socket tickets")
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req socketTicketRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	path := notificationsPath
	if roomID := strings.TrimSpace(req.RoomID); roomID != "" {
		if h.Rooms == nil {
			notConfigured(c, "rooms")
			return
		}
		room, err := h.Rooms.GetForUser(c.Request.Context(), roomID, uid)
		if err != nil {
			abortError(c, err)
			return
		}
		path = "/signal/" + room.RoomID
	}

	ticket, err := h.Tickets.IssueSocketTicket(time.Now(), uid, path)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}
