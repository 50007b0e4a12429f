package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"langswap/internal/auth"
	"langswap/internal/calls"
	"langswap/internal/invitations"
	"langswap/internal/matches"
	"langswap/internal/presence"
	"langswap/internal/reporting"
	"langswap/internal/rooms"
	"langswap/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallEvents pushes call lifecycle changes made over HTTP to the room's
// sockets. realtime.Relay implements it.
type CallEvents interface {
	AnnounceCallEnded(ctx context.Context, roomID, endedBy string, s calls.CallSession) int
}

// TicketIssuer mints path-bound socket tickets. auth.Manager implements it.
type TicketIssuer interface {
	IssueSocketTicket(now time.Time, userID, path string) (auth.SocketTicket, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Invitations *invitations.Manager
	Presence    *presence.Tracker
	Rooms       *rooms.Registry
	Calls       *calls.Manager
	Directory   matches.Directory
	Reports     *reporting.Service

	// Events is optional; without it HTTP call ends are only persisted.
	Events  CallEvents
	Tickets TicketIssuer
}

// Register mounts the handlers on an authenticated group.
func (h Handlers) Register(g *gin.RouterGroup) {
	g.POST("/matches/:match_id/invitations", h.SendInvitation)
	g.GET("/matches/:match_id/availability", h.PartnerAvailability)
	g.GET("/matches/:match_id/room", h.RoomForMatch)

	g.GET("/invitations/pending", h.PendingInvitations)
	g.POST("/invitations/:invitation_id/respond", h.RespondInvitation)
	g.POST("/invitations/:invitation_id/cancel", h.CancelInvitation)
	g.GET("/invitations/:invitation_id/status", h.InvitationStatus)

	g.POST("/presence", h.SetPresence)
	g.POST("/socket-tickets", h.IssueSocketTicket)

	g.GET("/rooms/:room_id/status", h.RoomStatus)
	g.GET("/rooms/:room_id/history", h.RoomHistory)
	g.GET("/rooms/:room_id/messages", h.RoomMessages)
	g.GET("/rooms/:room_id/sessions/:session_id", h.SessionSummary)
	g.GET("/rooms/:room_id/statistics", h.RoomStatistics)
	g.POST("/rooms/:room_id/end", h.EndCall)
}

// currentUser reads the identity set by auth.RequireAccessToken.
func currentUser(c *gin.Context) (string, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return "", false
	}
	return uid, true
}

func notConfigured(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": what + " not configured"})
}

// abortError maps service errors that have no endpoint-specific wording.
func abortError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, invitations.ErrNotFound),
		errors.Is(err, rooms.ErrNotFound),
		errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, invitations.ErrAccessDenied),
		errors.Is(err, rooms.ErrAccessDenied):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, invitations.ErrInvalidArgument),
		errors.Is(err, rooms.ErrInvalidArgument),
		errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, presence.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid argument"})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// queryLimit parses ?limit=, returning 0 (the service default) when absent
// or malformed.
func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
