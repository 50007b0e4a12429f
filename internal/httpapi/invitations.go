package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"langswap/internal/invitations"
	"langswap/internal/matches"
	"langswap/internal/rooms"

	"github.com/gin-gonic/gin"
)

type sendInvitationRequest struct {
	Message string `json:"message"`
}

// SendInvitation invites the match partner to a call. The body is optional.
func (h Handlers) SendInvitation(c *gin.Context) {
	if h.Invitations == nil {
		notConfigured(c, "invitations")
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req sendInvitationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	inv, err := h.Invitations.Send(c.Request.Context(), invitations.SendRequest{
		MatchID:  c.Param("match_id"),
		CallerID: uid,
		Message:  req.Message,
	})
	if err != nil {
		var offline *invitations.PartnerOfflineError
		switch {
		case errors.As(err, &offline):
			body := gin.H{"error": "Partner is not online", "last_seen": nil}
			if !offline.LastSeen.IsZero() {
				body["last_seen"] = offline.LastSeen
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, body)
		case errors.Is(err, invitations.ErrDuplicatePending):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "You already have a pending invitation"})
		default:
			abortError(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"invitation_id": inv.ID,
		"expires_at":    inv.ExpiresAt,
	})
}

type respondInvitationRequest struct {
	Response string `json:"response"`
}

func (h Handlers) RespondInvitation(c *gin.Context) {
	if h.Invitations == nil {
		notConfigured(c, "invitations")
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req respondInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	var accept bool
	switch strings.ToLower(strings.TrimSpace(req.Response)) {
	case "accept":
		accept = true
	case "decline":
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid response"})
		return
	}

	inv, err := h.Invitations.Respond(c.Request.Context(), c.Param("invitation_id"), uid, accept)
	if err != nil {
		if errors.Is(err, invitations.ErrInvalidState) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invitation expired or already responded"})
			return
		}
		abortError(c, err)
		return
	}
	if accept {
		c.JSON(http.StatusOK, gin.H{"success": true, "action": "accepted", "room_url": rooms.URL(inv.RoomID)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "action": "declined"})
}

func (h Handlers) CancelInvitation(c *gin.Context) {
	if h.Invitations == nil {
		notConfigured(c, "invitations")
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	if _, err := h.Invitations.Cancel(c.Request.Context(), c.Param("invitation_id"), uid); err != nil {
		if errors.Is(err, invitations.ErrInvalidState) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Can only cancel pending invitations"})
			return
		}
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Invitation cancelled successfully"})
}

type pendingInvitation struct {
	ID        string    `json:"id"`
	Caller    string    `json:"caller"`
	CallerID  string    `json:"caller_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	MatchID   string    `json:"match_id"`
}

// PendingInvitations lists live invitations addressed to the current user.
func (h Handlers) PendingInvitations(c *gin.Context) {
	if h.Invitations == nil || h.Directory == nil {
		notConfigured(c, "invitations")
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	rows, err := h.Invitations.Pending(c.Request.Context(), uid)
	if err != nil {
		abortError(c, err)
		return
	}
	out := make([]pendingInvitation, 0, len(rows))
	for _, inv := range rows {
		out = append(out, pendingInvitation{
			ID:        inv.ID,
			Caller:    matches.Username(c.Request.Context(), h.Directory, inv.CallerID),
			CallerID:  inv.CallerID,
			Message:   inv.Message,
			CreatedAt: inv.CreatedAt,
			ExpiresAt: inv.ExpiresAt,
			MatchID:   inv.MatchID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"invitations": out})
}

func (h Handlers) InvitationStatus(c *gin.Context) {
	if h.Invitations == nil {
		notConfigured(c, "invitations")
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := h.Invitations.Status(c.Request.Context(), c.Param("invitation_id"), uid)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
