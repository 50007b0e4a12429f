package httpapi

import (
	"errors"
	"net/http"

	"langswap/internal/matches"
	"langswap/pkg/logger"

	"github.com/gin-gonic/gin"
)

// PartnerAvailability reports whether the match partner is online. Asking
// counts as activity, so the caller is marked online.
func (h Handlers) PartnerAvailability(c *gin.Context) {
	if h.Presence == nil || h.Directory == nil {
		notConfigured(c, "presence")
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	m, err := h.Directory.Match(ctx, c.Param("match_id"))
	if err != nil {
		if errors.Is(err, matches.ErrMatchNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		abortError(c, err)
		return
	}
	if !m.IsMemberOf(uid) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}
	partnerID := m.PartnerOf(uid)

	p, err := h.Presence.Get(ctx, partnerID)
	if err != nil {
		abortError(c, err)
		return
	}
	if _, err := h.Presence.SetOnline(ctx, uid, ""); err != nil {
		logger.FromGin(c).Warn("mark caller online failed", "err", err)
	}

	body := gin.H{
		"is_online":        p.IsOnline,
		"last_seen":        nil,
		"partner_username": matches.Username(ctx, h.Directory, partnerID),
	}
	if !p.LastSeen.IsZero() {
		body["last_seen"] = p.LastSeen
	}
	c.JSON(http.StatusOK, body)
}

type setPresenceRequest struct {
	IsOnline *bool `json:"is_online"`
}

// SetPresence flips the caller's online flag. A missing flag means online.
func (h Handlers) SetPresence(c *gin.Context) {
	if h.Presence == nil {
		notConfigured(c, "presence")
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req setPresenceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	online := req.IsOnline == nil || *req.IsOnline

	var err error
	if online {
		_, err = h.Presence.SetOnline(c.Request.Context(), uid, "")
	} else {
		_, err = h.Presence.SetOffline(c.Request.Context(), uid)
	}
	if err != nil {
		abortError(c, err)
		return
	}
	status := "offline"
	if online {
		status = "online"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "is_online": online, "message": "Status set to " + status})
}
