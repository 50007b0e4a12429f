package httpapi

import (
	"errors"
	"net/http"
	"time"

	"langswap/internal/calls"
	"langswap/internal/reporting"
	"langswap/internal/rooms"

	"github.com/gin-gonic/gin"
)

// RoomForMatch get-or-creates the room of a match the caller belongs to.
func (h Handlers) RoomForMatch(c *gin.Context) {
	if h.Rooms == nil {
		notConfigured(c, "rooms")
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	room, created, err := h.Rooms.RoomForMatch(c.Request.Context(), c.Param("match_id"), uid)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"room_id":  room.RoomID,
		"room_url": rooms.URL(room.RoomID),
		"created":  created,
	})
}

func (h Handlers) RoomStatus(c *gin.Context) {
	if h.Rooms == nil || h.Calls == nil {
		notConfigured(c, "rooms")
		return
	}
	room, ok := h.memberRoom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	history, err := h.Calls.History(ctx, room.RoomID, 0)
	if err != nil {
		abortError(c, err)
		return
	}
	var active *calls.CallSession
	for i := range history {
		if history[i].Status == calls.SessionStatusActive {
			active = &history[i]
			break
		}
	}
	body := gin.H{
		"is_active":          room.IsActive,
		"has_active_session": active != nil,
		"participant_count":  0,
		"last_activity":      room.LastActivity,
	}
	if active != nil {
		body["participant_count"] = len(active.Participants)
		body["session_id"] = active.ID
	}
	c.JSON(http.StatusOK, body)
}

// RoomHistory lists the room's ended sessions, newest first.
func (h Handlers) RoomHistory(c *gin.Context) {
	if h.Rooms == nil || h.Calls == nil {
		notConfigured(c, "rooms")
		return
	}
	room, ok := h.memberRoom(c)
	if !ok {
		return
	}
	all, err := h.Calls.History(c.Request.Context(), room.RoomID, queryLimit(c))
	if err != nil {
		abortError(c, err)
		return
	}
	out := make([]calls.Summary, 0, len(all))
	for _, s := range all {
		if s.Status == calls.SessionStatusEnded {
			out = append(out, s.Summary())
		}
	}
	c.JSON(http.StatusOK, gin.H{"room_id": room.RoomID, "sessions": out})
}

func (h Handlers) RoomMessages(c *gin.Context) {
	if h.Rooms == nil {
		notConfigured(c, "rooms")
		return
	}
	room, ok := h.memberRoom(c)
	if !ok {
		return
	}
	msgs, err := h.Rooms.Messages(c.Request.Context(), room.RoomID, queryLimit(c))
	if err != nil {
		abortError(c, err)
		return
	}
	if msgs == nil {
		msgs = []rooms.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"room_id": room.RoomID, "messages": msgs})
}

// SessionSummary is the page the call_ended redirect points at.
func (h Handlers) SessionSummary(c *gin.Context) {
	if h.Rooms == nil || h.Calls == nil {
		notConfigured(c, "rooms")
		return
	}
	room, ok := h.memberRoom(c)
	if !ok {
		return
	}
	s, err := h.Calls.Get(c.Request.Context(), room.RoomID, c.Param("session_id"))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Summary())
}

// RoomStatistics aggregates the room's call sessions. ?from= and ?to= are
// optional RFC3339 bounds on session start.
func (h Handlers) RoomStatistics(c *gin.Context) {
	if h.Rooms == nil || h.Reports == nil {
		notConfigured(c, "reporting")
		return
	}
	room, ok := h.memberRoom(c)
	if !ok {
		return
	}
	var rng reporting.TimeRange
	for key, dst := range map[string]*time.Time{"from": &rng.From, "to": &rng.To} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC3339"})
			return
		}
		*dst = t
	}
	stats, err := h.Reports.CallStats(c.Request.Context(), reporting.CallStatsRequest{RoomID: room.RoomID, Range: rng})
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type endCallRequest struct {
	EndReason         string `json:"end_reason"`
	EndNotes          string `json:"end_notes"`
	ConnectionQuality string `json:"connection_quality"`
	NetworkIssues     int    `json:"network_issues"`
}

// EndCall closes the room's active sessions from outside the socket, e.g.
// when a client lost its connection before sending call_end.
func (h Handlers) EndCall(c *gin.Context) {
	if h.Rooms == nil || h.Calls == nil {
		notConfigured(c, "rooms")
		return
	}
	room, ok := h.memberRoom(c)
	if !ok {
		return
	}
	uid, _ := currentUser(c)
	var req endCallRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	if req.NetworkIssues < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "network_issues must be >= 0"})
		return
	}

	ctx := c.Request.Context()
	s, err := h.Calls.EndCall(ctx, calls.EndRequest{
		RoomID:            room.RoomID,
		EndedBy:           uid,
		EndReason:         req.EndReason,
		EndNotes:          req.EndNotes,
		ConnectionQuality: req.ConnectionQuality,
		NetworkIssues:     req.NetworkIssues,
	})
	if err != nil {
		if errors.Is(err, calls.ErrNoActiveSession) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "No active call session"})
			return
		}
		abortError(c, err)
		return
	}
	if h.Events != nil {
		h.Events.AnnounceCallEnded(ctx, room.RoomID, uid, s)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"session_summary": s.Summary(),
		"redirect_url":    calls.SummaryURL(room.RoomID, s.ID),
	})
}

// memberRoom loads :room_id and checks the caller is one of its members.
func (h Handlers) memberRoom(c *gin.Context) (rooms.Room, bool) {
	uid, ok := currentUser(c)
	if !ok {
		return rooms.Room{}, false
	}
	room, err := h.Rooms.GetForUser(c.Request.Context(), c.Param("room_id"), uid)
	if err != nil {
		abortError(c, err)
		return rooms.Room{}, false
	}
	return room, true
}
