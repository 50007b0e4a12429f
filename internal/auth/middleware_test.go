package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"langswap/internal/config"

	"github.com/gin-gonic/gin"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func identityEcho(c *gin.Context) {
	uid, err := UserID(c.Request.Context())
	if err != nil {
		c.String(http.StatusOK, "anonymous")
		return
	}
	c.String(http.StatusOK, uid)
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)
	pair, _ := m.IssuePair(time.Now(), "u-42")

	r := gin.New()
	r.GET("/x", RequireAccessToken(m), identityEcho)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "u-42" {
		t.Fatalf("expected identity, got %d %q", w.Code, w.Body.String())
	}
}

func TestOptionalAccessToken_QueryParamAndAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)
	pair, _ := m.IssuePair(time.Now(), "u-7")

	r := gin.New()
	r.GET("/ws", OptionalAccessToken(m), identityEcho)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token="+pair.AccessToken, nil))
	if w.Body.String() != "u-7" {
		t.Fatalf("expected query token identity, got %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token=garbage", nil))
	if w.Code != http.StatusOK || w.Body.String() != "anonymous" {
		t.Fatalf("expected anonymous pass-through, got %d %q", w.Code, w.Body.String())
	}
}

func TestOptionalAccessToken_SocketTicketBoundToPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)
	ticket, err := m.IssueSocketTicket(time.Now(), "u-9", "/signal/room-a")
	if err != nil {
		t.Fatalf("ticket: %v", err)
	}

	r := gin.New()
	r.GET("/signal/:room_id", OptionalAccessToken(m), identityEcho)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/signal/room-a?token="+ticket.Token, nil))
	if w.Body.String() != "u-9" {
		t.Fatalf("expected ticket identity, got %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/signal/room-b?token="+ticket.Token, nil))
	if w.Body.String() != "anonymous" {
		t.Fatalf("ticket must not open another room, got %q", w.Body.String())
	}
}

func TestOptionalAccessToken_HeaderRejectsTicket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)
	ticket, _ := m.IssueSocketTicket(time.Now(), "u-9", "/notifications")

	r := gin.New()
	r.GET("/notifications", OptionalAccessToken(m), identityEcho)

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+ticket.Token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "anonymous" {
		t.Fatalf("expected ticket in header to be ignored, got %q", w.Body.String())
	}
}
