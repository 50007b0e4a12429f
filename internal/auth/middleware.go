package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// tokenQueryParam carries the access token on WebSocket upgrades; browsers
// cannot set an Authorization header there.
const tokenQueryParam = "token"

// RequireAccessToken verifies an access token and injects identity into request context.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		setIdentity(c, claims.UserID)
		c.Next()
	}
}

// OptionalAccessToken attaches identity when a valid credential is present
// and otherwise lets the request through anonymous. The socket endpoints use
// it so they can report auth failures over the channel itself.
//
// The header must carry an access token. ?token= may carry a socket ticket
// issued for this exact path, or an access token.
func OptionalAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		if tok := bearerToken(c); tok != "" {
			if claims, err := m.Verify(tok, TokenTypeAccess, now); err == nil {
				setIdentity(c, claims.UserID)
			}
			c.Next()
			return
		}
		if tok := strings.TrimSpace(c.Query(tokenQueryParam)); tok != "" {
			if claims, ok := verifyQueryToken(m, tok, c.Request.URL.Path, now); ok {
				setIdentity(c, claims.UserID)
			}
		}
		c.Next()
	}
}

func verifyQueryToken(m *Manager, tok, path string, now time.Time) (Claims, bool) {
	if claims, err := m.VerifySocketTicket(tok, path, now); err == nil {
		return claims, true
	}
	if claims, err := m.Verify(tok, TokenTypeAccess, now); err == nil {
		return claims, true
	}
	return Claims{}, false
}

func bearerToken(c *gin.Context) string {
	raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
	if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
}

func setIdentity(c *gin.Context, userID string) {
	ctx := WithIdentity(c.Request.Context(), userID)
	c.Request = c.Request.WithContext(ctx)
	c.Set("user_id", userID)
}
