package main

import (
	"net/http"

	"langswap/internal/auth"
	"langswap/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, a *app) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Sockets authenticate themselves so failures can be reported over the
	// channel; the middleware only attaches identity when a token is valid.
	ws := r.Group("")
	ws.Use(auth.OptionalAccessToken(a.tokens))
	{
		ws.GET("/signal/:room_id", a.relay.ServeRoom)
		ws.GET("/notifications", a.notifier.ServeNotifications)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(a.tokens))
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid})
		})

		httpapi.Handlers{
			Invitations: a.invites,
			Presence:    a.tracker,
			Rooms:       a.registry,
			Calls:       a.sessions,
			Directory:   a.dir,
			Reports:     a.reports,
			Events:      a.relay,
			Tickets:     a.tokens,
		}.Register(v1)
	}
}
