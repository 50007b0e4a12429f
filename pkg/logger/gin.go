package logger

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const headerRequestID = "X-Request-Id"

// ginUserKey is the gin key the auth middleware stores the caller under.
const ginUserKey = "user_id"

// MiddlewareOptions tunes the request log.
type MiddlewareOptions struct {
	// QuietPaths are logged at debug instead of info (health checks).
	QuietPaths []string
}

// Middleware tags every request with a request_id logger (gin key "logger"
// and the request context) and writes one summary line when the handler
// returns. Upgraded sockets therefore log once, at close.
func Middleware(l *slog.Logger, opts ...MiddlewareOptions) gin.HandlerFunc {
	quiet := map[string]bool{}
	for _, o := range opts {
		for _, p := range o.QuietPaths {
			quiet[p] = true
		}
	}
	return func(c *gin.Context) {
		start := time.Now()

		rid := strings.TrimSpace(c.GetHeader(headerRequestID))
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)

		reqLogger := l.With("request_id", rid)
		c.Set("logger", reqLogger)
		c.Request = c.Request.WithContext(With(c.Request.Context(), reqLogger))

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", float64(time.Since(start).Milliseconds()),
		}
		if uid := c.GetString(ginUserKey); uid != "" {
			attrs = append(attrs, "user_id", uid)
		}
		if strings.EqualFold(c.Request.Header.Get("Upgrade"), "websocket") {
			attrs = append(attrs, "websocket", true)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}
		reqLogger.Log(c.Request.Context(), requestLevel(status, len(c.Errors) > 0, quiet[path]), "request", attrs...)
	}
}

func requestLevel(status int, hasErrors, quiet bool) slog.Level {
	switch {
	case status >= 500 || hasErrors:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case quiet:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// FromGin pulls the request-scoped logger from Gin context.
func FromGin(c *gin.Context) *slog.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
