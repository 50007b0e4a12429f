package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"langswap/internal/presence"

	"github.com/gorilla/websocket"
)

// Reply texts sent before a policy close.
const (
	msgAuthRequired   = "Authentication required"
	msgAccessDenied   = "Room access denied"
	msgTooManySockets = "Too many open connections"
)

// Presence is the slice of the presence tracker sockets update.
type Presence interface {
	SetOnline(ctx context.Context, userID, roomID string) (presence.Presence, error)
	LeaveRoom(ctx context.Context, userID string) (presence.Presence, error)
	SetOffline(ctx context.Context, userID string) (presence.Presence, error)
}

// ConnLimiter caps concurrent sockets per user. utils.ConnSlots implements it
// across instances; LocalLimiter within one process.
type ConnLimiter interface {
	Acquire(ctx context.Context, userID string) (bool, error)
	Release(ctx context.Context, userID string) error
}

type Options struct {
	// StoreTimeout bounds each repository call made from a connection.
	StoreTimeout time.Duration
	// LeaveTimeout bounds the teardown broadcast and presence update.
	LeaveTimeout time.Duration
	// AllowedOrigins restricts the Origin header. Empty allows any.
	AllowedOrigins []string
	Limiter        ConnLimiter
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 3 * time.Second
	}
	if o.LeaveTimeout <= 0 {
		o.LeaveTimeout = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// socketBase is what Relay and Notifier share.
type socketBase struct {
	hub      *Hub
	presence Presence
	opts     Options
	upgrader websocket.Upgrader
	clock    func() time.Time
}

func newSocketBase(hub *Hub, p Presence, opts Options) socketBase {
	opts = opts.withDefaults()
	return socketBase{
		hub:      hub,
		presence: p,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		clock: time.Now,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// non-browser clients
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (b *socketBase) storeCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, b.opts.StoreTimeout)
}

// acquire takes a connection slot. Limiter outages fail open.
func (b *socketBase) acquire(ctx context.Context, cl *Client) bool {
	if b.opts.Limiter == nil {
		return true
	}
	sctx, cancel := b.storeCtx(ctx)
	defer cancel()
	ok, err := b.opts.Limiter.Acquire(sctx, cl.userID)
	if err != nil {
		cl.log.Warn("connection limiter unavailable", "err", err)
		return true
	}
	return ok
}

func (b *socketBase) release(ctx context.Context, cl *Client) {
	if b.opts.Limiter == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, b.opts.LeaveTimeout)
	defer cancel()
	if err := b.opts.Limiter.Release(sctx, cl.userID); err != nil {
		cl.log.Warn("release connection slot failed", "err", err)
	}
}

// reject reports msg over the channel and closes with a policy violation.
func (b *socketBase) reject(cl *Client, msg string) {
	cl.sendJSON(newError(msg))
	cl.close(websocket.ClosePolicyViolation, msg)
}

func (b *socketBase) broadcast(group string, v any, exclude *Client) int {
	msg, err := json.Marshal(v)
	if err != nil {
		b.opts.Logger.Error("marshal broadcast event", "group", group, "err", err)
		return 0
	}
	return b.hub.Broadcast(group, msg, exclude)
}

// settlePresence runs after a socket left the hub. A user with other live
// sockets stays online; otherwise they go offline.
func (b *socketBase) settlePresence(ctx context.Context, cl *Client, remaining int, leftRoom bool) {
	lctx, cancel := context.WithTimeout(ctx, b.opts.LeaveTimeout)
	defer cancel()

	var err error
	switch {
	case remaining == 0:
		_, err = b.presence.SetOffline(lctx, cl.userID)
	case leftRoom:
		_, err = b.presence.LeaveRoom(lctx, cl.userID)
	default:
		return
	}
	if err != nil {
		cl.log.Warn("presence update on close failed", "err", err)
	}
}

func logClose(cl *Client, err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
		cl.log.Warn("websocket closed unexpectedly", "err", err)
		return
	}
	cl.log.Debug("websocket closed", "err", err)
}

// LocalLimiter is an in-process ConnLimiter for single-instance deployments
// and tests.
type LocalLimiter struct {
	mu    sync.Mutex
	limit int
	held  map[string]int
}

func NewLocalLimiter(limit int) *LocalLimiter {
	return &LocalLimiter{limit: limit, held: map[string]int{}}
}

func (l *LocalLimiter) Acquire(ctx context.Context, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit > 0 && l.held[userID] >= l.limit {
		return false, nil
	}
	l.held[userID]++
	return true, nil
}

func (l *LocalLimiter) Release(ctx context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[userID] <= 1 {
		delete(l.held, userID)
		return nil
	}
	l.held[userID]--
	return nil
}
