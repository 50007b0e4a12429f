package realtime

import (
	"context"
	"encoding/json"
	"time"

	"langswap/internal/auth"
	"langswap/internal/invitations"
	"langswap/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Notifier serves /notifications: one broadcast group per user, independent
// of room membership. It implements invitations.Notifier.
type Notifier struct {
	socketBase
}

var _ invitations.Notifier = (*Notifier)(nil)

func NewNotifier(hub *Hub, p Presence, opts Options) *Notifier {
	return &Notifier{socketBase: newSocketBase(hub, p, opts)}
}

// ServeNotifications requires authentication only.
func (n *Notifier) ServeNotifications(c *gin.Context) {
	userID, _ := auth.UserID(c.Request.Context())
	log := logger.FromGin(c).With("user_id", userID, "channel", "notifications")
	ctx := logger.With(context.WithoutCancel(c.Request.Context()), log)

	conn, err := n.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	cl := newClient(conn, userID, log)
	go cl.writePump()
	defer cl.wait()

	if userID == "" {
		n.reject(cl, msgAuthRequired)
		return
	}
	if !n.acquire(ctx, cl) {
		n.reject(cl, msgTooManySockets)
		return
	}
	defer n.release(ctx, cl)

	group := userGroup(userID)
	n.hub.Register(cl)
	n.hub.Join(group, cl)
	cl.setState(StateOpen)

	sctx, cancel := n.storeCtx(ctx)
	if _, err := n.presence.SetOnline(sctx, userID, ""); err != nil {
		log.Warn("presence update on connect failed", "err", err)
	}
	cancel()

	cl.sendJSON(connectionEstablishedEvent{
		Type:    EventConnectionEstablished,
		Message: "Notification channel connected",
		UserID:  userID,
	})

	err = cl.readLoop(func(msg []byte) { n.dispatch(cl, msg) })
	logClose(cl, err)

	n.hub.Leave(group, cl)
	cl.close(websocket.CloseNormalClosure, "")
	remaining := n.hub.Unregister(cl)
	n.settlePresence(ctx, cl, remaining, false)
}

func (n *Notifier) dispatch(cl *Client, raw []byte) {
	if cl.State() != StateOpen {
		return
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		cl.sendJSON(newError("Invalid JSON data"))
		return
	}
	switch env.Type {
	case "ping":
		cl.sendJSON(pongEvent{Type: EventPong, Timestamp: n.clock().UTC().Format(time.RFC3339Nano)})
	case "test":
		cl.sendJSON(testResponseEvent{Type: EventTestResponse, Message: "Test message received successfully!", Echo: json.RawMessage(raw)})
	default:
		cl.sendJSON(newError("Unknown message type: " + env.Type))
	}
}

func (n *Notifier) InvitationReceived(ctx context.Context, receiverID string, e invitations.Received) {
	n.push(ctx, receiverID, EventInvitationReceived, invitationReceivedEvent{Type: EventInvitationReceived, Received: e})
}

func (n *Notifier) InvitationAccepted(ctx context.Context, callerID string, e invitations.Accepted) {
	n.push(ctx, callerID, EventInvitationAccepted, invitationAcceptedEvent{Type: EventInvitationAccepted, Accepted: e})
}

func (n *Notifier) InvitationDeclined(ctx context.Context, callerID string, e invitations.Declined) {
	n.push(ctx, callerID, EventInvitationDeclined, invitationDeclinedEvent{Type: EventInvitationDeclined, Declined: e})
}

func (n *Notifier) InvitationCancelled(ctx context.Context, receiverID string, e invitations.Cancelled) {
	n.push(ctx, receiverID, EventInvitationCancelled, invitationCancelledEvent{Type: EventInvitationCancelled, Cancelled: e})
}

func (n *Notifier) push(ctx context.Context, userID, eventType string, v any) {
	delivered := n.broadcast(userGroup(userID), v, nil)
	logger.From(ctx).Debug("notification pushed", "user_id", userID, "type", eventType, "sockets", delivered)
}
