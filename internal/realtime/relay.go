package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"langswap/internal/auth"
	"langswap/internal/calls"
	"langswap/internal/matches"
	"langswap/internal/rooms"
	"langswap/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// RoomAccess is the slice of the room registry the relay needs.
type RoomAccess interface {
	ResolveAccess(ctx context.Context, roomID, userID string) (bool, error)
	PostMessage(ctx context.Context, roomID, senderID, content string) (rooms.Message, error)
}

// Sessions is the slice of the call session manager the relay needs.
type Sessions interface {
	StartCall(ctx context.Context, roomID, userID string, video, audio bool) (calls.CallSession, bool, error)
	EnsureSession(ctx context.Context, roomID, userID string) (calls.CallSession, bool, error)
	AddParticipant(ctx context.Context, roomID, userID string) error
	EndCall(ctx context.Context, req calls.EndRequest) (calls.CallSession, error)
}

// Relay serves /signal/:room_id. It fans WebRTC signaling, chat and call
// lifecycle events out to the room's broadcast group.
//
// Signaling frames (offer, answer, ICE, media status, typing) never echo back
// to the sender. Chat and call lifecycle frames reach the sender too, as
// confirmation of what was persisted.
type Relay struct {
	socketBase
	rooms    RoomAccess
	sessions Sessions
	dir      matches.Directory
}

func NewRelay(hub *Hub, ra RoomAccess, s Sessions, p Presence, dir matches.Directory, opts Options) *Relay {
	return &Relay{socketBase: newSocketBase(hub, p, opts), rooms: ra, sessions: s, dir: dir}
}

// roomConn is the per-connection state the handlers read.
type roomConn struct {
	client *Client
	ctx    context.Context
	roomID string
	group  string
	from   sender
}

// ServeRoom upgrades unconditionally, then authenticates and authorizes over
// the socket so the client always gets a reason for a refusal.
func (r *Relay) ServeRoom(c *gin.Context) {
	roomID := c.Param("room_id")
	userID, _ := auth.UserID(c.Request.Context())
	log := logger.FromGin(c).With("room_id", roomID, "user_id", userID)
	ctx := logger.With(context.WithoutCancel(c.Request.Context()), log)

	conn, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	cl := newClient(conn, userID, log)
	go cl.writePump()
	defer cl.wait()

	var idRef *string
	if userID != "" {
		idRef = &userID
	}
	cl.sendJSON(connectionTestEvent{
		Type:    EventConnectionTest,
		Message: fmt.Sprintf("WebSocket connected successfully to room %s!", roomID),
		RoomID:  roomID,
		UserID:  idRef,
	})

	if userID == "" {
		r.reject(cl, msgAuthRequired)
		return
	}
	if !r.authorize(ctx, cl, roomID) {
		r.reject(cl, msgAccessDenied)
		return
	}
	if !r.acquire(ctx, cl) {
		r.reject(cl, msgTooManySockets)
		return
	}
	defer r.release(ctx, cl)

	cl.username = r.username(ctx, userID)
	rc := &roomConn{
		client: cl,
		ctx:    ctx,
		roomID: roomID,
		group:  roomGroup(roomID),
		from:   sender{SenderID: userID, SenderUsername: cl.username, RoomID: roomID},
	}

	r.hub.Register(cl)
	r.hub.Join(rc.group, cl)
	cl.setState(StateOpen)
	log.Info("joined room")

	sctx, cancel := r.storeCtx(ctx)
	if _, err := r.presence.SetOnline(sctx, userID, roomID); err != nil {
		log.Warn("presence update on join failed", "err", err)
	}
	cancel()

	r.broadcast(rc.group, memberEvent{Type: EventUserJoined, UserID: userID, Username: cl.username, RoomID: roomID}, nil)

	err = cl.readLoop(func(msg []byte) { r.dispatch(rc, msg) })
	logClose(cl, err)
	r.leave(rc)
}

func (r *Relay) authorize(ctx context.Context, cl *Client, roomID string) bool {
	sctx, cancel := r.storeCtx(ctx)
	defer cancel()
	ok, err := r.rooms.ResolveAccess(sctx, roomID, cl.userID)
	if err != nil {
		cl.log.Error("resolve room access failed", "err", err)
		return false
	}
	return ok
}

func (r *Relay) username(ctx context.Context, userID string) string {
	sctx, cancel := r.storeCtx(ctx)
	defer cancel()
	return matches.Username(sctx, r.dir, userID)
}

// leave announces the departure while still a member, then drops out of the
// group and settles presence.
func (r *Relay) leave(rc *roomConn) {
	cl := rc.client
	r.broadcast(rc.group, memberEvent{Type: EventUserLeft, UserID: cl.userID, Username: cl.username, RoomID: rc.roomID}, nil)
	r.hub.Leave(rc.group, cl)
	cl.close(websocket.CloseNormalClosure, "")
	remaining := r.hub.Unregister(cl)
	// another socket of the same user keeps the room current
	leftRoom := r.hub.UserSockets(rc.group, cl.userID) == 0
	r.settlePresence(rc.ctx, cl, remaining, leftRoom)
	cl.log.Info("left room", "remaining_sockets", remaining)
}

func (r *Relay) dispatch(rc *roomConn, raw []byte) {
	if rc.client.State() != StateOpen {
		return
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		rc.client.sendJSON(newError("Invalid JSON data"))
		return
	}
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		rc.client.sendJSON(newError(fmt.Sprintf("Invalid %s payload", env.Type)))
		return
	}

	switch in.Type {
	case "offer":
		r.onOffer(rc, in)
	case "answer":
		r.onAnswer(rc, in)
	case "ice_candidate":
		r.onICECandidate(rc, in)
	case "peer_ready":
		r.onPeerReady(rc)
	case "video_status":
		r.onMediaStatus(rc, EventVideoStatus, firstBool(in.VideoEnabled, in.Enabled))
	case "audio_status":
		r.onMediaStatus(rc, EventAudioStatus, firstBool(in.AudioEnabled, in.Enabled))
	case "chat_message":
		r.onChat(rc, in)
	case "call_start":
		r.onCallStart(rc, in)
	case "call_end":
		r.onCallEnd(rc, in)
	case "typing_start":
		r.broadcast(rc.group, typingEvent{Type: EventTypingStart, sender: rc.from}, rc.client)
	case "typing_stop":
		r.broadcast(rc.group, typingEvent{Type: EventTypingStop, sender: rc.from}, rc.client)
	case "test":
		rc.client.sendJSON(testResponseEvent{Type: EventTestResponse, Message: "Test message received successfully!", Echo: json.RawMessage(raw)})
	default:
		rc.client.sendJSON(newError("Unknown message type: " + in.Type))
	}
}

func (r *Relay) onOffer(rc *roomConn, in inbound) {
	if isAbsent(in.Offer) {
		rc.client.sendJSON(newError("No offer data provided"))
		return
	}
	if err := validateSDP(in.Offer, webrtc.SDPTypeOffer); err != nil {
		rc.client.sendJSON(newError("Invalid offer data"))
		return
	}
	r.trackParticipant(rc, true)
	r.broadcast(rc.group, signalEvent{Type: EventOffer, Offer: in.Offer, sender: rc.from}, rc.client)
}

func (r *Relay) onAnswer(rc *roomConn, in inbound) {
	if isAbsent(in.Answer) {
		rc.client.sendJSON(newError("No answer data provided"))
		return
	}
	if err := validateSDP(in.Answer, webrtc.SDPTypeAnswer); err != nil {
		rc.client.sendJSON(newError("Invalid answer data"))
		return
	}
	r.trackParticipant(rc, false)
	r.broadcast(rc.group, signalEvent{Type: EventAnswer, Answer: in.Answer, sender: rc.from}, rc.client)
}

func (r *Relay) onICECandidate(rc *roomConn, in inbound) {
	if isAbsent(in.Candidate) {
		rc.client.sendJSON(newError("No ICE candidate data provided"))
		return
	}
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(in.Candidate, &cand); err != nil {
		rc.client.sendJSON(newError("Invalid ICE candidate data"))
		return
	}
	r.broadcast(rc.group, signalEvent{Type: EventICECandidate, Candidate: in.Candidate, sender: rc.from}, rc.client)
}

func (r *Relay) onPeerReady(rc *roomConn) {
	r.trackParticipant(rc, true)
	r.broadcast(rc.group, signalEvent{Type: EventPeerReady, sender: rc.from}, rc.client)
}

func (r *Relay) onMediaStatus(rc *roomConn, eventType string, enabled bool) {
	ev := mediaStatusEvent{Type: eventType, Enabled: enabled, sender: rc.from}
	if eventType == EventVideoStatus {
		ev.VideoEnabled = &enabled
	} else {
		ev.AudioEnabled = &enabled
	}
	r.broadcast(rc.group, ev, rc.client)
}

// onChat persists then broadcasts. A failed persist still broadcasts, with
// a null message_id.
func (r *Relay) onChat(rc *roomConn, in inbound) {
	content, err := rooms.NormalizeMessage(in.Message)
	if err != nil {
		rc.client.sendJSON(newError(chatValidationText(err)))
		return
	}

	ev := chatEvent{Type: EventChatMessage, Message: content, sender: rc.from}
	sctx, cancel := r.storeCtx(rc.ctx)
	msg, err := r.rooms.PostMessage(sctx, rc.roomID, rc.client.userID, content)
	cancel()
	switch {
	case err == nil:
		id := msg.ID
		ev.MessageID = &id
		ev.Timestamp = msg.Timestamp.Format(time.RFC3339Nano)
	case errors.Is(err, rooms.ErrEmptyMessage), errors.Is(err, rooms.ErrMessageTooLong):
		rc.client.sendJSON(newError(chatValidationText(err)))
		return
	default:
		rc.client.log.Warn("persist chat message failed", "err", err)
		ev.Timestamp = r.clock().UTC().Format(time.RFC3339Nano)
	}
	r.broadcast(rc.group, ev, nil)
}

func chatValidationText(err error) string {
	if errors.Is(err, rooms.ErrMessageTooLong) {
		return fmt.Sprintf("Message too long (max %d characters)", rooms.MaxMessageLength)
	}
	return "Empty message content"
}

func (r *Relay) onCallStart(rc *roomConn, in inbound) {
	video := firstBool(in.VideoEnabled)
	audio := firstBool(in.AudioEnabled)
	ev := callStartedEvent{Type: EventCallStarted, VideoEnabled: video, AudioEnabled: audio, sender: rc.from}

	sctx, cancel := r.storeCtx(rc.ctx)
	s, created, err := r.sessions.StartCall(sctx, rc.roomID, rc.client.userID, video, audio)
	cancel()
	if err != nil {
		rc.client.log.Warn("start call session failed", "err", err)
	} else {
		id := s.ID
		ev.SessionID = &id
		rc.client.log.Info("call start", "session_id", s.ID, "created", created)
	}
	r.broadcast(rc.group, ev, nil)
}

func (r *Relay) onCallEnd(rc *roomConn, in inbound) {
	ev := callEndedEvent{
		Type:        EventCallEnded,
		EndReason:   in.EndReason,
		EndNotes:    in.EndNotes,
		RedirectURL: "/v1/rooms/" + rc.roomID + "/history",
		sender:      rc.from,
	}
	if ev.EndReason == "" {
		ev.EndReason = calls.DefaultEndReason
	}

	sctx, cancel := r.storeCtx(rc.ctx)
	s, err := r.sessions.EndCall(sctx, calls.EndRequest{
		RoomID:            rc.roomID,
		EndedBy:           rc.client.userID,
		EndReason:         in.EndReason,
		EndNotes:          in.EndNotes,
		ConnectionQuality: in.ConnectionQuality,
		NetworkIssues:     in.NetworkIssues,
	})
	cancel()
	switch {
	case err == nil:
		sum := s.Summary()
		ev.SessionSummary = &sum
		ev.RedirectURL = calls.SummaryURL(rc.roomID, s.ID)
	case errors.Is(err, calls.ErrNoActiveSession):
		rc.client.log.Debug("call end without active session")
	default:
		rc.client.log.Warn("end call session failed", "err", err)
	}
	r.broadcast(rc.group, ev, nil)
}

// AnnounceCallEnded tells every socket in the room about a call that was
// ended outside the socket, such as through the HTTP end-call route.
func (r *Relay) AnnounceCallEnded(ctx context.Context, roomID, endedBy string, s calls.CallSession) int {
	ev := callEndedEvent{
		Type:        EventCallEnded,
		EndReason:   s.EndReason,
		EndNotes:    s.EndNotes,
		RedirectURL: calls.SummaryURL(roomID, s.ID),
		sender:      sender{SenderID: endedBy, SenderUsername: r.username(ctx, endedBy), RoomID: roomID},
	}
	if ev.EndReason == "" {
		ev.EndReason = calls.DefaultEndReason
	}
	sum := s.Summary()
	ev.SessionSummary = &sum
	return r.broadcast(roomGroup(roomID), ev, nil)
}

// trackParticipant records the sender on the room's call session. create
// also starts a session when none is active.
func (r *Relay) trackParticipant(rc *roomConn, create bool) {
	sctx, cancel := r.storeCtx(rc.ctx)
	defer cancel()
	var err error
	if create {
		_, _, err = r.sessions.EnsureSession(sctx, rc.roomID, rc.client.userID)
	} else {
		err = r.sessions.AddParticipant(sctx, rc.roomID, rc.client.userID)
	}
	if err != nil {
		rc.client.log.Warn("track call participant failed", "err", err)
	}
}

func validateSDP(raw json.RawMessage, want webrtc.SDPType) error {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(raw, &sd); err != nil {
		return err
	}
	if sd.Type != want {
		return fmt.Errorf("sdp type %s, want %s", sd.Type, want)
	}
	if strings.TrimSpace(sd.SDP) == "" {
		return errors.New("empty sdp")
	}
	return nil
}

// isAbsent treats missing, null and empty values as not provided.
func isAbsent(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	switch string(v) {
	case "", "null", `""`, "{}", "[]", "false":
		return true
	}
	return false
}

// firstBool returns the first non-nil flag, defaulting to true.
func firstBool(flags ...*bool) bool {
	for _, f := range flags {
		if f != nil {
			return *f
		}
	}
	return true
}
