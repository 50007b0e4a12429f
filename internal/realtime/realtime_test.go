package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"langswap/internal/auth"
	"langswap/internal/calls"
	"langswap/internal/config"
	"langswap/internal/invitations"
	"langswap/internal/matches"
	"langswap/internal/presence"
	"langswap/internal/rooms"
	"langswap/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOffer = `{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"}`
const testAnswer = `{"type":"answer","sdp":"v=0\r\no=- 3 4 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"}`
const testCandidate = `{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`

type envConfig struct {
	limiter  ConnLimiter
	roomsFor func(*rooms.Registry) RoomAccess
}

type testEnv struct {
	srv       *httptest.Server
	tokens    *auth.Manager
	dir       *matches.MemoryDirectory
	roomsRepo *rooms.MemoryRepo
	registry  *rooms.Registry
	callsRepo *calls.MemoryRepo
	tracker   *presence.Tracker
	hub       *Hub
	invites   *invitations.Manager
	room      rooms.Room
}

func newEnv(t *testing.T, opts ...func(*envConfig)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := envConfig{roomsFor: func(r *rooms.Registry) RoomAccess { return r }}
	for _, o := range opts {
		o(&cfg)
	}

	tokens, err := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Hour, RefreshTokenTTL: 2 * time.Hour})
	require.NoError(t, err)

	env := &testEnv{
		tokens:    tokens,
		dir:       matches.NewMemoryDirectory(),
		roomsRepo: rooms.NewMemoryRepo(),
		callsRepo: calls.NewMemoryRepo(),
		tracker:   presence.NewTracker(presence.NewMemoryRepo()),
		hub:       NewHub(),
	}
	env.dir.PutUser(matches.User{ID: "alice", Username: "Alice"})
	env.dir.PutUser(matches.User{ID: "bob", Username: "Bob"})
	env.dir.PutUser(matches.User{ID: "mallory", Username: "Mallory"})
	env.dir.PutMatch(matches.Match{ID: "m1", User1ID: "alice", User2ID: "bob"})
	env.dir.PutMatch(matches.Match{ID: "m2", User1ID: "mallory", User2ID: "trent"})

	log := logger.Discard()
	env.registry = rooms.NewRegistry(env.roomsRepo, env.dir, rooms.Options{Logger: log})
	sessions := calls.NewManager(env.callsRepo, env.registry, log)

	sockOpts := Options{StoreTimeout: time.Second, LeaveTimeout: time.Second, Limiter: cfg.limiter, Logger: log}
	relay := NewRelay(env.hub, cfg.roomsFor(env.registry), sessions, env.tracker, env.dir, sockOpts)
	notifier := NewNotifier(env.hub, env.tracker, sockOpts)
	env.invites = invitations.NewManager(invitations.NewMemoryRepo(), env.dir, env.registry, env.tracker, notifier, log)

	m, err := env.dir.Match(context.Background(), "m1")
	require.NoError(t, err)
	env.room, _, err = env.registry.GetOrCreateRoom(context.Background(), m)
	require.NoError(t, err)

	r := gin.New()
	r.Use(logger.Middleware(log))
	ws := r.Group("", auth.OptionalAccessToken(tokens))
	ws.GET("/signal/:room_id", relay.ServeRoom)
	ws.GET("/notifications", notifier.ServeNotifications)
	env.srv = httptest.NewServer(r)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) dial(t *testing.T, path, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
	if userID != "" {
		pair, err := e.tokens.IssuePair(time.Now(), userID)
		require.NoError(t, err)
		url += "?token=" + pair.AccessToken
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// joinRoom dials the room and consumes connection_test and the own user_joined.
func (e *testEnv) joinRoom(t *testing.T, roomID, userID string) *websocket.Conn {
	t.Helper()
	conn := e.dial(t, "/signal/"+roomID, userID)
	ev := expectType(t, conn, EventConnectionTest)
	assert.Equal(t, userID, ev["user_id"])
	ev = expectType(t, conn, EventUserJoined)
	assert.Equal(t, userID, ev["user_id"])
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(msg, &out))
	return out
}

func expectType(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	ev := readEvent(t, conn)
	require.Equal(t, typ, ev["type"], "event: %v", ev)
	return ev
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

// expectQuiet proves nothing else was queued for conn: a test frame sent now
// must come back as the very next event.
func expectQuiet(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, `{"type":"test"}`)
	expectType(t, conn, EventTestResponse)
}

func expectPolicyClose(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "expected close error, got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
}

func TestRelay_RejectsAnonymous(t *testing.T) {
	env := newEnv(t)
	conn := env.dial(t, "/signal/"+env.room.RoomID, "")

	ev := expectType(t, conn, EventConnectionTest)
	assert.Nil(t, ev["user_id"])
	assert.Equal(t, env.room.RoomID, ev["room_id"])

	ev = expectType(t, conn, EventError)
	assert.Equal(t, "Authentication required", ev["message"])
	expectPolicyClose(t, conn)
}

func TestRelay_RejectsNonMember(t *testing.T) {
	env := newEnv(t)
	conn := env.dial(t, "/signal/"+env.room.RoomID, "mallory")

	expectType(t, conn, EventConnectionTest)
	ev := expectType(t, conn, EventError)
	assert.Equal(t, "Room access denied", ev["message"])
	expectPolicyClose(t, conn)
	assert.Equal(t, 0, env.hub.Size(roomGroup(env.room.RoomID)))
}

func TestRelay_BootstrapAllowsMissingRoom(t *testing.T) {
	env := newEnv(t)
	env.joinRoom(t, "room-not-created-yet", "mallory")
}

func TestRelay_BootstrapRoomPersistsChatAndEndsCalls(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	const roomID = "room-not-created-yet"
	conn := env.joinRoom(t, roomID, "mallory")

	send(t, conn, `{"type":"chat_message","message":"hello"}`)
	chat := expectType(t, conn, EventChatMessage)
	require.NotNil(t, chat["message_id"])
	assert.Equal(t, 1, env.roomsRepo.MessageCount(roomID))

	send(t, conn, `{"type":"call_start"}`)
	started := expectType(t, conn, EventCallStarted)
	require.NotEmpty(t, started["session_id"])

	send(t, conn, `{"type":"call_end","end_reason":"finished"}`)
	ended := expectType(t, conn, EventCallEnded)
	sum, ok := ended["session_summary"].(map[string]any)
	require.True(t, ok, "event: %v", ended)
	assert.Equal(t, started["session_id"], sum["session_id"])
	assert.Equal(t, calls.SummaryURL(roomID, sum["session_id"].(string)), ended["redirect_url"])

	active, err := env.callsRepo.ActiveByRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, active)

	send(t, conn, `{"type":"call_start"}`)
	next := expectType(t, conn, EventCallStarted)
	assert.NotEqual(t, started["session_id"], next["session_id"])
}

func TestRelay_JoinAnnouncesToGroup(t *testing.T) {
	env := newEnv(t)
	a := env.joinRoom(t, env.room.RoomID, "alice")
	env.joinRoom(t, env.room.RoomID, "bob")

	ev := expectType(t, a, EventUserJoined)
	assert.Equal(t, "bob", ev["user_id"])
	assert.Equal(t, "Bob", ev["username"])
	assert.Equal(t, 2, env.hub.Size(roomGroup(env.room.RoomID)))

	p, err := env.tracker.Get(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, p.IsOnline)
	assert.Equal(t, env.room.RoomID, p.CurrentRoom)
}

func TestRelay_SignalingNeverEchoes(t *testing.T) {
	env := newEnv(t)
	a := env.joinRoom(t, env.room.RoomID, "alice")
	b := env.joinRoom(t, env.room.RoomID, "bob")
	expectType(t, a, EventUserJoined)

	cases := []struct {
		in   string
		want string
	}{
		{`{"type":"offer","offer":` + testOffer + `}`, EventOffer},
		{`{"type":"answer","answer":` + testAnswer + `}`, EventAnswer},
		{`{"type":"ice_candidate","candidate":` + testCandidate + `}`, EventICECandidate},
		{`{"type":"peer_ready"}`, EventPeerReady},
		{`{"type":"video_status","video_enabled":false}`, EventVideoStatus},
		{`{"type":"audio_status"}`, EventAudioStatus},
		{`{"type":"typing_start"}`, EventTypingStart},
		{`{"type":"typing_stop"}`, EventTypingStop},
	}
	for _, tc := range cases {
		send(t, a, tc.in)
		ev := expectType(t, b, tc.want)
		assert.Equal(t, "alice", ev["sender_id"], tc.want)
		assert.Equal(t, "Alice", ev["sender_username"], tc.want)
	}
	expectQuiet(t, a)
	expectQuiet(t, b)
}

func TestRelay_RelaysPayloadsVerbatim(t *testing.T) {
	env := newEnv(t)
	a := env.joinRoom(t, env.room.RoomID, "alice")
	b := env.joinRoom(t, env.room.RoomID, "bob")
	expectType(t, a, EventUserJoined)

	send(t, a, `{"type":"offer","offer":`+testOffer+`}`)
	ev := expectType(t, b, EventOffer)
	offer := ev["offer"].(map[string]any)
	assert.Equal(t, "offer", offer["type"])
	assert.Contains(t, offer["sdp"], "127.0.0.1")

	send(t, a, `{"type":"video_status","video_enabled":false}`)
	ev = expectType(t, b, EventVideoStatus)
	assert.Equal(t, false, ev["enabled"])
	assert.Equal(t, false, ev["video_enabled"])

	send(t, a, `{"type":"audio_status"}`)
	ev = expectType(t, b, EventAudioStatus)
	assert.Equal(t, true, ev["audio_enabled"])
}

func TestRelay_ValidationErrorsStayOpen(t *testing.T) {
	env := newEnv(t)
	a := env.joinRoom(t, env.room.RoomID, "alice")
	b := env.joinRoom(t, env.room.RoomID, "bob")
	expectType(t, a, EventUserJoined)

	cases := []struct {
		in   string
		want string
	}{
		{`{"type":"offer"}`, "No offer data provided"},
		{`{"type":"answer","answer":null}`, "No answer data provided"},
		{`{"type":"ice_candidate"}`, "No ICE candidate data provided"},
		{`{"type":"offer","offer":` + testAnswer + `}`, "Invalid offer data"},
		{`{"type":"chat_message","message":"   "}`, "Empty message content"},
		{`{"type":"chat_message","message":{"x":1}}`, "Invalid chat_message payload"},
		{`{"type":"dance"}`, "Unknown message type: dance"},
		{`not json`, "Invalid JSON data"},
	}
	for _, tc := range cases {
		send(t, a, tc.in)
		ev := expectType(t, a, EventError)
		assert.Equal(t, tc.want, ev["message"], tc.in)
	}
	expectQuiet(t, a)
	expectQuiet(t, b)
}

func TestRelay_ChatReachesBothWithSameID(t *testing.T) {
	env := newEnv(t)
	a := env.joinRoom(t, env.room.RoomID, "alice")
	b := env.joinRoom(t, env.room.RoomID, "bob")
	expectType(t, a, EventUserJoined)

	before := env.roomsRepo.MessageCount(env.room.RoomID)
	send(t, a, `{"type":"chat_message","message":"  ¿Qué tal?  "}`)

	fromA := expectType(t, a, EventChatMessage)
	fromB := expectType(t, b, EventChatMessage)
	assert.Equal(t, "¿Qué tal?", fromA["message"])
	assert.Equal(t, fromA["message"], fromB["message"])
	require.NotNil(t, fromA["message_id"])
	assert.Equal(t, fromA["message_id"], fromB["message_id"])
	assert.Equal(t, before+1, env.roomsRepo.MessageCount(env.room.RoomID))
}

func TestRelay_OversizedChatRejected(t *testing.T) {
	env := newEnv(t)
	a := env.joinRoom(t, env.room.RoomID, "alice")
	b := env.joinRoom(t, env.room.RoomID, "bob")
	expectType(t, a, EventUserJoined)

	send(t, a, `{"type":"chat_message","message":"`+strings.Repeat("a", 501)+`"}`)
	ev := expectType(t, a, EventError)
	assert.Equal(t, "Message too long (max 500 characters)", ev["message"])
	assert.Equal(t, 0, env.roomsRepo.MessageCount(env.room.RoomID))
	expectQuiet(t, b)
}

type failingChat struct{ *rooms.Registry }

func (failingChat) PostMessage(context.Context, string, string, string) (rooms.Message, error) {
	return rooms.Message{}, rooms.ErrStorage
}

func TestRelay_ChatPersistFailureStillBroadcasts(t *testing.T) {
	env := newEnv(t, func(c *envConfig) {
		c.roomsFor = func(r *rooms.Registry) RoomAccess { return failingChat{r} }
	})
	a := env.joinRoom(t, env.room.RoomID, "alice")
	b := env.joinRoom(t, env.room.RoomID, "bob")
	expectType(t, a, EventUserJoined)

	send(t, a, `{"type":"chat_message","message":"hola"}`)
	for _, conn := range []*websocket.Conn{a, b} {
		ev := expectType(t, conn, EventChatMessage)
		assert.Equal(t, "hola", ev["message"])
		v, present := ev["message_id"]
		assert.True(t, present)
		assert.Nil(t, v)
	}
}

func TestRelay_CallLifecycle(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	a := env.joinRoom(t, env.room.RoomID, "alice")
	b := env.joinRoom(t, env.room.RoomID, "bob")
	expectType(t, a, EventUserJoined)

	send(t, a, `{"type":"call_start","video_enabled":true,"audio_enabled":false}`)
	startA := expectType(t, a, EventCallStarted)
	startB := expectType(t, b, EventCallStarted)
	assert.Equal(t, false, startA["audio_enabled"])
	assert.Equal(t, startA["session_id"], startB["session_id"])

	send(t, b, `{"type":"call_start"}`)
	again := expectType(t, a, EventCallStarted)
	expectType(t, b, EventCallStarted)
	assert.Equal(t, startA["session_id"], again["session_id"])

	active, err := env.callsRepo.ActiveByRoom(ctx, env.room.RoomID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	room, _ := env.registry.Get(ctx, env.room.RoomID)
	assert.True(t, room.IsActive)

	send(t, b, `{"type":"call_end","end_reason":"finished","end_notes":"good session"}`)
	for _, conn := range []*websocket.Conn{a, b} {
		ev := expectType(t, conn, EventCallEnded)
		assert.Equal(t, "finished", ev["end_reason"])
		assert.Equal(t, "good session", ev["end_notes"])
		sum := ev["session_summary"].(map[string]any)
		assert.Equal(t, startA["session_id"], sum["session_id"])
		assert.ElementsMatch(t, []any{"alice", "bob"}, sum["participants"])
		assert.Equal(t, calls.SummaryURL(env.room.RoomID, sum["session_id"].(string)), ev["redirect_url"])
	}

	active, _ = env.callsRepo.ActiveByRoom(ctx, env.room.RoomID)
	assert.Empty(t, active)
	room, _ = env.registry.Get(ctx, env.room.RoomID)
	assert.False(t, room.IsActive)
}

func TestRelay_OfferStartsSession(t *testing.T) {
	env := newEnv(t)
	a := env.joinRoom(t, env.room.RoomID, "alice")
	b := env.joinRoom(t, env.room.RoomID, "bob")
	expectType(t, a, EventUserJoined)

	send(t, a, `{"type":"offer","offer":`+testOffer+`}`)
	expectType(t, b, EventOffer)
	send(t, b, `{"type":"answer","answer":`+testAnswer+`}`)
	expectType(t, a, EventAnswer)

	active, err := env.callsRepo.ActiveByRoom(context.Background(), env.room.RoomID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, []string{"alice", "bob"}, active[0].Participants)
}

func TestRelay_LeaveAnnouncesAndGoesOffline(t *testing.T) {
	env := newEnv(t)
	a := env.joinRoom(t, env.room.RoomID, "alice")
	b := env.joinRoom(t, env.room.RoomID, "bob")
	expectType(t, a, EventUserJoined)

	require.NoError(t, b.Close())
	ev := expectType(t, a, EventUserLeft)
	assert.Equal(t, "bob", ev["user_id"])

	require.Eventually(t, func() bool {
		p, err := env.tracker.Get(context.Background(), "bob")
		return err == nil && !p.IsOnline && p.CurrentRoom == ""
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, env.hub.Size(roomGroup(env.room.RoomID)))
}

func TestRelay_LeaveKeepsOnlineWithOtherSockets(t *testing.T) {
	env := newEnv(t)
	n := env.dial(t, "/notifications", "bob")
	expectType(t, n, EventConnectionEstablished)

	a := env.joinRoom(t, env.room.RoomID, "alice")
	b := env.joinRoom(t, env.room.RoomID, "bob")
	expectType(t, a, EventUserJoined)

	require.NoError(t, b.Close())
	expectType(t, a, EventUserLeft)
	require.Eventually(t, func() bool {
		p, err := env.tracker.Get(context.Background(), "bob")
		return err == nil && p.IsOnline && p.CurrentRoom == ""
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRelay_SecondSocketKeepsCurrentRoom(t *testing.T) {
	env := newEnv(t)
	a := env.joinRoom(t, env.room.RoomID, "alice")
	b1 := env.joinRoom(t, env.room.RoomID, "bob")
	expectType(t, a, EventUserJoined)
	b2 := env.joinRoom(t, env.room.RoomID, "bob")
	expectType(t, a, EventUserJoined)
	expectType(t, b1, EventUserJoined)

	require.NoError(t, b1.Close())
	expectType(t, a, EventUserLeft)
	expectType(t, b2, EventUserLeft)
	require.Eventually(t, func() bool { return env.hub.Live("bob") == 1 }, 3*time.Second, 20*time.Millisecond)

	assert.Never(t, func() bool {
		p, err := env.tracker.Get(context.Background(), "bob")
		return err != nil || !p.IsOnline || p.CurrentRoom != env.room.RoomID
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestRelay_ConnectionCap(t *testing.T) {
	env := newEnv(t, func(c *envConfig) { c.limiter = NewLocalLimiter(1) })
	env.joinRoom(t, env.room.RoomID, "alice")

	second := env.dial(t, "/signal/"+env.room.RoomID, "alice")
	expectType(t, second, EventConnectionTest)
	ev := expectType(t, second, EventError)
	assert.Equal(t, "Too many open connections", ev["message"])
	expectPolicyClose(t, second)
}

func TestNotifier_AuthPingAndPush(t *testing.T) {
	env := newEnv(t)

	anon := env.dial(t, "/notifications", "")
	ev := expectType(t, anon, EventError)
	assert.Equal(t, "Authentication required", ev["message"])
	expectPolicyClose(t, anon)

	n := env.dial(t, "/notifications", "bob")
	ev = expectType(t, n, EventConnectionEstablished)
	assert.Equal(t, "bob", ev["user_id"])

	send(t, n, `{"type":"ping"}`)
	ev = expectType(t, n, EventPong)
	assert.NotEmpty(t, ev["timestamp"])

	send(t, n, `{"type":"test","x":1}`)
	ev = expectType(t, n, EventTestResponse)
	assert.Equal(t, float64(1), ev["echo"].(map[string]any)["x"])

	p, err := env.tracker.Get(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, p.IsOnline)
}

func TestEndToEnd_InviteAcceptAndSignal(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	na := env.dial(t, "/notifications", "alice")
	expectType(t, na, EventConnectionEstablished)
	nb := env.dial(t, "/notifications", "bob")
	expectType(t, nb, EventConnectionEstablished)

	inv, err := env.invites.Send(ctx, invitations.SendRequest{MatchID: "m1", CallerID: "alice", Message: "practice?"})
	require.NoError(t, err)

	ev := expectType(t, nb, EventInvitationReceived)
	assert.Equal(t, inv.ID, ev["invitation_id"])
	assert.Equal(t, "Alice", ev["caller_username"])
	assert.Equal(t, "m1", ev["match_id"])
	assert.Equal(t, "practice?", ev["message"])
	assert.NotEmpty(t, ev["expires_at"])

	_, err = env.invites.Respond(ctx, inv.ID, "bob", true)
	require.NoError(t, err)
	ev = expectType(t, na, EventInvitationAccepted)
	assert.Equal(t, rooms.URL(inv.RoomID), ev["room_url"])
	assert.Equal(t, "Bob", ev["accepter_username"])

	a := env.joinRoom(t, inv.RoomID, "alice")
	b := env.joinRoom(t, inv.RoomID, "bob")
	ev = expectType(t, a, EventUserJoined)
	assert.Equal(t, "bob", ev["user_id"])

	send(t, a, `{"type":"offer","offer":`+testOffer+`}`)
	ev = expectType(t, b, EventOffer)
	assert.Equal(t, "alice", ev["sender_id"])
	expectQuiet(t, a)
}

func TestRelay_SocketTicketOpensOnlyItsRoom(t *testing.T) {
	env := newEnv(t)
	ticket, err := env.tokens.IssueSocketTicket(time.Now(), "alice", "/signal/"+env.room.RoomID)
	require.NoError(t, err)
	base := "ws" + strings.TrimPrefix(env.srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(base+"/signal/"+env.room.RoomID+"?token="+ticket.Token, nil)
	require.NoError(t, err)
	defer conn.Close()
	expectType(t, conn, EventConnectionTest)
	ev := expectType(t, conn, EventUserJoined)
	assert.Equal(t, "alice", ev["user_id"])

	other, _, err := websocket.DefaultDialer.Dial(base+"/notifications?token="+ticket.Token, nil)
	require.NoError(t, err)
	defer other.Close()
	ev = expectType(t, other, EventError)
	assert.Equal(t, "Authentication required", ev["message"])
	expectPolicyClose(t, other)
}
