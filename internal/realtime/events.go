package realtime

import (
	"encoding/json"

	"langswap/internal/calls"
	"langswap/internal/invitations"
)

// Outbound event type names.
const (
	EventConnectionTest        = "connection_test"
	EventConnectionEstablished = "connection_established"
	EventError                 = "error"
	EventUserJoined            = "user_joined"
	EventUserLeft              = "user_left"
	EventOffer                 = "webrtc_offer"
	EventAnswer                = "webrtc_answer"
	EventICECandidate          = "webrtc_ice_candidate"
	EventPeerReady             = "peer_ready"
	EventVideoStatus           = "video_status_change"
	EventAudioStatus           = "audio_status_change"
	EventChatMessage           = "chat_message"
	EventCallStarted           = "call_started"
	EventCallEnded             = "call_ended_enhanced"
	EventTypingStart           = "typing_start"
	EventTypingStop            = "typing_stop"
	EventTestResponse          = "test_response"
	EventPong                  = "pong"

	EventInvitationReceived  = "call_invitation_received"
	EventInvitationAccepted  = "call_invitation_accepted"
	EventInvitationDeclined  = "call_invitation_declined"
	EventInvitationCancelled = "call_invitation_cancelled"
)

// envelope is the minimum every inbound frame must decode into.
type envelope struct {
	Type string `json:"type"`
}

// inbound carries every field any room handler reads.
type inbound struct {
	Type      string          `json:"type"`
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`

	Enabled      *bool `json:"enabled"`
	VideoEnabled *bool `json:"video_enabled"`
	AudioEnabled *bool `json:"audio_enabled"`

	Message string `json:"message"`

	EndReason         string `json:"end_reason"`
	EndNotes          string `json:"end_notes"`
	ConnectionQuality string `json:"connection_quality"`
	NetworkIssues     int    `json:"network_issues"`
}

type connectionTestEvent struct {
	Type    string  `json:"type"`
	Message string  `json:"message"`
	RoomID  string  `json:"room_id,omitempty"`
	UserID  *string `json:"user_id"`
}

type connectionEstablishedEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newError(msg string) errorEvent { return errorEvent{Type: EventError, Message: msg} }

type memberEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	RoomID   string `json:"room_id"`
}

// sender identifies who produced a relayed event.
type sender struct {
	SenderID       string `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	RoomID         string `json:"room_id"`
}

type signalEvent struct {
	Type      string          `json:"type"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	sender
}

type mediaStatusEvent struct {
	Type         string `json:"type"`
	Enabled      bool   `json:"enabled"`
	VideoEnabled *bool  `json:"video_enabled,omitempty"`
	AudioEnabled *bool  `json:"audio_enabled,omitempty"`
	sender
}

type chatEvent struct {
	Type      string  `json:"type"`
	Message   string  `json:"message"`
	Timestamp string  `json:"timestamp"`
	MessageID *string `json:"message_id"`
	sender
}

type callStartedEvent struct {
	Type         string  `json:"type"`
	VideoEnabled bool    `json:"video_enabled"`
	AudioEnabled bool    `json:"audio_enabled"`
	SessionID    *string `json:"session_id"`
	sender
}

type callEndedEvent struct {
	Type           string         `json:"type"`
	EndReason      string         `json:"end_reason"`
	EndNotes       string         `json:"end_notes"`
	SessionSummary *calls.Summary `json:"session_summary"`
	RedirectURL    string         `json:"redirect_url"`
	sender
}

type typingEvent struct {
	Type string `json:"type"`
	sender
}

type testResponseEvent struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Echo    json.RawMessage `json:"echo"`
}

type pongEvent struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// Notification payloads are the invitation structs with a type tag; the
// embedded fields flatten into the JSON object.
type invitationReceivedEvent struct {
	Type string `json:"type"`
	invitations.Received
}

type invitationAcceptedEvent struct {
	Type string `json:"type"`
	invitations.Accepted
}

type invitationDeclinedEvent struct {
	Type string `json:"type"`
	invitations.Declined
}

type invitationCancelledEvent struct {
	Type string `json:"type"`
	invitations.Cancelled
}
