package invitations

import "context"

// Notifier pushes invitation events to a user's standing connection.
// Delivery is best-effort; implementations must not block.
type Notifier interface {
	InvitationReceived(ctx context.Context, receiverID string, e Received)
	InvitationAccepted(ctx context.Context, callerID string, e Accepted)
	InvitationDeclined(ctx context.Context, callerID string, e Declined)
	InvitationCancelled(ctx context.Context, receiverID string, e Cancelled)
}

type Received struct {
	InvitationID   string `json:"invitation_id"`
	CallerUsername string `json:"caller_username"`
	CallerID       string `json:"caller_id"`
	Message        string `json:"message"`
	MatchID        string `json:"match_id"`
	ExpiresAt      string `json:"expires_at"`
	RoomURL        string `json:"room_url"`
}

type Accepted struct {
	InvitationID     string `json:"invitation_id"`
	AccepterUsername string `json:"accepter_username"`
	AccepterID       string `json:"accepter_id"`
	RoomURL          string `json:"room_url"`
}

type Declined struct {
	InvitationID     string `json:"invitation_id"`
	DeclinerUsername string `json:"decliner_username"`
	DeclinerID       string `json:"decliner_id"`
}

type Cancelled struct {
	InvitationID      string `json:"invitation_id"`
	CancellerUsername string `json:"canceller_username"`
	CancellerID       string `json:"canceller_id"`
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) InvitationReceived(context.Context, string, Received)   {}
func (NopNotifier) InvitationAccepted(context.Context, string, Accepted)   {}
func (NopNotifier) InvitationDeclined(context.Context, string, Declined)   {}
func (NopNotifier) InvitationCancelled(context.Context, string, Cancelled) {}
