package invitations

import "time"

// TTL is how long a pending invitation stays acceptable.
const TTL = 2 * time.Minute

// Invitation is a time-boxed call request from caller to receiver.
//
// State machine: pending -> accepted | declined | cancelled | expired.
// Terminal states never change again. Expiry is evaluated lazily on read.
type Invitation struct {
	ID         string `json:"id" db:"id"`
	RoomID     string `json:"room_id" db:"room_id"`
	MatchID    string `json:"match_id" db:"match_id"`
	CallerID   string `json:"caller_id" db:"caller_id"`
	ReceiverID string `json:"receiver_id" db:"receiver_id"`
	Status     Status `json:"status" db:"status"`
	Message    string `json:"message" db:"message"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty" db:"responded_at"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsTerminal() bool { return s != StatusPending }

// IsExpired is true once now passes ExpiresAt, whatever the status.
func (i Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

func (i Invitation) CanAccept(now time.Time) bool {
	return i.Status == StatusPending && !i.IsExpired(now)
}

// overdue is a pending invitation that must be persisted as expired.
func (i Invitation) overdue(now time.Time) bool {
	return i.Status == StatusPending && i.IsExpired(now)
}

// StatusView is what a caller polls while waiting for an answer.
type StatusView struct {
	Status      Status     `json:"status"`
	RespondedAt *time.Time `json:"responded_at"`
	IsExpired   bool       `json:"is_expired"`
}
