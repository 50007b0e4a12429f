package rooms

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Room is the signaling context for exactly one matched pair.
//
// Invariants:
// - one room per match (unique match_id)
// - rooms are never deleted here; IsActive toggles with call sessions
type Room struct {
	RoomID       string    `json:"room_id" db:"room_id"`
	MatchID      string    `json:"match_id" db:"match_id"`
	User1ID      string    `json:"user1_id" db:"user1_id"`
	User2ID      string    `json:"user2_id" db:"user2_id"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	LastActivity time.Time `json:"last_activity" db:"last_activity"`
}

// CanAccess reports whether userID is one of the two authorized members.
func (r Room) CanAccess(userID string) bool {
	return userID != "" && (r.User1ID == userID || r.User2ID == userID)
}

func (r Room) Members() []string { return []string{r.User1ID, r.User2ID} }

// Message is an append-only chat line inside a room.
type Message struct {
	ID        string    `json:"id" db:"id"`
	RoomID    string    `json:"room_id" db:"room_id"`
	SenderID  string    `json:"sender_id" db:"sender_id"`
	Content   string    `json:"content" db:"content"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// MaxMessageLength is counted in characters after trimming.
const MaxMessageLength = 500

// NormalizeMessage trims content and enforces the length bounds.
func NormalizeMessage(content string) (string, error) {
	c := strings.TrimSpace(content)
	if c == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(c) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return c, nil
}
