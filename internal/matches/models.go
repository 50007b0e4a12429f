package matches

import "time"

// User is the slice of the account record this service needs.
type User struct {
	ID       string `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
}

type MatchStatus string

const (
	MatchStatusActive   MatchStatus = "active"
	MatchStatusInactive MatchStatus = "inactive"
)

// Match pairs two users for a teach/learn exchange. Owned by the matching
// service; read-only here.
type Match struct {
	ID        string      `json:"id" db:"id"`
	User1ID   string      `json:"user1_id" db:"user1_id"`
	User2ID   string      `json:"user2_id" db:"user2_id"`
	Status    MatchStatus `json:"status" db:"status"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// IsMemberOf reports whether userID is one side of the match.
func (m Match) IsMemberOf(userID string) bool {
	return userID != "" && (m.User1ID == userID || m.User2ID == userID)
}

// PartnerOf returns the other side of the match, or "" if userID is not a member.
func (m Match) PartnerOf(userID string) string {
	switch userID {
	case "":
		return ""
	case m.User1ID:
		return m.User2ID
	case m.User2ID:
		return m.User1ID
	default:
		return ""
	}
}

// Members returns both user ids.
func (m Match) Members() []string { return []string{m.User1ID, m.User2ID} }
