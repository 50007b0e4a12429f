package presence

import "time"

// Presence is the per-user online row.
//
// CurrentRoom is a weak reference: the room may have been left without the
// row being cleared if the process died mid-teardown.
type Presence struct {
	UserID      string    `json:"user_id" db:"user_id"`
	IsOnline    bool      `json:"is_online" db:"is_online"`
	LastSeen    time.Time `json:"last_seen" db:"last_seen"`
	CurrentRoom string    `json:"current_room,omitempty" db:"current_room"`
}

// Update is a partial write applied atomically by a Repository.
//
// Room semantics: nil leaves current_room untouched, a pointer to "" clears it.
// Going offline always clears it.
type Update struct {
	UserID string
	Online bool
	Room   *string
	At     time.Time
}
