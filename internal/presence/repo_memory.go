package presence

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory presence store useful for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Presence
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Presence{}} }

func (r *MemoryRepo) Get(ctx context.Context, userID string) (Presence, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[userID]
	return p, ok, nil
}

func (r *MemoryRepo) Apply(ctx context.Context, u Update) (Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.rows[u.UserID]
	p.UserID = u.UserID
	p.IsOnline = u.Online
	p.LastSeen = u.At
	switch {
	case !u.Online:
		p.CurrentRoom = ""
	case u.Room != nil:
		p.CurrentRoom = *u.Room
	}
	r.rows[u.UserID] = p
	return p, nil
}
