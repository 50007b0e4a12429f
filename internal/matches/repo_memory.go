package matches

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-memory Directory for tests and STORE_DRIVER=memory.
type MemoryDirectory struct {
	mu      sync.RWMutex
	users   map[string]User
	matches map[string]Match
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: map[string]User{}, matches: map[string]Match{}}
}

func (d *MemoryDirectory) PutUser(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *MemoryDirectory) PutMatch(m Match) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m.Status == "" {
		m.Status = MatchStatusActive
	}
	d.matches[m.ID] = m
}

func (d *MemoryDirectory) User(ctx context.Context, userID string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (d *MemoryDirectory) Match(ctx context.Context, matchID string) (Match, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.matches[matchID]
	if !ok {
		return Match{}, ErrMatchNotFound
	}
	return m, nil
}

func (d *MemoryDirectory) HasActiveMatch(ctx context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, m := range d.matches {
		if m.Status == MatchStatusActive && m.IsMemberOf(userID) {
			return true, nil
		}
	}
	return false, nil
}
