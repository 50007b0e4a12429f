package calls

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory session store for tests and STORE_DRIVER=memory.
type MemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]CallSession
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{sessions: map[string]CallSession{}} }

func (r *MemoryRepo) Create(ctx context.Context, s CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = clone(s)
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, s CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	next := clone(s)
	next.addParticipants(prev.Participants...)
	r.sessions[s.ID] = next
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, sessionID string) (CallSession, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	return clone(s), ok, nil
}

func (r *MemoryRepo) ActiveByRoom(ctx context.Context, roomID string) ([]CallSession, error) {
	return r.filter(roomID, 0, func(s CallSession) bool { return s.Status == SessionStatusActive }), nil
}

func (r *MemoryRepo) ListByRoom(ctx context.Context, roomID string, limit int) ([]CallSession, error) {
	return r.filter(roomID, limit, func(CallSession) bool { return true }), nil
}

func (r *MemoryRepo) filter(roomID string, limit int, keep func(CallSession) bool) []CallSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallSession
	for _, s := range r.sessions {
		if s.RoomID == roomID && keep(s) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clone(s CallSession) CallSession {
	if s.Participants != nil {
		p := make([]string, len(s.Participants))
		copy(p, s.Participants)
		s.Participants = p
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		s.EndedAt = &t
	}
	return s
}
