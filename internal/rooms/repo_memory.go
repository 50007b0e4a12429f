package rooms

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory room store for tests and STORE_DRIVER=memory.
type MemoryRepo struct {
	mu       sync.Mutex
	rooms    map[string]Room
	byMatch  map[string]string
	messages map[string][]Message
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		rooms:    map[string]Room{},
		byMatch:  map[string]string{},
		messages: map[string][]Message{},
	}
}

func (r *MemoryRepo) RoomByID(ctx context.Context, roomID string) (Room, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	return room, ok, nil
}

func (r *MemoryRepo) RoomByMatch(ctx context.Context, matchID string) (Room, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byMatch[matchID]
	if !ok {
		return Room{}, false, nil
	}
	return r.rooms[id], true, nil
}

func (r *MemoryRepo) CreateRoom(ctx context.Context, room Room) (Room, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byMatch[room.MatchID]; ok {
		return r.rooms[id], false, nil
	}
	r.rooms[room.RoomID] = room
	r.byMatch[room.MatchID] = room.RoomID
	return room, true, nil
}

func (r *MemoryRepo) SetActive(ctx context.Context, roomID string, active bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	room.IsActive = active
	room.LastActivity = at
	r.rooms[roomID] = room
	return nil
}

// AppendMessage does not require a room row; bootstrap-admitted rooms keep
// their history by room id until the row is created.
func (r *MemoryRepo) AppendMessage(ctx context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[m.RoomID] = append(r.messages[m.RoomID], m)
	return nil
}

func (r *MemoryRepo) ListMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := r.messages[roomID]
	out := make([]Message, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// MessageCount is a test helper.
func (r *MemoryRepo) MessageCount(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages[roomID])
}
