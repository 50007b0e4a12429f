package invitations

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory invitation store for tests and STORE_DRIVER=memory.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Invitation
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Invitation{}} }

func (r *MemoryRepo) Create(ctx context.Context, inv Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[inv.ID] = inv
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Invitation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[id]
	return inv, ok, nil
}

func (r *MemoryRepo) PendingFrom(ctx context.Context, roomID, callerID string) ([]Invitation, error) {
	return r.filter(func(i Invitation) bool {
		return i.Status == StatusPending && i.RoomID == roomID && i.CallerID == callerID
	}), nil
}

func (r *MemoryRepo) PendingFor(ctx context.Context, receiverID string) ([]Invitation, error) {
	return r.filter(func(i Invitation) bool {
		return i.Status == StatusPending && i.ReceiverID == receiverID
	}), nil
}

func (r *MemoryRepo) Transition(ctx context.Context, id string, to Status, respondedAt *time.Time) (Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[id]
	if !ok {
		return Invitation{}, ErrNotFound
	}
	if inv.Status != StatusPending {
		return Invitation{}, ErrInvalidState
	}
	inv.Status = to
	if respondedAt != nil {
		t := *respondedAt
		inv.RespondedAt = &t
	}
	r.rows[id] = inv
	return inv, nil
}

func (r *MemoryRepo) OverduePending(ctx context.Context, now time.Time) ([]Invitation, error) {
	return r.filter(func(i Invitation) bool { return i.overdue(now) }), nil
}

func (r *MemoryRepo) TerminalBefore(ctx context.Context, cutoff time.Time) ([]Invitation, error) {
	return r.filter(func(i Invitation) bool {
		return i.Status.IsTerminal() && i.CreatedAt.Before(cutoff)
	}), nil
}

func (r *MemoryRepo) Delete(ctx context.Context, ids []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := r.rows[id]; ok {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[Status]int{}
	for _, inv := range r.rows {
		out[inv.Status]++
	}
	return out, nil
}

func (r *MemoryRepo) filter(keep func(Invitation) bool) []Invitation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invitation
	for _, inv := range r.rows {
		if keep(inv) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
