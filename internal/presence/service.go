package presence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidArgument = errors.New("presence: invalid argument")
	ErrStorage         = errors.New("presence: storage failure")
)

// Repository persists presence rows. Apply must be atomic per user.
type Repository interface {
	Get(ctx context.Context, userID string) (Presence, bool, error)
	Apply(ctx context.Context, u Update) (Presence, error)
}

// Tracker owns online/offline state for users.
type Tracker struct {
	repo  Repository
	clock func() time.Time
}

func NewTracker(repo Repository) *Tracker {
	return &Tracker{repo: repo, clock: time.Now}
}

// SetOnline marks the user online. A non-empty roomID also records the room;
// an empty one keeps whatever room was recorded before.
func (t *Tracker) SetOnline(ctx context.Context, userID, roomID string) (Presence, error) {
	if userID == "" {
		return Presence{}, ErrInvalidArgument
	}
	u := Update{UserID: userID, Online: true, At: t.clock().UTC()}
	if roomID != "" {
		u.Room = &roomID
	}
	return t.apply(ctx, u)
}

// LeaveRoom keeps the user online but clears the current room.
func (t *Tracker) LeaveRoom(ctx context.Context, userID string) (Presence, error) {
	if userID == "" {
		return Presence{}, ErrInvalidArgument
	}
	empty := ""
	return t.apply(ctx, Update{UserID: userID, Online: true, Room: &empty, At: t.clock().UTC()})
}

func (t *Tracker) SetOffline(ctx context.Context, userID string) (Presence, error) {
	if userID == "" {
		return Presence{}, ErrInvalidArgument
	}
	return t.apply(ctx, Update{UserID: userID, Online: false, At: t.clock().UTC()})
}

// Get returns the stored row. Users never seen read as offline.
func (t *Tracker) Get(ctx context.Context, userID string) (Presence, error) {
	if userID == "" {
		return Presence{}, ErrInvalidArgument
	}
	p, ok, err := t.repo.Get(ctx, userID)
	if err != nil {
		return Presence{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !ok {
		return Presence{UserID: userID}, nil
	}
	return p, nil
}

// IsOnline is a convenience for the invitation flow.
func (t *Tracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	p, err := t.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return p.IsOnline, nil
}

func (t *Tracker) apply(ctx context.Context, u Update) (Presence, error) {
	p, err := t.repo.Apply(ctx, u)
	if err != nil {
		return Presence{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return p, nil
}
