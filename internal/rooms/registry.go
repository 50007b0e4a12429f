package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"langswap/internal/matches"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("rooms: not found")
	ErrAccessDenied    = errors.New("rooms: access denied")
	ErrEmptyMessage    = errors.New("rooms: empty message")
	ErrMessageTooLong  = errors.New("rooms: message too long")
	ErrStorage         = errors.New("rooms: storage failure")
	ErrInvalidArgument = errors.New("rooms: invalid argument")
)

// Repository persists rooms and their chat messages.
type Repository interface {
	RoomByID(ctx context.Context, roomID string) (Room, bool, error)
	RoomByMatch(ctx context.Context, matchID string) (Room, bool, error)
	// CreateRoom inserts r unless a room already exists for r.MatchID, in
	// which case the existing room is returned with created=false.
	CreateRoom(ctx context.Context, r Room) (out Room, created bool, err error)
	SetActive(ctx context.Context, roomID string, active bool, at time.Time) error
	AppendMessage(ctx context.Context, m Message) error
	ListMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
}

type Options struct {
	// StrictAccess turns off the bootstrap fallback for rooms without a row.
	StrictAccess bool
	Logger       *slog.Logger
}

// Registry maps room ids to membership and activity state.
type Registry struct {
	repo   Repository
	dir    matches.Directory
	strict bool
	log    *slog.Logger
	clock  func() time.Time
}

func NewRegistry(repo Repository, dir matches.Directory, opts Options) *Registry {
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Registry{repo: repo, dir: dir, strict: opts.StrictAccess, log: l.With("component", "rooms"), clock: time.Now}
}

// ResolveAccess is true iff userID is one of the room's members.
//
// When no room row exists yet and strict mode is off, any user holding an
// active match is let in. That is looser than the final check and only
// covers the window before the first invitation creates the row.
func (r *Registry) ResolveAccess(ctx context.Context, roomID, userID string) (bool, error) {
	if roomID == "" || userID == "" {
		return false, nil
	}
	room, ok, err := r.repo.RoomByID(ctx, roomID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if ok {
		return room.CanAccess(userID), nil
	}
	if r.strict {
		return false, nil
	}
	has, err := r.dir.HasActiveMatch(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if has {
		r.log.Warn("room access granted by bootstrap fallback", "room_id", roomID, "user_id", userID)
	}
	return has, nil
}

// GetOrCreateRoom returns the match's room, creating it on first use.
func (r *Registry) GetOrCreateRoom(ctx context.Context, m matches.Match) (Room, bool, error) {
	if m.ID == "" {
		return Room{}, false, ErrInvalidArgument
	}
	existing, ok, err := r.repo.RoomByMatch(ctx, m.ID)
	if err != nil {
		return Room{}, false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if ok {
		return existing, false, nil
	}

	now := r.clock().UTC()
	room, created, err := r.repo.CreateRoom(ctx, Room{
		RoomID:       uuid.NewString(),
		MatchID:      m.ID,
		User1ID:      m.User1ID,
		User2ID:      m.User2ID,
		CreatedAt:    now,
		LastActivity: now,
	})
	if err != nil {
		return Room{}, false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if created {
		r.log.Info("room created", "room_id", room.RoomID, "match_id", m.ID)
	}
	return room, created, nil
}

// RoomForMatch resolves the match, checks userID belongs to it and returns
// its room.
func (r *Registry) RoomForMatch(ctx context.Context, matchID, userID string) (Room, bool, error) {
	m, err := r.dir.Match(ctx, matchID)
	if err != nil {
		if errors.Is(err, matches.ErrMatchNotFound) {
			return Room{}, false, ErrNotFound
		}
		return Room{}, false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !m.IsMemberOf(userID) {
		return Room{}, false, ErrAccessDenied
	}
	return r.GetOrCreateRoom(ctx, m)
}

func (r *Registry) Get(ctx context.Context, roomID string) (Room, error) {
	room, ok, err := r.repo.RoomByID(ctx, roomID)
	if err != nil {
		return Room{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !ok {
		return Room{}, ErrNotFound
	}
	return room, nil
}

// GetForUser is Get plus a membership check.
func (r *Registry) GetForUser(ctx context.Context, roomID, userID string) (Room, error) {
	room, err := r.Get(ctx, roomID)
	if err != nil {
		return Room{}, err
	}
	if !room.CanAccess(userID) {
		return Room{}, ErrAccessDenied
	}
	return room, nil
}

func (r *Registry) MarkActive(ctx context.Context, roomID string, active bool) error {
	if err := r.repo.SetActive(ctx, roomID, active, r.clock().UTC()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// PostMessage validates and persists a chat line.
func (r *Registry) PostMessage(ctx context.Context, roomID, senderID, content string) (Message, error) {
	c, err := NormalizeMessage(content)
	if err != nil {
		return Message{}, err
	}
	m := Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   c,
		Timestamp: r.clock().UTC(),
	}
	if err := r.repo.AppendMessage(ctx, m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return m, nil
}

// Messages returns up to limit messages in timestamp order.
func (r *Registry) Messages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	out, err := r.repo.ListMessages(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return out, nil
}

// URL is the frontend page for the room. This service renders no HTML;
// clients open the room's socket at /signal/<room_id>.
func URL(roomID string) string {
	return "/rooms/" + roomID + "/"
}
