package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"langswap/internal/rooms"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("calls: session not found")
	ErrNoActiveSession = errors.New("calls: no active session")
	ErrInvalidArgument = errors.New("calls: invalid argument")
	ErrStorage         = errors.New("calls: storage failure")
)

// Repository persists call sessions and their participant sets.
type Repository interface {
	Create(ctx context.Context, s CallSession) error
	// Update rewrites the session row. Participants are merged, never removed.
	Update(ctx context.Context, s CallSession) error
	Get(ctx context.Context, sessionID string) (CallSession, bool, error)
	// ActiveByRoom returns active sessions, most recently started first.
	ActiveByRoom(ctx context.Context, roomID string) ([]CallSession, error)
	ListByRoom(ctx context.Context, roomID string, limit int) ([]CallSession, error)
}

// RoomStore is the slice of the room registry the manager needs.
type RoomStore interface {
	Get(ctx context.Context, roomID string) (rooms.Room, error)
	MarkActive(ctx context.Context, roomID string, active bool) error
}

type EndRequest struct {
	RoomID            string
	EndedBy           string
	EndReason         string
	EndNotes          string
	ConnectionQuality string
	NetworkIssues     int
}

// Manager owns the CallSession lifecycle for rooms.
type Manager struct {
	repo  Repository
	rooms RoomStore
	log   *slog.Logger
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewManager(repo Repository, rs RoomStore, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{repo: repo, rooms: rs, log: log.With("component", "calls"), clock: time.Now}
}

// StartCall reuses the room's active session, adding userID to it, or
// creates a new active one. The room is marked active either way.
func (m *Manager) StartCall(ctx context.Context, roomID, userID string, video, audio bool) (CallSession, bool, error) {
	if roomID == "" || userID == "" {
		return CallSession{}, false, ErrInvalidArgument
	}
	s, created, err := m.getOrCreate(ctx, roomID, userID, video, audio)
	if err != nil {
		return CallSession{}, false, err
	}
	if err := m.rooms.MarkActive(ctx, roomID, true); err != nil {
		// the session exists either way; room activity is advisory
		m.log.Warn("mark room active failed", "room_id", roomID, "err", err)
	}
	return s, created, nil
}

// EnsureSession is StartCall with media defaults, used on offer and
// peer_ready.
func (m *Manager) EnsureSession(ctx context.Context, roomID, userID string) (CallSession, bool, error) {
	return m.StartCall(ctx, roomID, userID, true, true)
}

// AddParticipant adds userID to the active session if there is one.
func (m *Manager) AddParticipant(ctx context.Context, roomID, userID string) error {
	active, err := m.active(ctx, roomID)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return nil
	}
	s := active[0]
	if !s.addParticipants(userID) {
		return nil
	}
	if err := m.repo.Update(ctx, s); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (m *Manager) getOrCreate(ctx context.Context, roomID, userID string, video, audio bool) (CallSession, bool, error) {
	active, err := m.active(ctx, roomID)
	if err != nil {
		return CallSession{}, false, err
	}
	if len(active) > 0 {
		s := active[0]
		if s.addParticipants(userID) {
			if err := m.repo.Update(ctx, s); err != nil {
				return CallSession{}, false, fmt.Errorf("%w: %v", ErrStorage, err)
			}
		}
		return s, false, nil
	}

	s := CallSession{
		ID:           uuid.NewString(),
		RoomID:       roomID,
		Status:       SessionStatusActive,
		Participants: []string{userID},
		StartedAt:    m.clock().UTC(),
		VideoEnabled: video,
		AudioEnabled: audio,
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return CallSession{}, false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	m.log.Info("call session started", "room_id", roomID, "session_id", s.ID, "user_id", userID)
	return s, true, nil
}

// EndCall ends every active session in the room and returns the canonical
// one, the most recently started. Both room members are recorded as
// participants. A room admitted without a row (bootstrap access) still has
// its sessions ended; only the member list and activity flag are skipped.
func (m *Manager) EndCall(ctx context.Context, req EndRequest) (CallSession, error) {
	if req.RoomID == "" {
		return CallSession{}, ErrInvalidArgument
	}
	room, err := m.rooms.Get(ctx, req.RoomID)
	hasRow := err == nil
	if err != nil && !errors.Is(err, rooms.ErrNotFound) {
		return CallSession{}, err
	}
	active, err := m.active(ctx, req.RoomID)
	if err != nil {
		return CallSession{}, err
	}
	reason := req.EndReason
	if reason == "" {
		reason = DefaultEndReason
	}

	now := m.clock().UTC()
	ended := make([]CallSession, 0, len(active))
	for _, s := range active {
		endedAt := now
		s.Status = SessionStatusEnded
		s.EndedAt = &endedAt
		s.DurationSeconds = int(now.Sub(s.StartedAt).Seconds())
		if s.DurationSeconds < 0 {
			s.DurationSeconds = 0
		}
		s.EndReason = reason
		s.EndNotes = req.EndNotes
		s.EndedBy = req.EndedBy
		s.ConnectionQuality = req.ConnectionQuality
		s.NetworkIssuesCount = req.NetworkIssues
		s.addParticipants(room.Members()...)
		s.addParticipants(req.EndedBy)
		if err := m.repo.Update(ctx, s); err != nil {
			return CallSession{}, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		ended = append(ended, s)
	}

	if hasRow {
		if err := m.rooms.MarkActive(ctx, req.RoomID, false); err != nil {
			m.log.Warn("mark room inactive failed", "room_id", req.RoomID, "err", err)
		}
	}
	if len(ended) == 0 {
		return CallSession{}, ErrNoActiveSession
	}
	if len(ended) > 1 {
		m.log.Warn("ended overlapping call sessions", "room_id", req.RoomID, "count", len(ended))
	}
	m.log.Info("call session ended", "room_id", req.RoomID, "session_id", ended[0].ID, "duration", ended[0].DurationSeconds)
	return ended[0], nil
}

// Get returns a session, checking it belongs to roomID.
func (m *Manager) Get(ctx context.Context, roomID, sessionID string) (CallSession, error) {
	s, ok, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return CallSession{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !ok || s.RoomID != roomID {
		return CallSession{}, ErrNotFound
	}
	return s, nil
}

// History lists the room's sessions, newest first.
func (m *Manager) History(ctx context.Context, roomID string, limit int) ([]CallSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out, err := m.repo.ListByRoom(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return out, nil
}

// HasActive reports whether the room currently has an active session.
func (m *Manager) HasActive(ctx context.Context, roomID string) (bool, error) {
	active, err := m.active(ctx, roomID)
	if err != nil {
		return false, err
	}
	return len(active) > 0, nil
}

func (m *Manager) active(ctx context.Context, roomID string) ([]CallSession, error) {
	out, err := m.repo.ActiveByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}
