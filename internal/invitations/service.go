package invitations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"langswap/internal/matches"
	"langswap/internal/presence"
	"langswap/internal/rooms"

	"github.com/google/uuid"
)

// Repository persists invitations.
type Repository interface {
	Create(ctx context.Context, inv Invitation) error
	Get(ctx context.Context, id string) (Invitation, bool, error)
	// PendingFrom lists pending rows sent by callerID in roomID, expired or not.
	PendingFrom(ctx context.Context, roomID, callerID string) ([]Invitation, error)
	// PendingFor lists pending rows addressed to receiverID, oldest first.
	PendingFor(ctx context.Context, receiverID string) ([]Invitation, error)
	// Transition moves a pending row to status `to`. It returns ErrInvalidState
	// and leaves the row untouched when the row is no longer pending.
	Transition(ctx context.Context, id string, to Status, respondedAt *time.Time) (Invitation, error)
	OverduePending(ctx context.Context, now time.Time) ([]Invitation, error)
	TerminalBefore(ctx context.Context, cutoff time.Time) ([]Invitation, error)
	Delete(ctx context.Context, ids []string) (int, error)
}

// RoomProvider get-or-creates the room of a match.
type RoomProvider interface {
	GetOrCreateRoom(ctx context.Context, m matches.Match) (rooms.Room, bool, error)
}

type PresenceReader interface {
	Get(ctx context.Context, userID string) (presence.Presence, error)
}

type SendRequest struct {
	MatchID  string
	CallerID string
	Message  string
}

// Manager runs the invitation lifecycle and publishes its events.
type Manager struct {
	repo     Repository
	dir      matches.Directory
	rooms    RoomProvider
	presence PresenceReader
	notify   Notifier
	log      *slog.Logger
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewManager(repo Repository, dir matches.Directory, rp RoomProvider, pr PresenceReader, n Notifier, log *slog.Logger) *Manager {
	if n == nil {
		n = NopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		repo:     repo,
		dir:      dir,
		rooms:    rp,
		presence: pr,
		notify:   n,
		log:      log.With("component", "invitations"),
		clock:    time.Now,
	}
}

// Send invites the caller's match partner to a call.
func (m *Manager) Send(ctx context.Context, req SendRequest) (Invitation, error) {
	if req.MatchID == "" || req.CallerID == "" {
		return Invitation{}, ErrInvalidArgument
	}
	match, err := m.dir.Match(ctx, req.MatchID)
	if err != nil {
		if errors.Is(err, matches.ErrMatchNotFound) {
			return Invitation{}, ErrNotFound
		}
		return Invitation{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !match.IsMemberOf(req.CallerID) {
		return Invitation{}, ErrAccessDenied
	}
	receiverID := match.PartnerOf(req.CallerID)

	p, err := m.presence.Get(ctx, receiverID)
	if err != nil {
		return Invitation{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !p.IsOnline {
		return Invitation{}, &PartnerOfflineError{LastSeen: p.LastSeen}
	}

	room, _, err := m.rooms.GetOrCreateRoom(ctx, match)
	if err != nil {
		return Invitation{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	now := m.clock().UTC()
	existing, err := m.repo.PendingFrom(ctx, room.RoomID, req.CallerID)
	if err != nil {
		return Invitation{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	for _, inv := range existing {
		if inv.ReceiverID != receiverID {
			continue
		}
		if inv.overdue(now) {
			m.expire(ctx, inv)
			continue
		}
		return Invitation{}, ErrDuplicatePending
	}

	inv := Invitation{
		ID:         uuid.NewString(),
		RoomID:     room.RoomID,
		MatchID:    match.ID,
		CallerID:   req.CallerID,
		ReceiverID: receiverID,
		Status:     StatusPending,
		Message:    strings.TrimSpace(req.Message),
		CreatedAt:  now,
		ExpiresAt:  now.Add(TTL),
	}
	if err := m.repo.Create(ctx, inv); err != nil {
		return Invitation{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	m.log.Info("invitation sent", "invitation_id", inv.ID, "room_id", inv.RoomID, "caller_id", inv.CallerID, "receiver_id", inv.ReceiverID)

	m.notify.InvitationReceived(ctx, receiverID, Received{
		InvitationID:   inv.ID,
		CallerUsername: matches.Username(ctx, m.dir, req.CallerID),
		CallerID:       req.CallerID,
		Message:        inv.Message,
		MatchID:        match.ID,
		ExpiresAt:      inv.ExpiresAt.Format(time.RFC3339),
		RoomURL:        rooms.URL(room.RoomID),
	})
	return inv, nil
}

// Respond accepts or declines an invitation addressed to receiverID.
// Invitations addressed to someone else read as not found.
func (m *Manager) Respond(ctx context.Context, id, receiverID string, accept bool) (Invitation, error) {
	inv, err := m.load(ctx, id)
	if err != nil {
		return Invitation{}, err
	}
	if inv.ReceiverID != receiverID {
		return Invitation{}, ErrNotFound
	}

	now := m.clock().UTC()
	if inv.overdue(now) {
		m.expire(ctx, inv)
		return Invitation{}, ErrInvalidState
	}
	if !inv.CanAccept(now) {
		return Invitation{}, ErrInvalidState
	}

	to := StatusDeclined
	if accept {
		to = StatusAccepted
	}
	out, err := m.repo.Transition(ctx, id, to, &now)
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			return Invitation{}, ErrInvalidState
		}
		return Invitation{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	m.log.Info("invitation answered", "invitation_id", id, "status", string(to))

	name := matches.Username(ctx, m.dir, receiverID)
	if accept {
		m.notify.InvitationAccepted(ctx, out.CallerID, Accepted{
			InvitationID:     out.ID,
			AccepterUsername: name,
			AccepterID:       receiverID,
			RoomURL:          rooms.URL(out.RoomID),
		})
	} else {
		m.notify.InvitationDeclined(ctx, out.CallerID, Declined{
			InvitationID:     out.ID,
			DeclinerUsername: name,
			DeclinerID:       receiverID,
		})
	}
	return out, nil
}

// Cancel withdraws a pending invitation. Only the caller may cancel.
func (m *Manager) Cancel(ctx context.Context, id, callerID string) (Invitation, error) {
	inv, err := m.load(ctx, id)
	if err != nil {
		return Invitation{}, err
	}
	if inv.CallerID != callerID {
		return Invitation{}, ErrNotFound
	}
	if inv.Status != StatusPending {
		return Invitation{}, ErrInvalidState
	}

	now := m.clock().UTC()
	out, err := m.repo.Transition(ctx, id, StatusCancelled, &now)
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			return Invitation{}, ErrInvalidState
		}
		return Invitation{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	m.log.Info("invitation cancelled", "invitation_id", id)

	m.notify.InvitationCancelled(ctx, out.ReceiverID, Cancelled{
		InvitationID:      out.ID,
		CancellerUsername: matches.Username(ctx, m.dir, callerID),
		CancellerID:       callerID,
	})
	return out, nil
}

// Pending returns the live invitations addressed to receiverID. Overdue rows
// are persisted as expired on the way.
func (m *Manager) Pending(ctx context.Context, receiverID string) ([]Invitation, error) {
	rows, err := m.repo.PendingFor(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	now := m.clock().UTC()
	out := make([]Invitation, 0, len(rows))
	for _, inv := range rows {
		if inv.overdue(now) {
			m.expire(ctx, inv)
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

// Status is the caller-side poll of a sent invitation.
func (m *Manager) Status(ctx context.Context, id, callerID string) (StatusView, error) {
	inv, err := m.load(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	if inv.CallerID != callerID {
		return StatusView{}, ErrNotFound
	}
	now := m.clock().UTC()
	if inv.overdue(now) {
		m.expire(ctx, inv)
		inv.Status = StatusExpired
	}
	return StatusView{Status: inv.Status, RespondedAt: inv.RespondedAt, IsExpired: inv.IsExpired(now)}, nil
}

type SweepResult struct {
	Expired []Invitation
	Deleted []Invitation
}

// SweepExpired marks overdue pending invitations expired and deletes
// terminal invitations created more than olderThan ago. With dryRun nothing
// is written; the result lists what would change.
func (m *Manager) SweepExpired(ctx context.Context, olderThan time.Duration, dryRun bool) (SweepResult, error) {
	if olderThan < 0 {
		return SweepResult{}, ErrInvalidArgument
	}
	now := m.clock().UTC()
	old, err := m.repo.TerminalBefore(ctx, now.Add(-olderThan))
	if err != nil {
		return SweepResult{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	overdue, err := m.repo.OverduePending(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	res := SweepResult{Expired: overdue, Deleted: old}
	if dryRun {
		return res, nil
	}

	for _, inv := range overdue {
		if _, err := m.repo.Transition(ctx, inv.ID, StatusExpired, nil); err != nil && !errors.Is(err, ErrInvalidState) {
			return SweepResult{}, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}
	ids := make([]string, 0, len(old))
	for _, inv := range old {
		ids = append(ids, inv.ID)
	}
	if len(ids) > 0 {
		if _, err := m.repo.Delete(ctx, ids); err != nil {
			return SweepResult{}, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}
	m.log.Info("invitation sweep", "expired", len(overdue), "deleted", len(ids))
	return res, nil
}

func (m *Manager) load(ctx context.Context, id string) (Invitation, error) {
	if id == "" {
		return Invitation{}, ErrInvalidArgument
	}
	inv, ok, err := m.repo.Get(ctx, id)
	if err != nil {
		return Invitation{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !ok {
		return Invitation{}, ErrNotFound
	}
	return inv, nil
}

// expire persists the lazy expiry. A lost race with another writer is fine.
func (m *Manager) expire(ctx context.Context, inv Invitation) {
	if _, err := m.repo.Transition(ctx, inv.ID, StatusExpired, nil); err != nil && !errors.Is(err, ErrInvalidState) {
		m.log.Warn("persist invitation expiry failed", "invitation_id", inv.ID, "err", err)
	}
}
