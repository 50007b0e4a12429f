package reporting

import (
	"context"

	"langswap/internal/calls"
	"langswap/internal/invitations"
)

// maxSessions caps how far back room statistics look.
const maxSessions = 1000

type sessionLister interface {
	ListByRoom(ctx context.Context, roomID string, limit int) ([]calls.CallSession, error)
}

type invitationCounter interface {
	CountByStatus(ctx context.Context) (map[invitations.Status]int, error)
}

// SourceRepo reads straight from the call and invitation stores. Both the
// memory and Postgres repositories satisfy its inputs.
type SourceRepo struct {
	sessions    sessionLister
	invitations invitationCounter
}

func NewSourceRepo(s sessionLister, i invitationCounter) *SourceRepo {
	return &SourceRepo{sessions: s, invitations: i}
}

func (r *SourceRepo) ListSessions(ctx context.Context, roomID string) ([]calls.CallSession, error) {
	return r.sessions.ListByRoom(ctx, roomID, maxSessions)
}

func (r *SourceRepo) CountInvitations(ctx context.Context) (map[invitations.Status]int, error) {
	return r.invitations.CountByStatus(ctx)
}
