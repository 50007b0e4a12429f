package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"langswap/internal/calls"
	"langswap/internal/invitations"
)

var (
	ErrInvalidRequest = errors.New("reporting: invalid request")
	ErrStorage        = errors.New("reporting: storage failure")
)

// Repository abstracts data access for reporting.
type Repository interface {
	ListSessions(ctx context.Context, roomID string) ([]calls.CallSession, error)
	CountInvitations(ctx context.Context) (map[invitations.Status]int, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallStats(ctx context.Context, req CallStatsRequest) (CallStats, error) {
	if req.RoomID == "" {
		return CallStats{}, ErrInvalidRequest
	}
	if !req.Range.From.IsZero() && !req.Range.To.IsZero() && !req.Range.To.After(req.Range.From) {
		return CallStats{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallStats{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListSessions(ctx, req.RoomID)
	if err != nil {
		return CallStats{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	out := CallStats{RoomID: req.RoomID, QualityBreakdown: map[string]int{}}
	var last time.Time
	for _, c := range rows {
		if !req.Range.contains(c.StartedAt) {
			continue
		}
		out.TotalCalls++
		if c.StartedAt.After(last) {
			last = c.StartedAt
		}
		switch c.Status {
		case calls.SessionStatusEnded:
			out.EndedCalls++
			out.TotalDurationSeconds += c.DurationSeconds
			out.TotalNetworkIssues += c.NetworkIssuesCount
			q := c.ConnectionQuality
			if q == "" {
				q = "unknown"
			}
			out.QualityBreakdown[q]++
		case calls.SessionStatusFailed:
			out.FailedCalls++
		case calls.SessionStatusActive, calls.SessionStatusStarting:
			out.ActiveCalls++
		}
	}
	if out.EndedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.EndedCalls
	}
	if !last.IsZero() {
		out.LastCallAt = &last
	}
	return out, nil
}

func (s *Service) InvitationStats(ctx context.Context) (InvitationStats, error) {
	if s.repo == nil {
		return InvitationStats{}, errors.New("reporting: repository not configured")
	}
	counts, err := s.repo.CountInvitations(ctx)
	if err != nil {
		return InvitationStats{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	out := InvitationStats{ByStatus: map[invitations.Status]int{}}
	for st, n := range counts {
		if n == 0 {
			continue
		}
		out.ByStatus[st] = n
		out.Total += n
	}
	out.Pending = out.ByStatus[invitations.StatusPending]
	return out, nil
}
