package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"langswap/internal/calls"
	"langswap/internal/invitations"
)

func seedSessions(t *testing.T, repo *calls.MemoryRepo, now time.Time) {
	t.Helper()
	ended := func(id string, start time.Time, dur int, quality string, issues int) calls.CallSession {
		end := start.Add(time.Duration(dur) * time.Second)
		return calls.CallSession{
			ID: id, RoomID: "r1", Status: calls.SessionStatusEnded, StartedAt: start, EndedAt: &end,
			DurationSeconds: dur, ConnectionQuality: quality, NetworkIssuesCount: issues,
		}
	}
	rows := []calls.CallSession{
		ended("s1", now.Add(-3*time.Hour), 60, "good", 0),
		ended("s2", now.Add(-2*time.Hour), 120, "poor", 4),
		ended("s3", now.Add(-time.Hour), 30, "", 1),
		{ID: "s4", RoomID: "r1", Status: calls.SessionStatusFailed, StartedAt: now.Add(-30 * time.Minute)},
		{ID: "s5", RoomID: "r1", Status: calls.SessionStatusActive, StartedAt: now.Add(-time.Minute)},
		ended("other", now.Add(-time.Hour), 999, "good", 9),
	}
	rows[5].RoomID = "r2"
	for _, s := range rows {
		if err := repo.Create(context.Background(), s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestCallStats_AggregatesOneRoom(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	sessions := calls.NewMemoryRepo()
	seedSessions(t, sessions, now)
	svc := NewService(NewSourceRepo(sessions, invitations.NewMemoryRepo()))

	out, err := svc.CallStats(context.Background(), CallStatsRequest{RoomID: "r1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 5 || out.EndedCalls != 3 || out.FailedCalls != 1 || out.ActiveCalls != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.TotalDurationSeconds != 210 || out.AverageDurationSeconds != 70 {
		t.Fatalf("unexpected durations: total=%d avg=%d", out.TotalDurationSeconds, out.AverageDurationSeconds)
	}
	if out.TotalNetworkIssues != 5 {
		t.Fatalf("expected 5 network issues, got %d", out.TotalNetworkIssues)
	}
	if out.QualityBreakdown["good"] != 1 || out.QualityBreakdown["poor"] != 1 || out.QualityBreakdown["unknown"] != 1 {
		t.Fatalf("unexpected quality breakdown: %v", out.QualityBreakdown)
	}
	if out.LastCallAt == nil || !out.LastCallAt.Equal(now.Add(-time.Minute)) {
		t.Fatalf("unexpected last call: %v", out.LastCallAt)
	}
}

func TestCallStats_RangeFilter(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	sessions := calls.NewMemoryRepo()
	seedSessions(t, sessions, now)
	svc := NewService(NewSourceRepo(sessions, invitations.NewMemoryRepo()))

	out, err := svc.CallStats(context.Background(), CallStatsRequest{
		RoomID: "r1",
		Range:  TimeRange{From: now.Add(-150 * time.Minute), To: now.Add(-45 * time.Minute)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 2 || out.EndedCalls != 2 {
		t.Fatalf("expected s2 and s3 only, got %+v", out)
	}
}

func TestCallStats_EmptyRoom(t *testing.T) {
	svc := NewService(NewSourceRepo(calls.NewMemoryRepo(), invitations.NewMemoryRepo()))
	out, err := svc.CallStats(context.Background(), CallStatsRequest{RoomID: "nobody"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 0 || out.AverageDurationSeconds != 0 || out.LastCallAt != nil {
		t.Fatalf("expected zero stats, got %+v", out)
	}
}

func TestCallStats_InvalidRequest(t *testing.T) {
	svc := NewService(NewSourceRepo(calls.NewMemoryRepo(), invitations.NewMemoryRepo()))
	now := time.Now()
	cases := []CallStatsRequest{
		{},
		{RoomID: "r1", Range: TimeRange{From: now, To: now.Add(-time.Hour)}},
	}
	for _, req := range cases {
		if _, err := svc.CallStats(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}

func TestInvitationStats(t *testing.T) {
	repo := invitations.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	for i, st := range []invitations.Status{
		invitations.StatusPending, invitations.StatusPending, invitations.StatusAccepted, invitations.StatusExpired,
	} {
		inv := invitations.Invitation{ID: string(rune('a' + i)), Status: st, CreatedAt: now, ExpiresAt: now.Add(invitations.TTL)}
		if err := repo.Create(context.Background(), inv); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	svc := NewService(NewSourceRepo(calls.NewMemoryRepo(), repo))

	out, err := svc.InvitationStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Total != 4 || out.Pending != 2 {
		t.Fatalf("unexpected totals: %+v", out)
	}
	if out.ByStatus[invitations.StatusAccepted] != 1 || out.ByStatus[invitations.StatusExpired] != 1 {
		t.Fatalf("unexpected breakdown: %v", out.ByStatus)
	}
	if _, ok := out.ByStatus[invitations.StatusDeclined]; ok {
		t.Fatalf("zero statuses should be omitted")
	}
}
