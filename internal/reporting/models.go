package reporting

import (
	"time"

	"langswap/internal/invitations"
)

// TimeRange filters by session start. A zero bound is open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// CallStatsRequest requests aggregated call metrics for one room.
type CallStatsRequest struct {
	RoomID string    `json:"room_id"`
	Range  TimeRange `json:"range"`
}

type CallStats struct {
	RoomID string `json:"room_id"`

	TotalCalls  int `json:"total_calls"`
	EndedCalls  int `json:"ended_calls"`
	FailedCalls int `json:"failed_calls"`
	ActiveCalls int `json:"active_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	TotalNetworkIssues int `json:"total_network_issues"`
	// QualityBreakdown counts ended calls by reported connection quality.
	QualityBreakdown map[string]int `json:"quality_breakdown"`

	LastCallAt *time.Time `json:"last_call_at"`
}

// InvitationStats is the table-wide status breakdown printed after a sweep.
type InvitationStats struct {
	Total    int                        `json:"total"`
	Pending  int                        `json:"pending"`
	ByStatus map[invitations.Status]int `json:"by_status"`
}
