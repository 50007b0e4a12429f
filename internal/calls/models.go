package calls

import (
	"sort"
	"time"
)

// CallSession tracks one video call inside a room.
//
// Invariants:
// - Participants only grows while the session lives
// - at most one active session per room; enforced by Manager, not the store,
//   so two concurrent starts can still race (best-effort)
type CallSession struct {
	ID     string        `json:"id" db:"id"`
	RoomID string        `json:"room_id" db:"room_id"`
	Status SessionStatus `json:"status" db:"status"`

	Participants []string `json:"participants"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	// DurationSeconds is set once the session ends.
	DurationSeconds int `json:"duration" db:"duration_seconds"`

	EndReason          string `json:"end_reason,omitempty" db:"end_reason"`
	EndNotes           string `json:"end_notes,omitempty" db:"end_notes"`
	EndedBy            string `json:"ended_by,omitempty" db:"ended_by"`
	ConnectionQuality  string `json:"connection_quality,omitempty" db:"connection_quality"`
	VideoEnabled       bool   `json:"video_enabled" db:"video_enabled"`
	AudioEnabled       bool   `json:"audio_enabled" db:"audio_enabled"`
	NetworkIssuesCount int    `json:"network_issues_count" db:"network_issues_count"`
}

type SessionStatus string

const (
	SessionStatusStarting SessionStatus = "starting"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusEnded    SessionStatus = "ended"
	SessionStatusFailed   SessionStatus = "failed"
)

// DefaultEndReason is recorded when a call_end carries no reason.
const DefaultEndReason = "normal"

// HasParticipant reports whether userID already joined the session.
func (s CallSession) HasParticipant(userID string) bool {
	for _, p := range s.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// addParticipants returns true if the set changed. The set is kept sorted.
func (s *CallSession) addParticipants(userIDs ...string) bool {
	changed := false
	for _, id := range userIDs {
		if id == "" || s.HasParticipant(id) {
			continue
		}
		s.Participants = append(s.Participants, id)
		changed = true
	}
	if changed {
		sort.Strings(s.Participants)
	}
	return changed
}

// Summary is the shape sent in call_ended_enhanced and served by the call
// summary endpoint.
type Summary struct {
	SessionID          string     `json:"session_id"`
	RoomID             string     `json:"room_id"`
	Status             string     `json:"status"`
	Participants       []string   `json:"participants"`
	StartedAt          time.Time  `json:"started_at"`
	EndedAt            *time.Time `json:"ended_at"`
	DurationSeconds    int        `json:"duration_seconds"`
	EndReason          string     `json:"end_reason"`
	EndNotes           string     `json:"end_notes"`
	EndedBy            string     `json:"ended_by"`
	ConnectionQuality  string     `json:"connection_quality"`
	VideoEnabled       bool       `json:"video_enabled"`
	AudioEnabled       bool       `json:"audio_enabled"`
	NetworkIssuesCount int        `json:"network_issues_count"`
}

func (s CallSession) Summary() Summary {
	participants := make([]string, len(s.Participants))
	copy(participants, s.Participants)
	return Summary{
		SessionID:          s.ID,
		RoomID:             s.RoomID,
		Status:             string(s.Status),
		Participants:       participants,
		StartedAt:          s.StartedAt,
		EndedAt:            s.EndedAt,
		DurationSeconds:    s.DurationSeconds,
		EndReason:          s.EndReason,
		EndNotes:           s.EndNotes,
		EndedBy:            s.EndedBy,
		ConnectionQuality:  s.ConnectionQuality,
		VideoEnabled:       s.VideoEnabled,
		AudioEnabled:       s.AudioEnabled,
		NetworkIssuesCount: s.NetworkIssuesCount,
	}
}

// SummaryURL is the redirect target handed to clients after a call ends.
func SummaryURL(roomID, sessionID string) string {
	return "/v1/rooms/" + roomID + "/sessions/" + sessionID
}
