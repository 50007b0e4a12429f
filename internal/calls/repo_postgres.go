package calls

import (
	"context"
	"database/sql"
	"errors"

	"langswap/pkg/utils"
)

// NOTE: This repository assumes the tables from migrations/0001_signaling.sql:
// - call_sessions (id PK, room_id FK rooms)
// - call_session_participants (session_id, user_id) PK, insert-only

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const sessionColumns = `id, room_id, status, started_at, ended_at, duration_seconds, end_reason, end_notes,
ended_by, connection_quality, video_enabled, audio_enabled, network_issues_count`

func scanSession(row interface{ Scan(...any) error }) (CallSession, error) {
	var (
		s       CallSession
		status  string
		endedAt sql.NullTime
		endedBy sql.NullString
	)
	err := row.Scan(
		&s.ID,
		&s.RoomID,
		&status,
		&s.StartedAt,
		&endedAt,
		&s.DurationSeconds,
		&s.EndReason,
		&s.EndNotes,
		&endedBy,
		&s.ConnectionQuality,
		&s.VideoEnabled,
		&s.AudioEnabled,
		&s.NetworkIssuesCount,
	)
	if err != nil {
		return CallSession{}, err
	}
	s.Status = SessionStatus(status)
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	s.EndedBy = endedBy.String
	return s, nil
}

func (p *PostgresRepo) Create(ctx context.Context, s CallSession) error {
	return utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO call_sessions (` + sessionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`
		if _, err := tx.ExecContext(ctx, q, sessionArgs(s)...); err != nil {
			return err
		}
		return insertParticipants(ctx, tx, s)
	})
}

func (p *PostgresRepo) Update(ctx context.Context, s CallSession) error {
	return utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE call_sessions SET
  status = $3, started_at = $4, ended_at = $5, duration_seconds = $6, end_reason = $7, end_notes = $8,
  ended_by = $9, connection_quality = $10, video_enabled = $11, audio_enabled = $12, network_issues_count = $13
WHERE id = $1 AND room_id = $2
`
		res, err := tx.ExecContext(ctx, q, sessionArgs(s)...)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return insertParticipants(ctx, tx, s)
	})
}

func (p *PostgresRepo) Get(ctx context.Context, sessionID string) (CallSession, bool, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE id = $1`
	s, err := scanSession(p.db.QueryRowContext(ctx, q, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, false, nil
		}
		return CallSession{}, false, err
	}
	if err := p.loadParticipants(ctx, []*CallSession{&s}); err != nil {
		return CallSession{}, false, err
	}
	return s, true, nil
}

func (p *PostgresRepo) ActiveByRoom(ctx context.Context, roomID string) ([]CallSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE room_id = $1 AND status = 'active' ORDER BY started_at DESC`
	return p.list(ctx, q, roomID)
}

func (p *PostgresRepo) ListByRoom(ctx context.Context, roomID string, limit int) ([]CallSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE room_id = $1 ORDER BY started_at DESC LIMIT $2`
	return p.list(ctx, q, roomID, limit)
}

func (p *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]CallSession, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*CallSession, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	return out, p.loadParticipants(ctx, ptrs)
}

func (p *PostgresRepo) loadParticipants(ctx context.Context, sessions []*CallSession) error {
	const q = `SELECT user_id FROM call_session_participants WHERE session_id = $1 ORDER BY user_id`
	for _, s := range sessions {
		rows, err := p.db.QueryContext(ctx, q, s.ID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			s.Participants = append(s.Participants, id)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func insertParticipants(ctx context.Context, tx *sql.Tx, s CallSession) error {
	const q = `
INSERT INTO call_session_participants (session_id, user_id)
VALUES ($1,$2)
ON CONFLICT (session_id, user_id) DO NOTHING
`
	for _, uid := range s.Participants {
		if _, err := tx.ExecContext(ctx, q, s.ID, uid); err != nil {
			return err
		}
	}
	return nil
}

func sessionArgs(s CallSession) []any {
	var endedAt any
	if s.EndedAt != nil {
		endedAt = *s.EndedAt
	}
	var endedBy any
	if s.EndedBy != "" {
		endedBy = s.EndedBy
	}
	return []any{
		s.ID,
		s.RoomID,
		string(s.Status),
		s.StartedAt,
		endedAt,
		s.DurationSeconds,
		s.EndReason,
		s.EndNotes,
		endedBy,
		s.ConnectionQuality,
		s.VideoEnabled,
		s.AudioEnabled,
		s.NetworkIssuesCount,
	}
}
