package rooms

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"langswap/pkg/utils"
)

// NOTE: This repository assumes the tables from migrations/0001_signaling.sql:
// - rooms (room_id PK, match_id UNIQUE)
// - room_messages (append-only, FK room_id)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const roomColumns = `room_id, match_id, user1_id, user2_id, is_active, created_at, last_activity`

func scanRoom(row interface{ Scan(...any) error }) (Room, error) {
	var r Room
	err := row.Scan(&r.RoomID, &r.MatchID, &r.User1ID, &r.User2ID, &r.IsActive, &r.CreatedAt, &r.LastActivity)
	return r, err
}

func (p *PostgresRepo) RoomByID(ctx context.Context, roomID string) (Room, bool, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE room_id = $1`
	r, err := scanRoom(p.db.QueryRowContext(ctx, q, roomID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, false, nil
		}
		return Room{}, false, err
	}
	return r, true, nil
}

func (p *PostgresRepo) RoomByMatch(ctx context.Context, matchID string) (Room, bool, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE match_id = $1`
	r, err := scanRoom(p.db.QueryRowContext(ctx, q, matchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, false, nil
		}
		return Room{}, false, err
	}
	return r, true, nil
}

func (p *PostgresRepo) CreateRoom(ctx context.Context, room Room) (Room, bool, error) {
	// ON CONFLICT DO NOTHING returns no row when another request created the
	// match's room first; fall back to reading it.
	q := `
INSERT INTO rooms (` + roomColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (match_id) DO NOTHING
RETURNING ` + roomColumns
	out, err := scanRoom(p.db.QueryRowContext(ctx, q,
		room.RoomID,
		room.MatchID,
		room.User1ID,
		room.User2ID,
		room.IsActive,
		room.CreatedAt,
		room.LastActivity,
	))
	switch {
	case err == nil:
		return out, true, nil
	case errors.Is(err, sql.ErrNoRows), utils.IsUniqueViolation(err):
		existing, ok, err := p.RoomByMatch(ctx, room.MatchID)
		if err != nil {
			return Room{}, false, err
		}
		if !ok {
			return Room{}, false, ErrNotFound
		}
		return existing, false, nil
	default:
		return Room{}, false, err
	}
}

func (p *PostgresRepo) SetActive(ctx context.Context, roomID string, active bool, at time.Time) error {
	const q = `UPDATE rooms SET is_active = $2, last_activity = $3 WHERE room_id = $1`
	res, err := p.db.ExecContext(ctx, q, roomID, active, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresRepo) AppendMessage(ctx context.Context, m Message) error {
	const q = `
INSERT INTO room_messages (id, room_id, sender_id, content, timestamp)
VALUES ($1,$2,$3,$4,$5)
`
	_, err := p.db.ExecContext(ctx, q, m.ID, m.RoomID, m.SenderID, m.Content, m.Timestamp)
	return err
}

func (p *PostgresRepo) ListMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	// newest N, returned oldest first
	const q = `
SELECT id, room_id, sender_id, content, timestamp FROM (
  SELECT id, room_id, sender_id, content, timestamp
  FROM room_messages
  WHERE room_id = $1
  ORDER BY timestamp DESC
  LIMIT $2
) recent
ORDER BY timestamp ASC
`
	rows, err := p.db.QueryContext(ctx, q, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
