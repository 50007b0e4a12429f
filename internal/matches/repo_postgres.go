package matches

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresDirectory reads the account and matching tables:
// - users (id, username)
// - matches (id, user1_id, user2_id, status, created_at)
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory { return &PostgresDirectory{db: db} }

func (d *PostgresDirectory) User(ctx context.Context, userID string) (User, error) {
	const q = `SELECT id, username FROM users WHERE id = $1`
	var u User
	if err := d.db.QueryRowContext(ctx, q, userID).Scan(&u.ID, &u.Username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (d *PostgresDirectory) Match(ctx context.Context, matchID string) (Match, error) {
	const q = `
SELECT id, user1_id, user2_id, status, created_at
FROM matches
WHERE id = $1
`
	var m Match
	if err := d.db.QueryRowContext(ctx, q, matchID).Scan(&m.ID, &m.User1ID, &m.User2ID, &m.Status, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Match{}, ErrMatchNotFound
		}
		return Match{}, err
	}
	return m, nil
}

func (d *PostgresDirectory) HasActiveMatch(ctx context.Context, userID string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM matches
  WHERE status = 'active' AND (user1_id = $1 OR user2_id = $1)
)
`
	var ok bool
	if err := d.db.QueryRowContext(ctx, q, userID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
