package invitations

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"langswap/pkg/utils"
)

// NOTE: This repository assumes the call_invitations table from
// migrations/0001_signaling.sql.
//
// Transition locks the row (SELECT ... FOR UPDATE) so two concurrent accepts
// cannot both see it pending.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const invitationColumns = `id, room_id, match_id, caller_id, receiver_id, status, message, created_at, responded_at, expires_at`

func scanInvitation(row interface{ Scan(...any) error }) (Invitation, error) {
	var (
		inv         Invitation
		status      string
		respondedAt sql.NullTime
	)
	err := row.Scan(
		&inv.ID,
		&inv.RoomID,
		&inv.MatchID,
		&inv.CallerID,
		&inv.ReceiverID,
		&status,
		&inv.Message,
		&inv.CreatedAt,
		&respondedAt,
		&inv.ExpiresAt,
	)
	if err != nil {
		return Invitation{}, err
	}
	inv.Status = Status(status)
	if respondedAt.Valid {
		t := respondedAt.Time
		inv.RespondedAt = &t
	}
	return inv, nil
}

func (p *PostgresRepo) Create(ctx context.Context, inv Invitation) error {
	const q = `
INSERT INTO call_invitations (` + invitationColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	var respondedAt any
	if inv.RespondedAt != nil {
		respondedAt = *inv.RespondedAt
	}
	_, err := p.db.ExecContext(ctx, q,
		inv.ID,
		inv.RoomID,
		inv.MatchID,
		inv.CallerID,
		inv.ReceiverID,
		string(inv.Status),
		inv.Message,
		inv.CreatedAt,
		respondedAt,
		inv.ExpiresAt,
	)
	return err
}

func (p *PostgresRepo) Get(ctx context.Context, id string) (Invitation, bool, error) {
	q := `SELECT ` + invitationColumns + ` FROM call_invitations WHERE id = $1`
	inv, err := scanInvitation(p.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Invitation{}, false, nil
		}
		return Invitation{}, false, err
	}
	return inv, true, nil
}

func (p *PostgresRepo) PendingFrom(ctx context.Context, roomID, callerID string) ([]Invitation, error) {
	q := `SELECT ` + invitationColumns + ` FROM call_invitations
WHERE room_id = $1 AND caller_id = $2 AND status = 'pending'
ORDER BY created_at ASC`
	return p.list(ctx, q, roomID, callerID)
}

func (p *PostgresRepo) PendingFor(ctx context.Context, receiverID string) ([]Invitation, error) {
	q := `SELECT ` + invitationColumns + ` FROM call_invitations
WHERE receiver_id = $1 AND status = 'pending'
ORDER BY created_at ASC`
	return p.list(ctx, q, receiverID)
}

func (p *PostgresRepo) Transition(ctx context.Context, id string, to Status, respondedAt *time.Time) (Invitation, error) {
	var out Invitation
	err := utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		q := `SELECT ` + invitationColumns + ` FROM call_invitations WHERE id = $1 FOR UPDATE`
		inv, err := scanInvitation(tx.QueryRowContext(ctx, q, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if inv.Status != StatusPending {
			return ErrInvalidState
		}

		var at any
		if respondedAt != nil {
			at = *respondedAt
			t := *respondedAt
			inv.RespondedAt = &t
		}
		const upd = `UPDATE call_invitations SET status = $2, responded_at = COALESCE($3, responded_at) WHERE id = $1`
		if _, err := tx.ExecContext(ctx, upd, id, string(to), at); err != nil {
			return err
		}
		inv.Status = to
		out = inv
		return nil
	})
	if err != nil {
		return Invitation{}, err
	}
	return out, nil
}

func (p *PostgresRepo) OverduePending(ctx context.Context, now time.Time) ([]Invitation, error) {
	q := `SELECT ` + invitationColumns + ` FROM call_invitations
WHERE status = 'pending' AND expires_at < $1
ORDER BY created_at ASC`
	return p.list(ctx, q, now)
}

func (p *PostgresRepo) TerminalBefore(ctx context.Context, cutoff time.Time) ([]Invitation, error) {
	q := `SELECT ` + invitationColumns + ` FROM call_invitations
WHERE status <> 'pending' AND created_at < $1
ORDER BY created_at ASC`
	return p.list(ctx, q, cutoff)
}

func (p *PostgresRepo) Delete(ctx context.Context, ids []string) (int, error) {
	total := 0
	err := utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `DELETE FROM call_invitations WHERE id = $1`
		for _, id := range ids {
			res, err := tx.ExecContext(ctx, q, id)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil {
				total += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (p *PostgresRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT status, count(*) FROM call_invitations GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[Status]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

func (p *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]Invitation, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
