package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/accounts"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ accounts.Repository = (*AccountRepository)(nil)

type AccountRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

const accountColumns = `id, email, name, password_hash, created_at`

func scanAccount(row pgx.Row) (*accounts.Account, error) {
	var a accounts.Account
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, accounts.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepository) Create(ctx context.Context, params accounts.CreateParams) (*accounts.Account, error) {
	row := r.queryer().QueryRow(ctx, `
INSERT INTO accounts (id, email, name, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING `+accountColumns,
		params.ID, params.Email, params.Name, params.PasswordHash,
	)
	account, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, accounts.ErrEmailTaken
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*accounts.Account, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil && !errors.Is(err, accounts.ErrNotFound) {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, err
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	account, err := scanAccount(row)
	if err != nil && !errors.Is(err, accounts.ErrNotFound) {
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return account, err
}

func (r *AccountRepository) EmailTakenByOther(ctx context.Context, email, accountID string) (bool, error) {
	var taken bool
	err := r.queryer().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1 AND id <> $2)`,
		email, accountID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return taken, nil
}

func (r *AccountRepository) UpdateProfile(ctx context.Context, id, name, email string) (*accounts.Account, error) {
	row := r.queryer().QueryRow(ctx, `
UPDATE accounts
   SET name = $2, email = $3
 WHERE id = $1
RETURNING `+accountColumns,
		id, name, email,
	)
	account, err := scanAccount(row)
	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, accounts.ErrNotFound):
		return nil, err
	case isUniqueViolation(err):
		return nil, accounts.ErrEmailTaken
	default:
		return nil, fmt.Errorf("update account: %w", err)
	}
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := r.queryer().Exec(ctx, `UPDATE accounts SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) CountEventsCreated(ctx context.Context, id string) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM events WHERE created_by = $1`, id)
}

func (r *AccountRepository) CountRegistrations(ctx context.Context, id string) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM registrations WHERE account_id = $1`, id)
}

func (r *AccountRepository) CountUpcomingRegistrations(ctx context.Context, id string, now time.Time) (int64, error) {
	return r.count(ctx, `
SELECT COUNT(*)
  FROM registrations r
  JOIN events e ON e.id = r.event_id
 WHERE r.account_id = $1
   AND e.date_time > $2`, id, now)
}

func (r *AccountRepository) count(ctx context.Context, sql string, args ...any) (int64, error) {
	var n int64
	if err := r.queryer().QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *AccountRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}
