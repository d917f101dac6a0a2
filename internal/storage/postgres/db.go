package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/domain/accounts"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ storage.Repository = (*Repository)(nil)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Repository implements storage.Repository with a PostgreSQL backend.
type Repository struct {
	pool *pgxpool.Pool

	accounts      *AccountRepository
	events        *EventRepository
	registrations *RegistrationRepository
}

// NewPool opens a connection pool capped at maxConns and verifies connectivity.
func NewPool(ctx context.Context, databaseURL string, maxConns int) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	return &Repository{
		pool:          pool,
		accounts:      &AccountRepository{pool: pool},
		events:        &EventRepository{pool: pool},
		registrations: &RegistrationRepository{pool: pool},
	}, nil
}

func (r *Repository) Accounts() accounts.Repository {
	return r.accounts
}

func (r *Repository) Events() events.Repository {
	return r.events
}

func (r *Repository) Registrations() registrations.Repository {
	return r.registrations
}

// RegistrationStore exposes the concrete registration repository so the job
// client can be attached and confirmation details looked up.
func (r *Repository) RegistrationStore() *RegistrationRepository {
	return r.registrations
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type queryer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func isUniqueViolation(err error) bool {
	return hasCode(err, uniqueViolation)
}

func isForeignKeyViolation(err error) bool {
	return hasCode(err, foreignKeyViolation)
}
