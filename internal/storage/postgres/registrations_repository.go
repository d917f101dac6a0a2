package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/jobs"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

var _ registrations.Repository = (*RegistrationRepository)(nil)

// JobInserter is the subset of *river.Client used to enqueue jobs inside a
// registration transaction.
type JobInserter interface {
	InsertTx(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

type RegistrationRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
	jobs JobInserter
}

// SetJobInserter enables confirmation jobs. Without one, EnqueueConfirmation
// is a no-op.
func (r *RegistrationRepository) SetJobInserter(inserter JobInserter) {
	r.jobs = inserter
}

func (r *RegistrationRepository) BeginTx(ctx context.Context) (registrations.Repository, registrations.TxCommitter, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	txRepo := &RegistrationRepository{pool: r.pool, tx: tx, jobs: r.jobs}
	return txRepo, &txCommitter{tx: tx}, nil
}

// LockEvent takes a row lock on the event that is held until the transaction ends.
func (r *RegistrationRepository) LockEvent(ctx context.Context, eventID string) (slot registrations.EventSlot, err error) {
	start := time.Now()
	defer func() {
		queryErr := err
		if errors.Is(queryErr, registrations.ErrEventNotFound) {
			queryErr = nil
		}
		metrics.RecordQuery("lock_event", start, queryErr)
	}()

	err = r.queryer().QueryRow(ctx,
		`SELECT id, max_capacity FROM events WHERE id = $1 FOR UPDATE`, eventID,
	).Scan(&slot.ID, &slot.MaxCapacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return slot, registrations.ErrEventNotFound
		}
		return slot, fmt.Errorf("lock event: %w", err)
	}
	return slot, nil
}

func (r *RegistrationRepository) CountConfirmed(ctx context.Context, eventID string) (int, error) {
	var n int64
	err := r.queryer().QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = $2`,
		eventID, registrations.StatusConfirmed,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return int(n), nil
}

func (r *RegistrationRepository) Exists(ctx context.Context, accountID, eventID string) (bool, error) {
	var exists bool
	err := r.queryer().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM registrations WHERE account_id = $1 AND event_id = $2)`,
		accountID, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	return exists, nil
}

func (r *RegistrationRepository) Create(ctx context.Context, params registrations.CreateParams) (*registrations.Registration, error) {
	var reg registrations.Registration
	err := r.queryer().QueryRow(ctx, `
INSERT INTO registrations (id, account_id, event_id, status)
VALUES ($1, $2, $3, $4)
RETURNING id, account_id, event_id, registration_date, status`,
		params.ID, params.AccountID, params.EventID, params.Status,
	).Scan(&reg.ID, &reg.AccountID, &reg.EventID, &reg.RegistrationDate, &reg.Status)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return nil, registrations.ErrAlreadyRegistered
		case isForeignKeyViolation(err):
			return nil, registrations.ErrEventNotFound
		}
		return nil, fmt.Errorf("insert registration: %w", err)
	}
	reg.RegistrationDate = reg.RegistrationDate.UTC()
	return &reg, nil
}

// EnqueueConfirmation inserts the confirmation job in the current
// transaction, so it only becomes visible to workers if the registration commits.
func (r *RegistrationRepository) EnqueueConfirmation(ctx context.Context, registrationID string) error {
	if r.jobs == nil {
		return nil
	}
	if r.tx == nil {
		return fmt.Errorf("enqueue confirmation: no transaction")
	}
	opts := jobs.InsertOptsForKind(jobs.JobKindRegistrationConfirmation)
	if _, err := r.jobs.InsertTx(ctx, r.tx, jobs.RegistrationConfirmationArgs{RegistrationID: registrationID}, &opts); err != nil {
		return fmt.Errorf("insert confirmation job: %w", err)
	}
	return nil
}

func (r *RegistrationRepository) Delete(ctx context.Context, accountID, eventID string) error {
	tag, err := r.queryer().Exec(ctx,
		`DELETE FROM registrations WHERE account_id = $1 AND event_id = $2`,
		accountID, eventID,
	)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registrations.ErrNotFound
	}
	return nil
}

func (r *RegistrationRepository) ListForAccount(ctx context.Context, accountID string) ([]registrations.AccountRegistration, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT r.id, r.account_id, r.event_id, r.registration_date, r.status,
       e.title, e.description, e.date_time, e.location, e.max_capacity, a.name
  FROM registrations r
  JOIN events e ON e.id = r.event_id
  JOIN accounts a ON a.id = e.created_by
 WHERE r.account_id = $1
 ORDER BY e.date_time ASC, r.id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	list := make([]registrations.AccountRegistration, 0)
	for rows.Next() {
		var item registrations.AccountRegistration
		if err := rows.Scan(
			&item.ID, &item.AccountID, &item.EventID, &item.RegistrationDate, &item.Status,
			&item.Title, &item.Description, &item.DateTime, &item.Location, &item.MaxCapacity, &item.CreatorName,
		); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		item.RegistrationDate = item.RegistrationDate.UTC()
		item.DateTime = item.DateTime.UTC()
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return list, nil
}

// ConfirmationDetails loads what the confirmation job sends. Returns
// registrations.ErrNotFound when the registration was cancelled meanwhile.
func (r *RegistrationRepository) ConfirmationDetails(ctx context.Context, registrationID string) (registrations.Confirmation, error) {
	var c registrations.Confirmation
	err := r.queryer().QueryRow(ctx, `
SELECT r.id, r.status, a.email, a.name, e.id, e.title, e.date_time, e.location
  FROM registrations r
  JOIN accounts a ON a.id = r.account_id
  JOIN events e ON e.id = r.event_id
 WHERE r.id = $1`, registrationID,
	).Scan(&c.RegistrationID, &c.Status, &c.AccountEmail, &c.AccountName,
		&c.EventID, &c.EventTitle, &c.EventDateTime, &c.EventLocation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, registrations.ErrNotFound
		}
		return c, fmt.Errorf("load confirmation details: %w", err)
	}
	c.EventDateTime = c.EventDateTime.UTC()
	return c, nil
}

func (r *RegistrationRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

type txCommitter struct {
	tx pgx.Tx
}

func (c *txCommitter) Commit(ctx context.Context) error {
	return c.tx.Commit(ctx)
}

// Rollback is a no-op after Commit.
func (c *txCommitter) Rollback(ctx context.Context) error {
	err := c.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
