package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ events.Repository = (*EventRepository)(nil)

type EventRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// eventSelect annotates each event with its creator's name and the number of
// confirmed registrations. Callers append WHERE and ORDER BY.
const eventSelect = `
SELECT e.id, e.title, e.description, e.date_time, e.location, e.max_capacity,
       e.created_by, e.created_at, a.name,
       (SELECT COUNT(*) FROM registrations r
         WHERE r.event_id = e.id AND r.status = 'confirmed') AS current_registrations
  FROM events e
  JOIN accounts a ON a.id = e.created_by`

const eventOrder = ` ORDER BY e.date_time ASC, e.id ASC`

func scanEvent(row pgx.Row) (events.Event, error) {
	var (
		e       events.Event
		current int64
	)
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.DateTime, &e.Location, &e.MaxCapacity,
		&e.CreatedBy, &e.CreatedAt, &e.CreatorName, &current,
	)
	if err != nil {
		return events.Event{}, err
	}
	e.DateTime = e.DateTime.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.CurrentRegistrations = int(current)
	e.AvailableSpots = e.MaxCapacity - e.CurrentRegistrations
	return e, nil
}

func (r *EventRepository) collect(ctx context.Context, operation, sql string, args ...any) (list []events.Event, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(operation, start, err) }()

	rows, err := r.queryer().Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list = make([]events.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (r *EventRepository) Create(ctx context.Context, params events.CreateParams) error {
	in := params.Input
	_, err := r.queryer().Exec(ctx, `
INSERT INTO events (id, title, description, date_time, location, max_capacity, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		params.ID, in.Title, in.Description, in.DateTime, in.Location, in.MaxCapacity, params.CreatedBy,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("creator %s does not exist: %w", params.CreatedBy, err)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *EventRepository) Get(ctx context.Context, id string) (*events.Event, error) {
	e, err := scanEvent(r.queryer().QueryRow(ctx, eventSelect+` WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

func (r *EventRepository) ListUpcoming(ctx context.Context, now time.Time, filters events.Filters) ([]events.Event, error) {
	list, err := r.collect(ctx, "list_upcoming_events", eventSelect+`
 WHERE e.date_time > $1
   AND ($2::text = '' OR e.title ILIKE '%' || $2 || '%' ESCAPE '\'
                      OR e.description ILIKE '%' || $2 || '%' ESCAPE '\')
   AND ($3::text = '' OR e.location ILIKE '%' || $3 || '%' ESCAPE '\')
   AND ($4::timestamptz IS NULL OR e.date_time >= $4)
   AND ($5::timestamptz IS NULL OR e.date_time <= $5)`+eventOrder,
		now, escapeLike(filters.Query), escapeLike(filters.Location), filters.DateFrom, filters.DateTo,
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return list, nil
}

func (r *EventRepository) ListByCreator(ctx context.Context, creatorID string) ([]events.Event, error) {
	list, err := r.collect(ctx, "list_events_by_creator", eventSelect+` WHERE e.created_by = $1`+eventOrder, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list events by creator: %w", err)
	}
	return list, nil
}

func (r *EventRepository) GetCreator(ctx context.Context, id string) (string, error) {
	var creatorID string
	err := r.queryer().QueryRow(ctx, `SELECT created_by FROM events WHERE id = $1`, id).Scan(&creatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", events.ErrNotFound
		}
		return "", fmt.Errorf("get event creator: %w", err)
	}
	return creatorID, nil
}

func (r *EventRepository) Update(ctx context.Context, id string, input events.Input) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE events
   SET title = $2, description = $3, date_time = $4, location = $5, max_capacity = $6
 WHERE id = $1`,
		id, input.Title, input.Description, input.DateTime, input.Location, input.MaxCapacity,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside an ILIKE pattern.
func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
