package events

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("event not found")
	ErrForbidden = errors.New("only the event creator may modify this event")
)

// Event is an event row annotated with its creator's name and occupancy.
// CurrentRegistrations and AvailableSpots are computed by the read query.
type Event struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Description          *string   `json:"description"`
	DateTime             time.Time `json:"date_time"`
	Location             string    `json:"location"`
	MaxCapacity          int       `json:"max_capacity"`
	CreatedBy            string    `json:"created_by"`
	CreatedAt            time.Time `json:"created_at"`
	CreatorName          string    `json:"creator_name"`
	CurrentRegistrations int       `json:"current_registrations"`
	AvailableSpots       int       `json:"available_spots"`
}

// Input holds every mutable event field. Updates replace all of them.
type Input struct {
	Title       string
	Description *string
	DateTime    time.Time
	Location    string
	MaxCapacity int
}

type CreateParams struct {
	ID        string
	Input     Input
	CreatedBy string
}

// Filters narrows the upcoming-events listing. Zero values are no-ops.
type Filters struct {
	Query    string
	Location string
	DateFrom *time.Time
	DateTo   *time.Time
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) error
	Get(ctx context.Context, id string) (*Event, error)
	ListUpcoming(ctx context.Context, now time.Time, filters Filters) ([]Event, error)
	ListByCreator(ctx context.Context, creatorID string) ([]Event, error)
	GetCreator(ctx context.Context, id string) (string, error)
	Update(ctx context.Context, id string, input Input) error
	Delete(ctx context.Context, id string) error
}
