package registrations

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("registration not found")
	ErrEventNotFound     = errors.New("event not found")
	ErrForbidden         = errors.New("accounts may only view their own registrations")
	ErrCapacityExceeded  = errors.New("event is at full capacity")
	ErrAlreadyRegistered = errors.New("already registered for this event")
)

const StatusConfirmed = "confirmed"

type Registration struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"user_id"`
	EventID          string    `json:"event_id"`
	RegistrationDate time.Time `json:"registration_date"`
	Status           string    `json:"status"`
}

// AccountRegistration is a registration joined with the event it is for.
type AccountRegistration struct {
	Registration
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	DateTime    time.Time `json:"date_time"`
	Location    string    `json:"location"`
	MaxCapacity int       `json:"max_capacity"`
	CreatorName string    `json:"creator_name"`
}

// EventSlot is the part of an event row the capacity check needs.
type EventSlot struct {
	ID          string
	MaxCapacity int
}

type CreateParams struct {
	ID        string
	AccountID string
	EventID   string
	Status    string
}

// Repository persists registrations. LockEvent must hold a row lock on the
// event until the surrounding transaction ends.
type Repository interface {
	BeginTx(ctx context.Context) (Repository, TxCommitter, error)
	LockEvent(ctx context.Context, eventID string) (EventSlot, error)
	CountConfirmed(ctx context.Context, eventID string) (int, error)
	Exists(ctx context.Context, accountID, eventID string) (bool, error)
	Create(ctx context.Context, params CreateParams) (*Registration, error)
	EnqueueConfirmation(ctx context.Context, registrationID string) error
	Delete(ctx context.Context, accountID, eventID string) error
	ListForAccount(ctx context.Context, accountID string) ([]AccountRegistration, error)
}

type TxCommitter interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Confirmation is what a confirmation notice needs to know about a registration.
type Confirmation struct {
	RegistrationID string
	Status         string
	AccountEmail   string
	AccountName    string
	EventID        string
	EventTitle     string
	EventDateTime  time.Time
	EventLocation  string
}
