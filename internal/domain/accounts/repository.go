package accounts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("account not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrIncorrectPassword  = errors.New("current password is incorrect")
)

type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Stats struct {
	EventsCreated    int64 `json:"events_created"`
	EventsRegistered int64 `json:"events_registered"`
	UpcomingEvents   int64 `json:"upcoming_events"`
}

type CreateParams struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
}

// Repository persists accounts. Create and UpdateProfile return ErrEmailTaken
// when the unique email index rejects the write.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	EmailTakenByOther(ctx context.Context, email, accountID string) (bool, error)
	UpdateProfile(ctx context.Context, id, name, email string) (*Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	CountEventsCreated(ctx context.Context, id string) (int64, error)
	CountRegistrations(ctx context.Context, id string) (int64, error)
	CountUpcomingRegistrations(ctx context.Context, id string, now time.Time) (int64, error)
}
