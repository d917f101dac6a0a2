package storage

import (
	"context"

	"github.com/Togather-Foundation/rsvp/internal/domain/accounts"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
)

// Repository groups data access by domain.
type Repository interface {
	Accounts() accounts.Repository
	Events() events.Repository
	Registrations() registrations.Repository

	Ping(ctx context.Context) error
}
