// Package events implements creating, browsing and searching events, and the
// creator-only rule for changing them.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "events").Logger(),
		now:    time.Now,
	}
}

// Create stores a new event owned by creatorID and returns it with occupancy fields.
func (s *Service) Create(ctx context.Context, input Input, creatorID string) (*Event, error) {
	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}

	if err := s.repo.Create(ctx, CreateParams{
		ID:        id,
		Input:     inUTC(input),
		CreatedBy: creatorID,
	}); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.logger.Info().Str("event_id", id).Str("creator_id", creatorID).Msg("event created")
	return s.repo.Get(ctx, id)
}

// ListUpcoming returns events scheduled strictly after now, soonest first.
func (s *Service) ListUpcoming(ctx context.Context) ([]Event, error) {
	return s.Search(ctx, Filters{})
}

// Search is ListUpcoming narrowed by filters; every filter must match.
func (s *Service) Search(ctx context.Context, filters Filters) ([]Event, error) {
	list, err := s.repo.ListUpcoming(ctx, s.now(), filters)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return list, nil
}

// Get returns one event regardless of its date.
func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	return s.repo.Get(ctx, id)
}

// ListByCreator returns every event creatorID owns, past ones included.
// Accounts may only list their own events.
func (s *Service) ListByCreator(ctx context.Context, creatorID, actingID string) ([]Event, error) {
	if creatorID != actingID {
		return nil, ErrForbidden
	}
	list, err := s.repo.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list events by creator: %w", err)
	}
	return list, nil
}

// AuthorizeCreator returns ErrNotFound if the event does not exist and
// ErrForbidden if accountID did not create it.
func (s *Service) AuthorizeCreator(ctx context.Context, eventID, accountID string) error {
	creatorID, err := s.repo.GetCreator(ctx, eventID)
	if err != nil {
		return err
	}
	if creatorID != accountID {
		return ErrForbidden
	}
	return nil
}

// Update replaces all mutable fields of an event owned by actingID.
// Capacity may be lowered below the current registration count.
func (s *Service) Update(ctx context.Context, id string, input Input, actingID string) (*Event, error) {
	if err := s.AuthorizeCreator(ctx, id, actingID); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, id, inUTC(input)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update event: %w", err)
	}

	s.logger.Info().Str("event_id", id).Msg("event updated")
	return s.repo.Get(ctx, id)
}

// Delete removes an event owned by actingID along with its registrations.
func (s *Service) Delete(ctx context.Context, id, actingID string) error {
	if err := s.AuthorizeCreator(ctx, id, actingID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete event: %w", err)
	}

	s.logger.Info().Str("event_id", id).Msg("event deleted")
	return nil
}

// inUTC stores event times in UTC regardless of the offset they arrived with.
func inUTC(input Input) Input {
	input.DateTime = input.DateTime.UTC()
	return input
}
