// Package registrations signs accounts up for events and enforces the
// capacity and one-registration-per-account rules.
package registrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/Togather-Foundation/rsvp/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("github.com/Togather-Foundation/rsvp/internal/domain/registrations")

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "registrations").Logger(),
	}
}

// Register confirms accountID for eventID. The event row stays locked from
// the capacity check until commit, so concurrent attempts for the last spot
// are serialized and at most max_capacity registrations exist.
func (s *Service) Register(ctx context.Context, eventID, accountID string) (*Registration, error) {
	ctx, span := tracer.Start(ctx, "registrations.Register")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	registration, err := s.register(ctx, eventID, accountID)
	outcome := outcomeOf(err)
	metrics.RegistrationAttempts.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("registration.outcome", outcome))
	if outcome == metrics.OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, "registration failed")
	}
	return registration, err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeConfirmed
	case errors.Is(err, ErrCapacityExceeded):
		return metrics.OutcomeCapacityExceeded
	case errors.Is(err, ErrAlreadyRegistered):
		return metrics.OutcomeDuplicate
	case errors.Is(err, ErrEventNotFound):
		return metrics.OutcomeEventNotFound
	default:
		return metrics.OutcomeError
	}
}

func (s *Service) register(ctx context.Context, eventID, accountID string) (*Registration, error) {
	txRepo, txCommitter, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = txCommitter.Rollback(ctx)
	}()

	slot, err := txRepo.LockEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("lock event: %w", err)
	}

	confirmed, err := txRepo.CountConfirmed(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}
	if confirmed >= slot.MaxCapacity {
		return nil, ErrCapacityExceeded
	}

	exists, err := txRepo.Exists(ctx, accountID, eventID)
	if err != nil {
		return nil, fmt.Errorf("check registration: %w", err)
	}
	if exists {
		return nil, ErrAlreadyRegistered
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate registration id: %w", err)
	}

	registration, err := txRepo.Create(ctx, CreateParams{
		ID:        id,
		AccountID: accountID,
		EventID:   eventID,
		Status:    StatusConfirmed,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("create registration: %w", err)
	}

	if err := txRepo.EnqueueConfirmation(ctx, registration.ID); err != nil {
		return nil, fmt.Errorf("enqueue confirmation: %w", err)
	}

	if err := txCommitter.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Info().
		Str("registration_id", registration.ID).
		Str("event_id", eventID).
		Str("account_id", accountID).
		Int("spots_left", slot.MaxCapacity-confirmed-1).
		Msg("registration confirmed")

	return registration, nil
}

// Cancel removes accountID's registration for eventID.
func (s *Service) Cancel(ctx context.Context, eventID, accountID string) error {
	if err := s.repo.Delete(ctx, accountID, eventID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete registration: %w", err)
	}

	metrics.RegistrationCancellations.Inc()
	s.logger.Info().Str("event_id", eventID).Str("account_id", accountID).Msg("registration cancelled")
	return nil
}

// ListForAccount returns accountID's registrations ordered by event date.
// Accounts may only list their own.
func (s *Service) ListForAccount(ctx context.Context, accountID, actingID string) ([]AccountRegistration, error) {
	if accountID != actingID {
		return nil, ErrForbidden
	}
	list, err := s.repo.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return list, nil
}
