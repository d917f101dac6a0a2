// Package accounts manages the people who create and attend events: sign-up,
// password login, profile edits and per-account statistics.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
	"github.com/Togather-Foundation/rsvp/internal/validation"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "accounts").Logger(),
		now:    time.Now,
	}
}

type RegisterParams struct {
	Email    string
	Name     string
	Password string
}

type UpdateProfileParams struct {
	Name  string
	Email string
}

// Register creates an account. Returns ErrEmailTaken if the address is in use.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*Account, error) {
	email := validation.NormalizeEmail(params.Email)

	existing, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return nil, ErrEmailTaken
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate account id: %w", err)
	}

	account, err := s.repo.Create(ctx, CreateParams{
		ID:           id,
		Email:        email,
		Name:         params.Name,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info().Str("account_id", account.ID).Msg("account registered")
	return account, nil
}

// Authenticate checks an email/password pair. Unknown addresses and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	account, err := s.repo.GetByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if err := auth.CheckPassword(account.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("check password: %w", err)
	}
	return account, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile replaces the name and email of an account.
func (s *Service) UpdateProfile(ctx context.Context, id string, params UpdateProfileParams) (*Account, error) {
	email := validation.NormalizeEmail(params.Email)

	taken, err := s.repo.EmailTakenByOther(ctx, email, id)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return nil, ErrEmailTaken
	}

	account, err := s.repo.UpdateProfile(ctx, id, params.Name, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return account, nil
}

func (s *Service) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := auth.CheckPassword(account.PasswordHash, currentPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return ErrIncorrectPassword
		}
		return fmt.Errorf("check password: %w", err)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.Info().Str("account_id", id).Msg("password changed")
	return nil
}

// Stats runs the three counts concurrently.
func (s *Service) Stats(ctx context.Context, id string) (Stats, error) {
	var stats Stats
	now := s.now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.repo.CountEventsCreated(gctx, id)
		if err != nil {
			return fmt.Errorf("count events created: %w", err)
		}
		stats.EventsCreated = n
		return nil
	})
	g.Go(func() error {
		n, err := s.repo.CountRegistrations(gctx, id)
		if err != nil {
			return fmt.Errorf("count registrations: %w", err)
		}
		stats.EventsRegistered = n
		return nil
	})
	g.Go(func() error {
		n, err := s.repo.CountUpcomingRegistrations(gctx, id, now)
		if err != nil {
			return fmt.Errorf("count upcoming registrations: %w", err)
		}
		stats.UpcomingEvents = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}
