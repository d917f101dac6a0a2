package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/email"
	"github.com/riverqueue/river"
)

// RegistrationConfirmationArgs is enqueued in the same transaction that
// creates the registration.
type RegistrationConfirmationArgs struct {
	RegistrationID string `json:"registration_id"`
}

func (RegistrationConfirmationArgs) Kind() string { return JobKindRegistrationConfirmation }

// ConfirmationLookup loads what the confirmation email needs.
type ConfirmationLookup interface {
	ConfirmationDetails(ctx context.Context, registrationID string) (registrations.Confirmation, error)
}

// ConfirmationMailer delivers the confirmation email.
type ConfirmationMailer interface {
	SendRegistrationConfirmation(ctx context.Context, to string, data email.ConfirmationData) error
}

type RegistrationConfirmationWorker struct {
	river.WorkerDefaults[RegistrationConfirmationArgs]
	Lookup ConfirmationLookup
	Mailer ConfirmationMailer
	Logger *slog.Logger
}

func (RegistrationConfirmationWorker) Kind() string { return JobKindRegistrationConfirmation }

func (RegistrationConfirmationWorker) Timeout(*river.Job[RegistrationConfirmationArgs]) time.Duration {
	return confirmationJobTimeout
}

func (w RegistrationConfirmationWorker) Work(ctx context.Context, job *river.Job[RegistrationConfirmationArgs]) error {
	if job == nil {
		return fmt.Errorf("registration confirmation job missing")
	}
	if w.Lookup == nil || w.Mailer == nil {
		return fmt.Errorf("registration confirmation worker not configured")
	}

	details, err := w.Lookup.ConfirmationDetails(ctx, job.Args.RegistrationID)
	if err != nil {
		// Cancelled before the job ran; nothing left to confirm.
		if errors.Is(err, registrations.ErrNotFound) {
			w.logger().Info("registration gone, skipping confirmation", "registration_id", job.Args.RegistrationID)
			return nil
		}
		return fmt.Errorf("load registration %s: %w", job.Args.RegistrationID, err)
	}
	if details.Status != registrations.StatusConfirmed {
		w.logger().Info("registration not confirmed, skipping confirmation",
			"registration_id", details.RegistrationID, "status", details.Status)
		return nil
	}

	err = w.Mailer.SendRegistrationConfirmation(ctx, details.AccountEmail, email.ConfirmationData{
		RegistrationID: details.RegistrationID,
		AccountName:    details.AccountName,
		EventID:        details.EventID,
		EventTitle:     details.EventTitle,
		EventDateTime:  details.EventDateTime,
		Location:       details.EventLocation,
	})
	if err != nil {
		return fmt.Errorf("send confirmation for %s: %w", details.RegistrationID, err)
	}

	w.logger().Info("registration confirmation delivered",
		"registration_id", details.RegistrationID, "event_id", details.EventID, "attempt", job.Attempt)
	return nil
}

func (w RegistrationConfirmationWorker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// NewWorkers registers every worker the server runs.
func NewWorkers(lookup ConfirmationLookup, mailer ConfirmationMailer, logger *slog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[RegistrationConfirmationArgs](workers, &RegistrationConfirmationWorker{
		Lookup: lookup,
		Mailer: mailer,
		Logger: logger,
	})
	return workers
}
