package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"
)

const confirmationCategory = "registration_confirmation"

// confirmation is one rendered registration confirmation ready for delivery.
type confirmation struct {
	to             string
	subject        string
	html           string
	registrationID string
}

// idempotencyKey is stable per registration. Resend drops a repeated send
// with the same key for 24 hours, so a job retried after a lost response
// does not mail the attendee twice.
func (c confirmation) idempotencyKey() string {
	return confirmationCategory + "/" + c.registrationID
}

func (c confirmation) request(from string) *resend.SendEmailRequest {
	return &resend.SendEmailRequest{
		From:    from,
		To:      []string{c.to},
		Subject: c.subject,
		Html:    c.html,
		Tags: []resend.Tag{
			{Name: "category", Value: confirmationCategory},
			{Name: "registration_id", Value: c.registrationID},
		},
	}
}

// deliver sends c through Resend. Rate limits come back as errors so the
// job queue can reschedule.
func (s *Service) deliver(ctx context.Context, c confirmation) error {
	if s.resendClient == nil {
		return fmt.Errorf("resend client not initialized")
	}

	sent, err := s.resendClient.Emails.SendWithOptions(ctx, c.request(s.config.From),
		&resend.SendEmailOptions{IdempotencyKey: c.idempotencyKey()})
	if err != nil {
		var limited *resend.RateLimitError
		if errors.As(err, &limited) {
			s.logger.Warn().
				Str("registration_id", c.registrationID).
				Str("remaining", limited.Remaining).
				Str("reset", limited.Reset).
				Msg("resend rate limited confirmation")
			return fmt.Errorf("confirmation for %s rate limited, reset in %ss: %w", c.registrationID, limited.Reset, err)
		}
		return fmt.Errorf("resend confirmation for %s: %w", c.registrationID, err)
	}

	s.logger.Info().
		Str("email_id", sent.Id).
		Str("registration_id", c.registrationID).
		Msg("registration confirmation sent")
	return nil
}
