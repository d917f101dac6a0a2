package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html
var templateFS embed.FS

// Service renders and delivers transactional email through Resend.
// When email is disabled it logs what it would have sent and returns nil.
type Service struct {
	config       config.EmailConfig
	baseURL      string
	templates    *template.Template
	resendClient *resend.Client
	logger       zerolog.Logger
}

// ConfirmationData holds the fields rendered into the registration confirmation.
type ConfirmationData struct {
	RegistrationID string
	AccountName    string
	EventID        string
	EventTitle     string
	EventDateTime  time.Time
	Location       string
}

type confirmationView struct {
	RegistrationID string
	AccountName    string
	EventTitle     string
	When           string
	Location       string
	EventURL       string
	CurrentYear    int
}

// NewService creates an email service. baseURL is used to link back to the
// event and may be empty.
func NewService(cfg config.EmailConfig, baseURL string, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	svc := &Service{
		config:    cfg,
		baseURL:   strings.TrimRight(baseURL, "/"),
		templates: templates,
		logger:    logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled {
		svc.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return svc, nil
}

// SendRegistrationConfirmation tells an attendee their registration went through.
func (s *Service) SendRegistrationConfirmation(ctx context.Context, to string, data ConfirmationData) error {
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}

	if !s.config.Enabled {
		s.logger.Info().
			Str("to", to).
			Str("registration_id", data.RegistrationID).
			Str("event_id", data.EventID).
			Msg("email service disabled, skipping registration confirmation")
		return nil
	}

	view := confirmationView{
		RegistrationID: data.RegistrationID,
		AccountName:    data.AccountName,
		EventTitle:     data.EventTitle,
		When:           data.EventDateTime.UTC().Format("Monday, 2 January 2006 at 15:04 MST"),
		Location:       data.Location,
		EventURL:       s.eventURL(data.EventID),
		CurrentYear:    time.Now().Year(),
	}
	htmlBody, err := s.renderTemplate("registration_confirmation.html", view)
	if err != nil {
		return fmt.Errorf("failed to render confirmation template: %w", err)
	}

	err = s.deliver(ctx, confirmation{
		to:             to,
		subject:        "You're registered: " + data.EventTitle,
		html:           htmlBody,
		registrationID: data.RegistrationID,
	})
	if err != nil {
		return fmt.Errorf("failed to send confirmation email: %w", err)
	}
	return nil
}

func (s *Service) eventURL(eventID string) string {
	if s.baseURL == "" || eventID == "" {
		return ""
	}
	link := s.baseURL + "/events/" + url.PathEscape(eventID)
	if err := validateLinkURL(link); err != nil {
		return ""
	}
	return link
}

// validateEmailAddress rejects malformed addresses and header injection attempts.
func validateEmailAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	return nil
}

// validateLinkURL only allows absolute http(s) links into templates.
func validateLinkURL(link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

func (s *Service) renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}
