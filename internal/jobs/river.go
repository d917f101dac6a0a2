package jobs

import (
	"log/slog"
	"math"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindRegistrationConfirmation = "registration_confirmation"
)

// QueueNotifications carries outbound email. Resend allows a handful of
// requests per second, so it runs with few workers.
const (
	QueueNotifications  = "notifications"
	NotificationWorkers = 2
	DefaultMaxAttempts  = 5
)

const confirmationJobTimeout = 30 * time.Second

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

// NewRetryPolicy returns the default retry policy configuration.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			// MaxAttempts is left to the client so JOBS_MAX_ATTEMPTS applies.
			JobKindRegistrationConfirmation: {
				BaseDelay: 15 * time.Second,
				MaxDelay:  15 * time.Minute,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	rc := p.configFor(job.Kind)
	if rc.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(rc.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}

	return time.Now().Add(delay)
}

// InsertOptsForKind returns default insert options for a job kind.
func InsertOptsForKind(kind string) river.InsertOpts {
	opts := river.InsertOpts{MaxAttempts: NewRetryPolicy().configFor(kind).MaxAttempts}
	if kind == JobKindRegistrationConfirmation {
		opts.Queue = QueueNotifications
	}
	return opts
}

// NewClientConfig builds a River client configuration with retry policy.
func NewClientConfig(workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, cfg config.JobsConfig, notify AlertFunc) *river.Config {
	policy := NewRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.Default.MaxAttempts = cfg.MaxAttempts
	}

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = config.Defaults().Jobs.MaxWorkers
	}

	riverConfig := &river.Config{
		Workers:     workers,
		RetryPolicy: policy,
		MaxAttempts: policy.Default.MaxAttempts,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
			QueueNotifications: {MaxWorkers: min(maxWorkers, NotificationWorkers)},
		},
		Hooks: hooks,
	}
	if logger != nil {
		riverConfig.Logger = logger
		riverConfig.ErrorHandler = NewAlertingErrorHandler(logger, notify)
	}
	return riverConfig
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, cfg config.JobsConfig, notify AlertFunc) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, logger, hooks, cfg, notify))
}

// NewInsertOnlyClient creates a client that can enqueue but never works jobs,
// for processes started with jobs disabled.
func NewInsertOnlyClient(pool *pgxpool.Pool, logger *slog.Logger) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), &river.Config{Logger: logger})
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: DefaultMaxAttempts, BaseDelay: 30 * time.Second, MaxDelay: 30 * time.Minute}
	}
	if rc, ok := p.ByKind[kind]; ok {
		return rc
	}
	return p.Default
}
