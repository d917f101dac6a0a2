package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// AlertFunc is invoked when a job fails or panics. final reports whether
// River will give up on the job after this attempt.
type AlertFunc func(ctx context.Context, job *rivertype.JobRow, err error, final bool)

// AlertingErrorHandler logs and forwards job failures for alerting.
type AlertingErrorHandler struct {
	Logger *slog.Logger
	Notify AlertFunc
}

// NewAlertingErrorHandler builds an ErrorHandler that logs and forwards errors.
func NewAlertingErrorHandler(logger *slog.Logger, notify AlertFunc) *AlertingErrorHandler {
	return &AlertingErrorHandler{
		Logger: logger,
		Notify: notify,
	}
}

func (h *AlertingErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	final := isFinalAttempt(job)
	if h.Logger != nil {
		msg := "job failed"
		if final {
			msg = "job failed permanently"
		}
		h.Logger.Error(msg, "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "max_attempts", job.MaxAttempts, "error", err)
	}
	if h.Notify != nil {
		h.Notify(ctx, job, err, final)
	}
	return nil
}

func (h *AlertingErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	panicErr := fmt.Errorf("panic: %v", panicVal)
	if h.Logger != nil {
		h.Logger.Error("job panicked", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "error", panicErr, "trace", trace)
	}
	if h.Notify != nil {
		h.Notify(ctx, job, panicErr, isFinalAttempt(job))
	}
	return nil
}

func isFinalAttempt(job *rivertype.JobRow) bool {
	return job.MaxAttempts > 0 && job.Attempt >= job.MaxAttempts
}
