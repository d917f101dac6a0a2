// Package problem writes the API's single error envelope:
//
//	{ "message": "...", "errors": [{"field": "...", "message": "..."}], "stack": "..." }
//
// errors is present only for validation failures and stack only for server
// errors in development.
package problem

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/Togather-Foundation/rsvp/internal/validation"
	"github.com/rs/zerolog"
)

const contentType = "application/json; charset=utf-8"

// Generic messages for failures whose detail must not leak.
const (
	MessageInternal         = "Something went wrong"
	MessageValidationFailed = "Validation failed"
	MessageNotFound         = "Not found"
)

type Response struct {
	Message string                  `json:"message"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
	Stack   string                  `json:"stack,omitempty"`
}

type Option func(*Response)

func WithErrors(errs []validation.FieldError) Option {
	return func(p *Response) {
		p.Errors = errs
	}
}

// Write logs err with the request-scoped logger and writes the envelope.
// 5xx responses are logged at error level and 4xx at warn level.
func Write(w http.ResponseWriter, r *http.Request, status int, message string, err error, env string, opts ...Option) {
	resp := Response{Message: message}
	for _, opt := range opts {
		opt(&resp)
	}

	if status >= http.StatusInternalServerError && env == "development" {
		resp.Stack = string(debug.Stack())
	}

	if r != nil {
		logger := zerolog.Ctx(r.Context())
		var event *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		case status >= http.StatusBadRequest && err != nil:
			event = logger.Warn()
		}
		if event != nil {
			event.
				Err(err).
				Int("status", status).
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Msg(message)
		}
	}

	WriteResponse(w, status, resp)
}

// Validation writes a 400 with the per-field errors.
func Validation(w http.ResponseWriter, r *http.Request, errs []validation.FieldError, env string) {
	Write(w, r, http.StatusBadRequest, MessageValidationFailed, validation.Errors(errs), env, WithErrors(errs))
}

// Internal writes a 500 with a generic message; err is only logged.
func Internal(w http.ResponseWriter, r *http.Request, message string, err error, env string) {
	if message == "" {
		message = MessageInternal
	}
	Write(w, r, http.StatusInternalServerError, message, err, env)
}

func WriteResponse(w http.ResponseWriter, status int, resp Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"` + MessageInternal + `"}`))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
