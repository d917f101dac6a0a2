package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/rs/zerolog"
)

// Recover turns a handler panic into a logged 500. http.ErrAbortHandler is
// re-raised so net/http can abort the connection quietly.
func Recover(logger zerolog.Logger, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				stack := debug.Stack()
				reqLogger := zerolog.Ctx(r.Context())
				if reqLogger.GetLevel() == zerolog.Disabled {
					reqLogger = &logger
				}
				reqLogger.Error().
					Str("panic", fmt.Sprint(rec)).
					Bytes("stack", stack).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("recovered from panic")

				resp := problem.Response{Message: problem.MessageInternal}
				if env == "development" {
					resp.Stack = string(stack)
				}
				problem.WriteResponse(w, http.StatusInternalServerError, resp)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
