package middleware

import (
	"net/http"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
)

// DefaultMaxBodySize caps JSON request bodies at 1MB.
const DefaultMaxBodySize int64 = 1 << 20

const MessageBodyTooLarge = "Request body too large"

// RequestSize wraps the body in http.MaxBytesReader. Reading past maxBytes
// fails with *http.MaxBytesError, which the JSON decoder in handlers turns
// into a 413.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeTooLarge(w)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeTooLarge(w http.ResponseWriter) {
	w.Header().Set("Connection", "close")
	problem.WriteResponse(w, http.StatusRequestEntityTooLarge, problem.Response{Message: MessageBodyTooLarge})
}
