package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/domain/accounts"
	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
	"github.com/Togather-Foundation/rsvp/internal/validation"
)

const messageInvalidJSON = "Request body must be valid JSON"

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// messageResponse is the body of mutations that return nothing else.
type messageResponse struct {
	Message string `json:"message"`
}

// decodeJSON reads r's body into dst and writes the error response itself
// when it cannot. An empty body decodes as {} so field validation reports
// what is missing. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, env string) bool {
	if r.Body == nil {
		return true
	}

	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var (
		maxErr  *http.MaxBytesError
		typeErr *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &maxErr):
		problem.Write(w, r, http.StatusRequestEntityTooLarge, middleware.MessageBodyTooLarge, err, env)
	case errors.As(err, &typeErr) && typeErr.Field != "":
		field := typeErr.Field
		problem.Validation(w, r, []validation.FieldError{{
			Field:   field,
			Message: fmt.Sprintf("%s must be a %s", field, jsonKind(typeErr.Type.Kind().String())),
		}}, env)
	default:
		problem.Write(w, r, http.StatusBadRequest, messageInvalidJSON, err, env)
	}
	return false
}

func jsonKind(goKind string) string {
	switch {
	case strings.HasPrefix(goKind, "int"), strings.HasPrefix(goKind, "uint"), strings.HasPrefix(goKind, "float"):
		return "number"
	case goKind == "bool":
		return "boolean"
	case goKind == "string":
		return "string"
	default:
		return "valid value"
	}
}

// validate runs the struct-tag rules and writes the 400 on failure.
func validate(w http.ResponseWriter, r *http.Request, v any, env string) bool {
	if errs := validation.Validate(v); len(errs) > 0 {
		problem.Validation(w, r, errs, env)
		return false
	}
	return true
}

// pathID reads a ULID path segment. Anything else is a 400 before any
// service runs.
func pathID(w http.ResponseWriter, r *http.Request, name, env string) (string, bool) {
	id, err := ids.Parse(r.PathValue(name))
	if err != nil {
		problem.Validation(w, r, []validation.FieldError{{Field: name, Message: name + " must be a valid ULID"}}, env)
		return "", false
	}
	return id, true
}

// currentAccount is the authenticated caller. Routes using it sit behind
// middleware.Authenticate, so a missing account is a wiring bug.
func currentAccount(w http.ResponseWriter, r *http.Request, env string) (*accounts.Account, bool) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		problem.Write(w, r, http.StatusUnauthorized, middleware.MessageTokenRequired, nil, env)
		return nil, false
	}
	return account, true
}
