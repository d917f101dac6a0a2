package handlers

import (
	"errors"
	"net/http"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
)

type RegistrationsHandler struct {
	Service *registrations.Service
	Env     string
}

func NewRegistrationsHandler(service *registrations.Service, env string) *RegistrationsHandler {
	return &RegistrationsHandler{Service: service, Env: env}
}

type registrationResponse struct {
	Message      string                      `json:"message"`
	Registration *registrations.Registration `json:"registration"`
}

type registrationListResponse struct {
	Registrations []registrations.AccountRegistration `json:"registrations"`
	Total         int                                 `json:"total"`
}

// Register signs the caller up for the event in the path.
func (h *RegistrationsHandler) Register(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "id", h.Env)
	if !ok {
		return
	}
	account, ok := currentAccount(w, r, h.Env)
	if !ok {
		return
	}

	registration, err := h.Service.Register(r.Context(), eventID, account.ID)
	switch {
	case err == nil:
	case errors.Is(err, registrations.ErrEventNotFound):
		problem.Write(w, r, http.StatusNotFound, messageEventNotFound, err, h.Env)
		return
	case errors.Is(err, registrations.ErrCapacityExceeded):
		problem.Write(w, r, http.StatusBadRequest, "Event is at full capacity", err, h.Env)
		return
	case errors.Is(err, registrations.ErrAlreadyRegistered):
		problem.Write(w, r, http.StatusBadRequest, "You are already registered for this event", err, h.Env)
		return
	default:
		problem.Internal(w, r, "Server error during registration", err, h.Env)
		return
	}

	writeJSON(w, http.StatusCreated, registrationResponse{
		Message:      "Successfully registered for event",
		Registration: registration,
	})
}

func (h *RegistrationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "id", h.Env)
	if !ok {
		return
	}
	account, ok := currentAccount(w, r, h.Env)
	if !ok {
		return
	}

	if err := h.Service.Cancel(r.Context(), eventID, account.ID); err != nil {
		if errors.Is(err, registrations.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "Registration not found", err, h.Env)
			return
		}
		problem.Internal(w, r, "Server error cancelling registration", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Registration cancelled successfully"})
}

func (h *RegistrationsHandler) ListForAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "id", h.Env)
	if !ok {
		return
	}
	account, ok := currentAccount(w, r, h.Env)
	if !ok {
		return
	}

	list, err := h.Service.ListForAccount(r.Context(), accountID, account.ID)
	if err != nil {
		if errors.Is(err, registrations.ErrForbidden) {
			problem.Write(w, r, http.StatusForbidden, "You can only view your own registrations", err, h.Env)
			return
		}
		problem.Internal(w, r, "Server error fetching registrations", err, h.Env)
		return
	}
	if list == nil {
		list = []registrations.AccountRegistration{}
	}
	writeJSON(w, http.StatusOK, registrationListResponse{Registrations: list, Total: len(list)})
}
