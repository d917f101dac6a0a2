package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/sanitize"
	"github.com/Togather-Foundation/rsvp/internal/validation"
)

const (
	messageEventNotFound = "Event not found"
	messageNotCreator    = "Only event creator can perform this action"
)

type EventsHandler struct {
	Service *events.Service
	Env     string
	now     func() time.Time
}

func NewEventsHandler(service *events.Service, env string) *EventsHandler {
	return &EventsHandler{Service: service, Env: env, now: time.Now}
}

// eventRequest is the body of create and update. Update replaces every field.
type eventRequest struct {
	Title       string  `json:"title" validate:"required,max=255" msg:"Title is required and must be less than 255 characters"`
	Description *string `json:"description" validate:"omitempty,max=1000" msg:"Description must be less than 1000 characters"`
	DateTime    string  `json:"date_time" validate:"iso8601" msg:"Date must be a valid ISO date"`
	Location    string  `json:"location" validate:"required,max=255" msg:"Location is required and must be less than 255 characters"`
	MaxCapacity *int    `json:"max_capacity" validate:"required,min=1" msg:"Max capacity must be a positive integer"`
}

// normalize strips markup before validation, so text that is only markup
// fails the required rules and length limits apply to what is stored.
func (req *eventRequest) normalize() {
	req.Title = sanitize.Text(req.Title)
	req.Location = sanitize.Text(req.Location)
	req.DateTime = strings.TrimSpace(req.DateTime)
	req.Description = sanitize.OptionalText(req.Description)
}

// input assumes validate has passed.
func (req eventRequest) input() (events.Input, error) {
	when, err := validation.ParseTimestamp(req.DateTime)
	if err != nil {
		return events.Input{}, err
	}
	return events.Input{
		Title:       req.Title,
		Description: req.Description,
		DateTime:    when,
		Location:    req.Location,
		MaxCapacity: *req.MaxCapacity,
	}, nil
}

type eventResponse struct {
	Message string        `json:"message,omitempty"`
	Event   *events.Event `json:"event"`
}

type eventListResponse struct {
	Events []events.Event `json:"events"`
	Total  int            `json:"total"`
}

func newEventList(list []events.Event) eventListResponse {
	if list == nil {
		list = []events.Event{}
	}
	return eventListResponse{Events: list, Total: len(list)}
}

// readEvent decodes, normalizes and validates an event body.
func (h *EventsHandler) readEvent(w http.ResponseWriter, r *http.Request) (events.Input, bool) {
	var req eventRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return events.Input{}, false
	}
	req.normalize()
	if !validate(w, r, &req, h.Env) {
		return events.Input{}, false
	}
	input, err := req.input()
	if err != nil {
		problem.Validation(w, r, []validation.FieldError{{Field: "date_time", Message: "Date must be a valid ISO date"}}, h.Env)
		return events.Input{}, false
	}
	return input, true
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r, h.Env)
	if !ok {
		return
	}
	input, ok := h.readEvent(w, r)
	if !ok {
		return
	}

	event, err := h.Service.Create(r.Context(), input, account.ID)
	if err != nil {
		problem.Internal(w, r, "Server error creating event", err, h.Env)
		return
	}

	writeJSON(w, http.StatusCreated, eventResponse{Message: "Event created successfully", Event: event})
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListUpcoming(r.Context())
	if err != nil {
		problem.Internal(w, r, "Server error fetching events", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, newEventList(list))
}

// Search filters upcoming events by q, location, date_from and date_to.
// With no parameters it returns exactly what List returns.
func (h *EventsHandler) Search(w http.ResponseWriter, r *http.Request) {
	filters, err := events.ParseSearchFilters(r.URL.Query(), h.now())
	if err != nil {
		var filterErr events.FilterError
		if errors.As(err, &filterErr) {
			problem.Validation(w, r, []validation.FieldError{{Field: filterErr.Field, Message: filterErr.Message}}, h.Env)
			return
		}
		problem.Write(w, r, http.StatusBadRequest, problem.MessageValidationFailed, err, h.Env)
		return
	}

	list, err := h.Service.Search(r.Context(), filters)
	if err != nil {
		problem.Internal(w, r, "Server error searching events", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, newEventList(list))
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.Env)
	if !ok {
		return
	}

	event, err := h.Service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, messageEventNotFound, err, h.Env)
			return
		}
		problem.Internal(w, r, "Server error fetching event", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Event: event})
}

func (h *EventsHandler) ListByCreator(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := pathID(w, r, "userId", h.Env)
	if !ok {
		return
	}
	account, ok := currentAccount(w, r, h.Env)
	if !ok {
		return
	}

	list, err := h.Service.ListByCreator(r.Context(), creatorID, account.ID)
	if err != nil {
		if errors.Is(err, events.ErrForbidden) {
			problem.Write(w, r, http.StatusForbidden, "You can only view your own events", err, h.Env)
			return
		}
		problem.Internal(w, r, "Server error fetching creator events", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, newEventList(list))
}

// Update checks ownership before looking at the body, so non-creators get
// 403 even for an invalid payload.
func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.Env)
	if !ok {
		return
	}
	account, ok := currentAccount(w, r, h.Env)
	if !ok {
		return
	}
	if !h.authorize(w, r, id, account.ID) {
		return
	}
	input, ok := h.readEvent(w, r)
	if !ok {
		return
	}

	event, err := h.Service.Update(r.Context(), id, input, account.ID)
	if err != nil {
		h.writeMutationError(w, r, err, "Server error updating event")
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Message: "Event updated successfully", Event: event})
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.Env)
	if !ok {
		return
	}
	account, ok := currentAccount(w, r, h.Env)
	if !ok {
		return
	}

	if err := h.Service.Delete(r.Context(), id, account.ID); err != nil {
		h.writeMutationError(w, r, err, "Server error deleting event")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Event deleted successfully"})
}

func (h *EventsHandler) authorize(w http.ResponseWriter, r *http.Request, eventID, accountID string) bool {
	if err := h.Service.AuthorizeCreator(r.Context(), eventID, accountID); err != nil {
		h.writeMutationError(w, r, err, problem.MessageInternal)
		return false
	}
	return true
}

func (h *EventsHandler) writeMutationError(w http.ResponseWriter, r *http.Request, err error, internal string) {
	switch {
	case errors.Is(err, events.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, messageEventNotFound, err, h.Env)
	case errors.Is(err, events.ErrForbidden):
		problem.Write(w, r, http.StatusForbidden, messageNotCreator, err, h.Env)
	default:
		problem.Internal(w, r, internal, err, h.Env)
	}
}
