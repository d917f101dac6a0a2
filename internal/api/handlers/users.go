package handlers

import (
	"errors"
	"net/http"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/domain/accounts"
	"github.com/Togather-Foundation/rsvp/internal/sanitize"
	"github.com/Togather-Foundation/rsvp/internal/validation"
)

const messageUserNotFound = "User not found"

// UsersHandler serves the authenticated caller's own profile.
type UsersHandler struct {
	Accounts *accounts.Service
	Env      string
}

func NewUsersHandler(accountsService *accounts.Service, env string) *UsersHandler {
	return &UsersHandler{Accounts: accountsService, Env: env}
}

type profileRequest struct {
	Name  string `json:"name" validate:"required,max=255" msg:"Name is required and must be less than 255 characters"`
	Email string `json:"email" validate:"required,email" msg:"Valid email is required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required" msg:"Current password is required"`
	NewPassword     string `json:"newPassword" validate:"min=6,max=72" msg:"New password must be between 6 and 72 characters long"`
}

type userResponse struct {
	Message string            `json:"message,omitempty"`
	User    *accounts.Account `json:"user"`
}

type statsResponse struct {
	Stats accounts.Stats `json:"stats"`
}

func (h *UsersHandler) Profile(w http.ResponseWriter, r *http.Request) {
	caller, ok := currentAccount(w, r, h.Env)
	if !ok {
		return
	}

	account, err := h.Accounts.Get(r.Context(), caller.ID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, messageUserNotFound, err, h.Env)
			return
		}
		problem.Internal(w, r, "Server error fetching user profile", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: account})
}

func (h *UsersHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := currentAccount(w, r, h.Env)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	req.Name = sanitize.Text(req.Name)
	req.Email = validation.NormalizeEmail(req.Email)
	if !validate(w, r, &req, h.Env) {
		return
	}

	account, err := h.Accounts.UpdateProfile(r.Context(), caller.ID, accounts.UpdateProfileParams{
		Name:  req.Name,
		Email: req.Email,
	})
	switch {
	case err == nil:
	case errors.Is(err, accounts.ErrEmailTaken):
		problem.Write(w, r, http.StatusBadRequest, "Email is already taken by another user", err, h.Env)
		return
	case errors.Is(err, accounts.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, messageUserNotFound, err, h.Env)
		return
	default:
		problem.Internal(w, r, "Server error updating user profile", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{Message: "Profile updated successfully", User: account})
}

func (h *UsersHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller, ok := currentAccount(w, r, h.Env)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	if !validate(w, r, &req, h.Env) {
		return
	}

	err := h.Accounts.ChangePassword(r.Context(), caller.ID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, accounts.ErrIncorrectPassword):
		problem.Write(w, r, http.StatusBadRequest, "Current password is incorrect", err, h.Env)
		return
	case errors.Is(err, accounts.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, messageUserNotFound, err, h.Env)
		return
	default:
		problem.Internal(w, r, "Server error changing password", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password changed successfully"})
}

func (h *UsersHandler) Stats(w http.ResponseWriter, r *http.Request) {
	caller, ok := currentAccount(w, r, h.Env)
	if !ok {
		return
	}

	stats, err := h.Accounts.Stats(r.Context(), caller.ID)
	if err != nil {
		problem.Internal(w, r, "Server error fetching user statistics", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: stats})
}
