package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/accounts"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/Togather-Foundation/rsvp/internal/sanitize"
	"github.com/Togather-Foundation/rsvp/internal/validation"
)

// TokenCookieName is the HTTP-only cookie login sets for browser clients.
const TokenCookieName = "token"

type AuthHandler struct {
	Accounts *accounts.Service
	Tokens   *auth.JWTManager
	Env      string
}

func NewAuthHandler(accountsService *accounts.Service, tokens *auth.JWTManager, env string) *AuthHandler {
	return &AuthHandler{Accounts: accountsService, Tokens: tokens, Env: env}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email" msg:"Valid email is required"`
	Name     string `json:"name" validate:"required,max=255" msg:"Name is required and must be less than 255 characters"`
	Password string `json:"password" validate:"min=6,max=72" msg:"Password must be between 6 and 72 characters long"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email" msg:"Valid email is required"`
	Password string `json:"password" validate:"required" msg:"Password is required"`
}

type authResponse struct {
	Message string            `json:"message"`
	User    *accounts.Account `json:"user"`
	Token   string            `json:"token"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	req.Email = validation.NormalizeEmail(req.Email)
	req.Name = sanitize.Text(req.Name)
	if !validate(w, r, &req, h.Env) {
		return
	}

	account, err := h.Accounts.Register(r.Context(), accounts.RegisterParams{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("register", "failure").Inc()
		if errors.Is(err, accounts.ErrEmailTaken) {
			problem.Write(w, r, http.StatusBadRequest, "User with this email already exists", err, h.Env)
			return
		}
		problem.Internal(w, r, "Server error during registration", err, h.Env)
		return
	}

	token, _, err := h.Tokens.Generate(account.ID, account.Email)
	if err != nil {
		problem.Internal(w, r, "Server error during registration", err, h.Env)
		return
	}

	metrics.AuthAttempts.WithLabelValues("register", "success").Inc()
	writeJSON(w, http.StatusCreated, authResponse{
		Message: "User registered successfully",
		User:    account,
		Token:   token,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	req.Email = validation.NormalizeEmail(req.Email)
	if !validate(w, r, &req, h.Env) {
		return
	}

	account, err := h.Accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			problem.Write(w, r, http.StatusUnauthorized, "Invalid email or password", err, h.Env)
			return
		}
		problem.Internal(w, r, "An error occurred during login. Please try again.", err, h.Env)
		return
	}

	token, expiresAt, err := h.Tokens.Generate(account.ID, account.Email)
	if err != nil {
		problem.Internal(w, r, "An error occurred during login. Please try again.", err, h.Env)
		return
	}

	http.SetCookie(w, h.tokenCookie(token, expiresAt))
	metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	writeJSON(w, http.StatusOK, authResponse{
		Message: "Login successful",
		User:    account,
		Token:   token,
	})
}

// Logout clears the login cookie. Bearer tokens stay valid until they expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie := h.tokenCookie("", time.Unix(0, 0))
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logout successful"})
}

func (h *AuthHandler) tokenCookie(value string, expiresAt time.Time) *http.Cookie {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	return &http.Cookie{
		Name:     TokenCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.Env == "production",
		SameSite: http.SameSiteStrictMode,
	}
}
