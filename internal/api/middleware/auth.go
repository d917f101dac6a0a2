package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/accounts"
	"github.com/rs/zerolog"
)

const accountKey contextKey = "account"

// Messages returned by Authenticate, all with status 401.
const (
	MessageTokenRequired = "Access token required"
	MessageTokenExpired  = "Token expired"
	MessageTokenInvalid  = "Invalid token"
	MessageUserNotFound  = "User not found"
)

// AccountLookup resolves a token subject to its account.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*accounts.Account, error)
}

// Authenticate requires a valid bearer token whose subject is an existing
// account. The account is stored in the request context for
// AccountFromContext and its ID is added to the request logger.
func Authenticate(manager *auth.JWTManager, lookup AccountLookup, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, MessageTokenRequired, nil, env)
				return
			}

			claims, err := manager.Validate(token)
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				problem.Write(w, r, http.StatusUnauthorized, MessageTokenExpired, err, env)
				return
			case err != nil:
				problem.Write(w, r, http.StatusUnauthorized, MessageTokenInvalid, err, env)
				return
			}

			account, err := lookup.GetByID(r.Context(), claims.Subject)
			switch {
			case errors.Is(err, accounts.ErrNotFound):
				problem.Write(w, r, http.StatusUnauthorized, MessageUserNotFound, err, env)
				return
			case err != nil:
				problem.Internal(w, r, "", err, env)
				return
			}

			ctx := context.WithValue(r.Context(), accountKey, account)
			logger := zerolog.Ctx(ctx).With().Str("account_id", account.ID).Logger()
			ctx = logger.WithContext(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFromContext returns the account Authenticate attached to ctx.
func AccountFromContext(ctx context.Context) (*accounts.Account, bool) {
	account, ok := ctx.Value(accountKey).(*accounts.Account)
	return account, ok && account != nil
}

// WithAccount stores account in ctx the way Authenticate does.
func WithAccount(ctx context.Context, account *accounts.Account) context.Context {
	return context.WithValue(ctx, accountKey, account)
}
