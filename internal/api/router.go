package api

import (
	"net/http"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/handlers"
	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/domain/accounts"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Dependencies is everything the router needs; the serve command builds it.
type Dependencies struct {
	Config        config.Config
	Logger        zerolog.Logger
	Accounts      *accounts.Service
	Events        *events.Service
	Registrations *registrations.Service
	AccountLookup middleware.AccountLookup
	Tokens        *auth.JWTManager
	DB            handlers.Database
	Build         BuildInfo
	Started       time.Time
}

// Router is the fully wrapped HTTP handler. Close releases the rate limiter.
type Router struct {
	handler http.Handler
	limiter *middleware.RateLimiter
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.handler.ServeHTTP(w, r)
}

func (rt *Router) Close() {
	rt.limiter.Close()
}

func NewRouter(deps Dependencies) *Router {
	cfg := deps.Config
	env := cfg.Environment
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}

	authHandler := handlers.NewAuthHandler(deps.Accounts, deps.Tokens, env)
	eventsHandler := handlers.NewEventsHandler(deps.Events, env)
	registrationsHandler := handlers.NewRegistrationsHandler(deps.Registrations, env)
	usersHandler := handlers.NewUsersHandler(deps.Accounts, env)
	health := handlers.NewHealthChecker(deps.DB, env, deps.Build.Version, deps.Build.GitCommit)

	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	loginLimit := limiter.Handler(middleware.TierLogin)
	requireAuth := middleware.Authenticate(deps.Tokens, deps.AccountLookup, env)
	protected := func(h http.HandlerFunc) http.Handler { return requireAuth(h) }

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", health.Root)
	mux.HandleFunc("GET /api/health", health.APIHealth)
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz)
	mux.Handle("GET /version", VersionHandler(deps.Build, deps.Started))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("POST /api/auth/register", loginLimit(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/auth/login", loginLimit(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)

	mux.HandleFunc("GET /api/events", eventsHandler.List)
	mux.HandleFunc("GET /api/events/search", eventsHandler.Search)
	mux.HandleFunc("GET /api/events/{id}", eventsHandler.Get)
	mux.Handle("POST /api/events", protected(eventsHandler.Create))
	mux.Handle("GET /api/events/creator/{userId}", protected(eventsHandler.ListByCreator))
	mux.Handle("PUT /api/events/{id}", protected(eventsHandler.Update))
	mux.Handle("DELETE /api/events/{id}", protected(eventsHandler.Delete))

	mux.Handle("POST /api/events/{id}/register", protected(registrationsHandler.Register))
	mux.Handle("DELETE /api/events/{id}/register", protected(registrationsHandler.Cancel))
	mux.Handle("GET /api/events/users/{id}/registrations", protected(registrationsHandler.ListForAccount))

	mux.Handle("GET /api/users/profile", protected(usersHandler.Profile))
	mux.Handle("PUT /api/users/profile", protected(usersHandler.UpdateProfile))
	mux.Handle("PUT /api/users/change-password", protected(usersHandler.ChangePassword))
	mux.Handle("GET /api/users/stats", protected(usersHandler.Stats))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusNotFound, problem.MessageNotFound, nil, env)
	})

	var handler http.Handler = mux
	handler = middleware.RequestSize(middleware.DefaultMaxBodySize)(handler)
	handler = limiter.Handler(middleware.TierPublic)(handler)
	handler = middleware.CORS(cfg.CORS, deps.Logger)(handler)
	handler = middleware.SecurityHeaders(env == "production")(handler)
	handler = middleware.RequestLogging(deps.Logger)(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	handler = middleware.Recover(deps.Logger, env)(handler)

	return &Router{handler: handler, limiter: limiter}
}
