package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/domain/accounts"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/email"
	"github.com/Togather-Foundation/rsvp/internal/jobs"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/Togather-Foundation/rsvp/internal/storage/postgres"
	"github.com/Togather-Foundation/rsvp/internal/telemetry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the RSVP HTTP server",
	Long: `Start the RSVP HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (or --config file if provided)
- Connect to PostgreSQL and start the confirmation workers (JOBS_ENABLED)
- Serve the JSON API under /api plus /healthz, /readyz, /metrics and /version
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  server serve --log-level debug --log-format console`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 5000)")
}

func runServer() error {
	started := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting RSVP server")

	metrics.Init(Version, GitCommit, BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing init failed: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	poolCtx, poolCancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := postgres.NewPool(poolCtx, cfg.Database.URL, cfg.Database.MaxConnections)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return fmt.Errorf("repository init failed: %w", err)
	}

	if err := metrics.RegisterPool(pool); err != nil {
		return fmt.Errorf("pool metrics: %w", err)
	}

	riverClient, err := newJobClient(cfg, pool, repo, logger)
	if err != nil {
		return err
	}
	repo.RegistrationStore().SetJobInserter(riverClient)

	if cfg.Jobs.Enabled {
		if err := riverClient.Start(ctx); err != nil {
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Msg("confirmation workers started")
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := riverClient.Stop(stopCtx); err != nil {
				logger.Error().Err(err).Msg("river workers shutdown error")
				return
			}
			logger.Info().Msg("river workers stopped")
		}()
	} else {
		logger.Warn().Msg("jobs disabled; confirmations are queued but not delivered by this process")
	}

	router := api.NewRouter(api.Dependencies{
		Config:        cfg,
		Logger:        logger,
		Accounts:      accounts.NewService(repo.Accounts(), logger),
		Events:        events.NewService(repo.Events(), logger),
		Registrations: registrations.NewService(repo.Registrations(), logger),
		AccountLookup: repo.Accounts(),
		Tokens:        newJWTManager(cfg),
		DB:            pool,
		Build:         buildInfo(),
		Started:       started,
	})
	defer router.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	return gracefulShutdown(server, logger)
}

// newJobClient builds a working River client when jobs are enabled and an
// insert-only one otherwise, so registrations can always enqueue.
func newJobClient(cfg config.Config, pool *pgxpool.Pool, repo *postgres.Repository, logger zerolog.Logger) (*river.Client[pgx.Tx], error) {
	slogger := config.NewSlogLogger(cfg.Logging)

	if !cfg.Jobs.Enabled {
		client, err := jobs.NewInsertOnlyClient(pool, slogger)
		if err != nil {
			return nil, fmt.Errorf("river client init failed: %w", err)
		}
		return client, nil
	}

	mailer, err := email.NewService(cfg.Email, cfg.Server.BaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("email service init failed: %w", err)
	}

	workers := jobs.NewWorkers(repo.RegistrationStore(), mailer, slogger)
	hooks := []rivertype.Hook{metrics.NewRiverMetricsHook()}
	client, err := jobs.NewClient(pool, workers, slogger, hooks, cfg.Jobs, metrics.RecordJobFailure)
	if err != nil {
		return nil, fmt.Errorf("river client init failed: %w", err)
	}
	return client, nil
}

func newJWTManager(cfg config.Config) *auth.JWTManager {
	return auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.Issuer)
}

func gracefulShutdown(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
