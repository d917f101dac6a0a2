package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/jackc/pgx/v5"
)

const serviceName = "Event Management API"

// Database is the part of *pgxpool.Pool the readiness checks use.
type Database interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HealthCheck is the /readyz document.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

type CheckResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type HealthChecker struct {
	db        Database
	env       string
	version   string
	gitCommit string
	now       func() time.Time
}

func NewHealthChecker(db Database, env, version, gitCommit string) *HealthChecker {
	return &HealthChecker{db: db, env: env, version: version, gitCommit: gitCommit, now: time.Now}
}

type statusResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service,omitempty"`
	Message     string `json:"message,omitempty"`
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment"`
}

// Root identifies the service at GET /.
func (h *HealthChecker) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:      "OK",
		Service:     serviceName,
		Timestamp:   h.timestamp(),
		Environment: h.env,
	})
}

// APIHealth is the client-facing liveness document at /api/health.
func (h *HealthChecker) APIHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:      "OK",
		Message:     serviceName + " is running",
		Timestamp:   h.timestamp(),
		Environment: h.env,
	})
}

// Healthz reports that the process is serving. It never touches the database.
func (h *HealthChecker) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz checks the database and schema and answers 503 when either fails.
func (h *HealthChecker) Readyz(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
		metrics.HealthStatus.Set(0)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	default:
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]CheckResult{
		"database":   h.checkDatabase(ctx),
		"migrations": h.checkMigrations(ctx),
		"job_queue":  h.checkJobQueue(ctx),
	}

	status, code := "healthy", http.StatusOK
	for _, check := range checks {
		if check.Status != "pass" {
			status, code = "unhealthy", http.StatusServiceUnavailable
			break
		}
	}
	if code == http.StatusOK {
		metrics.HealthStatus.Set(2)
	} else {
		metrics.HealthStatus.Set(0)
	}

	writeJSON(w, code, HealthCheck{
		Status:    status,
		Version:   h.version,
		GitCommit: h.gitCommit,
		Checks:    checks,
		Timestamp: h.timestamp(),
	})
}

func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	if h.db == nil {
		return CheckResult{Status: "fail", Message: "Database pool not initialized"}
	}

	start := time.Now()
	dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := h.db.Ping(dbCtx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		message := "Database ping failed"
		if errors.Is(dbCtx.Err(), context.DeadlineExceeded) {
			message = "Database ping timed out after 2 seconds"
		}
		return CheckResult{Status: "fail", Message: message, LatencyMs: latency}
	}
	return CheckResult{Status: "pass", Message: "PostgreSQL connection successful", LatencyMs: latency}
}

// checkMigrations fails when the schema was never migrated or a migration
// stopped halfway.
func (h *HealthChecker) checkMigrations(ctx context.Context) CheckResult {
	if h.db == nil {
		return CheckResult{Status: "fail", Message: "Database pool not initialized"}
	}

	start := time.Now()
	migCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var (
		version int64
		dirty   bool
	)
	err := h.db.QueryRow(migCtx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	latency := time.Since(start).Milliseconds()
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return CheckResult{Status: "fail", Message: "No migrations applied", LatencyMs: latency}
	case err != nil:
		return CheckResult{Status: "fail", Message: "Failed to query migration version", LatencyMs: latency}
	case dirty:
		return CheckResult{Status: "fail", Message: fmt.Sprintf("Migration %d is dirty; manual intervention required", version), LatencyMs: latency}
	}
	return CheckResult{Status: "pass", Message: fmt.Sprintf("Migrations applied (version %d)", version), LatencyMs: latency}
}

// jobQueueSQL reports whether River's schema exists. Registrations enqueue
// their confirmation inside the same transaction, so without it every
// registration fails.
const jobQueueSQL = `SELECT to_regclass('river_job') IS NOT NULL`

func (h *HealthChecker) checkJobQueue(ctx context.Context) CheckResult {
	if h.db == nil {
		return CheckResult{Status: "fail", Message: "Database pool not initialized"}
	}

	start := time.Now()
	qCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var present bool
	err := h.db.QueryRow(qCtx, jobQueueSQL).Scan(&present)
	latency := time.Since(start).Milliseconds()
	switch {
	case err != nil:
		return CheckResult{Status: "fail", Message: "Failed to query job queue schema", LatencyMs: latency}
	case !present:
		return CheckResult{Status: "fail", Message: "Job queue tables missing; run migrate up", LatencyMs: latency}
	}
	return CheckResult{Status: "pass", Message: "Job queue tables present", LatencyMs: latency}
}

func (h *HealthChecker) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}
