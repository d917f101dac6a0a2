package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	healthcheckCmd = &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /readyz endpoint.

Used as the container HEALTHCHECK. Exits 0 when the server reports
"healthy" and 1 otherwise.`,
		RunE: runHealthcheck,
	}

	healthcheckTimeout int
	healthcheckURL     string
	healthcheckFormat  string
)

func init() {
	healthcheckCmd.Flags().IntVar(&healthcheckTimeout, "timeout", 5, "timeout in seconds")
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "", "readiness URL (default: http://localhost:{SERVER_PORT}/readyz)")
	healthcheckCmd.Flags().StringVar(&healthcheckFormat, "format", "text", "output format (text, json)")
}

// HealthResponse is the subset of the /readyz document the check reads.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type HealthCheckResult struct {
	URL        string                 `json:"url"`
	IsHealthy  bool                   `json:"healthy"`
	Status     string                 `json:"status,omitempty"`
	HTTPStatus int                    `json:"http_status,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	LatencyMs  int64                  `json:"latency_ms"`
	Error      string                 `json:"error,omitempty"`
}

func defaultHealthcheckURL() string {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "5000"
	}
	return fmt.Sprintf("http://localhost:%s/readyz", port)
}

func performHealthCheck(url string) HealthCheckResult {
	result := HealthCheckResult{URL: url}
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(healthcheckTimeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Sprintf("create request: %v", err)
		return finish(result, start)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return finish(result, start)
	}
	defer func() { _ = resp.Body.Close() }()
	result.HTTPStatus = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		result.Error = fmt.Sprintf("read response: %v", err)
		return finish(result, start)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		result.Error = fmt.Sprintf("parse response: %v", err)
		return finish(result, start)
	}
	result.Status = health.Status
	result.Checks = health.Checks
	result.IsHealthy = resp.StatusCode == http.StatusOK && health.Status == "healthy"
	return finish(result, start)
}

func finish(result HealthCheckResult, start time.Time) HealthCheckResult {
	result.LatencyMs = time.Since(start).Milliseconds()
	return result
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	url := healthcheckURL
	if url == "" {
		url = defaultHealthcheckURL()
	}

	result := performHealthCheck(url)
	if err := writeHealthResult(cmd.OutOrStdout(), result, healthcheckFormat); err != nil {
		return err
	}
	if !result.IsHealthy {
		os.Exit(1)
	}
	return nil
}

func writeHealthResult(out io.Writer, result HealthCheckResult, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "text", "":
		state := "healthy"
		if !result.IsHealthy {
			state = "unhealthy"
		}
		fmt.Fprintf(out, "%s: %s (%dms)\n", result.URL, state, result.LatencyMs)
		for name, check := range result.Checks {
			fmt.Fprintf(out, "  %-12s %s %s\n", name, check.Status, check.Message)
		}
		if result.Error != "" {
			fmt.Fprintf(out, "  error: %s\n", result.Error)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
}
