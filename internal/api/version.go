package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"
)

// BuildInfo is stamped into the binary with -ldflags at build time.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

func (b BuildInfo) withDefaults() BuildInfo {
	if b.Version == "" {
		b.Version = "dev"
	}
	if b.GitCommit == "" {
		b.GitCommit = "unknown"
	}
	if b.BuildDate == "" {
		b.BuildDate = "unknown"
	}
	return b
}

type versionResponse struct {
	Version       string `json:"version"`
	GitCommit     string `json:"git_commit"`
	BuildDate     string `json:"build_date"`
	GoVersion     string `json:"go_version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// VersionHandler serves build metadata and process uptime counted from started.
func VersionHandler(info BuildInfo, started time.Time) http.Handler {
	info = info.withDefaults()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := versionResponse{
			Version:       info.Version,
			GitCommit:     info.GitCommit,
			BuildDate:     info.BuildDate,
			GoVersion:     runtime.Version(),
			UptimeSeconds: int64(time.Since(started).Seconds()),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	})
}
