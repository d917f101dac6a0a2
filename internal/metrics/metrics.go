package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all rsvp metrics
const namespace = "rsvp"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// HealthStatus tracks the last readiness result.
// Values: 0 = unhealthy, 2 = healthy
var HealthStatus = promauto.With(Registry).NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_status",
		Help:      "Server readiness (0=unhealthy, 2=healthy)",
	},
)

// Registration outcomes
const (
	OutcomeConfirmed        = "confirmed"
	OutcomeCapacityExceeded = "capacity_exceeded"
	OutcomeDuplicate        = "duplicate"
	OutcomeEventNotFound    = "event_not_found"
	OutcomeError            = "error"
)

// Domain metrics
var (
	// RegistrationAttempts counts registration attempts by outcome
	RegistrationAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_attempts_total",
			Help:      "Total number of event registration attempts",
		},
		[]string{"outcome"},
	)

	RegistrationCancellations = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_cancellations_total",
			Help:      "Total number of cancelled registrations",
		},
	)

	// AuthAttempts counts sign-ups and logins by result
	AuthAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Total number of sign-up and login attempts",
		},
		[]string{"action", "result"}, // action: register|login, result: success|failure
	)

	// JobFailures counts background job failures; final is "true" once River gives up
	JobFailures = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_failures_total",
			Help:      "Total number of background job failures",
		},
		[]string{"kind", "final"},
	)
)

// Init registers runtime collectors and sets version information.
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
