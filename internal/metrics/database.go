package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DBQueryDuration is observed by the repositories for each named query.
	DBQueryDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Duration of repository queries in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	DBErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_errors_total",
			Help:      "Repository queries that returned an error, by kind.",
		},
		[]string{"operation", "error_type"},
	)
)

// RecordQuery observes a repository query. Typical use:
//
//	start := time.Now()
//	defer func() { metrics.RecordQuery("list_upcoming_events", start, err) }()
func RecordQuery(operation string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	kind := "query_error"
	switch {
	case errors.Is(err, context.Canceled):
		kind = "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		kind = "timeout"
	}
	DBErrors.WithLabelValues(operation, kind).Inc()
}

// PoolStats is the part of pgxpool.Stat exported on /metrics.
type PoolStats struct {
	Total            int32
	Acquired         int32
	Idle             int32
	Max              int32
	AcquireCount     int64
	CanceledAcquires int64
	EmptyAcquires    int64
	AcquireWait      time.Duration
}

// poolCollector reads pool statistics at scrape time.
type poolCollector struct {
	stats func() PoolStats

	total    *prometheus.Desc
	acquired *prometheus.Desc
	idle     *prometheus.Desc
	max      *prometheus.Desc
	acquires *prometheus.Desc
	canceled *prometheus.Desc
	empty    *prometheus.Desc
	wait     *prometheus.Desc
}

func newPoolCollector(stats func() PoolStats) *poolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db", name), help, nil, nil)
	}
	return &poolCollector{
		stats:    stats,
		total:    desc("connections_open", "Connections currently open in the pool."),
		acquired: desc("connections_in_use", "Connections currently acquired from the pool."),
		idle:     desc("connections_idle", "Idle connections in the pool."),
		max:      desc("connections_max_open", "Maximum size of the pool."),
		acquires: desc("acquires_total", "Successful connection acquisitions."),
		canceled: desc("acquires_canceled_total", "Acquisitions canceled by their context."),
		empty:    desc("acquires_waited_total", "Acquisitions that had to wait for a free connection."),
		wait:     desc("acquire_wait_seconds_total", "Time spent waiting for connections."),
	}
}

// NewPoolCollector exports the statistics of pool.
func NewPoolCollector(pool *pgxpool.Pool) prometheus.Collector {
	return newPoolCollector(func() PoolStats {
		s := pool.Stat()
		return PoolStats{
			Total:            s.TotalConns(),
			Acquired:         s.AcquiredConns(),
			Idle:             s.IdleConns(),
			Max:              s.MaxConns(),
			AcquireCount:     s.AcquireCount(),
			CanceledAcquires: s.CanceledAcquireCount(),
			EmptyAcquires:    s.EmptyAcquireCount(),
			AcquireWait:      s.AcquireDuration(),
		}
	})
}

// RegisterPool adds the pool collector to Registry.
func RegisterPool(pool *pgxpool.Pool) error {
	return Registry.Register(NewPoolCollector(pool))
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.total, c.acquired, c.idle, c.max, c.acquires, c.canceled, c.empty, c.wait} {
		ch <- d
	}
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.Total))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.Acquired))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.Max))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(c.canceled, prometheus.CounterValue, float64(s.CanceledAcquires))
	ch <- prometheus.MustNewConstMetric(c.empty, prometheus.CounterValue, float64(s.EmptyAcquires))
	ch <- prometheus.MustNewConstMetric(c.wait, prometheus.CounterValue, s.AcquireWait.Seconds())
}
