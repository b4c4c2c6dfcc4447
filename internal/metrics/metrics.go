// Package metrics provides Prometheus metrics for the wayfinder engine.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Fallback-chain metrics
	ProviderAttemptsTotal *prometheus.CounterVec
	SynthesizedTotal      *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Loader metrics
	LoaderRunsTotal    *prometheus.CounterVec
	RealtimePollsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitSecondsTotal prometheus.Counter

	// logger for error reporting
	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool

	// cancel stops the DB stats collector goroutine
	cancel context.CancelFunc

	// wg tracks the DB stats collector goroutine for graceful shutdown
	wg sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfinder_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wayfinder_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	providerAttemptsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfinder_provider_attempts_total",
			Help: "Fallback-chain provider attempts by operation and outcome",
		},
		[]string{"operation", "provider", "outcome"},
	)

	synthesizedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfinder_synthesized_results_total",
			Help: "Results synthesized after every provider in a chain failed",
		},
		[]string{"operation"},
	)

	cacheHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfinder_cache_hits_total",
			Help: "Cache hits by TTL class",
		},
		[]string{"class"},
	)

	cacheMissesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfinder_cache_misses_total",
			Help: "Cache misses (absent or expired) by TTL class",
		},
		[]string{"class"},
	)

	loaderRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfinder_loader_runs_total",
			Help: "Static data loader runs by agency source kind and outcome",
		},
		[]string{"source", "outcome"},
	)

	realtimePollsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfinder_realtime_polls_total",
			Help: "Realtime feed poll attempts by outcome",
		},
		[]string{"outcome"},
	)

	dbConnectionsOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wayfinder_db_connections_open",
		Help: "Number of open database connections",
	})

	dbConnectionsInUse := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wayfinder_db_connections_in_use",
		Help: "Number of database connections currently in use",
	})

	dbConnectionsIdle := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wayfinder_db_connections_idle",
		Help: "Number of idle database connections",
	})

	dbWaitSecondsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wayfinder_db_wait_seconds_total",
		Help: "Total time blocked waiting for a database connection",
	})

	// Register all metrics with the custom registry
	registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		providerAttemptsTotal,
		synthesizedTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		loaderRunsTotal,
		realtimePollsTotal,
		dbConnectionsOpen,
		dbConnectionsInUse,
		dbConnectionsIdle,
		dbWaitSecondsTotal,
	)

	return &Metrics{
		Registry:              registry,
		HTTPRequestsTotal:     httpRequestsTotal,
		HTTPRequestDuration:   httpRequestDuration,
		ProviderAttemptsTotal: providerAttemptsTotal,
		SynthesizedTotal:      synthesizedTotal,
		CacheHitsTotal:        cacheHitsTotal,
		CacheMissesTotal:      cacheMissesTotal,
		LoaderRunsTotal:       loaderRunsTotal,
		RealtimePollsTotal:    realtimePollsTotal,
		DBConnectionsOpen:     dbConnectionsOpen,
		DBConnectionsInUse:    dbConnectionsInUse,
		DBConnectionsIdle:     dbConnectionsIdle,
		DBWaitSecondsTotal:    dbWaitSecondsTotal,
		logger:                logger,
	}
}

// StartDBStatsCollector starts a goroutine that periodically collects database
// connection pool statistics. Calling it more than once has no effect.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}

	// Prevent spawning multiple collectors
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	var lastWaitDuration time.Duration

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in DB stats collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
				m.DBConnectionsInUse.Set(float64(stats.InUse))
				m.DBConnectionsIdle.Set(float64(stats.Idle))

				// Add the delta of wait duration since last check
				waitDelta := stats.WaitDuration - lastWaitDuration
				if waitDelta > 0 {
					m.DBWaitSecondsTotal.Add(waitDelta.Seconds())
				}
				lastWaitDuration = stats.WaitDuration

			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the DB stats collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
