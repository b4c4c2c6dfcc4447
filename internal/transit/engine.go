// Package transit implements the transit data and itinerary engine: a
// locally persisted copy of multi-agency static schedule data, reconciled
// with intermittently available live prediction feeds, answering trip
// planning and departure queries even when upstream sources are down.
package transit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/robfig/cron/v3"
	"wayfinder.transitlab.org/internal/cache"
	"wayfinder.transitlab.org/internal/clock"
	"wayfinder.transitlab.org/internal/logging"
	"wayfinder.transitlab.org/internal/metrics"
	"wayfinder.transitlab.org/internal/models"
	"wayfinder.transitlab.org/transitdb"
)

// staticDataTTL is how long an agency's static data counts as fresh.
const staticDataTTL = 7 * 24 * time.Hour

// Engine is the transit engine service object. Construct it once with
// NewEngine and injected configuration; it holds no ambient global state.
type Engine struct {
	config     Config
	logger     *slog.Logger
	clock      clock.Clock
	metrics    *metrics.Metrics
	aggregator *AggregatorClient

	// Store is nil when persistence failed to initialize; the engine then
	// runs remote-only and every local provider link reports unavailable.
	Store *transitdb.Client

	queryCache *cache.Store
	walkCache  gcache.Cache

	staticMutex sync.RWMutex
	stopIndex   *transitdb.StopIndex
	agencies    []models.Agency
	initialized bool

	realTimeMutex sync.RWMutex
	realtime      realtimeSnapshot

	wg           sync.WaitGroup
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	cronRunner   *cron.Cron
}

// NewEngine constructs the engine. A store initialization failure is
// degraded to remote-only mode: logged at error level, never fatal.
func NewEngine(config Config, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "transit_engine"))

	engine := &Engine{
		config:       config,
		logger:       logger,
		clock:        clk,
		metrics:      m,
		aggregator:   NewAggregatorClient(config.AggregatorURL, config.APIKeys["aggregator"]),
		queryCache:   cache.New(cache.DefaultCap, clk),
		shutdownChan: make(chan struct{}),
	}

	// Walking-estimate cache: coordinate-pair keyed, LRU, long TTL.
	engine.walkCache = gcache.New(10000).
		LRU().
		Expiration(24 * time.Hour).
		Build()

	if m != nil {
		engine.queryCache.Observe(
			func(class cache.Class) { m.CacheHitsTotal.WithLabelValues(string(class)).Inc() },
			func(class cache.Class) { m.CacheMissesTotal.WithLabelValues(string(class)).Inc() },
		)
	}

	dbConfig := transitdb.NewConfig(config.DataPath, config.Env, config.Verbose)
	store, err := transitdb.NewClient(dbConfig)
	if err != nil {
		logging.LogError(logger, "static store unavailable, continuing remote-only", err,
			slog.String("db_path", config.DataPath))
	} else {
		engine.Store = store
		if m != nil {
			m.StartDBStatsCollector(store.DB, time.Minute)
		}
	}

	return engine
}

// Initialize determines the active agency set, kicks off the initial
// static load in the background, and starts the realtime poll loop and
// the daily freshness sweep. It never blocks on upstream availability.
func (e *Engine) Initialize(ctx context.Context) error {
	agencies := e.resolveAgencies(ctx)

	if e.Store != nil {
		for _, agency := range agencies {
			if err := e.Store.Queries.UpsertAgency(ctx, agency); err != nil {
				logging.LogWarning(e.logger, "failed to register agency", err,
					slog.String("agency", agency.ID))
			}
		}
	}

	e.staticMutex.Lock()
	e.agencies = agencies
	e.initialized = true
	e.staticMutex.Unlock()

	logging.LogOperation(e.logger, "engine_initialized",
		slog.Int("agencies", len(agencies)),
		slog.Bool("remote_only", e.Store == nil))

	// Initial load: concurrent per-agency, settle-all, never blocks
	// initialization. Failures retain whatever data is already stored.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.RefreshStaleAgencies(context.Background())
	}()

	e.wg.Add(1)
	go e.pollRealtimePeriodically()

	e.startFreshnessSweep()

	return nil
}

// resolveAgencies builds the active agency set: the explicit list, plus
// agencies detected near the configured location, plus the default
// aggregator if the set would otherwise be empty.
func (e *Engine) resolveAgencies(ctx context.Context) []models.Agency {
	seen := make(map[string]bool)
	var agencies []models.Agency

	for _, agencyCfg := range e.config.Agencies {
		if agencyCfg.ID == "" || seen[agencyCfg.ID] {
			continue
		}
		seen[agencyCfg.ID] = true
		agencies = append(agencies, models.Agency{
			ID:         agencyCfg.ID,
			Name:       agencyCfg.Name,
			SourceKind: agencyCfg.Source.Kind,
		})
	}

	if e.config.Location != nil {
		detected, err := e.aggregator.DetectAgencies(ctx, *e.config.Location)
		if err != nil {
			logging.LogWarning(e.logger, "agency detection failed", err)
		}
		for _, agency := range detected {
			if seen[agency.ID] {
				continue
			}
			seen[agency.ID] = true
			agencies = append(agencies, agency)
		}
	}

	if len(agencies) == 0 {
		agencies = append(agencies, models.Agency{
			ID:         "aggregator-default",
			Name:       "Aggregated Transit",
			SourceKind: models.SourceKindAggregator,
		})
	}

	return agencies
}

// Agencies returns the active agency set.
func (e *Engine) Agencies() []models.Agency {
	e.staticMutex.RLock()
	defer e.staticMutex.RUnlock()
	out := make([]models.Agency, len(e.agencies))
	copy(out, e.agencies)
	return out
}

// IsReady reports whether agency resolution has completed. Static data
// may still be loading; reads degrade through the fallback chain.
func (e *Engine) IsReady() bool {
	e.staticMutex.RLock()
	defer e.staticMutex.RUnlock()
	return e.initialized
}

// StopIndexSnapshot returns the most recently committed spatial index;
// nil until the first successful load.
func (e *Engine) StopIndexSnapshot() *transitdb.StopIndex {
	e.staticMutex.RLock()
	defer e.staticMutex.RUnlock()
	return e.stopIndex
}

// setStopIndex swaps in a freshly built spatial index.
func (e *Engine) setStopIndex(index *transitdb.StopIndex) {
	e.staticMutex.Lock()
	defer e.staticMutex.Unlock()
	e.stopIndex = index
}

// startFreshnessSweep schedules the daily static-freshness check. The
// realtime loop covers seconds-scale staleness; this covers the 7-day
// static TTL without keeping a per-request check on the hot path.
func (e *Engine) startFreshnessSweep() {
	runner := cron.New()
	_, err := runner.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		e.RefreshStaleAgencies(ctx)
	})
	if err != nil {
		logging.LogError(e.logger, "failed to schedule freshness sweep", err)
		return
	}
	runner.Start()
	e.cronRunner = runner
}

// Shutdown stops background work and closes the store. Safe to call more
// than once.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		close(e.shutdownChan)
		if e.cronRunner != nil {
			e.cronRunner.Stop()
		}
		e.wg.Wait()
		if e.Store != nil {
			logging.SafeCloseWithLogging(e.Store, e.logger, "static_store")
		}
		logging.LogOperation(e.logger, "engine_shutdown_complete")
	})
}

// observeAttempt feeds fallback-chain provider outcomes into metrics.
func (e *Engine) observeAttempt(operation, provider, outcome string) {
	if e.metrics != nil {
		e.metrics.ProviderAttemptsTotal.WithLabelValues(operation, provider, outcome).Inc()
	}
}

// observeSynthesized counts chain exhaustion per operation.
func (e *Engine) observeSynthesized(operation string) {
	if e.metrics != nil {
		e.metrics.SynthesizedTotal.WithLabelValues(operation).Inc()
	}
}
