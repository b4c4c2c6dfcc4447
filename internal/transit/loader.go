package transit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wayfinder.transitlab.org/internal/logging"
	"wayfinder.transitlab.org/transitdb"
)

// loadResult carries one agency's refresh outcome back to the gatherer.
type loadResult struct {
	agencyID string
	loaded   bool
	err      error
}

// RefreshStaleAgencies reloads static data for every agency whose stored
// copy is older than the static TTL. Agencies load concurrently and all
// are allowed to settle; one agency's failure never aborts the others.
// Returns the number of agencies actually reloaded.
func (e *Engine) RefreshStaleAgencies(ctx context.Context) int {
	agencies := e.Agencies()
	if len(agencies) == 0 {
		return 0
	}

	results := make(chan loadResult, len(agencies))
	var wg sync.WaitGroup

	for _, agency := range agencies {
		agencyCfg, ok := e.agencyConfig(agency.ID)
		if !ok {
			// Detected agency with no explicit config: serve it through
			// the aggregator.
			agencyCfg = AgencyConfig{
				ID:     agency.ID,
				Name:   agency.Name,
				Source: SourceConfig{Kind: agency.SourceKind},
			}
		}

		wg.Add(1)
		go func(cfg AgencyConfig) {
			defer wg.Done()
			loaded, err := e.refreshAgency(ctx, cfg)
			results <- loadResult{agencyID: cfg.ID, loaded: loaded, err: err}
		}(agencyCfg)
	}

	wg.Wait()
	close(results)

	reloaded := 0
	for result := range results {
		if result.err != nil {
			logging.LogWarning(e.logger, "agency refresh failed, retaining stored data", result.err,
				slog.String("agency", result.agencyID))
			continue
		}
		if result.loaded {
			reloaded++
		}
	}

	if reloaded > 0 {
		e.rebuildStopIndex(ctx)
	}

	return reloaded
}

// refreshAgency reloads one agency if its stored data is stale. Returns
// whether a load actually happened.
func (e *Engine) refreshAgency(ctx context.Context, agencyCfg AgencyConfig) (bool, error) {
	if e.Store == nil {
		return false, nil
	}

	freshness, err := e.Store.Queries.GetFreshness(ctx, agencyCfg.ID)
	if err == nil && !freshness.IsZero() && e.clock.Now().Sub(freshness) < staticDataTTL {
		return false, nil
	}

	start := e.clock.Now()
	source := e.sourceForAgency(agencyCfg)

	dataset, err := source.Load(ctx, agencyCfg.ID)
	if err != nil {
		e.recordLoaderRun(string(source.Kind()), "error")
		return false, fmt.Errorf("loading agency %s: %w", agencyCfg.ID, err)
	}
	if len(dataset.Stops) == 0 {
		e.recordLoaderRun(string(source.Kind()), "empty")
		return false, fmt.Errorf("agency %s: source returned no stops", agencyCfg.ID)
	}

	if err := e.Store.ReplaceAgencyData(ctx, dataset); err != nil {
		e.recordLoaderRun(string(source.Kind()), "error")
		return false, fmt.Errorf("storing agency %s: %w", agencyCfg.ID, err)
	}
	if err := e.Store.Queries.SetFreshness(ctx, agencyCfg.ID, e.clock.Now()); err != nil {
		logging.LogWarning(e.logger, "failed to record freshness", err,
			slog.String("agency", agencyCfg.ID))
	}

	e.recordLoaderRun(string(source.Kind()), "success")
	logging.LogOperation(e.logger, "agency_data_loaded",
		slog.String("agency", agencyCfg.ID),
		slog.String("source", string(source.Kind())),
		slog.Int("stops", len(dataset.Stops)),
		slog.Int("routes", len(dataset.Routes)),
		slog.Int("trips", len(dataset.Trips)),
		slog.Int("stop_times", len(dataset.StopTimes)),
		slog.Duration("duration", e.clock.Now().Sub(start)))

	// A fresh static load invalidates derived query results.
	e.queryCache.InvalidateClass()

	return true, nil
}

// rebuildStopIndex rebuilds the spatial index from the store and swaps
// it in atomically.
func (e *Engine) rebuildStopIndex(ctx context.Context) {
	if e.Store == nil {
		return
	}
	buildCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	index, err := transitdb.BuildStopIndex(buildCtx, e.Store.Queries)
	if err != nil {
		logging.LogError(e.logger, "failed to rebuild stop index", err)
		return
	}
	e.setStopIndex(index)
	logging.LogOperation(e.logger, "stop_index_rebuilt", slog.Int("stops", index.Len()))
}

// agencyConfig finds the explicit configuration for an agency ID.
func (e *Engine) agencyConfig(agencyID string) (AgencyConfig, bool) {
	for _, agencyCfg := range e.config.Agencies {
		if agencyCfg.ID == agencyID {
			return agencyCfg, true
		}
	}
	return AgencyConfig{}, false
}

func (e *Engine) recordLoaderRun(source, outcome string) {
	if e.metrics != nil {
		e.metrics.LoaderRunsTotal.WithLabelValues(source, outcome).Inc()
	}
}
