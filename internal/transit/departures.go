package transit

import (
	"context"
	"sort"
	"time"

	"wayfinder.transitlab.org/internal/cache"
	"wayfinder.transitlab.org/internal/fallback"
	"wayfinder.transitlab.org/internal/models"
)

const defaultDepartureLimit = 10

// GetDepartures returns upcoming departures from a stop, scheduled data
// overlaid with the latest realtime snapshot. Sorted ascending by
// estimated time, ties broken by scheduled time. A stop no provider
// knows yields an empty list, never an error.
func (e *Engine) GetDepartures(ctx context.Context, stopID string, limit int) []models.Departure {
	if limit <= 0 {
		limit = defaultDepartureLimit
	}

	scheduled := e.scheduledDepartures(ctx, stopID, limit)

	// The realtime overlay is applied after the chain so cached schedule
	// data still picks up fresh predictions.
	merged := make([]models.Departure, len(scheduled))
	for i, departure := range scheduled {
		if update, ok := e.realtimeUpdateFor(departure.TripID, departure.StopID); ok {
			departure.Realtime = true
			departure.DelaySeconds = update.DelaySeconds
			departure.Estimated = departure.Scheduled.Add(time.Duration(update.DelaySeconds) * time.Second)
		}
		merged[i] = departure
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Estimated.Equal(merged[j].Estimated) {
			return merged[i].Estimated.Before(merged[j].Estimated)
		}
		return merged[i].Scheduled.Before(merged[j].Scheduled)
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// scheduledDepartures resolves the schedule-only departure board through
// the provider chain, cached under the schedules TTL class.
func (e *Engine) scheduledDepartures(ctx context.Context, stopID string, limit int) []models.Departure {
	key := cache.Key("scheduled_departures", stopID, limit)
	if cached, ok := e.queryCache.Get(key); ok {
		return cached.([]models.Departure)
	}

	chain := fallback.Chain[[]models.Departure]{
		Operation: "get_departures",
		Providers: []fallback.Provider[[]models.Departure]{
			{Name: "local_store", Fetch: func(ctx context.Context) ([]models.Departure, error) {
				return e.localScheduledDepartures(ctx, stopID, limit)
			}},
			{Name: "aggregator", Fetch: func(ctx context.Context) ([]models.Departure, error) {
				return e.aggregator.Departures(ctx, stopID, limit)
			}},
		},
		Valid: func(departures []models.Departure) bool { return len(departures) > 0 },
		// No departures is an honest answer for a stop with no service;
		// nothing to synthesize.
		Synthesize:    func(ctx context.Context) []models.Departure { return []models.Departure{} },
		Logger:        e.logger,
		OnAttempt:     e.observeAttempt,
		OnSynthesized: e.observeSynthesized,
	}

	result := chain.Execute(ctx)
	if !result.Synthesized {
		e.queryCache.Set(key, cache.ClassSchedules, result.Value)
	}
	return result.Value
}

// localScheduledDepartures reads the next scheduled departures from the
// store, anchored at the current clock: today's remaining calls first,
// then tomorrow's earliest.
func (e *Engine) localScheduledDepartures(ctx context.Context, stopID string, limit int) ([]models.Departure, error) {
	if e.Store == nil {
		return nil, ErrStoreUnavailable
	}

	serving, err := e.Store.Queries.TripsServingStop(ctx, stopID)
	if err != nil {
		return nil, err
	}
	if len(serving) == 0 {
		return nil, ErrDataNotFound
	}

	now := e.clock.Now()
	nowSecs := secondsSinceMidnight(now)
	serviceMidnight := now.Add(-time.Duration(nowSecs) * time.Second)

	departures := make([]models.Departure, 0, len(serving))
	for _, ts := range serving {
		departSecs := ts.StopTime.DepartureSec
		dayOffset := 0
		if departSecs < nowSecs {
			dayOffset = secondsPerDay
		}
		scheduled := serviceMidnight.Add(time.Duration(departSecs+dayOffset) * time.Second)
		departures = append(departures, models.Departure{
			StopID:    stopID,
			TripID:    ts.Trip.ID,
			RouteID:   ts.Trip.RouteID,
			Headsign:  ts.Trip.Headsign,
			Scheduled: scheduled,
			Estimated: scheduled,
		})
	}

	sort.SliceStable(departures, func(i, j int) bool {
		return departures[i].Scheduled.Before(departures[j].Scheduled)
	})
	if len(departures) > limit {
		departures = departures[:limit]
	}
	return departures, nil
}
