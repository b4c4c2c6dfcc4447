package transit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OneBusAway/go-gtfs"
	"wayfinder.transitlab.org/internal/cache"
	"wayfinder.transitlab.org/internal/logging"
	"wayfinder.transitlab.org/internal/models"
)

// realtimeSnapshot is one atomically swapped view of live data. Readers
// take the whole struct under RLock; the poll loop replaces it wholesale
// so a request never sees a half-updated merge.
type realtimeSnapshot struct {
	// updates keyed "tripID|stopID" for the departure merge path
	updates map[string]models.RealtimeUpdate
	// byTrip holds trip-level delays for trips without per-stop updates
	byTrip    map[string]models.RealtimeUpdate
	alerts    []models.Alert
	fetchedAt time.Time
}

const maxRealtimeFeedSize = 25 * 1024 * 1024

func updateKey(tripID, stopID string) string {
	return tripID + "|" + stopID
}

// RealtimeSnapshotAge returns how old the current live data is, and false
// if no poll has ever succeeded.
func (e *Engine) RealtimeSnapshotAge() (time.Duration, bool) {
	e.realTimeMutex.RLock()
	defer e.realTimeMutex.RUnlock()
	if e.realtime.fetchedAt.IsZero() {
		return 0, false
	}
	return e.clock.Now().Sub(e.realtime.fetchedAt), true
}

// realtimeUpdateFor finds the live update for a trip at a stop, falling
// back to the trip-level delay.
func (e *Engine) realtimeUpdateFor(tripID, stopID string) (models.RealtimeUpdate, bool) {
	e.realTimeMutex.RLock()
	defer e.realTimeMutex.RUnlock()

	if update, ok := e.realtime.updates[updateKey(tripID, stopID)]; ok {
		return update, true
	}
	if update, ok := e.realtime.byTrip[tripID]; ok {
		return update, true
	}
	return models.RealtimeUpdate{}, false
}

// currentAlerts returns the latest merged alert set.
func (e *Engine) currentAlerts() []models.Alert {
	e.realTimeMutex.RLock()
	defer e.realTimeMutex.RUnlock()
	out := make([]models.Alert, len(e.realtime.alerts))
	copy(out, e.realtime.alerts)
	return out
}

// agencyRealtime is one agency's contribution to a snapshot.
type agencyRealtime struct {
	updates []models.RealtimeUpdate
	alerts  []models.Alert
}

// pollRealtime fetches live data for every agency in parallel, settle-all,
// and swaps in a new snapshot if at least one agency succeeded. Agencies
// that fail keep their data out of this snapshot; the engine's degraded
// answer for them is schedule-only.
func (e *Engine) pollRealtime(ctx context.Context) {
	logger := logging.FromContext(ctx).With(slog.String("component", "realtime_poller"))
	agencies := e.Agencies()

	results := make(chan agencyRealtime, len(agencies))
	var wg sync.WaitGroup

	needAggregatorAlerts := false
	for _, agency := range agencies {
		agencyCfg, hasCfg := e.agencyConfig(agency.ID)
		if !hasCfg || agencyCfg.TripUpdatesURL == "" {
			needAggregatorAlerts = true
		}
		wg.Add(1)
		go func(agencyID string, cfg AgencyConfig, hasCfg bool) {
			defer wg.Done()
			contribution, err := e.fetchAgencyRealtime(ctx, agencyID, cfg, hasCfg)
			if err != nil {
				e.recordRealtimePoll("error")
				logging.LogWarning(logger, "realtime fetch failed, serving schedule-only", err,
					slog.String("agency", agencyID))
				return
			}
			e.recordRealtimePoll("success")
			results <- contribution
		}(agency.ID, agencyCfg, hasCfg)
	}

	// The aggregator's alert list is global, not per-agency; one fetch per
	// cycle covers every agency without a direct feed.
	var aggregatorAlerts []models.Alert
	if needAggregatorAlerts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alerts, err := e.aggregator.Alerts(ctx)
			if err != nil {
				logging.LogWarning(logger, "aggregator alerts fetch failed", err)
				return
			}
			aggregatorAlerts = alerts
		}()
	}

	wg.Wait()
	close(results)

	if ctx.Err() != nil {
		return
	}

	snapshot := realtimeSnapshot{
		updates:   make(map[string]models.RealtimeUpdate),
		byTrip:    make(map[string]models.RealtimeUpdate),
		fetchedAt: e.clock.Now(),
	}
	merged := 0
	for contribution := range results {
		merged++
		for _, update := range contribution.updates {
			if update.StopID != "" {
				snapshot.updates[updateKey(update.TripID, update.StopID)] = update
			} else {
				snapshot.byTrip[update.TripID] = update
			}
		}
		snapshot.alerts = append(snapshot.alerts, contribution.alerts...)
	}

	if merged == 0 {
		// Nothing succeeded: keep the previous snapshot so readers can
		// still mark data as live until it ages out.
		return
	}
	snapshot.alerts = append(snapshot.alerts, aggregatorAlerts...)

	e.realTimeMutex.Lock()
	e.realtime = snapshot
	e.realTimeMutex.Unlock()

	e.queryCache.InvalidateClass(cache.ClassRealtime, cache.ClassAlerts)

	logging.LogOperation(logger, "realtime_snapshot_updated",
		slog.Int("agencies", merged),
		slog.Int("stop_updates", len(snapshot.updates)),
		slog.Int("trip_updates", len(snapshot.byTrip)),
		slog.Int("alerts", len(snapshot.alerts)))
}

// fetchAgencyRealtime loads one agency's live data. Agencies with direct
// GTFS-RT feeds contribute trip updates and their own alert feed;
// everything else gets trip updates from the aggregator, whose alerts are
// fetched separately once per poll cycle.
func (e *Engine) fetchAgencyRealtime(ctx context.Context, agencyID string, cfg AgencyConfig, hasCfg bool) (agencyRealtime, error) {
	if hasCfg && cfg.TripUpdatesURL != "" {
		return e.fetchGTFSRealtime(ctx, agencyID, cfg)
	}

	updates, err := e.aggregator.RealtimeUpdates(ctx, agencyID)
	if err != nil {
		return agencyRealtime{}, err
	}
	return agencyRealtime{updates: updates}, nil
}

// fetchGTFSRealtime pulls the agency's GTFS-RT trip updates feed, and its
// service alerts feed when configured, in parallel.
func (e *Engine) fetchGTFSRealtime(ctx context.Context, agencyID string, cfg AgencyConfig) (agencyRealtime, error) {
	var wg sync.WaitGroup
	var tripData, alertData *gtfs.Realtime
	var tripErr, alertErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		tripData, tripErr = loadGTFSRealtimeFeed(ctx, cfg.TripUpdatesURL, cfg.Headers)
	}()

	if cfg.ServiceAlertsURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alertData, alertErr = loadGTFSRealtimeFeed(ctx, cfg.ServiceAlertsURL, cfg.Headers)
		}()
	}

	wg.Wait()

	if tripErr != nil {
		return agencyRealtime{}, tripErr
	}

	contribution := agencyRealtime{
		updates: convertTripUpdates(agencyID, tripData.Trips, e.clock.Now()),
	}
	if alertErr == nil && alertData != nil {
		contribution.alerts = convertAlerts(agencyID, alertData.Alerts)
	}
	return contribution, nil
}

func loadGTFSRealtimeFeed(ctx context.Context, url string, headers map[string]string) (*gtfs.Realtime, error) {
	body, err := fetchBytes(ctx, providerHTTPClient, url, headers, maxRealtimeFeedSize)
	if err != nil {
		return nil, fmt.Errorf("gtfs-rt fetch %s: %w", url, err)
	}
	return gtfs.ParseRealtime(body, &gtfs.ParseRealtimeOptions{})
}

// convertTripUpdates flattens GTFS-RT trip updates into per-stop delay
// records. A trip-level delay with no stop updates becomes one record
// with an empty stop ID.
func convertTripUpdates(agencyID string, trips []gtfs.Trip, fetchedAt time.Time) []models.RealtimeUpdate {
	var updates []models.RealtimeUpdate

	for _, trip := range trips {
		tripID := qualifyID(agencyID, trip.ID.ID)
		if trip.ID.ID == "" {
			continue
		}

		emitted := false
		for _, stu := range trip.StopTimeUpdates {
			if stu.StopID == nil {
				continue
			}
			delay := 0
			switch {
			case stu.Departure != nil && stu.Departure.Delay != nil:
				delay = int(stu.Departure.Delay.Seconds())
			case stu.Arrival != nil && stu.Arrival.Delay != nil:
				delay = int(stu.Arrival.Delay.Seconds())
			default:
				continue
			}
			updates = append(updates, models.RealtimeUpdate{
				TripID:       tripID,
				StopID:       qualifyID(agencyID, *stu.StopID),
				DelaySeconds: delay,
				Timestamp:    fetchedAt,
			})
			emitted = true
		}

		if !emitted {
			updates = append(updates, models.RealtimeUpdate{
				TripID:    tripID,
				Timestamp: fetchedAt,
			})
		}
	}

	return updates
}

// convertAlerts maps GTFS-RT service alerts onto the engine's alert model.
func convertAlerts(agencyID string, alerts []gtfs.Alert) []models.Alert {
	out := make([]models.Alert, 0, len(alerts))
	for _, alert := range alerts {
		converted := models.Alert{
			ID:       qualifyID(agencyID, alert.ID),
			Severity: fmt.Sprint(alert.Effect),
		}
		if len(alert.Header) > 0 {
			converted.Header = alert.Header[0].Text
		}
		if len(alert.Description) > 0 {
			converted.Description = alert.Description[0].Text
		}
		if len(alert.ActivePeriods) > 0 {
			period := alert.ActivePeriods[0]
			if period.StartsAt != nil {
				converted.ActiveFrom = *period.StartsAt
			}
			if period.EndsAt != nil {
				converted.ActiveUntil = *period.EndsAt
			}
		}
		for _, entity := range alert.InformedEntities {
			if entity.RouteID != nil && *entity.RouteID != "" {
				converted.RouteIDs = append(converted.RouteIDs, qualifyID(agencyID, *entity.RouteID))
			}
			if entity.StopID != nil && *entity.StopID != "" {
				converted.StopIDs = append(converted.StopIDs, qualifyID(agencyID, *entity.StopID))
			}
		}
		out = append(out, converted)
	}
	return out
}

// pollRealtimePeriodically runs the live-data poll loop until shutdown.
func (e *Engine) pollRealtimePeriodically() {
	defer e.wg.Done()

	logger := slog.Default().With(slog.String("component", "realtime_poller"))
	interval := time.Duration(e.config.realtimePollSeconds()) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for { // nolint
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			ctx = logging.WithLogger(ctx, logger)
			e.pollRealtime(ctx)
			cancel()
		case <-e.shutdownChan:
			logging.LogOperation(logger, "shutting_down_realtime_polling")
			return
		}
	}
}

func (e *Engine) recordRealtimePoll(outcome string) {
	if e.metrics != nil {
		e.metrics.RealtimePollsTotal.WithLabelValues(outcome).Inc()
	}
}
