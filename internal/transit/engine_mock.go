package transit

import (
	"context"
	"time"

	"wayfinder.transitlab.org/internal/appconf"
	"wayfinder.transitlab.org/internal/clock"
	"wayfinder.transitlab.org/internal/models"
	"wayfinder.transitlab.org/transitdb"
)

// NewTestEngine builds an engine backed by an in-memory store with no
// background loops running, for use in tests.
func NewTestEngine(clk clock.Clock) *Engine {
	engine := NewEngine(Config{
		DataPath: ":memory:",
		Env:      appconf.Test,
	}, clk, nil, nil)
	engine.staticMutex.Lock()
	engine.initialized = true
	engine.staticMutex.Unlock()
	return engine
}

// MockLoadDataset stores a dataset directly and rebuilds the spatial
// index, bypassing the loader.
func (e *Engine) MockLoadDataset(ctx context.Context, dataset transitdb.AgencyDataset) error {
	if err := e.Store.Queries.UpsertAgency(ctx, models.Agency{
		ID:         dataset.AgencyID,
		Name:       dataset.AgencyID,
		SourceKind: models.SourceKindVendor,
	}); err != nil {
		return err
	}
	if err := e.Store.ReplaceAgencyData(ctx, dataset); err != nil {
		return err
	}
	e.rebuildStopIndex(ctx)
	return nil
}

// MockAddRealtimeUpdate injects one live update into the current snapshot.
func (e *Engine) MockAddRealtimeUpdate(update models.RealtimeUpdate) {
	e.realTimeMutex.Lock()
	defer e.realTimeMutex.Unlock()

	if e.realtime.updates == nil {
		e.realtime.updates = make(map[string]models.RealtimeUpdate)
	}
	if e.realtime.byTrip == nil {
		e.realtime.byTrip = make(map[string]models.RealtimeUpdate)
	}
	if update.StopID != "" {
		e.realtime.updates[updateKey(update.TripID, update.StopID)] = update
	} else {
		e.realtime.byTrip[update.TripID] = update
	}
	e.realtime.fetchedAt = e.clock.Now()
}

// MockAddAlert injects one alert into the current snapshot.
func (e *Engine) MockAddAlert(alert models.Alert) {
	e.realTimeMutex.Lock()
	defer e.realTimeMutex.Unlock()

	e.realtime.alerts = append(e.realtime.alerts, alert)
	e.realtime.fetchedAt = e.clock.Now()
}

// MockResetRealtime clears all injected realtime data.
func (e *Engine) MockResetRealtime() {
	e.realTimeMutex.Lock()
	defer e.realTimeMutex.Unlock()
	e.realtime = realtimeSnapshot{}
}

// MockDataset builds a small two-route dataset around a center point,
// with stops strung north of it roughly 300m apart.
func MockDataset(agencyID string, center models.Location) transitdb.AgencyDataset {
	mkStop := func(n int) models.Stop {
		return models.Stop{
			ID:       qualifyID(agencyID, stopName(n)),
			AgencyID: agencyID,
			Name:     stopName(n),
			Lat:      center.Lat + float64(n)*0.0027,
			Lon:      center.Lon,
		}
	}
	stops := []models.Stop{mkStop(0), mkStop(1), mkStop(2), mkStop(3)}

	route := models.Route{
		ID:        qualifyID(agencyID, "r1"),
		AgencyID:  agencyID,
		ShortName: "1",
		Mode:      models.ModeBus,
	}
	trip := models.Trip{
		ID:       qualifyID(agencyID, "t1"),
		AgencyID: agencyID,
		RouteID:  route.ID,
		Headsign: "Northbound",
	}

	base := 8 * 3600
	var stopTimes []models.StopTime
	for i, stop := range stops {
		stopTimes = append(stopTimes, models.StopTime{
			TripID:       trip.ID,
			StopID:       stop.ID,
			StopSequence: i + 1,
			ArrivalSec:   base + i*300,
			DepartureSec: base + i*300 + 30,
		})
	}

	return transitdb.AgencyDataset{
		AgencyID:  agencyID,
		Stops:     stops,
		Routes:    []models.Route{route},
		Trips:     []models.Trip{trip},
		StopTimes: stopTimes,
	}
}

func stopName(n int) string {
	return "s" + string(rune('0'+n))
}

// MockClockAt returns a MockClock pinned to the given local time of day
// on an arbitrary fixed date.
func MockClockAt(hour, minute int) *clock.MockClock {
	return clock.NewMockClock(time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC))
}
