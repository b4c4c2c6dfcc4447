package transit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OneBusAway/go-gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wayfinder.transitlab.org/internal/appconf"
	"wayfinder.transitlab.org/internal/models"
)

func TestRealtimeUpdateForPrefersStopLevel(t *testing.T) {
	engine := NewTestEngine(MockClockAt(12, 0))
	defer engine.Shutdown()

	engine.MockAddRealtimeUpdate(models.RealtimeUpdate{TripID: "metro_t1", DelaySeconds: 30})
	engine.MockAddRealtimeUpdate(models.RealtimeUpdate{TripID: "metro_t1", StopID: "metro_s0", DelaySeconds: 90})

	update, ok := engine.realtimeUpdateFor("metro_t1", "metro_s0")
	require.True(t, ok)
	assert.Equal(t, 90, update.DelaySeconds)

	// A stop with no specific prediction falls back to the trip level.
	update, ok = engine.realtimeUpdateFor("metro_t1", "metro_s3")
	require.True(t, ok)
	assert.Equal(t, 30, update.DelaySeconds)

	_, ok = engine.realtimeUpdateFor("metro_t9", "metro_s0")
	assert.False(t, ok)
}

func TestRealtimeSnapshotAge(t *testing.T) {
	clk := MockClockAt(12, 0)
	engine := NewTestEngine(clk)
	defer engine.Shutdown()

	_, seen := engine.RealtimeSnapshotAge()
	assert.False(t, seen, "no snapshot before the first poll")

	engine.MockAddRealtimeUpdate(models.RealtimeUpdate{TripID: "metro_t1"})
	clk.Advance(45 * time.Second)

	age, seen := engine.RealtimeSnapshotAge()
	require.True(t, seen)
	assert.Equal(t, 45*time.Second, age)
}

func TestMockResetRealtime(t *testing.T) {
	engine := NewTestEngine(MockClockAt(12, 0))
	defer engine.Shutdown()

	engine.MockAddRealtimeUpdate(models.RealtimeUpdate{TripID: "metro_t1", StopID: "metro_s0"})
	engine.MockAddAlert(models.Alert{ID: "a1"})
	engine.MockResetRealtime()

	_, ok := engine.realtimeUpdateFor("metro_t1", "metro_s0")
	assert.False(t, ok)
	assert.Empty(t, engine.currentAlerts())
}

func TestConvertTripUpdates(t *testing.T) {
	fetchedAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	stop0, stop1 := "s0", "s1"
	arrivalDelay := 60 * time.Second
	departureDelay := 120 * time.Second

	trips := []gtfs.Trip{
		{
			ID: gtfs.TripID{ID: "t1"},
			StopTimeUpdates: []gtfs.StopTimeUpdate{
				{
					StopID:    &stop0,
					Arrival:   &gtfs.StopTimeEvent{Delay: &arrivalDelay},
					Departure: &gtfs.StopTimeEvent{Delay: &departureDelay},
				},
				{
					StopID:  &stop1,
					Arrival: &gtfs.StopTimeEvent{Delay: &arrivalDelay},
				},
				{
					// No delay data at all: skipped.
					StopID: &stop1,
				},
			},
		},
		{
			// Trip-level update with no usable stop updates still records
			// that the trip was seen live.
			ID: gtfs.TripID{ID: "t2"},
		},
	}

	updates := convertTripUpdates("metro", trips, fetchedAt)

	require.Len(t, updates, 3)
	assert.Equal(t, "metro_t1", updates[0].TripID)
	assert.Equal(t, "metro_s0", updates[0].StopID)
	assert.Equal(t, 120, updates[0].DelaySeconds, "departure delay wins over arrival delay")
	assert.Equal(t, fetchedAt, updates[0].Timestamp)

	assert.Equal(t, "metro_s1", updates[1].StopID)
	assert.Equal(t, 60, updates[1].DelaySeconds)

	assert.Equal(t, "metro_t2", updates[2].TripID)
	assert.Empty(t, updates[2].StopID)
	assert.Equal(t, 0, updates[2].DelaySeconds)
}

func TestConvertTripUpdatesSkipsAnonymousTrips(t *testing.T) {
	updates := convertTripUpdates("metro", []gtfs.Trip{{}}, time.Now())
	assert.Empty(t, updates)
}

func TestConvertAlerts(t *testing.T) {
	routeID, stopID := "r1", "s0"
	start := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	end := start.Add(12 * time.Hour)

	alerts := convertAlerts("metro", []gtfs.Alert{
		{
			ID:          "a1",
			Header:      []gtfs.AlertText{{Text: "Detour on 1st Ave"}},
			Description: []gtfs.AlertText{{Text: "Use 2nd Ave stops"}},
			ActivePeriods: []gtfs.AlertActivePeriod{
				{StartsAt: &start, EndsAt: &end},
			},
			InformedEntities: []gtfs.AlertInformedEntity{
				{RouteID: &routeID},
				{StopID: &stopID},
			},
		},
	})

	require.Len(t, alerts, 1)
	alert := alerts[0]
	assert.Equal(t, "metro_a1", alert.ID)
	assert.Equal(t, "Detour on 1st Ave", alert.Header)
	assert.Equal(t, "Use 2nd Ave stops", alert.Description)
	assert.Equal(t, start, alert.ActiveFrom)
	assert.Equal(t, end, alert.ActiveUntil)
	assert.Equal(t, []string{"metro_r1"}, alert.RouteIDs)
	assert.Equal(t, []string{"metro_s0"}, alert.StopIDs)
	assert.NotEmpty(t, alert.Severity)
}

func TestConvertAlertsWithoutOptionalFields(t *testing.T) {
	alerts := convertAlerts("metro", []gtfs.Alert{{ID: "a1"}})

	require.Len(t, alerts, 1)
	assert.Equal(t, "metro_a1", alerts[0].ID)
	assert.Empty(t, alerts[0].Header)
	assert.True(t, alerts[0].ActiveFrom.IsZero())
	assert.True(t, alerts[0].Active(time.Now()), "no window means always active")
}

func newAggregatorRealtimeEngine(t *testing.T, aggregatorURL string) *Engine {
	t.Helper()
	engine := NewEngine(Config{
		DataPath:      ":memory:",
		Env:           appconf.Test,
		AggregatorURL: aggregatorURL,
	}, MockClockAt(9, 0), nil, nil)
	t.Cleanup(engine.Shutdown)

	engine.staticMutex.Lock()
	engine.agencies = []models.Agency{{ID: "metro", SourceKind: models.SourceKindAggregator}}
	engine.initialized = true
	engine.staticMutex.Unlock()
	return engine
}

func TestPollRealtimeMergesAggregatorUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/realtime":
			_, _ = w.Write([]byte(`{"updates": [
				{"tripId": "metro_t1", "stopId": "metro_s0", "delaySeconds": 120, "timestamp": 1741600000},
				{"tripId": "metro_t2", "delaySeconds": -30, "timestamp": 1741600000}
			]}`))
		case "/alerts":
			_, _ = w.Write([]byte(`{"alerts": [{"id": "metro_a1", "header": "Snow routes"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	engine := newAggregatorRealtimeEngine(t, server.URL)
	engine.pollRealtime(context.Background())

	update, ok := engine.realtimeUpdateFor("metro_t1", "metro_s0")
	require.True(t, ok)
	assert.Equal(t, 120, update.DelaySeconds)

	// The trip-level record answers for any stop on the trip.
	update, ok = engine.realtimeUpdateFor("metro_t2", "metro_s3")
	require.True(t, ok)
	assert.Equal(t, -30, update.DelaySeconds)

	alerts := engine.currentAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "metro_a1", alerts[0].ID)

	_, ok = engine.RealtimeSnapshotAge()
	assert.True(t, ok)
}

func TestPollRealtimeFetchesGlobalAlertsOnce(t *testing.T) {
	var alertCalls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/realtime":
			fmt.Fprintf(w, `{"updates": [{"tripId": "%s_t1", "delaySeconds": 60, "timestamp": 1741600000}]}`,
				r.URL.Query().Get("agency"))
		case "/alerts":
			alertCalls.Add(1)
			_, _ = w.Write([]byte(`{"alerts": [{"id": "shared_a1", "header": "Elevator outage"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	engine := newAggregatorRealtimeEngine(t, server.URL)
	engine.staticMutex.Lock()
	engine.agencies = []models.Agency{
		{ID: "metro", SourceKind: models.SourceKindAggregator},
		{ID: "ferry", SourceKind: models.SourceKindAggregator},
	}
	engine.staticMutex.Unlock()

	engine.pollRealtime(context.Background())

	assert.Equal(t, int64(1), alertCalls.Load(), "one alerts fetch per poll cycle")

	alerts := engine.GetAlerts(context.Background(), nil, nil)
	require.Len(t, alerts, 1, "a global alert appears once however many agencies share the aggregator")
	assert.Equal(t, "shared_a1", alerts[0].ID)

	_, ok := engine.realtimeUpdateFor("metro_t1", "")
	assert.True(t, ok)
	_, ok = engine.realtimeUpdateFor("ferry_t1", "")
	assert.True(t, ok)
}

func TestPollRealtimeKeepsPreviousSnapshotOnTotalFailure(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		switch r.URL.Path {
		case "/realtime":
			_, _ = w.Write([]byte(`{"updates": [{"tripId": "metro_t1", "delaySeconds": 60, "timestamp": 1741600000}]}`))
		case "/alerts":
			_, _ = w.Write([]byte(`{"alerts": []}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	engine := newAggregatorRealtimeEngine(t, server.URL)
	engine.pollRealtime(context.Background())

	_, ok := engine.realtimeUpdateFor("metro_t1", "")
	require.True(t, ok)

	healthy = false
	engine.pollRealtime(context.Background())

	update, ok := engine.realtimeUpdateFor("metro_t1", "")
	assert.True(t, ok, "stale snapshot keeps answering until new data arrives")
	assert.Equal(t, 60, update.DelaySeconds)
}
