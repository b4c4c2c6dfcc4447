package transitdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wayfinder.transitlab.org/internal/appconf"
	"wayfinder.transitlab.org/internal/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(NewConfig(":memory:", appconf.Test, false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testDataset(agencyID string) AgencyDataset {
	stops := []models.Stop{
		{ID: agencyID + "_s1", AgencyID: agencyID, Name: "First & Main", Lat: 47.6, Lon: -122.33},
		{ID: agencyID + "_s2", AgencyID: agencyID, Name: "Second & Main", Lat: 47.61, Lon: -122.33},
		{ID: agencyID + "_s3", AgencyID: agencyID, Name: "Third & Main", Lat: 47.62, Lon: -122.33},
	}
	route := models.Route{ID: agencyID + "_r1", AgencyID: agencyID, ShortName: "44", Mode: models.ModeBus}
	trip := models.Trip{ID: agencyID + "_t1", AgencyID: agencyID, RouteID: route.ID, Headsign: "Downtown"}

	var stopTimes []models.StopTime
	for i, stop := range stops {
		stopTimes = append(stopTimes, models.StopTime{
			TripID:       trip.ID,
			StopID:       stop.ID,
			StopSequence: i + 1,
			ArrivalSec:   8*3600 + i*120,
			DepartureSec: 8*3600 + i*120 + 30,
		})
	}

	return AgencyDataset{
		AgencyID:  agencyID,
		Stops:     stops,
		Routes:    []models.Route{route},
		Trips:     []models.Trip{trip},
		StopTimes: stopTimes,
	}
}

func TestAgencyRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	agency := models.Agency{ID: "metro", Name: "Metro Transit", SourceKind: models.SourceKindVendor}
	require.NoError(t, client.Queries.UpsertAgency(ctx, agency))

	got, err := client.Queries.GetAgency(ctx, "metro")
	require.NoError(t, err)
	assert.Equal(t, "Metro Transit", got.Name)
	assert.Equal(t, models.SourceKindVendor, got.SourceKind)

	agencies, err := client.Queries.ListAgencies(ctx)
	require.NoError(t, err)
	assert.Len(t, agencies, 1)
}

func TestFreshnessRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Queries.UpsertAgency(ctx, models.Agency{ID: "metro", Name: "Metro"}))

	freshness, err := client.Queries.GetFreshness(ctx, "metro")
	require.NoError(t, err)
	assert.True(t, freshness.IsZero(), "never-loaded agency has zero freshness")

	loadedAt := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	require.NoError(t, client.Queries.SetFreshness(ctx, "metro", loadedAt))

	freshness, err = client.Queries.GetFreshness(ctx, "metro")
	require.NoError(t, err)
	assert.Equal(t, loadedAt.Unix(), freshness.Unix())
}

func TestReplaceAgencyDataStoresEverything(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Queries.UpsertAgency(ctx, models.Agency{ID: "metro", Name: "Metro"}))
	require.NoError(t, client.ReplaceAgencyData(ctx, testDataset("metro")))

	stop, err := client.Queries.GetStop(ctx, "metro_s1")
	require.NoError(t, err)
	assert.Equal(t, "First & Main", stop.Name)

	trip, err := client.Queries.GetTrip(ctx, "metro_t1")
	require.NoError(t, err)
	assert.Equal(t, "Downtown", trip.Headsign)

	stopTimes, err := client.Queries.StopTimesForTrip(ctx, "metro_t1")
	require.NoError(t, err)
	require.Len(t, stopTimes, 3)
	assert.Equal(t, 1, stopTimes[0].StopSequence)
	assert.Equal(t, 3, stopTimes[2].StopSequence)
}

func TestReplaceAgencyDataIsIdempotent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Queries.UpsertAgency(ctx, models.Agency{ID: "metro", Name: "Metro"}))
	require.NoError(t, client.ReplaceAgencyData(ctx, testDataset("metro")))
	require.NoError(t, client.ReplaceAgencyData(ctx, testDataset("metro")))

	stops, err := client.Queries.ListStops(ctx)
	require.NoError(t, err)
	assert.Len(t, stops, 3, "reload replaces, not duplicates")
}

func TestReplaceAgencyDataKeepsOtherAgencies(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Queries.UpsertAgency(ctx, models.Agency{ID: "metro", Name: "Metro"}))
	require.NoError(t, client.Queries.UpsertAgency(ctx, models.Agency{ID: "ferry", Name: "Ferries"}))
	require.NoError(t, client.ReplaceAgencyData(ctx, testDataset("metro")))
	require.NoError(t, client.ReplaceAgencyData(ctx, testDataset("ferry")))

	// Reloading metro must not disturb ferry data.
	require.NoError(t, client.ReplaceAgencyData(ctx, testDataset("metro")))

	stop, err := client.Queries.GetStop(ctx, "ferry_s1")
	require.NoError(t, err)
	assert.Equal(t, "ferry", stop.AgencyID)
}

func TestTripsServingStopOrderedByDeparture(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Queries.UpsertAgency(ctx, models.Agency{ID: "metro", Name: "Metro"}))

	dataset := testDataset("metro")
	// Second, later trip through the same stops.
	trip2 := models.Trip{ID: "metro_t2", AgencyID: "metro", RouteID: "metro_r1", Headsign: "Downtown"}
	dataset.Trips = append(dataset.Trips, trip2)
	dataset.StopTimes = append(dataset.StopTimes, models.StopTime{
		TripID: trip2.ID, StopID: "metro_s1", StopSequence: 1,
		ArrivalSec: 9 * 3600, DepartureSec: 9*3600 + 30,
	})
	require.NoError(t, client.ReplaceAgencyData(ctx, dataset))

	serving, err := client.Queries.TripsServingStop(ctx, "metro_s1")
	require.NoError(t, err)
	require.Len(t, serving, 2)
	assert.Equal(t, "metro_t1", serving[0].Trip.ID)
	assert.Equal(t, "metro_t2", serving[1].Trip.ID)
	assert.True(t, serving[0].StopTime.DepartureSec < serving[1].StopTime.DepartureSec)
}

func TestListStopsAfterLoad(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Queries.UpsertAgency(ctx, models.Agency{ID: "metro", Name: "Metro"}))
	require.NoError(t, client.ReplaceAgencyData(ctx, testDataset("metro")))

	stops, err := client.Queries.ListStops(ctx)
	require.NoError(t, err)
	assert.Len(t, stops, 3)
}
