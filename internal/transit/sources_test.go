package transit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wayfinder.transitlab.org/internal/models"
)

func TestQualifyID(t *testing.T) {
	assert.Equal(t, "metro_s1", qualifyID("metro", "s1"))
	assert.Equal(t, "metro_s1", qualifyID("metro", "metro_s1"), "already-qualified ids pass through")
	assert.Equal(t, "", qualifyID("metro", ""))
}

func TestStopRecordNormalize(t *testing.T) {
	lat, lon := 47.6, -122.33

	stop, ok := StopRecord{ID: "s1", Name: "First & Main", Lat: &lat, Lon: &lon, Wheelchair: true}.Normalize("metro")
	require.True(t, ok)
	assert.Equal(t, "metro_s1", stop.ID)
	assert.Equal(t, "metro", stop.AgencyID)
	assert.Equal(t, "First & Main", stop.Name)
	assert.Equal(t, 47.6, stop.Lat)
	assert.True(t, stop.WheelchairBoarding)

	_, ok = StopRecord{ID: "s1", Lat: &lat}.Normalize("metro")
	assert.False(t, ok, "missing longitude is rejected")

	_, ok = StopRecord{Lat: &lat, Lon: &lon}.Normalize("metro")
	assert.False(t, ok, "missing id is rejected")

	stop, ok = StopRecord{ID: "s1", Lat: &lat, Lon: &lon}.Normalize("")
	require.True(t, ok)
	assert.Equal(t, "s1", stop.ID, "no agency prefix when agency is unknown")
}

func TestStaticPayloadNormalizeSkipsMalformedRecords(t *testing.T) {
	lat, lon := 47.6, -122.33
	payload := StaticPayload{
		Stops: []StopRecord{
			{ID: "s1", Name: "Good", Lat: &lat, Lon: &lon},
			{ID: "s2", Name: "No coordinates"},
		},
		Routes: []RouteRecord{
			{ID: "r1", ShortName: "1", Type: 3},
			{ShortName: "no-id"},
		},
		Trips: []TripRecord{
			{ID: "t1", RouteID: "r1", Headsign: "Downtown"},
		},
		StopTimes: []StopTimeRecord{
			{TripID: "t1", StopID: "s1", StopSequence: 1, ArrivalSec: 28800, DepartureSec: 28830},
		},
	}

	dataset := payload.Normalize("metro")

	assert.Equal(t, "metro", dataset.AgencyID)
	require.Len(t, dataset.Stops, 1)
	assert.Equal(t, "metro_s1", dataset.Stops[0].ID)
	require.Len(t, dataset.Routes, 1)
	assert.Equal(t, "metro_r1", dataset.Routes[0].ID)
	require.Len(t, dataset.Trips, 1)
	assert.Equal(t, "metro_r1", dataset.Trips[0].RouteID)
	require.Len(t, dataset.StopTimes, 1)
	assert.Equal(t, "metro_t1", dataset.StopTimes[0].TripID)
	assert.Equal(t, "metro_s1", dataset.StopTimes[0].StopID)
}

func TestSourceForAgencyPicksAdapterByKind(t *testing.T) {
	engine := NewTestEngine(MockClockAt(12, 0))
	defer engine.Shutdown()

	vendor := engine.sourceForAgency(AgencyConfig{
		ID:     "a",
		Source: SourceConfig{Kind: models.SourceKindVendor, URL: "https://example.com/gtfs.zip"},
	})
	assert.Equal(t, models.SourceKindVendor, vendor.Kind())

	custom := engine.sourceForAgency(AgencyConfig{
		ID:     "b",
		Source: SourceConfig{Kind: models.SourceKindCustom, URL: "https://example.com/static"},
	})
	assert.Equal(t, models.SourceKindCustom, custom.Kind())

	aggregator := engine.sourceForAgency(AgencyConfig{ID: "c"})
	assert.Equal(t, models.SourceKindAggregator, aggregator.Kind())
}
