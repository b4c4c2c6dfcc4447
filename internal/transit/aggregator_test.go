package transit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wayfinder.transitlab.org/internal/models"
)

func TestAggregatorClientUnconfigured(t *testing.T) {
	client := NewAggregatorClient("", "")

	_, err := client.DetectAgencies(context.Background(), models.Location{})
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = client.NearbyStops(context.Background(), models.Location{}, 500)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = client.Departures(context.Background(), "stop", 10)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestAggregatorClientDetectAgencies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agencies", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("lat"))
		_, _ = w.Write([]byte(`{"agencies": [
			{"id": "metro", "name": "Metro Transit"},
			{"id": "", "name": "dropped"},
			{"id": "ferry", "name": "Ferry District"}
		]}`))
	}))
	defer server.Close()

	client := NewAggregatorClient(server.URL, "")
	agencies, err := client.DetectAgencies(context.Background(), models.Location{Lat: 47.6, Lon: -122.33})

	require.NoError(t, err)
	require.Len(t, agencies, 2)
	assert.Equal(t, "metro", agencies[0].ID)
	assert.Equal(t, models.SourceKindAggregator, agencies[0].SourceKind)
}

func TestAggregatorClientSendsAPIKey(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		_, _ = w.Write([]byte(`{"agencies": []}`))
	}))
	defer server.Close()

	client := NewAggregatorClient(server.URL, "s3cret")
	_, err := client.DetectAgencies(context.Background(), models.Location{})

	require.NoError(t, err)
	assert.Equal(t, "s3cret", gotKey)
}

func TestAggregatorClientNearbyStopsSkipsMalformedRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"stops": [
			{"id": "s1", "name": "Good", "lat": 47.6, "lon": -122.33},
			{"id": "s2", "name": "No coordinates"}
		]}`))
	}))
	defer server.Close()

	client := NewAggregatorClient(server.URL, "")
	stops, err := client.NearbyStops(context.Background(), models.Location{Lat: 47.6, Lon: -122.33}, 500)

	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, "s1", stops[0].ID)
}

func TestAggregatorClientRealtimeUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "metro", r.URL.Query().Get("agency"))
		_, _ = w.Write([]byte(`{"updates": [
			{"tripId": "metro_t1", "stopId": "metro_s0", "delaySeconds": 90, "timestamp": 1741608000},
			{"tripId": "", "delaySeconds": 5}
		]}`))
	}))
	defer server.Close()

	client := NewAggregatorClient(server.URL, "")
	updates, err := client.RealtimeUpdates(context.Background(), "metro")

	require.NoError(t, err)
	require.Len(t, updates, 1, "records without a trip id are dropped")
	assert.Equal(t, "metro_t1", updates[0].TripID)
	assert.Equal(t, 90, updates[0].DelaySeconds)
	assert.Equal(t, int64(1741608000), updates[0].Timestamp.Unix())
}

func TestAggregatorClientMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`this is not json`))
	}))
	defer server.Close()

	client := NewAggregatorClient(server.URL, "")
	_, err := client.Alerts(context.Background())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}
