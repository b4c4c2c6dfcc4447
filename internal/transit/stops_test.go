package transit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wayfinder.transitlab.org/internal/models"
)

func TestFindNearbyStopsSortedWithinRadius(t *testing.T) {
	engine := newLoadedEngine(t, 9, 0)

	stops := engine.FindNearbyStops(context.Background(), testCenter, 500)

	require.Len(t, stops, 2, "only s0 and s1 are within 500m of the center")
	assert.Equal(t, "metro_s0", stops[0].ID)
	assert.Equal(t, "metro_s1", stops[1].ID)
	for i, stop := range stops {
		assert.False(t, stop.Synthesized)
		assert.LessOrEqual(t, stop.Distance, 500.0)
		if i > 0 {
			assert.GreaterOrEqual(t, stop.Distance, stops[i-1].Distance)
		}
	}
}

func TestFindNearbyStopsDefaultRadius(t *testing.T) {
	engine := newLoadedEngine(t, 9, 0)

	stops := engine.FindNearbyStops(context.Background(), testCenter, 0)
	require.Len(t, stops, 2)
}

func TestFindNearbyStopsClampsAggregatorAnswers(t *testing.T) {
	// Upstream ignores the radius and answers farthest-first.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"stops": [
			{"id": "far", "name": "Far", "lat": %f, "lon": %f},
			{"id": "near", "name": "Near", "lat": %f, "lon": %f},
			{"id": "nearer", "name": "Nearer", "lat": %f, "lon": %f}
		]}`, testCenter.Lat+0.1, testCenter.Lon,
			testCenter.Lat+0.003, testCenter.Lon,
			testCenter.Lat+0.001, testCenter.Lon)
	}))
	defer server.Close()

	engine := NewTestEngine(MockClockAt(9, 0))
	defer engine.Shutdown()
	engine.aggregator = NewAggregatorClient(server.URL, "")

	stops := engine.FindNearbyStops(context.Background(), testCenter, 500)

	require.Len(t, stops, 2, "the ~11km stop is dropped despite upstream listing it")
	assert.Equal(t, "nearer", stops[0].ID)
	assert.Equal(t, "near", stops[1].ID)
	for _, stop := range stops {
		assert.False(t, stop.Synthesized)
		assert.LessOrEqual(t, stop.Distance, 500.0)
		assert.Greater(t, stop.Distance, 0.0)
	}
}

func TestFindNearbyStopsSynthesizedWhenAllProvidersFail(t *testing.T) {
	engine := NewTestEngine(MockClockAt(9, 0))
	defer engine.Shutdown()

	loc := models.Location{Lat: 40.0, Lon: -74.0}
	stops := engine.FindNearbyStops(context.Background(), loc, 500)

	require.Len(t, stops, 4)
	for _, stop := range stops {
		assert.True(t, stop.Synthesized)
		assert.NotEmpty(t, stop.Name)
	}
	assert.Equal(t, "synthesized_1", stops[0].ID)
}

func TestFindNearbyStopsServedFromCache(t *testing.T) {
	engine := newLoadedEngine(t, 9, 0)

	first := engine.FindNearbyStops(context.Background(), testCenter, 500)
	require.Len(t, first, 2)

	// Dropping the spatial index would break a live lookup; the cached
	// answer keeps serving regardless.
	engine.setStopIndex(nil)
	second := engine.FindNearbyStops(context.Background(), testCenter, 500)
	assert.Equal(t, first, second)
}

func TestFindNearbyStopsCacheExpiresAfterClassTTL(t *testing.T) {
	clk := MockClockAt(9, 0)
	engine := NewTestEngine(clk)
	defer engine.Shutdown()
	require.NoError(t, engine.MockLoadDataset(context.Background(), MockDataset("metro", testCenter)))

	first := engine.FindNearbyStops(context.Background(), testCenter, 500)
	require.Len(t, first, 2)

	engine.setStopIndex(nil)
	clk.Advance(25 * time.Hour)

	// Cache entry aged out, index is gone, aggregator unconfigured: the
	// engine falls back to synthesized placeholders.
	stale := engine.FindNearbyStops(context.Background(), testCenter, 500)
	require.Len(t, stale, 4)
	assert.True(t, stale[0].Synthesized)
}

func TestSynthesizedStopsSurroundTheQueryPoint(t *testing.T) {
	loc := models.Location{Lat: 47.6, Lon: -122.33}
	stops := synthesizeStops(loc)

	require.Len(t, stops, 4)
	for _, stop := range stops {
		assert.True(t, stop.Synthesized)
		assert.Greater(t, stop.Distance, 150.0, "placeholders sit a short walk out")
		assert.Less(t, stop.Distance, 350.0)
	}
}
