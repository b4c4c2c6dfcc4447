package transit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wayfinder.transitlab.org/internal/appconf"
	"wayfinder.transitlab.org/internal/models"
)

func newFareEngine(t *testing.T, fareURL string) *Engine {
	t.Helper()
	engine := NewEngine(Config{
		DataPath: ":memory:",
		Env:      appconf.Test,
		Agencies: []AgencyConfig{{
			ID:      "metro",
			Source:  SourceConfig{Kind: models.SourceKindVendor},
			FareURL: fareURL,
		}},
	}, MockClockAt(12, 0), nil, nil)
	t.Cleanup(engine.Shutdown)
	return engine
}

func TestGetFareInfoDefaultWhenUnconfigured(t *testing.T) {
	engine := NewTestEngine(MockClockAt(12, 0))
	defer engine.Shutdown()

	fare := engine.GetFareInfo(context.Background(), "metro_r1")

	assert.True(t, fare.Default)
	assert.Equal(t, "metro_r1", fare.RouteID)
	assert.Equal(t, 3.25, fare.Regular)
	assert.Equal(t, 1.60, fare.Reduced)
	assert.Equal(t, "USD", fare.Currency)
}

func TestGetFareInfoFromAgencyEndpoint(t *testing.T) {
	var gotRoute string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRoute = r.URL.Query().Get("route")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"regular": 2.75, "reduced": 1.35, "currency": "USD"}`))
	}))
	defer server.Close()

	engine := newFareEngine(t, server.URL)
	fare := engine.GetFareInfo(context.Background(), "metro_r1")

	assert.Equal(t, "metro_r1", gotRoute)
	assert.False(t, fare.Default)
	assert.Equal(t, 2.75, fare.Regular)
	assert.Equal(t, 1.35, fare.Reduced)
	assert.Equal(t, "USD", fare.Currency)
}

func TestGetFareInfoCachesEndpointAnswer(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"regular": 2.75, "reduced": 1.35, "currency": "USD"}`))
	}))
	defer server.Close()

	engine := newFareEngine(t, server.URL)
	first := engine.GetFareInfo(context.Background(), "metro_r1")
	second := engine.GetFareInfo(context.Background(), "metro_r1")

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load())
}

func TestGetFareInfoMissingCurrencyFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"regular": 2.75, "reduced": 1.35}`))
	}))
	defer server.Close()

	engine := newFareEngine(t, server.URL)
	fare := engine.GetFareInfo(context.Background(), "metro_r1")

	assert.True(t, fare.Default)
	assert.Equal(t, "USD", fare.Currency)
}

func TestGetFareInfoEndpointErrorFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	engine := newFareEngine(t, server.URL)
	fare := engine.GetFareInfo(context.Background(), "metro_r1")

	require.True(t, fare.Default)
}
