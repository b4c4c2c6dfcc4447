package restapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wayfinder.transitlab.org/internal/transit"
)

func TestCurrentTime(t *testing.T) {
	api := createTestApi(t)

	recorder := serveRequest(api, http.MethodGet, "/api/where/current-time")

	assert.Equal(t, http.StatusOK, recorder.Code)
	envelope, data := decodeEnvelope(t, recorder)
	assert.Equal(t, 200, envelope.Code)
	assert.Equal(t, float64(api.Clock.NowUnixMilli()), data["time"])

	readable, ok := data["readableTime"].(string)
	require.True(t, ok)
	parsed, err := time.Parse(time.RFC3339, readable)
	require.NoError(t, err)
	assert.Equal(t, api.Clock.Now().Unix(), parsed.Unix())
}

func TestFareForRoute(t *testing.T) {
	api := createTestApi(t)

	recorder := serveRequest(api, http.MethodGet, "/api/where/fare/metro_r1")

	assert.Equal(t, http.StatusOK, recorder.Code)
	_, data := decodeEnvelope(t, recorder)
	fare, ok := data["fare"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "metro_r1", fare["routeId"])
	assert.Equal(t, "USD", fare["currency"])
	assert.Equal(t, true, fare["default"])
}

func TestAgencies(t *testing.T) {
	api := createTestApi(t)

	recorder := serveRequest(api, http.MethodGet, "/api/where/agencies")

	assert.Equal(t, http.StatusOK, recorder.Code)
	envelope, _ := decodeEnvelope(t, recorder)
	assert.Equal(t, 200, envelope.Code)
}

func TestAPIKeyRequiredWhenConfigured(t *testing.T) {
	api := createTestApi(t)
	api.Config = transit.Config{APIKeys: map[string]string{"web": "secret"}}

	recorder := serveRequest(api, http.MethodGet, "/api/where/current-time")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = serveRequest(api, http.MethodGet, "/api/where/current-time?key=wrong")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = serveRequest(api, http.MethodGet, "/api/where/current-time?key=secret")
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestHealthEndpointSkipsAPIKeyCheck(t *testing.T) {
	api := createTestApi(t)
	api.Config = transit.Config{APIKeys: map[string]string{"web": "secret"}}

	recorder := serveRequest(api, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, recorder.Code)
}
