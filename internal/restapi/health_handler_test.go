package restapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wayfinder.transitlab.org/internal/app"
	"wayfinder.transitlab.org/internal/appconf"
	"wayfinder.transitlab.org/internal/transit"
)

func TestHealthCheckOK(t *testing.T) {
	api := createTestApi(t)

	recorder := serveRequest(api, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, recorder.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
}

func TestHealthCheckWithoutEngine(t *testing.T) {
	api := NewRestAPI(&app.Application{})

	recorder := serveRequest(api, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &health))
	assert.Equal(t, "unavailable", health.Status)
}

func TestHealthCheckWhileStarting(t *testing.T) {
	clk := transit.MockClockAt(7, 0)
	engine := transit.NewEngine(transit.Config{DataPath: ":memory:", Env: appconf.Test}, clk, nil, nil)
	t.Cleanup(engine.Shutdown)

	api := NewRestAPI(&app.Application{Engine: engine, Clock: clk})
	recorder := serveRequest(api, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &health))
	assert.Equal(t, "starting", health.Status)
}

func TestHealthCheckRemoteOnly(t *testing.T) {
	api := createTestApi(t)
	api.Engine.Store = nil

	recorder := serveRequest(api, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, recorder.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Contains(t, health.Detail, "remote-only")
}
