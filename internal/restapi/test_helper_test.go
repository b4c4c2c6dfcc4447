package restapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"wayfinder.transitlab.org/internal/app"
	"wayfinder.transitlab.org/internal/models"
	"wayfinder.transitlab.org/internal/transit"
)

var testAPICenter = models.Location{Lat: 47.6, Lon: -122.33}

// createTestApi builds a RestAPI over an in-memory engine preloaded with
// the mock dataset.
func createTestApi(t *testing.T) *RestAPI {
	t.Helper()

	clk := transit.MockClockAt(7, 30)
	engine := transit.NewTestEngine(clk)
	t.Cleanup(engine.Shutdown)
	require.NoError(t, engine.MockLoadDataset(context.Background(), transit.MockDataset("metro", testAPICenter)))

	return NewRestAPI(&app.Application{
		Engine: engine,
		Clock:  clk,
	})
}

// serveRequest routes one request through the API's full route table and
// returns the recorded response.
func serveRequest(api *RestAPI, method, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	api.SetRoutes(mux)

	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(method, target, nil))
	return recorder
}

// decodeEnvelope parses the standard response envelope, returning the
// data payload as a generic map.
func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) (models.ResponseModel, map[string]any) {
	t.Helper()

	var envelope models.ResponseModel
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))

	data, _ := envelope.Data.(map[string]any)
	return envelope, data
}
