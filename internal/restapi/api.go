// Package restapi exposes the engine's query operations over HTTP with a
// versioned JSON envelope.
package restapi

import (
	"net/http"

	"wayfinder.transitlab.org/internal/app"
	"wayfinder.transitlab.org/internal/cache"
)

// RestAPI wires the application's dependencies into HTTP handlers.
type RestAPI struct {
	*app.Application
}

// NewRestAPI creates a RestAPI around the given application.
func NewRestAPI(application *app.Application) *RestAPI {
	return &RestAPI{Application: application}
}

// SetRoutes registers all API routes on mux. Cache-Control lifetimes
// follow the TTL class of the data each endpoint serves.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	mux.Handle("GET /api/where/stops-for-location", CacheControlMiddleware(cache.ClassStops, api.requireValidKey(api.stopsForLocationHandler)))
	mux.Handle("GET /api/where/plan-trip", api.requireValidKey(api.planTripHandler))
	mux.Handle("GET /api/where/departures-for-stop/{id}", api.requireValidKey(api.departuresForStopHandler))
	mux.Handle("GET /api/where/alerts", CacheControlMiddleware(cache.ClassAlerts, api.requireValidKey(api.alertsHandler)))
	mux.Handle("GET /api/where/fare/{routeId}", CacheControlMiddleware(cache.ClassRoutes, api.requireValidKey(api.fareHandler)))
	mux.Handle("GET /api/where/agencies", api.requireValidKey(api.agenciesHandler))
	mux.Handle("GET /api/where/current-time", api.requireValidKey(api.currentTimeHandler))
	mux.HandleFunc("GET /healthz", api.healthHandler)
	mux.HandleFunc("GET /debug/engine", api.debugEngineHandler)
}

// requireValidKey rejects requests whose API key does not match any
// configured key.
func (api *RestAPI) requireValidKey(handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.sendUnauthorized(w, r)
			return
		}
		handler(w, r)
	})
}
