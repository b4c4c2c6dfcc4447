package restapi

import (
	"net/http"
	"strconv"

	"wayfinder.transitlab.org/internal/models"
)

func (api *RestAPI) stopsForLocationHandler(w http.ResponseWriter, r *http.Request) {
	loc, fieldErrors := parseLocation(r, "lat", "lon")
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	radius := 500.0
	if raw := r.URL.Query().Get("radius"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			api.validationErrorResponse(w, r, map[string][]string{
				"radius": {"must be a positive number"},
			})
			return
		}
		radius = parsed
	}

	stops := api.Engine.FindNearbyStops(r.Context(), loc, radius)
	api.sendResponse(w, r, models.NewOKResponse(api.Clock, map[string]any{
		"stops": stops,
	}))
}

// parseLocation extracts a required coordinate pair from query params.
func parseLocation(r *http.Request, latParam, lonParam string) (models.Location, map[string][]string) {
	fieldErrors := map[string][]string{}

	lat, err := strconv.ParseFloat(r.URL.Query().Get(latParam), 64)
	if err != nil || lat < -90 || lat > 90 {
		fieldErrors[latParam] = []string{"must be a latitude between -90 and 90"}
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get(lonParam), 64)
	if err != nil || lon < -180 || lon > 180 {
		fieldErrors[lonParam] = []string{"must be a longitude between -180 and 180"}
	}

	if len(fieldErrors) > 0 {
		return models.Location{}, fieldErrors
	}
	return models.Location{Lat: lat, Lon: lon}, nil
}
