package restapi

import (
	"net/http"
	"strconv"

	"wayfinder.transitlab.org/internal/models"
)

func (api *RestAPI) planTripHandler(w http.ResponseWriter, r *http.Request) {
	from, fromErrors := parseLocation(r, "fromLat", "fromLon")
	to, toErrors := parseLocation(r, "toLat", "toLon")

	fieldErrors := map[string][]string{}
	for field, errs := range fromErrors {
		fieldErrors[field] = errs
	}
	for field, errs := range toErrors {
		fieldErrors[field] = errs
	}
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	opts := models.DefaultTripPlanOptions()
	if raw := r.URL.Query().Get("maxWalkDistance"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			api.validationErrorResponse(w, r, map[string][]string{
				"maxWalkDistance": {"must be a positive number of meters"},
			})
			return
		}
		opts.MaxWalkDistance = parsed
	}
	if raw := r.URL.Query().Get("wheelchair"); raw != "" {
		opts.Wheelchair, _ = strconv.ParseBool(raw)
	}

	itineraries := api.Engine.PlanTrip(r.Context(), from, to, opts)
	api.sendResponse(w, r, models.NewOKResponse(api.Clock, map[string]any{
		"itineraries": itineraries,
	}))
}
