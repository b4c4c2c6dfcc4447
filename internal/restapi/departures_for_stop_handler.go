package restapi

import (
	"net/http"
	"strconv"

	"wayfinder.transitlab.org/internal/models"
)

func (api *RestAPI) departuresForStopHandler(w http.ResponseWriter, r *http.Request) {
	stopID := r.PathValue("id")
	if stopID == "" {
		api.sendNotFound(w, r)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.validationErrorResponse(w, r, map[string][]string{
				"limit": {"must be a positive integer"},
			})
			return
		}
		limit = parsed
	}

	departures := api.Engine.GetDepartures(r.Context(), stopID, limit)
	api.sendResponse(w, r, models.NewOKResponse(api.Clock, map[string]any{
		"stopId":     stopID,
		"departures": departures,
	}))
}
