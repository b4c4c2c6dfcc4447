package restapi

import (
	"net/http"

	"wayfinder.transitlab.org/internal/models"
)

func (api *RestAPI) fareHandler(w http.ResponseWriter, r *http.Request) {
	routeID := r.PathValue("routeId")
	if routeID == "" {
		api.sendNotFound(w, r)
		return
	}

	fare := api.Engine.GetFareInfo(r.Context(), routeID)
	api.sendResponse(w, r, models.NewOKResponse(api.Clock, map[string]any{
		"fare": fare,
	}))
}
