package restapi

import (
	"net/http"

	"wayfinder.transitlab.org/internal/models"
)

func (api *RestAPI) agenciesHandler(w http.ResponseWriter, r *http.Request) {
	api.sendResponse(w, r, models.NewOKResponse(api.Clock, map[string]any{
		"agencies": api.Engine.Agencies(),
	}))
}
