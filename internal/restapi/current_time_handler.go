package restapi

import (
	"net/http"
	"time"

	"wayfinder.transitlab.org/internal/models"
)

// currentTimeHandler writes a JSON response with the server's current time.
func (api *RestAPI) currentTimeHandler(w http.ResponseWriter, r *http.Request) {
	now := api.Clock.Now()
	response := models.NewOKResponse(api.Clock, map[string]any{
		"time":         now.UnixMilli(),
		"readableTime": now.Format(time.RFC3339),
	})

	api.sendResponse(w, r, response)
}
