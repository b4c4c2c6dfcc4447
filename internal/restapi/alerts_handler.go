package restapi

import (
	"net/http"
	"strings"

	"wayfinder.transitlab.org/internal/models"
)

func (api *RestAPI) alertsHandler(w http.ResponseWriter, r *http.Request) {
	routeIDs := splitCSVParam(r.URL.Query().Get("routeIds"))
	stopIDs := splitCSVParam(r.URL.Query().Get("stopIds"))

	alerts := api.Engine.GetAlerts(r.Context(), routeIDs, stopIDs)
	api.sendResponse(w, r, models.NewOKResponse(api.Clock, map[string]any{
		"alerts": alerts,
	}))
}

func splitCSVParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
