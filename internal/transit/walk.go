package transit

import (
	"context"
	"encoding/json"
	"fmt"

	"wayfinder.transitlab.org/internal/models"
	"wayfinder.transitlab.org/internal/utils"
)

// walkSpeedMetersPerSec is the assumed pedestrian speed for straight-line
// walking estimates.
const walkSpeedMetersPerSec = 1.4

// osrmRouteResponse is the subset of an OSRM /route answer we read.
type osrmRouteResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
	} `json:"routes"`
}

// walkSeconds estimates walking time between two points. Estimates are
// memoized in the LRU walk cache keyed by rounded coordinate pairs; the
// external foot router is consulted when configured, with straight-line
// distance at walking speed as the always-available fallback.
func (e *Engine) walkSeconds(ctx context.Context, from, to models.Location) int {
	straightLine := int(utils.Distance(from.Lat, from.Lon, to.Lat, to.Lon) / walkSpeedMetersPerSec)
	if e.config.WalkRouterURL == "" {
		return straightLine
	}

	key := fmt.Sprintf("%.4f,%.4f|%.4f,%.4f", from.Lat, from.Lon, to.Lat, to.Lon)
	if cached, err := e.walkCache.Get(key); err == nil {
		return cached.(int)
	}

	seconds, err := e.routedWalkSeconds(ctx, from, to)
	if err != nil {
		return straightLine
	}

	_ = e.walkCache.Set(key, seconds)
	return seconds
}

// routedWalkSeconds asks the configured OSRM-compatible foot router.
func (e *Engine) routedWalkSeconds(ctx context.Context, from, to models.Location) (int, error) {
	url := fmt.Sprintf("%s/route/v1/foot/%s,%s;%s,%s?overview=false",
		e.config.WalkRouterURL,
		formatCoord(from.Lon), formatCoord(from.Lat),
		formatCoord(to.Lon), formatCoord(to.Lat))

	body, err := fetchBytes(ctx, providerHTTPClient, url, nil, 1024*1024)
	if err != nil {
		return 0, err
	}

	var decoded osrmRouteResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0, fmt.Errorf("decoding walk route: %w", err)
	}
	if decoded.Code != "Ok" || len(decoded.Routes) == 0 {
		return 0, fmt.Errorf("walk router returned no route (code %q)", decoded.Code)
	}
	return int(decoded.Routes[0].Duration), nil
}
