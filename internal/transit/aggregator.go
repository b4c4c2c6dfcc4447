package transit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"wayfinder.transitlab.org/internal/models"
)

const maxAggregatorResponseSize = 25 * 1024 * 1024

// AggregatorClient talks to the multi-agency aggregator API. It backs
// agency detection, aggregator-sourced static loads, and the middle links
// of every public operation's fallback chain.
type AggregatorClient struct {
	baseURL string
	apiKey  string
}

// NewAggregatorClient creates a client; an empty baseURL yields a client
// whose calls all fail with ErrProviderUnavailable, which simply advances
// fallback chains past the aggregator link.
func NewAggregatorClient(baseURL, apiKey string) *AggregatorClient {
	return &AggregatorClient{baseURL: baseURL, apiKey: apiKey}
}

func (c *AggregatorClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("%w: aggregator not configured", ErrProviderUnavailable)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	headers := map[string]string{"Accept": "application/json"}
	if c.apiKey != "" {
		headers["X-Api-Key"] = c.apiKey
	}

	body, err := fetchBytes(ctx, providerHTTPClient, endpoint, headers, maxAggregatorResponseSize)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: malformed aggregator response: %v", ErrProviderUnavailable, err)
	}
	return nil
}

// DetectAgencies returns agencies operating near the location.
func (c *AggregatorClient) DetectAgencies(ctx context.Context, location models.Location) ([]models.Agency, error) {
	query := url.Values{}
	query.Set("lat", formatCoord(location.Lat))
	query.Set("lon", formatCoord(location.Lon))

	var payload struct {
		Agencies []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"agencies"`
	}
	if err := c.get(ctx, "/agencies", query, &payload); err != nil {
		return nil, err
	}

	agencies := make([]models.Agency, 0, len(payload.Agencies))
	for _, a := range payload.Agencies {
		if a.ID == "" {
			continue
		}
		agencies = append(agencies, models.Agency{
			ID:         a.ID,
			Name:       a.Name,
			SourceKind: models.SourceKindAggregator,
		})
	}
	return agencies, nil
}

// NearbyStops queries the aggregator's stop search.
func (c *AggregatorClient) NearbyStops(ctx context.Context, location models.Location, radiusMeters float64) ([]models.Stop, error) {
	query := url.Values{}
	query.Set("lat", formatCoord(location.Lat))
	query.Set("lon", formatCoord(location.Lon))
	query.Set("radius", strconv.Itoa(int(radiusMeters)))

	var payload struct {
		Stops []StopRecord `json:"stops"`
	}
	if err := c.get(ctx, "/stops", query, &payload); err != nil {
		return nil, err
	}

	stops := make([]models.Stop, 0, len(payload.Stops))
	for _, record := range payload.Stops {
		stop, ok := record.Normalize("")
		if !ok {
			continue
		}
		stops = append(stops, stop)
	}
	return stops, nil
}

// StaticDataset downloads one agency's full static dataset.
func (c *AggregatorClient) StaticDataset(ctx context.Context, agencyID string) (*StaticPayload, error) {
	var payload StaticPayload
	if err := c.get(ctx, "/static/"+url.PathEscape(agencyID), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// PlanTrip asks the aggregator's planner for itineraries.
func (c *AggregatorClient) PlanTrip(ctx context.Context, origin, destination models.Location, options models.TripPlanOptions) ([]models.Itinerary, error) {
	query := url.Values{}
	query.Set("fromLat", formatCoord(origin.Lat))
	query.Set("fromLon", formatCoord(origin.Lon))
	query.Set("toLat", formatCoord(destination.Lat))
	query.Set("toLon", formatCoord(destination.Lon))
	query.Set("maxWalk", strconv.Itoa(int(options.MaxWalkDistance)))
	if options.Wheelchair {
		query.Set("wheelchair", "true")
	}

	var payload struct {
		Itineraries []models.Itinerary `json:"itineraries"`
	}
	if err := c.get(ctx, "/plan", query, &payload); err != nil {
		return nil, err
	}
	return payload.Itineraries, nil
}

// Departures fetches live predictions for a stop.
func (c *AggregatorClient) Departures(ctx context.Context, stopID string, limit int) ([]models.Departure, error) {
	query := url.Values{}
	query.Set("stop", stopID)
	query.Set("limit", strconv.Itoa(limit))

	var payload struct {
		Departures []models.Departure `json:"departures"`
	}
	if err := c.get(ctx, "/departures", query, &payload); err != nil {
		return nil, err
	}
	return payload.Departures, nil
}

// Alerts fetches current service alerts across agencies.
func (c *AggregatorClient) Alerts(ctx context.Context) ([]models.Alert, error) {
	var payload struct {
		Alerts []models.Alert `json:"alerts"`
	}
	if err := c.get(ctx, "/alerts", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Alerts, nil
}

// RealtimeUpdates fetches delay predictions for an agency's trips.
func (c *AggregatorClient) RealtimeUpdates(ctx context.Context, agencyID string) ([]models.RealtimeUpdate, error) {
	query := url.Values{}
	query.Set("agency", agencyID)

	var payload struct {
		Updates []struct {
			TripID       string `json:"tripId"`
			StopID       string `json:"stopId"`
			DelaySeconds int    `json:"delaySeconds"`
			Timestamp    int64  `json:"timestamp"`
		} `json:"updates"`
	}
	if err := c.get(ctx, "/realtime", query, &payload); err != nil {
		return nil, err
	}

	updates := make([]models.RealtimeUpdate, 0, len(payload.Updates))
	for _, u := range payload.Updates {
		if u.TripID == "" {
			continue
		}
		updates = append(updates, models.RealtimeUpdate{
			TripID:       u.TripID,
			StopID:       u.StopID,
			DelaySeconds: u.DelaySeconds,
			Timestamp:    time.Unix(u.Timestamp, 0),
		})
	}
	return updates, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
