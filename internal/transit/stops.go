package transit

import (
	"context"
	"fmt"
	"sort"

	"wayfinder.transitlab.org/internal/cache"
	"wayfinder.transitlab.org/internal/fallback"
	"wayfinder.transitlab.org/internal/models"
	"wayfinder.transitlab.org/internal/utils"
)

const (
	maxNearbyStops          = 10
	defaultNearbyRadiusM    = 500.0
	nearbyCacheCoordDigits  = 4 // ~11m grid, good enough for cache identity
	plannerCandidateStops   = 3
	maxTransferItinsPerPair = 2
	maxItineraries          = 3
)

// FindNearbyStops returns at most 10 stops within maxDistanceMeters of
// loc, sorted ascending by distance. The result is never empty: when the
// local store and the aggregator both come up short, the engine
// synthesizes placeholder stops flagged as such.
func (e *Engine) FindNearbyStops(ctx context.Context, loc models.Location, maxDistanceMeters float64) []models.Stop {
	if maxDistanceMeters <= 0 {
		maxDistanceMeters = defaultNearbyRadiusM
	}

	key := cache.Key("nearby_stops",
		roundCoord(loc.Lat, nearbyCacheCoordDigits),
		roundCoord(loc.Lon, nearbyCacheCoordDigits),
		int(maxDistanceMeters))
	if cached, ok := e.queryCache.Get(key); ok {
		return cached.([]models.Stop)
	}

	chain := fallback.Chain[[]models.Stop]{
		Operation: "find_nearby_stops",
		Providers: []fallback.Provider[[]models.Stop]{
			{Name: "local_store", Fetch: func(ctx context.Context) ([]models.Stop, error) {
				return e.localNearbyStops(loc, maxDistanceMeters)
			}},
			{Name: "aggregator", Fetch: func(ctx context.Context) ([]models.Stop, error) {
				stops, err := e.aggregator.NearbyStops(ctx, loc, maxDistanceMeters)
				if err != nil {
					return nil, err
				}
				return clampToRadius(loc, stops, maxDistanceMeters), nil
			}},
		},
		Valid:         func(stops []models.Stop) bool { return len(stops) > 0 },
		Synthesize:    func(ctx context.Context) []models.Stop { return synthesizeStops(loc) },
		Logger:        e.logger,
		OnAttempt:     e.observeAttempt,
		OnSynthesized: e.observeSynthesized,
	}

	result := chain.Execute(ctx)
	stops := result.Value
	if len(stops) > maxNearbyStops {
		stops = stops[:maxNearbyStops]
	}

	// Synthesized stops are placeholders; caching them would mask real
	// data arriving moments later.
	if !result.Synthesized {
		e.queryCache.Set(key, cache.ClassStops, stops)
	}
	return stops
}

// clampToRadius recomputes each stop's distance from loc, drops stops
// beyond radiusMeters, and sorts the rest ascending. Remote providers are
// not trusted to have applied the radius themselves.
func clampToRadius(loc models.Location, stops []models.Stop, radiusMeters float64) []models.Stop {
	within := make([]models.Stop, 0, len(stops))
	for _, stop := range stops {
		stop.Distance = utils.Distance(loc.Lat, loc.Lon, stop.Lat, stop.Lon)
		if stop.Distance <= radiusMeters {
			within = append(within, stop)
		}
	}
	sort.Slice(within, func(i, j int) bool { return within[i].Distance < within[j].Distance })
	return within
}

// localNearbyStops answers from the in-memory spatial index.
func (e *Engine) localNearbyStops(loc models.Location, radiusMeters float64) ([]models.Stop, error) {
	index := e.StopIndexSnapshot()
	if index == nil {
		return nil, ErrStoreUnavailable
	}
	return index.StopsNear(loc, radiusMeters, maxNearbyStops), nil
}

// synthesizeStops fabricates four placeholder stops on the compass points
// around loc. They carry no schedule data; their only job is to keep
// downstream consumers structurally whole when every real source failed.
func synthesizeStops(loc models.Location) []models.Stop {
	// ~250m offsets in degrees at mid latitudes.
	offsets := []struct {
		dLat, dLon float64
		name       string
	}{
		{0.00225, 0, "North"},
		{-0.00225, 0, "South"},
		{0, 0.00285, "East"},
		{0, -0.00285, "West"},
	}

	stops := make([]models.Stop, 0, len(offsets))
	for i, o := range offsets {
		lat := loc.Lat + o.dLat
		lon := loc.Lon + o.dLon
		stops = append(stops, models.Stop{
			ID:          fmt.Sprintf("synthesized_%d", i+1),
			Name:        fmt.Sprintf("Approximate stop (%s)", o.name),
			Lat:         lat,
			Lon:         lon,
			Distance:    utils.Distance(loc.Lat, loc.Lon, lat, lon),
			Synthesized: true,
		})
	}
	return stops
}

func roundCoord(v float64, digits int) float64 {
	scale := 1.0
	for i := 0; i < digits; i++ {
		scale *= 10
	}
	return float64(int64(v*scale)) / scale
}
