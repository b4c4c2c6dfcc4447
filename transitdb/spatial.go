package transitdb

import (
	"context"
	"sort"

	"github.com/tidwall/rtree"
	"wayfinder.transitlab.org/internal/models"
	"wayfinder.transitlab.org/internal/utils"
)

// StopIndex is an immutable in-memory spatial index over stored stops.
// It is rebuilt wholesale after every static load and swapped in under the
// engine's lock; readers never see a partially built tree.
type StopIndex struct {
	tree  rtree.RTreeG[models.Stop]
	count int
}

// BuildStopIndex loads every stop from the store into an rtree.
func BuildStopIndex(ctx context.Context, queries *Queries) (*StopIndex, error) {
	stops, err := queries.ListStops(ctx)
	if err != nil {
		return nil, err
	}

	index := &StopIndex{}
	for _, stop := range stops {
		point := [2]float64{stop.Lon, stop.Lat}
		index.tree.Insert(point, point, stop)
	}
	index.count = len(stops)
	return index, nil
}

// Len returns the number of indexed stops.
func (idx *StopIndex) Len() int {
	if idx == nil {
		return 0
	}
	return idx.count
}

// StopsNear returns stops strictly within radiusMeters of the location,
// sorted ascending by distance and capped at maxResults. The rtree search
// uses a bounding box, so an exact Haversine filter trims the corners.
func (idx *StopIndex) StopsNear(location models.Location, radiusMeters float64, maxResults int) []models.Stop {
	if idx == nil || idx.count == 0 {
		return nil
	}

	bounds := utils.CalculateBounds(location.Lat, location.Lon, radiusMeters)

	var candidates []models.Stop
	idx.tree.Search(
		[2]float64{bounds.MinLon, bounds.MinLat},
		[2]float64{bounds.MaxLon, bounds.MaxLat},
		func(_, _ [2]float64, stop models.Stop) bool {
			distance := utils.Distance(location.Lat, location.Lon, stop.Lat, stop.Lon)
			if distance <= radiusMeters {
				stop.Distance = distance
				candidates = append(candidates, stop)
			}
			return true
		},
	)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})

	if maxResults > 0 && len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	return candidates
}
