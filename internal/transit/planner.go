package transit

import (
	"context"
	"sort"
	"time"

	"github.com/twpayne/go-polyline"
	"wayfinder.transitlab.org/internal/fallback"
	"wayfinder.transitlab.org/internal/models"
	"wayfinder.transitlab.org/internal/utils"
	"wayfinder.transitlab.org/transitdb"
)

const (
	secondsPerDay = 24 * 60 * 60
	// synthesizedTransitSpeedKmh is the assumed average transit speed used
	// for the last-resort itinerary estimate.
	synthesizedTransitSpeedKmh = 20.0
	// minSynthesizedDurationSec floors the synthesized estimate so very
	// short trips still read as plausible door-to-door times.
	minSynthesizedDurationSec = 1800
)

// PlanTrip plans up to 3 itineraries between two coordinates. The result
// is never empty: the local schedule planner, then the aggregator
// planner, then a straight-line synthesized estimate.
func (e *Engine) PlanTrip(ctx context.Context, from, to models.Location, opts models.TripPlanOptions) []models.Itinerary {
	if opts.MaxWalkDistance <= 0 {
		opts.MaxWalkDistance = models.DefaultTripPlanOptions().MaxWalkDistance
	}

	chain := fallback.Chain[[]models.Itinerary]{
		Operation: "plan_trip",
		Providers: []fallback.Provider[[]models.Itinerary]{
			{Name: "local_planner", Fetch: func(ctx context.Context) ([]models.Itinerary, error) {
				return e.localPlanTrip(ctx, from, to, opts)
			}},
			{Name: "aggregator", Fetch: func(ctx context.Context) ([]models.Itinerary, error) {
				return e.aggregator.PlanTrip(ctx, from, to, opts)
			}},
		},
		Valid: func(itins []models.Itinerary) bool { return len(itins) > 0 },
		Synthesize: func(ctx context.Context) []models.Itinerary {
			return []models.Itinerary{e.synthesizeItinerary(from, to)}
		},
		Logger:        e.logger,
		OnAttempt:     e.observeAttempt,
		OnSynthesized: e.observeSynthesized,
	}

	itineraries := chain.Execute(ctx).Value
	if len(itineraries) > maxItineraries {
		itineraries = itineraries[:maxItineraries]
	}
	return itineraries
}

// plannerStop is a candidate boarding or alighting stop with the trips
// that serve it, keyed by trip ID.
type plannerStop struct {
	stop  models.Stop
	trips map[string]transitdb.TripStopTime
	order []transitdb.TripStopTime
}

// localPlanTrip runs the schedule search against the local store.
func (e *Engine) localPlanTrip(ctx context.Context, from, to models.Location, opts models.TripPlanOptions) ([]models.Itinerary, error) {
	if e.Store == nil {
		return nil, ErrStoreUnavailable
	}

	originStops, err := e.plannerCandidates(ctx, from, opts.MaxWalkDistance)
	if err != nil {
		return nil, err
	}
	destStops, err := e.plannerCandidates(ctx, to, opts.MaxWalkDistance)
	if err != nil {
		return nil, err
	}
	if len(originStops) == 0 || len(destStops) == 0 {
		return nil, ErrDataNotFound
	}

	now := e.clock.Now()
	nowSecs := secondsSinceMidnight(now)

	var candidates []models.Itinerary
	for _, origin := range originStops {
		for _, dest := range destStops {
			if origin.stop.ID == dest.stop.ID {
				continue
			}
			direct := e.directItineraries(ctx, from, to, origin, dest, now, nowSecs, opts)
			if len(direct) > 0 {
				candidates = append(candidates, direct...)
				continue
			}
			candidates = append(candidates,
				e.transferItineraries(ctx, from, to, origin, dest, now, nowSecs, opts)...)
		}
	}

	if len(candidates) == 0 {
		return nil, ErrDataNotFound
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DurationSeconds < candidates[j].DurationSeconds
	})
	if len(candidates) > maxItineraries {
		candidates = candidates[:maxItineraries]
	}
	return candidates, nil
}

// plannerCandidates picks up to 3 real stops walkable from loc.
func (e *Engine) plannerCandidates(ctx context.Context, loc models.Location, maxWalkMeters float64) ([]plannerStop, error) {
	index := e.StopIndexSnapshot()
	if index == nil {
		return nil, ErrStoreUnavailable
	}
	nearest := index.StopsNear(loc, maxWalkMeters, plannerCandidateStops)

	candidates := make([]plannerStop, 0, len(nearest))
	for _, stop := range nearest {
		serving, err := e.Store.Queries.TripsServingStop(ctx, stop.ID)
		if err != nil {
			return nil, err
		}
		byTrip := make(map[string]transitdb.TripStopTime, len(serving))
		for _, ts := range serving {
			byTrip[ts.Trip.ID] = ts
		}
		candidates = append(candidates, plannerStop{stop: stop, trips: byTrip, order: serving})
	}
	return candidates, nil
}

// directItineraries finds single-trip connections between one stop pair:
// common trips where the destination stop comes after the origin stop.
func (e *Engine) directItineraries(ctx context.Context, from, to models.Location, origin, dest plannerStop, now time.Time, nowSecs int, opts models.TripPlanOptions) []models.Itinerary {
	var itineraries []models.Itinerary

	for _, boarding := range origin.order {
		alighting, common := dest.trips[boarding.Trip.ID]
		if !common || alighting.StopTime.StopSequence <= boarding.StopTime.StopSequence {
			continue
		}
		if opts.Wheelchair && !boarding.Trip.WheelchairAccessible {
			continue
		}
		itinerary, ok := e.assembleItinerary(ctx, from, to, now, nowSecs,
			transitSegment{trip: boarding.Trip, board: origin.stop, boardTime: boarding.StopTime,
				alight: dest.stop, alightTime: alighting.StopTime})
		if ok {
			itineraries = append(itineraries, itinerary)
		}
	}

	return itineraries
}

// transferItineraries runs the bounded one-transfer search for one stop
// pair, stopping after the first 2 viable connections.
func (e *Engine) transferItineraries(ctx context.Context, from, to models.Location, origin, dest plannerStop, now time.Time, nowSecs int, opts models.TripPlanOptions) []models.Itinerary {
	const maxOriginTripsScanned = 5
	const maxIntermediatesPerTrip = 10

	var itineraries []models.Itinerary
	scanned := 0

	for _, boarding := range origin.order {
		if len(itineraries) >= maxTransferItinsPerPair || scanned >= maxOriginTripsScanned {
			break
		}
		scanned++
		if opts.Wheelchair && !boarding.Trip.WheelchairAccessible {
			continue
		}

		downstream, err := e.Store.Queries.StopTimesForTrip(ctx, boarding.Trip.ID)
		if err != nil {
			continue
		}

		inspected := 0
		for _, intermediate := range downstream {
			if len(itineraries) >= maxTransferItinsPerPair || inspected >= maxIntermediatesPerTrip {
				break
			}
			if intermediate.StopSequence <= boarding.StopTime.StopSequence {
				continue
			}
			inspected++

			connecting, err := e.Store.Queries.TripsServingStop(ctx, intermediate.StopID)
			if err != nil {
				continue
			}
			for _, second := range connecting {
				if second.Trip.ID == boarding.Trip.ID {
					continue
				}
				if opts.Wheelchair && !second.Trip.WheelchairAccessible {
					continue
				}
				alighting, serves := dest.trips[second.Trip.ID]
				if !serves || alighting.StopTime.StopSequence <= second.StopTime.StopSequence {
					continue
				}
				// Second boarding has to depart after the first arrival.
				if second.StopTime.DepartureSec < intermediate.ArrivalSec {
					continue
				}

				intermediateStop, err := e.Store.Queries.GetStop(ctx, intermediate.StopID)
				if err != nil {
					continue
				}
				itinerary, ok := e.assembleItinerary(ctx, from, to, now, nowSecs,
					transitSegment{trip: boarding.Trip, board: origin.stop, boardTime: boarding.StopTime,
						alight: intermediateStop, alightTime: intermediate},
					transitSegment{trip: second.Trip, board: intermediateStop, boardTime: second.StopTime,
						alight: dest.stop, alightTime: alighting.StopTime})
				if ok {
					itineraries = append(itineraries, itinerary)
				}
				if len(itineraries) >= maxTransferItinsPerPair {
					break
				}
			}
		}
	}

	return itineraries
}

// transitSegment is one ride: board a trip at one stop, leave at another.
type transitSegment struct {
	trip       models.Trip
	board      models.Stop
	boardTime  models.StopTime
	alight     models.Stop
	alightTime models.StopTime
}

// assembleItinerary builds walk→transit(→transit)→walk legs for the given
// segments, anchored at the next occurrence of the first departure at or
// after the walk arrival. Returns false when the schedule does not line
// up (e.g. alighting before boarding).
func (e *Engine) assembleItinerary(ctx context.Context, from, to models.Location, now time.Time, nowSecs int, segments ...transitSegment) (models.Itinerary, bool) {
	first := segments[0]
	last := segments[len(segments)-1]

	origin := placeStop("origin", from)
	destination := placeStop("destination", to)

	accessWalk := e.walkSeconds(ctx, from, stopLocation(first.board))
	egressWalk := e.walkSeconds(ctx, stopLocation(last.alight), to)

	// Anchor on the next run of the first departure: today if still
	// reachable after the access walk, otherwise tomorrow's.
	earliestBoard := nowSecs + accessWalk
	dayOffset := 0
	if first.boardTime.DepartureSec < earliestBoard {
		dayOffset = secondsPerDay
	}

	serviceMidnight := now.Add(-time.Duration(nowSecs) * time.Second)
	clockAt := func(daySeconds int) time.Time {
		return serviceMidnight.Add(time.Duration(daySeconds+dayOffset) * time.Second)
	}

	start := now
	legs := []models.Leg{e.walkLeg(origin, first.board, start, accessWalk)}

	for _, segment := range segments {
		if segment.alightTime.ArrivalSec <= segment.boardTime.DepartureSec {
			return models.Itinerary{}, false
		}
		legs = append(legs, models.Leg{
			Type:            models.LegTransit,
			From:            segment.board,
			To:              segment.alight,
			RouteID:         segment.trip.RouteID,
			TripID:          segment.trip.ID,
			Headsign:        segment.trip.Headsign,
			StartTime:       clockAt(segment.boardTime.DepartureSec),
			EndTime:         clockAt(segment.alightTime.ArrivalSec),
			DurationSeconds: segment.alightTime.ArrivalSec - segment.boardTime.DepartureSec,
			DistanceMeters:  utils.Distance(segment.board.Lat, segment.board.Lon, segment.alight.Lat, segment.alight.Lon),
			Geometry:        encodeLegGeometry(segment.board, segment.alight),
		})
	}

	arrival := clockAt(last.alightTime.ArrivalSec)
	legs = append(legs, e.walkLeg(last.alight, destination, arrival, egressWalk))

	end := arrival.Add(time.Duration(egressWalk) * time.Second)
	itinerary := models.Itinerary{
		DurationSeconds: int(end.Sub(start).Seconds()),
		StartTime:       start,
		EndTime:         end,
		Transfers:       len(segments) - 1,
		Legs:            legs,
	}
	if itinerary.DurationSeconds <= 0 {
		return models.Itinerary{}, false
	}
	fare := e.GetFareInfo(ctx, first.trip.RouteID)
	itinerary.Fare = &fare
	return itinerary, true
}

// walkLeg builds one pedestrian leg between two stops (or place markers).
func (e *Engine) walkLeg(from, to models.Stop, start time.Time, durationSec int) models.Leg {
	return models.Leg{
		Type:            models.LegWalk,
		From:            from,
		To:              to,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(durationSec) * time.Second),
		DurationSeconds: durationSec,
		DistanceMeters:  utils.Distance(from.Lat, from.Lon, to.Lat, to.Lon),
		Geometry:        encodeLegGeometry(from, to),
	}
}

// synthesizeItinerary fabricates the last-resort answer: straight-line
// distance at an assumed transit speed, floored at 30 minutes, bracketed
// by short walks to placeholder stops so the legs still chain.
func (e *Engine) synthesizeItinerary(from, to models.Location) models.Itinerary {
	distanceMeters := utils.Distance(from.Lat, from.Lon, to.Lat, to.Lon)
	transitSec := int(distanceMeters / 1000.0 / synthesizedTransitSpeedKmh * 3600.0)

	origin := placeStop("origin", from)
	destination := placeStop("destination", to)
	boardStop := nearestSynthesizedStop(from)
	alightStop := nearestSynthesizedStop(to)
	accessWalk := int(utils.Distance(from.Lat, from.Lon, boardStop.Lat, boardStop.Lon) / walkSpeedMetersPerSec)
	egressWalk := int(utils.Distance(alightStop.Lat, alightStop.Lon, to.Lat, to.Lon) / walkSpeedMetersPerSec)

	total := accessWalk + transitSec + egressWalk
	if total < minSynthesizedDurationSec {
		transitSec += minSynthesizedDurationSec - total
		total = minSynthesizedDurationSec
	}

	start := e.clock.Now()
	boardAt := start.Add(time.Duration(accessWalk) * time.Second)
	alightAt := boardAt.Add(time.Duration(transitSec) * time.Second)
	end := alightAt.Add(time.Duration(egressWalk) * time.Second)

	legs := []models.Leg{
		e.walkLeg(origin, boardStop, start, accessWalk),
		{
			Type:            models.LegTransit,
			From:            boardStop,
			To:              alightStop,
			Headsign:        "Approximate transit connection",
			StartTime:       boardAt,
			EndTime:         alightAt,
			DurationSeconds: transitSec,
			DistanceMeters:  utils.Distance(boardStop.Lat, boardStop.Lon, alightStop.Lat, alightStop.Lon),
			Geometry:        encodeLegGeometry(boardStop, alightStop),
		},
		e.walkLeg(alightStop, destination, alightAt, egressWalk),
	}

	fare := models.DefaultFare("")
	return models.Itinerary{
		DurationSeconds: total,
		StartTime:       start,
		EndTime:         end,
		Transfers:       0,
		Legs:            legs,
		Fare:            &fare,
		Synthesized:     true,
	}
}

func nearestSynthesizedStop(loc models.Location) models.Stop {
	return synthesizeStops(loc)[0]
}

// placeStop wraps a bare coordinate as a stop-shaped journey endpoint.
func placeStop(id string, loc models.Location) models.Stop {
	return models.Stop{ID: id, Lat: loc.Lat, Lon: loc.Lon, Synthesized: true}
}

func stopLocation(stop models.Stop) models.Location {
	return models.Location{Lat: stop.Lat, Lon: stop.Lon}
}

// encodeLegGeometry renders a straight segment between two points as an
// encoded polyline. Shape data is not stored locally, so legs carry the
// chord rather than the street or track alignment.
func encodeLegGeometry(from, to models.Stop) string {
	coords := [][]float64{{from.Lat, from.Lon}, {to.Lat, to.Lon}}
	return string(polyline.EncodeCoords(coords))
}

func secondsSinceMidnight(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
