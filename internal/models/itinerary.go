package models

import "time"

// LegType distinguishes walking segments from transit segments.
type LegType string

const (
	LegWalk    LegType = "WALK"
	LegTransit LegType = "TRANSIT"
)

// Leg is one homogeneous segment of an itinerary. Legs must chain:
// legs[i].To equals legs[i+1].From.
type Leg struct {
	Type     LegType `json:"type"`
	From     Stop    `json:"from"`
	To       Stop    `json:"to"`
	RouteID  string  `json:"routeId,omitempty"`
	TripID   string  `json:"tripId,omitempty"`
	Headsign string  `json:"headsign,omitempty"`

	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationSeconds int       `json:"durationSeconds"`
	DistanceMeters  float64   `json:"distanceMeters"`

	// Geometry is the leg path as a Google encoded polyline.
	Geometry string `json:"geometry,omitempty"`
}

// Itinerary is a planned point-to-point journey. Computed, never persisted.
type Itinerary struct {
	DurationSeconds int       `json:"durationSeconds"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	Transfers       int       `json:"transfers"`
	Legs            []Leg     `json:"legs"`
	Fare            *FareInfo `json:"fare,omitempty"`
	// Synthesized marks an estimate produced after every planning provider
	// failed, as opposed to a schedule-backed plan.
	Synthesized bool `json:"synthesized,omitempty"`
}

// ChainsContinuously reports whether consecutive legs share endpoints.
func (it Itinerary) ChainsContinuously() bool {
	for i := 0; i+1 < len(it.Legs); i++ {
		if it.Legs[i].To.ID != it.Legs[i+1].From.ID {
			return false
		}
	}
	return true
}

// TripPlanOptions tunes the itinerary planner.
type TripPlanOptions struct {
	// MaxWalkDistance bounds the walk to and from transit, meters.
	MaxWalkDistance float64 `json:"maxWalkDistance"`
	// Wheelchair restricts results to wheelchair-accessible trips.
	Wheelchair bool `json:"wheelchair,omitempty"`
	// Optimize is reserved; duration is the only ranking currently applied.
	Optimize string `json:"optimize,omitempty"`
}

// DefaultTripPlanOptions returns the planner defaults.
func DefaultTripPlanOptions() TripPlanOptions {
	return TripPlanOptions{MaxWalkDistance: 500}
}
