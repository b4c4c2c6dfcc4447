// Package models defines the canonical shapes shared by the store, the
// loader, the planner, and the REST API. Every source kind (vendor GTFS,
// aggregator, custom endpoint) normalizes into these types.
package models

import "time"

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SourceKind identifies which adapter loads an agency's static data.
type SourceKind string

const (
	SourceKindVendor     SourceKind = "vendor"
	SourceKindAggregator SourceKind = "aggregator"
	SourceKindCustom     SourceKind = "custom"
)

// Agency is one configured or detected transit operator.
type Agency struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	SourceKind SourceKind `json:"sourceKind"`
	// Freshness is the time of the last successful static load; zero means
	// the agency has never been loaded.
	Freshness time.Time `json:"freshness"`
}

// Stop is a boarding location, unique per agency scope.
type Stop struct {
	ID                 string  `json:"id"`
	AgencyID           string  `json:"agencyId"`
	Name               string  `json:"name"`
	Code               string  `json:"code,omitempty"`
	Lat                float64 `json:"lat"`
	Lon                float64 `json:"lon"`
	WheelchairBoarding bool    `json:"wheelchairBoarding"`
	// Distance is meters from the query point; populated by nearby lookups.
	Distance float64 `json:"distance,omitempty"`
	// Synthesized marks a stop invented by the last-resort generator rather
	// than sourced from authoritative data.
	Synthesized bool `json:"synthesized,omitempty"`
}

// RouteMode is the GTFS route_type mapped onto a named enum.
type RouteMode int

const (
	ModeTram RouteMode = iota
	ModeSubway
	ModeRail
	ModeBus
	ModeFerry
	ModeCableCar
	ModeGondola
	ModeFunicular
)

// ModeFromRouteType maps a raw GTFS route_type to a RouteMode.
// Unknown extended types collapse to bus, the most common mode.
func ModeFromRouteType(routeType int) RouteMode {
	if routeType >= 0 && routeType <= 7 {
		return RouteMode(routeType)
	}
	return ModeBus
}

func (m RouteMode) String() string {
	switch m {
	case ModeTram:
		return "tram"
	case ModeSubway:
		return "subway"
	case ModeRail:
		return "rail"
	case ModeBus:
		return "bus"
	case ModeFerry:
		return "ferry"
	case ModeCableCar:
		return "cable_car"
	case ModeGondola:
		return "gondola"
	case ModeFunicular:
		return "funicular"
	default:
		return "bus"
	}
}

// Route is a named service pattern operated by an agency.
type Route struct {
	ID        string    `json:"id"`
	AgencyID  string    `json:"agencyId"`
	ShortName string    `json:"shortName,omitempty"`
	LongName  string    `json:"longName,omitempty"`
	Mode      RouteMode `json:"mode"`
	Color     string    `json:"color,omitempty"`
}

// Trip is one scheduled run along a route.
type Trip struct {
	ID                   string `json:"id"`
	AgencyID             string `json:"agencyId"`
	RouteID              string `json:"routeId"`
	Headsign             string `json:"headsign,omitempty"`
	DirectionID          int    `json:"directionId"`
	WheelchairAccessible bool   `json:"wheelchairAccessible"`
}

// StopTime is a scheduled call of a trip at a stop. Arrival and departure
// are seconds after midnight on the service day, which keeps trips that
// roll past midnight representable (values may exceed 86400).
type StopTime struct {
	TripID       string `json:"tripId"`
	StopID       string `json:"stopId"`
	StopSequence int    `json:"stopSequence"`
	ArrivalSec   int    `json:"arrivalSec"`
	DepartureSec int    `json:"departureSec"`
}

// RealtimeUpdate is a live delay prediction for one trip at one stop.
// Updates are short-lived and wholly replaced on every poll.
type RealtimeUpdate struct {
	TripID       string    `json:"tripId"`
	StopID       string    `json:"stopId"`
	DelaySeconds int       `json:"delaySeconds"`
	Timestamp    time.Time `json:"timestamp"`
}

// Departure is one upcoming departure from a stop, merged from the
// schedule and the latest realtime snapshot.
type Departure struct {
	StopID       string    `json:"stopId"`
	TripID       string    `json:"tripId"`
	RouteID      string    `json:"routeId"`
	Headsign     string    `json:"headsign,omitempty"`
	Scheduled    time.Time `json:"scheduled"`
	Estimated    time.Time `json:"estimated"`
	DelaySeconds int       `json:"delaySeconds"`
	// Realtime reports whether a live update matched this departure;
	// delay-free updates still count.
	Realtime bool `json:"realtime"`
}

// Alert is a service disruption notice scoped to routes and/or stops.
type Alert struct {
	ID          string    `json:"id"`
	RouteIDs    []string  `json:"routeIds,omitempty"`
	StopIDs     []string  `json:"stopIds,omitempty"`
	Severity    string    `json:"severity,omitempty"`
	Header      string    `json:"header,omitempty"`
	Description string    `json:"description,omitempty"`
	ActiveFrom  time.Time `json:"activeFrom,omitempty"`
	ActiveUntil time.Time `json:"activeUntil,omitempty"`
}

// Active reports whether the alert's validity window covers t. A zero
// boundary leaves that side of the window open.
func (a Alert) Active(t time.Time) bool {
	if !a.ActiveFrom.IsZero() && t.Before(a.ActiveFrom) {
		return false
	}
	if !a.ActiveUntil.IsZero() && t.After(a.ActiveUntil) {
		return false
	}
	return true
}

// FareInfo is the fare schedule for a route.
type FareInfo struct {
	RouteID  string  `json:"routeId,omitempty"`
	Regular  float64 `json:"regular"`
	Reduced  float64 `json:"reduced"`
	Currency string  `json:"currency"`
	// Default marks the documented static fallback rather than data from
	// the agency's fare endpoint.
	Default bool `json:"default,omitempty"`
}

// DefaultFare is served whenever no fare provider succeeds.
func DefaultFare(routeID string) FareInfo {
	return FareInfo{
		RouteID:  routeID,
		Regular:  3.25,
		Reduced:  1.60,
		Currency: "USD",
		Default:  true,
	}
}
