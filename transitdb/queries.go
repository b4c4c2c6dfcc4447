package transitdb

import (
	"context"
	"database/sql"
	"time"

	"wayfinder.transitlab.org/internal/models"
	"wayfinder.transitlab.org/internal/utils"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries is the hand-written query layer over the store schema.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const upsertAgency = `INSERT INTO agencies (id, name, source_kind)
VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, source_kind = excluded.source_kind`

// UpsertAgency creates or updates an agency record. Freshness is managed
// separately via SetFreshness so a re-registration never clears it.
func (q *Queries) UpsertAgency(ctx context.Context, agency models.Agency) error {
	_, err := q.db.ExecContext(ctx, upsertAgency, agency.ID, agency.Name, string(agency.SourceKind))
	return err
}

const getAgency = `SELECT id, name, source_kind, freshness FROM agencies WHERE id = ?`

func (q *Queries) GetAgency(ctx context.Context, id string) (models.Agency, error) {
	row := q.db.QueryRowContext(ctx, getAgency, id)
	return scanAgency(row)
}

const listAgencies = `SELECT id, name, source_kind, freshness FROM agencies ORDER BY id`

func (q *Queries) ListAgencies(ctx context.Context) ([]models.Agency, error) {
	rows, err := q.db.QueryContext(ctx, listAgencies)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var agencies []models.Agency
	for rows.Next() {
		agency, err := scanAgency(rows)
		if err != nil {
			return nil, err
		}
		agencies = append(agencies, agency)
	}
	return agencies, rows.Err()
}

const setFreshness = `UPDATE agencies SET freshness = ? WHERE id = ?`

// SetFreshness stamps the last successful static load time for an agency.
func (q *Queries) SetFreshness(ctx context.Context, agencyID string, ts time.Time) error {
	_, err := q.db.ExecContext(ctx, setFreshness, ts.Unix(), agencyID)
	return err
}

// GetFreshness returns the last successful load time, zero if never loaded.
func (q *Queries) GetFreshness(ctx context.Context, agencyID string) (time.Time, error) {
	var unix int64
	err := q.db.QueryRowContext(ctx, `SELECT freshness FROM agencies WHERE id = ?`, agencyID).Scan(&unix)
	if err != nil {
		return time.Time{}, err
	}
	if unix == 0 {
		return time.Time{}, nil
	}
	return time.Unix(unix, 0), nil
}

const upsertStop = `INSERT OR REPLACE INTO stops
(agency_id, id, code, name, lat, lon, wheelchair_boarding)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) UpsertStop(ctx context.Context, stop models.Stop) error {
	_, err := q.db.ExecContext(ctx, upsertStop,
		stop.AgencyID, stop.ID, toNullString(stop.Code), stop.Name,
		stop.Lat, stop.Lon, boolToInt(stop.WheelchairBoarding))
	return err
}

const getStop = `SELECT agency_id, id, code, name, lat, lon, wheelchair_boarding
FROM stops WHERE id = ?`

// GetStop looks a stop up by its agency-qualified id.
func (q *Queries) GetStop(ctx context.Context, id string) (models.Stop, error) {
	row := q.db.QueryRowContext(ctx, getStop, id)
	return scanStop(row)
}

const listStops = `SELECT agency_id, id, code, name, lat, lon, wheelchair_boarding FROM stops`

// ListStops returns every stored stop; used to build the spatial index.
func (q *Queries) ListStops(ctx context.Context) ([]models.Stop, error) {
	rows, err := q.db.QueryContext(ctx, listStops)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectStops(rows)
}

const stopsWithinBounds = `SELECT agency_id, id, code, name, lat, lon, wheelchair_boarding
FROM stops WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?`

// StopsWithinBounds returns stops inside a coordinate bounding box.
// Callers still need an exact distance filter; a box over-selects corners.
func (q *Queries) StopsWithinBounds(ctx context.Context, bounds utils.CoordinateBounds) ([]models.Stop, error) {
	rows, err := q.db.QueryContext(ctx, stopsWithinBounds,
		bounds.MinLat, bounds.MaxLat, bounds.MinLon, bounds.MaxLon)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectStops(rows)
}

const upsertRoute = `INSERT OR REPLACE INTO routes
(agency_id, id, short_name, long_name, type, color)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) UpsertRoute(ctx context.Context, route models.Route) error {
	_, err := q.db.ExecContext(ctx, upsertRoute,
		route.AgencyID, route.ID, toNullString(route.ShortName),
		toNullString(route.LongName), int64(route.Mode), toNullString(route.Color))
	return err
}

const getRoute = `SELECT agency_id, id, short_name, long_name, type, color
FROM routes WHERE id = ?`

func (q *Queries) GetRoute(ctx context.Context, id string) (models.Route, error) {
	var (
		route               models.Route
		shortName, longName sql.NullString
		color               sql.NullString
		routeType           int64
	)
	err := q.db.QueryRowContext(ctx, getRoute, id).Scan(
		&route.AgencyID, &route.ID, &shortName, &longName, &routeType, &color)
	if err != nil {
		return models.Route{}, err
	}
	route.ShortName = shortName.String
	route.LongName = longName.String
	route.Color = color.String
	route.Mode = models.ModeFromRouteType(int(routeType))
	return route, nil
}

const routesForAgency = `SELECT agency_id, id, short_name, long_name, type, color
FROM routes WHERE agency_id = ? ORDER BY id`

func (q *Queries) RoutesForAgency(ctx context.Context, agencyID string) ([]models.Route, error) {
	rows, err := q.db.QueryContext(ctx, routesForAgency, agencyID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var routes []models.Route
	for rows.Next() {
		var (
			route               models.Route
			shortName, longName sql.NullString
			color               sql.NullString
			routeType           int64
		)
		if err := rows.Scan(&route.AgencyID, &route.ID, &shortName, &longName, &routeType, &color); err != nil {
			return nil, err
		}
		route.ShortName = shortName.String
		route.LongName = longName.String
		route.Color = color.String
		route.Mode = models.ModeFromRouteType(int(routeType))
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

const upsertTrip = `INSERT OR REPLACE INTO trips
(agency_id, id, route_id, headsign, direction_id, wheelchair_accessible)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) UpsertTrip(ctx context.Context, trip models.Trip) error {
	_, err := q.db.ExecContext(ctx, upsertTrip,
		trip.AgencyID, trip.ID, trip.RouteID, toNullString(trip.Headsign),
		int64(trip.DirectionID), boolToInt(trip.WheelchairAccessible))
	return err
}

const getTrip = `SELECT agency_id, id, route_id, headsign, direction_id, wheelchair_accessible
FROM trips WHERE id = ?`

func (q *Queries) GetTrip(ctx context.Context, id string) (models.Trip, error) {
	var (
		trip       models.Trip
		headsign   sql.NullString
		direction  int64
		wheelchair int64
	)
	err := q.db.QueryRowContext(ctx, getTrip, id).Scan(
		&trip.AgencyID, &trip.ID, &trip.RouteID, &headsign, &direction, &wheelchair)
	if err != nil {
		return models.Trip{}, err
	}
	trip.Headsign = headsign.String
	trip.DirectionID = int(direction)
	trip.WheelchairAccessible = wheelchair != 0
	return trip, nil
}

const stopTimesForTrip = `SELECT trip_id, stop_id, stop_sequence, arrival_time, departure_time
FROM stop_times WHERE trip_id = ? ORDER BY stop_sequence`

// StopTimesForTrip returns a trip's calls ordered by stop sequence.
func (q *Queries) StopTimesForTrip(ctx context.Context, tripID string) ([]models.StopTime, error) {
	rows, err := q.db.QueryContext(ctx, stopTimesForTrip, tripID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var stopTimes []models.StopTime
	for rows.Next() {
		var st models.StopTime
		if err := rows.Scan(&st.TripID, &st.StopID, &st.StopSequence, &st.ArrivalSec, &st.DepartureSec); err != nil {
			return nil, err
		}
		stopTimes = append(stopTimes, st)
	}
	return stopTimes, rows.Err()
}

// TripStopTime is one (trip, stop-time) pair serving a stop.
type TripStopTime struct {
	Trip     models.Trip
	StopTime models.StopTime
}

const tripsServingStop = `SELECT
    t.agency_id, t.id, t.route_id, t.headsign, t.direction_id, t.wheelchair_accessible,
    st.stop_id, st.stop_sequence, st.arrival_time, st.departure_time
FROM stop_times st
JOIN trips t ON t.id = st.trip_id AND t.agency_id = st.agency_id
WHERE st.stop_id = ?
ORDER BY st.departure_time`

// TripsServingStop returns every trip calling at the stop with its call.
func (q *Queries) TripsServingStop(ctx context.Context, stopID string) ([]TripStopTime, error) {
	rows, err := q.db.QueryContext(ctx, tripsServingStop, stopID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []TripStopTime
	for rows.Next() {
		var (
			pair       TripStopTime
			headsign   sql.NullString
			direction  int64
			wheelchair int64
		)
		if err := rows.Scan(
			&pair.Trip.AgencyID, &pair.Trip.ID, &pair.Trip.RouteID, &headsign, &direction, &wheelchair,
			&pair.StopTime.StopID, &pair.StopTime.StopSequence,
			&pair.StopTime.ArrivalSec, &pair.StopTime.DepartureSec,
		); err != nil {
			return nil, err
		}
		pair.Trip.Headsign = headsign.String
		pair.Trip.DirectionID = int(direction)
		pair.Trip.WheelchairAccessible = wheelchair != 0
		pair.StopTime.TripID = pair.Trip.ID
		results = append(results, pair)
	}
	return results, rows.Err()
}

const upsertStopTime = `INSERT OR REPLACE INTO stop_times
(agency_id, trip_id, stop_id, stop_sequence, arrival_time, departure_time)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) UpsertStopTime(ctx context.Context, agencyID string, st models.StopTime) error {
	_, err := q.db.ExecContext(ctx, upsertStopTime,
		agencyID, st.TripID, st.StopID, int64(st.StopSequence),
		int64(st.ArrivalSec), int64(st.DepartureSec))
	return err
}

// CalendarParams describes one service calendar row.
type CalendarParams struct {
	AgencyID  string
	ServiceID string
	Weekdays  [7]bool // Monday..Sunday
	StartDate string  // YYYYMMDD
	EndDate   string  // YYYYMMDD
}

const upsertCalendar = `INSERT OR REPLACE INTO calendar
(agency_id, service_id, monday, tuesday, wednesday, thursday, friday, saturday, sunday, start_date, end_date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) UpsertCalendar(ctx context.Context, params CalendarParams) error {
	_, err := q.db.ExecContext(ctx, upsertCalendar,
		params.AgencyID, params.ServiceID,
		boolToInt(params.Weekdays[0]), boolToInt(params.Weekdays[1]), boolToInt(params.Weekdays[2]),
		boolToInt(params.Weekdays[3]), boolToInt(params.Weekdays[4]), boolToInt(params.Weekdays[5]),
		boolToInt(params.Weekdays[6]),
		params.StartDate, params.EndDate)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgency(row rowScanner) (models.Agency, error) {
	var (
		agency     models.Agency
		sourceKind string
		freshness  int64
	)
	if err := row.Scan(&agency.ID, &agency.Name, &sourceKind, &freshness); err != nil {
		return models.Agency{}, err
	}
	agency.SourceKind = models.SourceKind(sourceKind)
	if freshness != 0 {
		agency.Freshness = time.Unix(freshness, 0)
	}
	return agency, nil
}

func scanStop(row rowScanner) (models.Stop, error) {
	var (
		stop       models.Stop
		code       sql.NullString
		wheelchair int64
	)
	if err := row.Scan(&stop.AgencyID, &stop.ID, &code, &stop.Name, &stop.Lat, &stop.Lon, &wheelchair); err != nil {
		return models.Stop{}, err
	}
	stop.Code = code.String
	stop.WheelchairBoarding = wheelchair != 0
	return stop, nil
}

func collectStops(rows *sql.Rows) ([]models.Stop, error) {
	var stops []models.Stop
	for rows.Next() {
		stop, err := scanStop(rows)
		if err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}
	return stops, rows.Err()
}
