package transitdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"wayfinder.transitlab.org/internal/logging"
	"wayfinder.transitlab.org/internal/models"
)

// AgencyDataset is one agency's fully parsed static data, staged for a
// wholesale replace.
type AgencyDataset struct {
	AgencyID  string
	Stops     []models.Stop
	Routes    []models.Route
	Trips     []models.Trip
	StopTimes []models.StopTime
	Calendars []CalendarParams
}

// stopTimeBatchSize bounds the multi-row VALUES clause; SQLite caps bound
// parameters at 999 per statement by default (6 columns per row).
const stopTimeBatchSize = 150

// ReplaceAgencyData atomically swaps an agency's static tables for the
// given dataset. The previous rows survive any failure: the whole replace
// runs inside one transaction, so a broken insert rolls back to the data
// that was being served before the load started.
func (c *Client) ReplaceAgencyData(ctx context.Context, dataset AgencyDataset) error {
	logger := slog.Default().With(slog.String("component", "store_import"))

	tx, err := c.DB.Begin()
	if err != nil {
		return err
	}
	defer logging.SafeRollbackWithLogging(tx, logger, "replace_agency_data")

	qtx := c.Queries.WithTx(tx)

	if err := clearAgencyStatic(ctx, tx, dataset.AgencyID); err != nil {
		return fmt.Errorf("unable to clear agency %s: %w", dataset.AgencyID, err)
	}

	for _, stop := range dataset.Stops {
		if err := qtx.UpsertStop(ctx, stop); err != nil {
			return fmt.Errorf("unable to create stop %s: %w", stop.ID, err)
		}
	}
	for _, route := range dataset.Routes {
		if err := qtx.UpsertRoute(ctx, route); err != nil {
			return fmt.Errorf("unable to create route %s: %w", route.ID, err)
		}
	}
	for _, trip := range dataset.Trips {
		if err := qtx.UpsertTrip(ctx, trip); err != nil {
			return fmt.Errorf("unable to create trip %s: %w", trip.ID, err)
		}
	}
	if err := bulkInsertStopTimes(ctx, tx, dataset.AgencyID, dataset.StopTimes); err != nil {
		return fmt.Errorf("unable to create stop times: %w", err)
	}
	for _, cal := range dataset.Calendars {
		if err := qtx.UpsertCalendar(ctx, cal); err != nil {
			return fmt.Errorf("unable to create calendar %s: %w", cal.ServiceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	logging.LogOperation(logger, "agency_static_data_replaced",
		slog.String("agency", dataset.AgencyID),
		slog.Int("stops", len(dataset.Stops)),
		slog.Int("routes", len(dataset.Routes)),
		slog.Int("trips", len(dataset.Trips)),
		slog.Int("stop_times", len(dataset.StopTimes)))

	return nil
}

// clearAgencyStatic deletes one agency's entity rows. The agency record
// itself (and its freshness stamp) is left alone.
func clearAgencyStatic(ctx context.Context, tx *sql.Tx, agencyID string) error {
	tables := []string{"stop_times", "trips", "routes", "stops", "calendar"}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE agency_id = ?", agencyID); err != nil {
			return fmt.Errorf("error clearing %s: %w", table, err)
		}
	}
	return nil
}

// bulkInsertStopTimes builds multi-row INSERT statements. Stop times are
// by far the largest table, so per-row round trips are avoided.
func bulkInsertStopTimes(ctx context.Context, tx *sql.Tx, agencyID string, stopTimes []models.StopTime) error {
	const baseQuery = `INSERT OR REPLACE INTO stop_times (
		agency_id, trip_id, stop_id, stop_sequence, arrival_time, departure_time
	) VALUES `

	for start := 0; start < len(stopTimes); start += stopTimeBatchSize {
		end := start + stopTimeBatchSize
		if end > len(stopTimes) {
			end = len(stopTimes)
		}
		batch := stopTimes[start:end]

		// Only placeholders go into the statement; values are always bound.
		var query strings.Builder
		query.WriteString(baseQuery)
		args := make([]any, 0, len(batch)*6)

		for j, st := range batch {
			if j > 0 {
				query.WriteString(", ")
			}
			query.WriteString("(?, ?, ?, ?, ?, ?)")
			args = append(args,
				agencyID, st.TripID, st.StopID,
				int64(st.StopSequence), int64(st.ArrivalSec), int64(st.DepartureSec))
		}

		if _, err := tx.ExecContext(ctx, query.String(), args...); err != nil {
			return fmt.Errorf("failed to insert stop_times batch: %w", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// toNullString converts a string to sql.NullString, empty becoming NULL.
func toNullString(s string) sql.NullString {
	return sql.NullString{
		String: s,
		Valid:  s != "",
	}
}
