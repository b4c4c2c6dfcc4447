package transit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/OneBusAway/go-gtfs"
	"wayfinder.transitlab.org/internal/logging"
	"wayfinder.transitlab.org/internal/models"
	"wayfinder.transitlab.org/transitdb"
)

// Source is the tagged union of static data origins. Each implementation
// fetches and normalizes one agency's data into the canonical dataset;
// heterogeneous upstream payloads never leak past this boundary.
type Source interface {
	Kind() models.SourceKind
	// Load fetches, parses, and normalizes the agency's static data.
	// Individual malformed records are skipped and counted, never fatal.
	Load(ctx context.Context, agencyID string) (transitdb.AgencyDataset, error)
}

// VendorSource loads a GTFS zip from the vendor's feed endpoint
// (or a local file path, which is handy in tests).
type VendorSource struct {
	FeedURL         string
	AuthHeaderKey   string
	AuthHeaderValue string
}

func (s VendorSource) Kind() models.SourceKind { return models.SourceKindVendor }

func (s VendorSource) Load(ctx context.Context, agencyID string) (transitdb.AgencyDataset, error) {
	b, err := s.rawFeedData(ctx)
	if err != nil {
		return transitdb.AgencyDataset{}, fmt.Errorf("error reading GTFS data: %w", err)
	}

	staticData, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return transitdb.AgencyDataset{}, fmt.Errorf("error parsing GTFS data: %w", err)
	}

	return normalizeGTFSStatic(agencyID, staticData), nil
}

func (s VendorSource) rawFeedData(ctx context.Context) ([]byte, error) {
	if isLocalPath(s.FeedURL) {
		b, err := os.ReadFile(s.FeedURL)
		if err != nil {
			return nil, fmt.Errorf("error reading local GTFS file: %w", err)
		}
		return b, nil
	}

	const maxStaticSize = 200 * 1024 * 1024
	headers := map[string]string{}
	if s.AuthHeaderKey != "" && s.AuthHeaderValue != "" {
		headers[s.AuthHeaderKey] = s.AuthHeaderValue
	}
	return fetchBytes(ctx, staticHTTPClient, s.FeedURL, headers, maxStaticSize)
}

func isLocalPath(source string) bool {
	return !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://")
}

// AggregatorSource loads an agency's static dataset from the aggregator API.
type AggregatorSource struct {
	Client *AggregatorClient
}

func (s AggregatorSource) Kind() models.SourceKind { return models.SourceKindAggregator }

func (s AggregatorSource) Load(ctx context.Context, agencyID string) (transitdb.AgencyDataset, error) {
	payload, err := s.Client.StaticDataset(ctx, agencyID)
	if err != nil {
		return transitdb.AgencyDataset{}, err
	}
	return payload.Normalize(agencyID), nil
}

// CustomSource loads a custom JSON endpoint that serves the same static
// payload shape the aggregator uses.
type CustomSource struct {
	URL     string
	Headers map[string]string
}

func (s CustomSource) Kind() models.SourceKind { return models.SourceKindCustom }

func (s CustomSource) Load(ctx context.Context, agencyID string) (transitdb.AgencyDataset, error) {
	const maxCustomSize = 50 * 1024 * 1024
	body, err := fetchBytes(ctx, staticHTTPClient, s.URL, s.Headers, maxCustomSize)
	if err != nil {
		return transitdb.AgencyDataset{}, err
	}

	var payload StaticPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return transitdb.AgencyDataset{}, fmt.Errorf("error parsing custom endpoint payload: %w", err)
	}
	return payload.Normalize(agencyID), nil
}

// sourceForAgency builds the Source for one configured agency.
func (e *Engine) sourceForAgency(agencyCfg AgencyConfig) Source {
	switch agencyCfg.Source.Kind {
	case models.SourceKindVendor:
		return VendorSource{
			FeedURL:         agencyCfg.Source.URL,
			AuthHeaderKey:   agencyCfg.Source.AuthHeaderKey,
			AuthHeaderValue: agencyCfg.Source.AuthHeaderValue,
		}
	case models.SourceKindCustom:
		return CustomSource{URL: agencyCfg.Source.URL, Headers: agencyCfg.Headers}
	default:
		return AggregatorSource{Client: e.aggregator}
	}
}

// qualifyID namespaces a raw upstream id with its agency, so ids stay
// unique across agencies and bare-id lookups stay unambiguous.
func qualifyID(agencyID, rawID string) string {
	if rawID == "" || strings.HasPrefix(rawID, agencyID+"_") {
		return rawID
	}
	return agencyID + "_" + rawID
}

// normalizeGTFSStatic converts parsed GTFS into the canonical dataset.
// Records missing required fields are skipped individually with context.
func normalizeGTFSStatic(agencyID string, staticData *gtfs.Static) transitdb.AgencyDataset {
	logger := slog.Default().With(
		slog.String("component", "vendor_normalizer"),
		slog.String("agency", agencyID))

	dataset := transitdb.AgencyDataset{AgencyID: agencyID}
	skipped := 0

	for _, s := range staticData.Stops {
		// Lat/lon are optional per GTFS for generic nodes and boarding
		// areas; stops without coordinates cannot be spatially indexed.
		if s.Latitude == nil || s.Longitude == nil {
			skipped++
			continue
		}
		dataset.Stops = append(dataset.Stops, models.Stop{
			ID:                 qualifyID(agencyID, s.Id),
			AgencyID:           agencyID,
			Name:               s.Name,
			Code:               s.Code,
			Lat:                *s.Latitude,
			Lon:                *s.Longitude,
			WheelchairBoarding: int(s.WheelchairBoarding) == 1,
		})
	}

	for _, r := range staticData.Routes {
		if r.Id == "" {
			skipped++
			continue
		}
		dataset.Routes = append(dataset.Routes, models.Route{
			ID:        qualifyID(agencyID, r.Id),
			AgencyID:  agencyID,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			Mode:      models.ModeFromRouteType(int(r.Type)),
			Color:     r.Color,
		})
	}

	for _, t := range staticData.Trips {
		if t.ID == "" || t.Route == nil {
			skipped++
			continue
		}
		tripID := qualifyID(agencyID, t.ID)
		dataset.Trips = append(dataset.Trips, models.Trip{
			ID:                   tripID,
			AgencyID:             agencyID,
			RouteID:              qualifyID(agencyID, t.Route.Id),
			Headsign:             t.Headsign,
			DirectionID:          int(t.DirectionId),
			WheelchairAccessible: int(t.WheelchairAccessible) == 1,
		})

		for _, st := range t.StopTimes {
			if st.Stop == nil {
				skipped++
				continue
			}
			dataset.StopTimes = append(dataset.StopTimes, models.StopTime{
				TripID:       tripID,
				StopID:       qualifyID(agencyID, st.Stop.Id),
				StopSequence: int(st.StopSequence),
				ArrivalSec:   int(st.ArrivalTime.Seconds()),
				DepartureSec: int(st.DepartureTime.Seconds()),
			})
		}
	}

	for _, svc := range staticData.Services {
		dataset.Calendars = append(dataset.Calendars, transitdb.CalendarParams{
			AgencyID:  agencyID,
			ServiceID: qualifyID(agencyID, svc.Id),
			Weekdays: [7]bool{
				svc.Monday, svc.Tuesday, svc.Wednesday, svc.Thursday,
				svc.Friday, svc.Saturday, svc.Sunday,
			},
			StartDate: svc.StartDate.Format("20060102"),
			EndDate:   svc.EndDate.Format("20060102"),
		})
	}

	if skipped > 0 {
		logging.LogWarning(logger, "skipped malformed records during normalization", nil,
			slog.Int("skipped", skipped))
	}
	return dataset
}

// StopRecord is the wire shape of a stop in aggregator/custom payloads.
type StopRecord struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Code       string   `json:"code,omitempty"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Wheelchair bool     `json:"wheelchair,omitempty"`
}

// Normalize converts the record into a canonical Stop. ok is false when
// required fields are missing. The agency prefix is applied when agencyID
// is non-empty.
func (r StopRecord) Normalize(agencyID string) (models.Stop, bool) {
	if r.ID == "" || r.Lat == nil || r.Lon == nil {
		return models.Stop{}, false
	}
	id := r.ID
	if agencyID != "" {
		id = qualifyID(agencyID, r.ID)
	}
	return models.Stop{
		ID:                 id,
		AgencyID:           agencyID,
		Name:               r.Name,
		Code:               r.Code,
		Lat:                *r.Lat,
		Lon:                *r.Lon,
		WheelchairBoarding: r.Wheelchair,
	}, true
}

// RouteRecord is the wire shape of a route in aggregator/custom payloads.
type RouteRecord struct {
	ID        string `json:"id"`
	ShortName string `json:"shortName,omitempty"`
	LongName  string `json:"longName,omitempty"`
	Type      int    `json:"type"`
	Color     string `json:"color,omitempty"`
}

// TripRecord is the wire shape of a trip in aggregator/custom payloads.
type TripRecord struct {
	ID         string `json:"id"`
	RouteID    string `json:"routeId"`
	Headsign   string `json:"headsign,omitempty"`
	Direction  int    `json:"direction"`
	Wheelchair bool   `json:"wheelchair,omitempty"`
}

// StopTimeRecord is the wire shape of a scheduled call.
type StopTimeRecord struct {
	TripID       string `json:"tripId"`
	StopID       string `json:"stopId"`
	StopSequence int    `json:"stopSequence"`
	ArrivalSec   int    `json:"arrivalSec"`
	DepartureSec int    `json:"departureSec"`
}

// StaticPayload is a full static dataset as served by the aggregator API
// and by custom endpoints.
type StaticPayload struct {
	Stops     []StopRecord     `json:"stops"`
	Routes    []RouteRecord    `json:"routes"`
	Trips     []TripRecord     `json:"trips"`
	StopTimes []StopTimeRecord `json:"stopTimes"`
}

// Normalize converts the payload into the canonical dataset, skipping
// malformed records individually.
func (p *StaticPayload) Normalize(agencyID string) transitdb.AgencyDataset {
	logger := slog.Default().With(
		slog.String("component", "payload_normalizer"),
		slog.String("agency", agencyID))

	dataset := transitdb.AgencyDataset{AgencyID: agencyID}
	skipped := 0

	for _, record := range p.Stops {
		stop, ok := record.Normalize(agencyID)
		if !ok {
			skipped++
			continue
		}
		dataset.Stops = append(dataset.Stops, stop)
	}

	for _, record := range p.Routes {
		if record.ID == "" {
			skipped++
			continue
		}
		dataset.Routes = append(dataset.Routes, models.Route{
			ID:        qualifyID(agencyID, record.ID),
			AgencyID:  agencyID,
			ShortName: record.ShortName,
			LongName:  record.LongName,
			Mode:      models.ModeFromRouteType(record.Type),
			Color:     record.Color,
		})
	}

	for _, record := range p.Trips {
		if record.ID == "" || record.RouteID == "" {
			skipped++
			continue
		}
		dataset.Trips = append(dataset.Trips, models.Trip{
			ID:                   qualifyID(agencyID, record.ID),
			AgencyID:             agencyID,
			RouteID:              qualifyID(agencyID, record.RouteID),
			Headsign:             record.Headsign,
			DirectionID:          record.Direction,
			WheelchairAccessible: record.Wheelchair,
		})
	}

	for _, record := range p.StopTimes {
		if record.TripID == "" || record.StopID == "" {
			skipped++
			continue
		}
		dataset.StopTimes = append(dataset.StopTimes, models.StopTime{
			TripID:       qualifyID(agencyID, record.TripID),
			StopID:       qualifyID(agencyID, record.StopID),
			StopSequence: record.StopSequence,
			ArrivalSec:   record.ArrivalSec,
			DepartureSec: record.DepartureSec,
		})
	}

	if skipped > 0 {
		logging.LogWarning(logger, "skipped malformed records during normalization", nil,
			slog.Int("skipped", skipped))
	}
	return dataset
}
