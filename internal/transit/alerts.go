package transit

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"wayfinder.transitlab.org/internal/cache"
	"wayfinder.transitlab.org/internal/fallback"
	"wayfinder.transitlab.org/internal/models"
)

// GetAlerts returns currently active service alerts. Non-empty filters
// select alerts touching ANY of the given route or stop ids (union
// semantics); empty filters return everything. Total provider failure
// yields an empty list, never an error.
func (e *Engine) GetAlerts(ctx context.Context, routeIDs, stopIDs []string) []models.Alert {
	key := cache.Key("alerts", encodeIDFilter(routeIDs), encodeIDFilter(stopIDs))
	if cached, ok := e.queryCache.Get(key); ok {
		return cached.([]models.Alert)
	}

	chain := fallback.Chain[[]models.Alert]{
		Operation: "get_alerts",
		Providers: []fallback.Provider[[]models.Alert]{
			{Name: "realtime_snapshot", Fetch: func(ctx context.Context) ([]models.Alert, error) {
				alerts := e.currentAlerts()
				if len(alerts) == 0 {
					return nil, ErrDataNotFound
				}
				return alerts, nil
			}},
			{Name: "aggregator", Fetch: func(ctx context.Context) ([]models.Alert, error) {
				return e.aggregator.Alerts(ctx)
			}},
		},
		// An empty alert list is the normal healthy-network answer.
		Synthesize:    func(ctx context.Context) []models.Alert { return []models.Alert{} },
		Logger:        e.logger,
		OnAttempt:     e.observeAttempt,
		OnSynthesized: e.observeSynthesized,
	}

	result := chain.Execute(ctx)
	filtered := filterAlerts(result.Value, routeIDs, stopIDs, e.clock.Now())

	if !result.Synthesized {
		e.queryCache.Set(key, cache.ClassAlerts, filtered)
	}
	return filtered
}

// encodeIDFilter serializes an id filter for cache-key use. Quoting each
// element keeps distinct filters distinct even when ids contain the
// separator.
func encodeIDFilter(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return strings.Join(quoted, ",")
}

// filterAlerts keeps active alerts matching any requested route or stop.
// With both filters empty, every active alert passes.
func filterAlerts(alerts []models.Alert, routeIDs, stopIDs []string, now time.Time) []models.Alert {
	wantRoute := make(map[string]bool, len(routeIDs))
	for _, id := range routeIDs {
		wantRoute[id] = true
	}
	wantStop := make(map[string]bool, len(stopIDs))
	for _, id := range stopIDs {
		wantStop[id] = true
	}
	unfiltered := len(wantRoute) == 0 && len(wantStop) == 0

	filtered := make([]models.Alert, 0, len(alerts))
	for _, alert := range alerts {
		if !alert.Active(now) {
			continue
		}
		if unfiltered || alertTouches(alert, wantRoute, wantStop) {
			filtered = append(filtered, alert)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].ID < filtered[j].ID })
	return filtered
}

func alertTouches(alert models.Alert, wantRoute, wantStop map[string]bool) bool {
	for _, id := range alert.RouteIDs {
		if wantRoute[id] {
			return true
		}
	}
	for _, id := range alert.StopIDs {
		if wantStop[id] {
			return true
		}
	}
	return false
}
