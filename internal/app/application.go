package app

import (
	"log/slog"

	"wayfinder.transitlab.org/internal/clock"
	"wayfinder.transitlab.org/internal/metrics"
	"wayfinder.transitlab.org/internal/transit"
)

// Application holds the dependencies for the HTTP handlers, helpers,
// and middleware.
type Application struct {
	Config  transit.Config
	Logger  *slog.Logger
	Engine  *transit.Engine
	Clock   clock.Clock
	Metrics *metrics.Metrics
}
