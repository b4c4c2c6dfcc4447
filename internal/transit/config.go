package transit

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	"wayfinder.transitlab.org/internal/appconf"
	"wayfinder.transitlab.org/internal/models"
)

// SourceConfig describes where an agency's static data comes from.
// Exactly one source kind applies per agency.
type SourceConfig struct {
	Kind models.SourceKind `yaml:"kind" validate:"required,oneof=vendor aggregator custom"`
	// URL is the vendor GTFS zip URL or the custom endpoint URL. Unused for
	// aggregator-sourced agencies.
	URL             string `yaml:"url,omitempty"`
	AuthHeaderKey   string `yaml:"authHeaderKey,omitempty"`
	AuthHeaderValue string `yaml:"authHeaderValue,omitempty"`
}

// AgencyConfig configures one explicitly listed agency.
type AgencyConfig struct {
	ID     string       `yaml:"id" validate:"required"`
	Name   string       `yaml:"name,omitempty"`
	Source SourceConfig `yaml:"source" validate:"required"`

	// TripUpdatesURL is an optional GTFS-RT trip updates feed.
	TripUpdatesURL string `yaml:"tripUpdatesUrl,omitempty"`
	// ServiceAlertsURL is an optional GTFS-RT service alerts feed.
	ServiceAlertsURL string `yaml:"serviceAlertsUrl,omitempty"`
	// FareURL is an optional agency fare endpoint.
	FareURL string `yaml:"fareUrl,omitempty"`

	Headers map[string]string `yaml:"headers,omitempty"`
}

// Config holds engine configuration. It is built once and injected; the
// engine keeps no ambient global state.
type Config struct {
	Agencies []AgencyConfig `yaml:"agencies,omitempty" validate:"dive"`

	// AggregatorURL is the base URL of the multi-agency aggregator API,
	// used for agency detection, static loads, and as a fallback provider.
	AggregatorURL string `yaml:"aggregatorUrl,omitempty"`
	// APIKeys maps provider name to API key, sent as X-Api-Key.
	APIKeys map[string]string `yaml:"apiKeys,omitempty"`

	// Location seeds geolocated agency detection.
	Location *models.Location `yaml:"location,omitempty"`

	// WalkRouterURL is an optional OSRM-style foot routing endpoint used
	// for walking time estimates; absent, straight-line estimates apply.
	WalkRouterURL string `yaml:"walkRouterUrl,omitempty"`

	// DataPath is the SQLite database path; ":memory:" for tests.
	DataPath string `yaml:"dataPath,omitempty"`

	// RealtimeInterval overrides the realtime poll interval in seconds.
	RealtimeInterval int `yaml:"realtimeInterval,omitempty"`

	Env     appconf.Environment `yaml:"-"`
	EnvName string              `yaml:"env,omitempty"`
	Verbose bool                `yaml:"verbose,omitempty"`
}

// LoadConfigFile reads and validates a YAML config file.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config file: %w", err)
	}

	v := validator.New()
	for _, agency := range cfg.Agencies {
		if err := v.Struct(agency); err != nil {
			return Config{}, fmt.Errorf("invalid agency config %q: %w", agency.ID, err)
		}
	}

	cfg.Env = appconf.EnvFromString(cfg.EnvName)
	if cfg.DataPath == "" {
		cfg.DataPath = "wayfinder.db"
	}
	return cfg, nil
}

// realtimePollInterval returns the configured poll interval, default 30s.
func (config Config) realtimePollSeconds() int {
	if config.RealtimeInterval > 0 {
		return config.RealtimeInterval
	}
	return 30
}
