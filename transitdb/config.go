package transitdb

import "wayfinder.transitlab.org/internal/appconf"

// Config controls how the static store opens its SQLite database.
type Config struct {
	DBPath  string
	Env     appconf.Environment
	verbose bool
}

// NewConfig creates a store configuration.
func NewConfig(dbPath string, env appconf.Environment, verbose bool) Config {
	return Config{
		DBPath:  dbPath,
		Env:     env,
		verbose: verbose,
	}
}
