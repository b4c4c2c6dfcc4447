// Package appconf holds application-level environment configuration.
package appconf

// Environment identifies the runtime environment of the engine.
type Environment int

const (
	Development Environment = iota
	Test
	Production
)

// EnvFromString maps a config/env-var string onto an Environment.
// Unknown values default to Development.
func EnvFromString(s string) Environment {
	switch s {
	case "production", "prod":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

func (e Environment) String() string {
	switch e {
	case Production:
		return "production"
	case Test:
		return "test"
	default:
		return "development"
	}
}
