package transit

import "errors"

// Engine error taxonomy. Provider and not-found failures are recovered by
// advancing the fallback chain and are never surfaced to callers of the
// public operations.
var (
	// ErrProviderUnavailable covers network and upstream API failures.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrDataNotFound means a provider answered but had no matching data.
	ErrDataNotFound = errors.New("no matching data")

	// ErrStoreUnavailable means the persistent store could not be used;
	// the engine runs remote-only while this holds.
	ErrStoreUnavailable = errors.New("static store unavailable")
)
