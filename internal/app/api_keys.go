package app

import (
	"crypto/subtle"
	"net/http"
)

// RequestHasInvalidAPIKey checks the "key" query parameter against the
// configured keys. With no keys configured, every request passes.
func (app *Application) RequestHasInvalidAPIKey(r *http.Request) bool {
	if len(app.Config.APIKeys) == 0 {
		return false
	}
	return app.IsInvalidAPIKey(r.URL.Query().Get("key"))
}

func (app *Application) IsInvalidAPIKey(key string) bool {
	if key == "" {
		return true
	}

	for _, validKey := range app.Config.APIKeys {
		// Constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			return false
		}
	}

	return true
}
