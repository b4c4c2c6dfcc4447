package restapi

import (
	"fmt"
	"net/http"

	"wayfinder.transitlab.org/internal/cache"
)

const uncacheable = "no-cache, no-store, must-revalidate"

// CacheControlMiddleware lets clients cache successful responses for as
// long as the engine itself would serve the answer from its query cache:
// max-age comes straight from the endpoint's TTL class. Error responses
// are never cacheable.
func CacheControlMiddleware(class cache.Class, next http.Handler) http.Handler {
	cacheable := fmt.Sprintf("public, max-age=%d", int(cache.TTLFor(class).Seconds()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&cacheControlWriter{ResponseWriter: w, cacheable: cacheable}, r)
	})
}

// cacheControlWriter defers the Cache-Control decision until the status
// code is known.
type cacheControlWriter struct {
	http.ResponseWriter
	cacheable   string
	wroteHeader bool
}

func (w *cacheControlWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		value := uncacheable
		if code >= 200 && code < 300 {
			value = w.cacheable
		}
		w.ResponseWriter.Header().Set("Cache-Control", value)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cacheControlWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
