package restapi

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// Client-supplied ids are only honored when short and header-safe;
// anything else gets replaced rather than propagated into logs.
var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-._:]{1,128}$`)

// RequestIDMiddleware tags every request with an id for log correlation:
// a valid client X-Request-ID is echoed back, everything else is replaced
// with a fresh UUID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !requestIDPattern.MatchString(id) {
			id = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), RequestIDKey, id)))
	})
}

// GetRequestID returns the id stored by RequestIDMiddleware, or "" when
// the context carries none.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
