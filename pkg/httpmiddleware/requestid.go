package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// maxRequestIDLen bounds an inbound X-Request-ID so a hostile sender cannot
// stuff logs through the header.
const maxRequestIDLen = 128

type requestIDKey struct{}

// RequestIDFromContext returns the request id stored by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID returns a middleware that assigns every request an id: a sane
// inbound X-Request-ID is kept so deliveries correlate with the sender's own
// logs, anything else is replaced with a fresh UUID. The id is echoed on the
// response header and stored in the request context.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if !saneRequestID(id) {
				id = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", id)

			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// saneRequestID accepts non-empty printable ASCII up to maxRequestIDLen.
func saneRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := range len(id) {
		if id[i] < 0x20 || id[i] > 0x7E {
			return false
		}
	}
	return true
}
