package middleware

import "net/http"

// DefaultMaxBodySize bounds API request bodies. Every payload the API accepts is a small JSON object.
const DefaultMaxBodySize int64 = 64 << 10

// MaxBodySize caps request bodies at maxBytes. Reads past the limit fail with
// *http.MaxBytesError, which handlers map to 413.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
