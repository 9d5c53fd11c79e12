package metrics

import (
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
)

var numericSegment = regexp.MustCompile(`/(\d+)`)

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.statusCode = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// Middleware records request count and latency by method, route and status.
// The route is the matched chi pattern when there is one and the normalized
// URL path otherwise. A panicking handler is recorded as a 500 and the panic is swallowed.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		defer func() {
			panicked := recover() != nil
			if panicked && !recorder.written {
				recorder.WriteHeader(http.StatusInternalServerError)
			}

			status := http.StatusText(recorder.statusCode)
			if status == "" {
				status = "UNKNOWN"
			}
			route := routeLabel(r)

			RecordRequest(r.Method, route, status)
			RecordRequestDuration(r.Method, route, status, time.Since(start).Seconds())
		}()

		next.ServeHTTP(recorder, r)
	})
}

// routeLabel must run after the router has matched, when the pattern is complete.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" && pattern != "/*" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath replaces numeric path segments so IDs do not become label values.
//
//	/api/projects/12/preview-token -> /api/projects/:id/preview-token
func normalizePath(path string) string {
	return numericSegment.ReplaceAllString(path, "/:id")
}
