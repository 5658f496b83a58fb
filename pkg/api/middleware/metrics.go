package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// MetricsRecorder is an interface for recording HTTP metrics
type MetricsRecorder interface {
	RecordHTTPRequest(method, path, status string, duration time.Duration)
	IncHTTPRequestsInFlight()
	DecHTTPRequestsInFlight()
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	if !w.wrote {
		w.statusCode = statusCode
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Metrics creates middleware that tracks HTTP request metrics. Requests
// are labelled with the route pattern the ServeMux matched, not the raw
// path, so session IDs stay out of label values. It must wrap the mux
// directly: the pattern is recorded on the request the mux receives.
func Metrics(recorder MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if recorder == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			recorder.IncHTTPRequestsInFlight()
			defer recorder.DecHTTPRequestsInFlight()

			wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}
			recorder.RecordHTTPRequest(r.Method, path, strconv.Itoa(wrapper.statusCode), time.Since(start))
		})
	}
}
