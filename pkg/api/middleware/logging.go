package middleware

import (
	"net/http"
	"time"

	"github.com/dd0wney/posh-debugger/pkg/logging"
)

// Logging creates middleware that logs HTTP requests at debug level with
// timing information and the request ID, if any.
func Logging(logger logging.Logger, getRequestID func(*http.Request) string) func(http.Handler) http.Handler {
	logger = logging.OrDefault(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			fields := []logging.Field{
				logging.String("method", r.Method),
				logging.Path(r.URL.Path),
				logging.Duration("duration", time.Since(start)),
			}
			if getRequestID != nil {
				if id := getRequestID(r); id != "" {
					fields = append(fields, logging.String("request_id", id))
				}
			}
			logger.Debug("http request", fields...)
		})
	}
}
