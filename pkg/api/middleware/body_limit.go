package middleware

import (
	"net/http"
)

// BodySizeLimit rejects request bodies larger than maxBytes. A declared
// Content-Length over the limit is refused up front; otherwise the body is
// wrapped so reads past the limit fail.
func BodySizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
