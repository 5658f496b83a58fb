// Package middleware provides the HTTP middleware wrapped around the
// posh-debugger operator surface.
//
//   - recovery.go: Panic recovery middleware
//   - logging.go: Request logging middleware
//   - request_id.go: Request ID generation and tracking middleware
//   - metrics.go: HTTP metrics collection middleware
//
// All middleware follows the standard pattern: func(http.Handler) http.Handler
//
//	handler := middleware.Metrics(registry)(mux)
//	handler = middleware.PanicRecovery(logger)(handler)
//	handler = middleware.Logging(logger, middleware.GetRequestID)(handler)
//	handler = middleware.RequestID()(handler)
package middleware
