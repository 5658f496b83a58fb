package metrics

import (
	"runtime"
	"time"
)

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncHTTPRequestsInFlight marks the start of an HTTP request
func (r *Registry) IncHTTPRequestsInFlight() {
	r.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight marks the end of an HTTP request
func (r *Registry) DecHTTPRequestsInFlight() {
	r.HTTPRequestsInFlight.Dec()
}

// RecordPlanLoad records the outcome of a plan document load. counts is
// keyed by category name and only applied for successful loads.
func (r *Registry) RecordPlanLoad(success bool, duration time.Duration, counts map[string]int, synthesized int, generation uint64) {
	status := "success"
	if !success {
		status = "error"
	}
	r.PlanLoadsTotal.WithLabelValues(status).Inc()
	r.PlanLoadDuration.Observe(duration.Seconds())
	if !success {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for category, n := range counts {
		r.PlanElements.WithLabelValues(category).Set(float64(n))
	}
	r.PlanSynthesizedActions.Set(float64(synthesized))
	r.PlanGeneration.Set(float64(generation))
}

// SessionStarted increments the live session gauge
func (r *Registry) SessionStarted() {
	r.SessionsActive.Inc()
}

// SessionEnded decrements the live session gauge and records the outcome
func (r *Registry) SessionEnded(outcome string) {
	r.SessionsActive.Dec()
	r.SessionsTotal.WithLabelValues(outcome).Inc()
}

// RecordScriptLine records one command script line by kind
func (r *Registry) RecordScriptLine(kind string) {
	r.ScriptLinesTotal.WithLabelValues(kind).Inc()
}

// RecordDirectiveError records a skipped malformed directive
func (r *Registry) RecordDirectiveError() {
	r.DirectiveErrorsTotal.Inc()
}

// RecordDecodedLine records an inbound line and whether decoding failed
func (r *Registry) RecordDecodedLine(kind string, failed bool) {
	r.LinesDecodedTotal.WithLabelValues(kind).Inc()
	if failed {
		r.DecodeErrorsTotal.WithLabelValues(kind).Inc()
	}
}

// RecordDirty records an element marked dirty
func (r *Registry) RecordDirty(category string) {
	r.ElementsMarkedDirty.WithLabelValues(category).Inc()
}

// RecordNotification records a dirty notification delivery result
func (r *Registry) RecordNotification(result string) {
	r.NotificationsTotal.WithLabelValues(result).Inc()
}

// UpdateSystemMetrics refreshes uptime, goroutine and memory gauges
func (r *Registry) UpdateSystemMetrics(startTime time.Time) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	r.UptimeSeconds.Set(time.Since(startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(mem.Alloc))
	r.MemorySysBytes.Set(float64(mem.Sys))
}
