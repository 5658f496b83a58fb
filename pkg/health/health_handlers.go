package health

import (
	"encoding/json"
	"net/http"
)

// HTTPHandler serves the aggregate health response. Degraded still
// answers 200 so a missing plan does not take the process out of rotation.
func (hc *HealthChecker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.Check()
		code := http.StatusOK
		if response.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeResponse(w, code, response)
	}
}

// ReadinessHandler returns an HTTP handler for readiness checks
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return binaryHandler(hc.CheckReadiness)
}

// LivenessHandler returns an HTTP handler for liveness checks
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc {
	return binaryHandler(hc.CheckLiveness)
}

// binaryHandler answers 200 only when every check is healthy.
func binaryHandler(check func() Response) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := check()
		code := http.StatusOK
		if response.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		writeResponse(w, code, response)
	}
}

func writeResponse(w http.ResponseWriter, code int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(response)
}
