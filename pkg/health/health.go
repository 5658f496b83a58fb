package health

import (
	"maps"
	"time"
)

// NewHealthChecker creates a health checker with empty check sets.
func NewHealthChecker() *HealthChecker {
	hc := &HealthChecker{startTime: time.Now()}
	for i := range hc.sets {
		hc.sets[i] = make(map[string]CheckFunc)
	}
	return hc
}

// SetVersion sets the build version reported in every response.
func (hc *HealthChecker) SetVersion(version string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.version = version
}

// RegisterCheck registers a check reported on /health.
func (hc *HealthChecker) RegisterCheck(name string, check CheckFunc) {
	hc.register(probeGeneral, name, check)
}

// RegisterReadinessCheck registers a check gating /ready.
func (hc *HealthChecker) RegisterReadinessCheck(name string, check CheckFunc) {
	hc.register(probeReadiness, name, check)
}

// RegisterLivenessCheck registers a check gating /live.
func (hc *HealthChecker) RegisterLivenessCheck(name string, check CheckFunc) {
	hc.register(probeLiveness, name, check)
}

func (hc *HealthChecker) register(p probe, name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.sets[p][name] = check
}

// Check runs the general checks.
func (hc *HealthChecker) Check() Response {
	return hc.run(probeGeneral)
}

// CheckReadiness runs the readiness checks.
func (hc *HealthChecker) CheckReadiness() Response {
	return hc.run(probeReadiness)
}

// CheckLiveness runs the liveness checks.
func (hc *HealthChecker) CheckLiveness() Response {
	return hc.run(probeLiveness)
}

// run executes a copy of one check set so slow checks never hold the lock.
func (hc *HealthChecker) run(p probe) Response {
	hc.mu.RLock()
	checks := maps.Clone(hc.sets[p])
	version := hc.version
	hc.mu.RUnlock()

	response := Response{
		Status:    StatusHealthy,
		Version:   version,
		Timestamp: time.Now(),
		Uptime:    time.Since(hc.startTime),
		Checks:    make(map[string]Check, len(checks)),
	}

	for name, checkFunc := range checks {
		start := time.Now()
		check := checkFunc()
		check.Took = time.Since(start)
		check.CheckedAt = start
		if check.Name == "" {
			check.Name = name
		}
		response.Checks[name] = check

		if severity(check.Status) > severity(response.Status) {
			response.Status = check.Status
		}
	}

	return response
}

func severity(s Status) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}
