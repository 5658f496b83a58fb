package health

import "time"

// Common health check functions

// SimpleCheck creates a simple health check that always returns healthy
func SimpleCheck(name string) Check {
	return Check{
		Name:      name,
		Status:    StatusHealthy,
		CheckedAt: time.Now(),
	}
}

// PlanCheck reports whether a behavior plan has been published.
func PlanCheck(getPlanState func() (generation uint64, elements int)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "plan",
			Details: make(map[string]any),
		}

		generation, elements := getPlanState()
		check.Details["generation"] = generation
		check.Details["elements"] = elements

		if generation == 0 {
			check.Status = StatusDegraded
			check.Message = "No plan loaded"
		} else {
			check.Status = StatusHealthy
			check.Message = "Plan loaded"
		}

		return check
	}
}

// TelemetryCheck reports on the telemetry listener.
func TelemetryCheck(getTelemetryState func() (listening bool, sessions int)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "telemetry",
			Details: make(map[string]any),
		}

		listening, sessions := getTelemetryState()
		check.Details["listening"] = listening
		check.Details["sessions"] = sessions

		if !listening {
			check.Status = StatusUnhealthy
			check.Message = "Telemetry listener down"
		} else {
			check.Status = StatusHealthy
			check.Message = "Accepting device connections"
		}

		return check
	}
}

// WatcherCheck reports on plan file reloads. A failing last reload is
// degraded: the previous plan is still being served.
func WatcherCheck(getWatcherState func() (enabled bool, reloads, failed int, lastError string)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "plan_watch",
			Details: make(map[string]any),
		}

		enabled, reloads, failed, lastError := getWatcherState()
		check.Details["enabled"] = enabled
		check.Details["reloads"] = reloads
		check.Details["failed_reloads"] = failed

		switch {
		case !enabled:
			check.Status = StatusHealthy
			check.Message = "Plan watching disabled"
		case lastError != "":
			check.Status = StatusDegraded
			check.Message = "Last reload failed: " + lastError
		default:
			check.Status = StatusHealthy
			check.Message = "Watching plan file"
		}

		return check
	}
}

// MemoryCheck creates a health check for memory usage
func MemoryCheck(getUsage func() (alloc, sys uint64)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "memory",
			Details: make(map[string]any),
		}

		alloc, sys := getUsage()

		check.Details["alloc_bytes"] = alloc
		check.Details["sys_bytes"] = sys

		if sys == 0 {
			check.Status = StatusHealthy
			check.Message = "Memory usage unknown"
			return check
		}

		usagePercent := float64(alloc) / float64(sys) * 100
		if usagePercent > 90 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}

		return check
	}
}
