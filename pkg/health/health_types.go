package health

import (
	"sync"
	"time"
)

// Status is the health of one component or of the whole process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the outcome of one named check.
type Check struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
	Took      time.Duration  `json:"took_ns"`
}

// CheckFunc runs a check. It must be safe to call concurrently.
type CheckFunc func() Check

// probe selects which endpoint a check answers for.
type probe int

const (
	probeGeneral probe = iota
	probeReadiness
	probeLiveness
	probeCount
)

// HealthChecker holds the registered checks for /health, /ready and /live.
type HealthChecker struct {
	mu        sync.RWMutex
	sets      [probeCount]map[string]CheckFunc
	version   string
	startTime time.Time
}

// Response is the aggregated result served by the handlers.
type Response struct {
	Status    Status           `json:"status"`
	Version   string           `json:"version,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    time.Duration    `json:"uptime_ns"`
	Checks    map[string]Check `json:"checks"`
}
