package api

import (
	"net/http"
	"time"

	"github.com/dd0wney/posh-debugger/pkg/graphql"
	"github.com/dd0wney/posh-debugger/pkg/health"
	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/metrics"
	"github.com/dd0wney/posh-debugger/pkg/notify"
	"github.com/dd0wney/posh-debugger/pkg/plan"
	"github.com/dd0wney/posh-debugger/pkg/plan/watch"
	"github.com/dd0wney/posh-debugger/pkg/plan/xposh"
	"github.com/dd0wney/posh-debugger/pkg/telemetry"
)

// Config configures the operator HTTP surface.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// DefaultConfig returns the default HTTP configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":9090",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxBodyBytes:    1 << 20,
	}
}

// Deps are the components the HTTP surface reports on and drives.
// Telemetry, Watcher and Reload are optional.
type Deps struct {
	Registry  *plan.Registry
	Telemetry *telemetry.Server
	Hub       *notify.Hub
	Watcher   *watch.Watcher
	Reload    func() (*xposh.Result, error)
	Metrics   *metrics.Registry
	Logger    logging.Logger
	Version   string
}

// Server is the operator HTTP surface: health, metrics, GraphQL and a
// small JSON API over plan and telemetry state.
type Server struct {
	config         Config
	deps           Deps
	logger         logging.Logger
	healthChecker  *health.HealthChecker
	graphqlHandler *graphql.GraphQLHandler
	handler        http.Handler
	startTime      time.Time
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// InfoResponse describes the running process.
type InfoResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// PlanResponse summarizes the published plan.
type PlanResponse struct {
	Generation  uint64         `json:"generation"`
	Counts      map[string]int `json:"counts"`
	Synthesized int            `json:"synthesized"`
	Dirty       int            `json:"dirty"`
}

// ReloadResponse reports a completed plan reload.
type ReloadResponse struct {
	Generation     uint64         `json:"generation"`
	Counts         map[string]int `json:"counts"`
	Synthesized    int            `json:"synthesized"`
	DroppedSenses  int            `json:"dropped_senses"`
	Duplicates     int            `json:"duplicates"`
	MissingMembers int            `json:"missing_members"`
	DurationMS     float64        `json:"duration_ms"`
}

// SessionResponse is the JSON view of a telemetry session.
type SessionResponse struct {
	ID            string    `json:"id"`
	RemoteAddr    string    `json:"remote_addr"`
	State         string    `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	Display       bool      `json:"display"`
	LinesReceived int64     `json:"lines_received"`
	MarkedDirty   int64     `json:"marked_dirty"`
}

// DisplayResponse reports a display flag after a toggle.
type DisplayResponse struct {
	Display bool `json:"display"`
}

// InjectRequest carries one line for a live session.
type InjectRequest struct {
	Line string `json:"line" validate:"required,max=1024"`
}

// InjectResponse reports how an injected line was handled. An include
// counts every line it expanded to.
type InjectResponse struct {
	Forwarded  int `json:"forwarded"`
	Directives int `json:"directives"`
	Skipped    int `json:"skipped"`
	Includes   int `json:"includes"`
}
