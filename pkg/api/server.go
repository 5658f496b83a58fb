// Package api serves the operator HTTP surface of posh-debugger.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/dd0wney/posh-debugger/pkg/api/middleware"
	"github.com/dd0wney/posh-debugger/pkg/graphql"
	"github.com/dd0wney/posh-debugger/pkg/health"
	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/validation"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer wires the health checks, the GraphQL schema and the routes.
func NewServer(config Config, deps Deps) (*Server, error) {
	if deps.Registry == nil {
		return nil, errors.New("api: plan registry is required")
	}

	defaults := DefaultConfig()
	config.MaxBodyBytes = validation.DefaultOr(config.MaxBodyBytes, defaults.MaxBodyBytes)
	config.ShutdownTimeout = validation.DefaultOrDuration(config.ShutdownTimeout, defaults.ShutdownTimeout)

	s := &Server{
		config:    config,
		deps:      deps,
		logger:    logging.OrDefault(deps.Logger).With(logging.Component("api")),
		startTime: time.Now(),
	}

	schema, err := graphql.GenerateSchema(deps.Registry)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	s.graphqlHandler = graphql.NewGraphQLHandler(schema)
	s.healthChecker = s.newHealthChecker()
	s.handler = s.routes()
	return s, nil
}

func (s *Server) newHealthChecker() *health.HealthChecker {
	hc := health.NewHealthChecker()
	hc.SetVersion(s.deps.Version)

	hc.RegisterLivenessCheck("api", func() health.Check {
		return health.SimpleCheck("api")
	})

	planCheck := health.PlanCheck(func() (uint64, int) {
		g := s.deps.Registry.Current()
		total := 0
		for _, n := range g.Counts() {
			total += n
		}
		return g.Generation(), total
	})
	hc.RegisterCheck("plan", planCheck)
	hc.RegisterReadinessCheck("plan", planCheck)

	if srv := s.deps.Telemetry; srv != nil {
		telemetryCheck := health.TelemetryCheck(func() (bool, int) {
			return srv.Running(), len(srv.Sessions())
		})
		hc.RegisterCheck("telemetry", telemetryCheck)
		hc.RegisterReadinessCheck("telemetry", telemetryCheck)
	}

	if w := s.deps.Watcher; w != nil {
		hc.RegisterCheck("plan_watch", health.WatcherCheck(func() (bool, int, int, string) {
			st := w.Stats()
			return true, st.Reloads, st.FailedReloads, st.LastError
		}))
	}

	hc.RegisterCheck("memory", health.MemoryCheck(func() (uint64, uint64) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.Alloc, m.Sys
	}))

	return hc
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleInfo)
	mux.HandleFunc("GET /health", s.healthChecker.HTTPHandler())
	mux.HandleFunc("GET /ready", s.healthChecker.ReadinessHandler())
	mux.HandleFunc("GET /live", s.healthChecker.LivenessHandler())
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
	}
	mux.Handle("/graphql", s.graphqlHandler)

	mux.HandleFunc("GET /plan", s.handlePlan)
	mux.HandleFunc("POST /plan/reload", s.handlePlanReload)

	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleStopSession)
	mux.HandleFunc("POST /sessions/{id}/display", s.handleSessionDisplay)
	mux.HandleFunc("POST /sessions/{id}/lines", s.handleInject)
	mux.HandleFunc("POST /display", s.handleDisplay)

	mux.HandleFunc("GET /events", s.handleEvents)

	var metricsRecorder middleware.MetricsRecorder
	if s.deps.Metrics != nil {
		metricsRecorder = s.deps.Metrics
	}

	handler := middleware.Metrics(metricsRecorder)(mux)
	handler = middleware.BodySizeLimit(s.config.MaxBodyBytes)(handler)
	handler = middleware.PanicRecovery(s.logger)(handler)
	handler = middleware.Logging(s.logger, middleware.GetRequestID)(handler)
	handler = middleware.RequestID()(handler)
	return handler
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HealthChecker exposes the server's checks.
func (s *Server) HealthChecker() *health.HealthChecker {
	return s.healthChecker
}

// ListenAndServe listens on the configured address and serves until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.config.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Request contexts derive from baseCtx so long-lived event streams
	// end when shutdown begins.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpServer := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()
	s.logger.Info("http server started", logging.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	<-errCh
	s.logger.Info("http server stopped")
	return nil
}
