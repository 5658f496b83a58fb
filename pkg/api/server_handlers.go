package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/plan"
	"github.com/dd0wney/posh-debugger/pkg/telemetry"
)

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, InfoResponse{
		Service: "posh-debugger",
		Version: s.deps.Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	g := s.deps.Registry.Current()
	s.respondJSON(w, http.StatusOK, PlanResponse{
		Generation:  g.Generation(),
		Counts:      categoryCounts(g.Counts()),
		Synthesized: g.Synthesized(),
		Dirty:       len(g.DirtyElements()),
	})
}

func (s *Server) handlePlanReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reload == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no plan file configured")
		return
	}

	result, err := s.deps.Reload()
	if err != nil {
		s.logger.Warn("plan reload failed", logging.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, ReloadResponse{
		Generation:     result.Generation,
		Counts:         categoryCounts(result.Stats.Counts),
		Synthesized:    result.Stats.Synthesized,
		DroppedSenses:  result.Stats.DroppedSenses,
		Duplicates:     result.Stats.Duplicates,
		MissingMembers: result.Stats.MissingMembers,
		DurationMS:     float64(result.Stats.Duration) / float64(time.Millisecond),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := []SessionResponse{}
	if s.deps.Telemetry != nil {
		for _, info := range s.deps.Telemetry.Sessions() {
			sessions = append(sessions, sessionResponse(info))
		}
	}
	s.respondJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.liveSession(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, sessionResponse(session.Info()))
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.liveSession(w, r)
	if !ok {
		return
	}
	session.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionDisplay(w http.ResponseWriter, r *http.Request) {
	session, ok := s.liveSession(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, DisplayResponse{Display: session.ToggleDisplay()})
}

func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	if s.deps.Telemetry == nil {
		s.respondError(w, http.StatusServiceUnavailable, "telemetry server not configured")
		return
	}
	s.respondJSON(w, http.StatusOK, DisplayResponse{Display: s.deps.Telemetry.ToggleDisplay()})
}

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	session, ok := s.liveSession(w, r)
	if !ok {
		return
	}

	var req InjectRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	stats, err := session.Inject(r.Context(), req.Line)
	switch {
	case errors.Is(err, telemetry.ErrMalformedDirective):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.respondJSON(w, http.StatusOK, InjectResponse{
			Forwarded:  stats.Forwarded,
			Directives: stats.Directives,
			Skipped:    stats.Skipped,
			Includes:   stats.Includes,
		})
	}
}

func categoryCounts(counts map[plan.Category]int) map[string]int {
	out := make(map[string]int, len(counts))
	for c, n := range counts {
		out[c.String()] = n
	}
	return out
}
