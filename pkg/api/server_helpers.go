package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/telemetry"
	"github.com/dd0wney/posh-debugger/pkg/validation"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encoding JSON response", logging.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

// decodeJSON decodes and validates a request body, answering 400 itself
// when either step fails.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := validation.Struct(v); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// liveSession resolves the {id} path value, answering 404 or 503 itself.
func (s *Server) liveSession(w http.ResponseWriter, r *http.Request) (*telemetry.Session, bool) {
	if s.deps.Telemetry == nil {
		s.respondError(w, http.StatusServiceUnavailable, "telemetry server not configured")
		return nil, false
	}
	id := r.PathValue("id")
	session, ok := s.deps.Telemetry.Session(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", id))
		return nil, false
	}
	return session, true
}

func sessionResponse(info telemetry.SessionInfo) SessionResponse {
	return SessionResponse{
		ID:            info.ID,
		RemoteAddr:    info.RemoteAddr,
		State:         info.State.String(),
		StartedAt:     info.StartedAt,
		Display:       info.Display,
		LinesReceived: info.LinesReceived,
		MarkedDirty:   info.MarkedDirty,
	}
}
