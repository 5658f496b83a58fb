package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dd0wney/posh-debugger/pkg/logging"
)

// handleEvents streams dirty events as newline-delimited JSON until the
// client disconnects or the hub shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		s.respondError(w, http.StatusServiceUnavailable, "dirty events not available")
		return
	}

	sub, err := s.deps.Hub.Subscribe(r.Context())
	if err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer sub.Unsubscribe()

	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("clearing event stream deadline", logging.Error(err))
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("event stream not flushable", logging.Error(err))
		return
	}

	encoder := json.NewEncoder(w)
	for ev := range sub.Channel() {
		if err := encoder.Encode(ev); err != nil {
			s.logger.Debug("event stream closed", logging.Error(err))
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
