package telemetry

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dd0wney/posh-debugger/pkg/logging"
)

// ServerConfig configures the telemetry listener.
type ServerConfig struct {
	ListenAddr string
	// MaxSessions bounds concurrent sessions; zero means unbounded.
	MaxSessions int
	Session     SessionConfig
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: ":3000",
		Session:    DefaultSessionConfig(),
	}
}

// Server accepts device connections and runs one session per connection.
type Server struct {
	config     ServerConfig
	deps       Deps
	logger     logging.Logger
	listener   net.Listener
	sessions   map[string]*Session
	sessionsMu sync.RWMutex
	display    atomic.Bool
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	stopCh     chan struct{}
	running    bool
	runningMu  sync.Mutex
}

// NewServer creates a telemetry server. deps.Registry is required.
func NewServer(config ServerConfig, deps Deps) *Server {
	s := &Server{
		config:   config,
		deps:     deps,
		logger:   logging.OrDefault(deps.Logger).With(logging.Component("telemetry-server")),
		sessions: make(map[string]*Session),
	}
	s.display.Store(config.Session.Display)
	return s
}

// Start listens on the configured address and begins accepting.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	if err := s.Serve(ctx, ln); err != nil {
		ln.Close()
		return err
	}
	return nil
}

// Serve begins accepting connections on ln. It does not block.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if s.running {
		return ErrServerRunning
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s.listener = ln
	s.cancel = cancel
	s.stopCh = make(chan struct{})
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptConnections(sessionCtx, ln, s.stopCh)
	}()

	s.logger.Info("telemetry server listening", logging.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	return s.running
}

// Stop closes the listener, stops every session and waits for them.
func (s *Server) Stop() error {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.cancel()
	err := s.listener.Close()
	s.runningMu.Unlock()

	s.sessionsMu.RLock()
	for _, session := range s.sessions {
		session.Stop()
	}
	s.sessionsMu.RUnlock()

	s.wg.Wait()
	s.logger.Info("telemetry server stopped")
	return err
}

// Sessions lists the live sessions ordered by start time.
func (s *Server) Sessions() []SessionInfo {
	s.sessionsMu.RLock()
	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, session := range s.sessions {
		infos = append(infos, session.Info())
	}
	s.sessionsMu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Session returns a live session by ID.
func (s *Server) Session(id string) (*Session, bool) {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// ToggleDisplay flips the display flag for new and live sessions and
// returns the new value.
func (s *Server) ToggleDisplay() bool {
	on := !s.display.Load()
	s.display.Store(on)

	s.sessionsMu.RLock()
	for _, session := range s.sessions {
		session.SetDisplay(on)
	}
	s.sessionsMu.RUnlock()
	return on
}

// acceptConnections accepts incoming device connections
func (s *Server) acceptConnections(ctx context.Context, ln net.Listener, stopCh chan struct{}) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-stopCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("error accepting connection", logging.Error(err))
			continue
		}

		session, err := s.register(conn)
		if err != nil {
			s.logger.Warn("connection rejected",
				logging.RemoteAddr(conn.RemoteAddr().String()),
				logging.Error(err))
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.unregister(session)
			if err := session.Run(ctx); err != nil {
				s.logger.Warn("session failed", logging.SessionID(session.ID()), logging.Error(err))
			}
		}()
	}
}

func (s *Server) register(conn net.Conn) (*Session, error) {
	cfg := s.config.Session
	cfg.Display = s.display.Load()

	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	select {
	case <-s.stopCh:
		return nil, net.ErrClosed
	default:
	}
	if s.config.MaxSessions > 0 && len(s.sessions) >= s.config.MaxSessions {
		return nil, ErrTooManySessions
	}
	session := NewSession(conn, cfg, s.deps)
	s.sessions[session.ID()] = session
	return session, nil
}

func (s *Server) unregister(session *Session) {
	s.sessionsMu.Lock()
	delete(s.sessions, session.ID())
	s.sessionsMu.Unlock()
}
