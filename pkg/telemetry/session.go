package telemetry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/metrics"
	"github.com/dd0wney/posh-debugger/pkg/notify"
	"github.com/dd0wney/posh-debugger/pkg/plan"
)

// State is a session's lifecycle stage.
type State int32

const (
	StateConnected State = iota
	StateStreaming
	StateStopped
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Session outcomes, as recorded in metrics.
const (
	outcomeBye     = "bye"
	outcomeEOF     = "eof"
	outcomeStopped = "stopped"
	outcomeFault   = "fault"
)

// SessionConfig configures one telemetry session.
type SessionConfig struct {
	// Script is the command script streamed to the device on connect.
	Script string
	// Pacing is the minimum gap between forwarded command lines.
	Pacing time.Duration
	// ReadTimeout ends the session when the device is silent this long.
	// Zero disables it.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Display echoes diagnostic, releaser and lifecycle lines too.
	Display bool
	// TranscriptDir, when set, receives a snappy transcript per session.
	TranscriptDir string
	// Echo receives echoed lines; defaults to stdout.
	Echo io.Writer
}

// DefaultSessionConfig returns the default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{Pacing: DefaultPacing}
}

// Deps are the shared components a session works against.
type Deps struct {
	Registry *plan.Registry
	Hub      *notify.Hub
	Metrics  *metrics.Registry
	Logger   logging.Logger
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ID            string
	RemoteAddr    string
	State         State
	StartedAt     time.Time
	Display       bool
	LinesReceived int64
	MarkedDirty   int64
}

// Session bridges one device connection: it streams the command script,
// then decodes status lines until the device says bye, disconnects, or
// the session is stopped.
type Session struct {
	id         string
	conn       net.Conn
	cfg        SessionConfig
	deps       Deps
	tables     *Tables
	decoder    *Decoder
	dispatcher *Dispatcher
	logger     logging.Logger
	echo       io.Writer
	startedAt  time.Time

	state   atomic.Int32
	display atomic.Bool
	stopped atomic.Bool

	lines  atomic.Int64
	marked atomic.Int64

	mu        sync.Mutex
	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    chan struct{}
	writeMu   sync.Mutex
	echoMu    sync.Mutex
}

// NewSession wraps an established connection. deps.Registry is required.
func NewSession(conn net.Conn, cfg SessionConfig, deps Deps) *Session {
	id := uuid.New().String()
	tables := NewTables()
	echo := cfg.Echo
	if echo == nil {
		echo = os.Stdout
	}

	s := &Session{
		id:        id,
		conn:      conn,
		cfg:       cfg,
		deps:      deps,
		tables:    tables,
		decoder:   NewDecoder(tables, deps.Registry.Current),
		echo:      echo,
		startedAt: time.Now(),
		closed:    make(chan struct{}),
		logger: logging.OrDefault(deps.Logger).With(
			logging.Component("telemetry"),
			logging.SessionID(id),
			logging.RemoteAddr(conn.RemoteAddr().String()),
		),
	}
	s.dispatcher = NewDispatcher(tables, s, cfg.Pacing, s.logger, deps.Metrics)
	s.display.Store(cfg.Display)
	return s
}

// ID returns the session's unique ID.
func (s *Session) ID() string { return s.id }

// State returns the session's lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

// Tables returns the session's ID tables.
func (s *Session) Tables() *Tables { return s.tables }

// Display reports whether decoded lines are echoed.
func (s *Session) Display() bool { return s.display.Load() }

// SetDisplay sets the display flag.
func (s *Session) SetDisplay(on bool) { s.display.Store(on) }

// ToggleDisplay flips the display flag and returns the new value.
func (s *Session) ToggleDisplay() bool {
	for {
		old := s.display.Load()
		if s.display.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:            s.id,
		RemoteAddr:    s.conn.RemoteAddr().String(),
		State:         s.State(),
		StartedAt:     s.startedAt,
		Display:       s.Display(),
		LinesReceived: s.lines.Load(),
		MarkedDirty:   s.marked.Load(),
	}
}

// Stop ends the session from any goroutine. Closing the connection
// unblocks a pending read. Stop is idempotent.
func (s *Session) Stop() {
	s.stopped.Store(true)
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.closeConn()
}

func (s *Session) closeConn() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("closing connection", logging.Error(err))
		}
	})
}

// SendLine writes one command line to the device.
func (s *Session) SendLine(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.cfg.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return faultf("set write deadline: %v", err)
		}
	}
	if _, err := io.WriteString(s.conn, line+"\n"); err != nil {
		return faultf("write: %v", err)
	}
	return nil
}

// Inject handles one operator-supplied line with the script rules:
// comments and blank lines are skipped, includes expand relative to the
// session script, directives update this session's tables, and other lines
// are forwarded under the same pacing as the script. A malformed directive
// is returned as an error wrapping ErrMalformedDirective. Inject gives up
// when ctx is done or the session closes.
func (s *Session) Inject(ctx context.Context, line string) (DispatchStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	stats, err := s.dispatcher.DispatchLine(ctx, line, filepath.Dir(s.cfg.Script))
	if err != nil {
		return stats, err
	}
	if stats.DirectiveErrors > 0 {
		_, _, perr := ParseDirective(line)
		return stats, perr
	}
	return stats, nil
}

// Run streams the command script and then decodes status lines until the
// session ends. It returns nil when the device says bye or disconnects,
// or when the session is stopped or ctx is cancelled; a connection fault
// is returned as an error wrapping ErrConnectionFault. Run may be called
// once.
func (s *Session) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateConnected), int32(StateStreaming)) {
		return fmt.Errorf("session %s already started", s.id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()
	if s.stopped.Load() {
		cancel()
	}
	stopWatch := context.AfterFunc(runCtx, s.closeConn)
	defer stopWatch()

	if m := s.deps.Metrics; m != nil {
		m.SessionStarted()
	}
	s.logger.Info("session started")

	var transcript *Transcript
	if s.cfg.TranscriptDir != "" {
		t, err := OpenTranscript(s.cfg.TranscriptDir, s.id)
		if err != nil {
			s.logger.Warn("transcript disabled", logging.Error(err))
		} else {
			transcript = t
			defer func() {
				if err := t.Close(); err != nil {
					s.logger.Warn("closing transcript", logging.Error(err))
				}
			}()
		}
	}

	outcome, err := s.run(runCtx, transcript)

	s.state.Store(int32(StateStopped))
	s.closeConn()
	s.state.Store(int32(StateClosed))

	if m := s.deps.Metrics; m != nil {
		m.SessionEnded(outcome)
	}
	if err != nil {
		s.logger.Error("session ended by connection fault", logging.Error(err))
		return err
	}
	s.logger.Info("session ended",
		logging.String("outcome", outcome),
		logging.Int64("lines", s.lines.Load()),
		logging.Duration("elapsed", time.Since(s.startedAt)))
	return nil
}

func (s *Session) run(ctx context.Context, transcript *Transcript) (string, error) {
	if s.cfg.Script != "" {
		stats, err := s.dispatcher.DispatchFile(ctx, s.cfg.Script)
		switch {
		case err == nil:
			s.logger.Info("command script sent",
				logging.Path(s.cfg.Script),
				logging.Int("forwarded", stats.Forwarded),
				logging.Int("directives", stats.Directives))
		case errors.Is(err, ErrScriptNotFound):
			s.logger.Warn("command script not found", logging.Path(s.cfg.Script), logging.Error(err))
		case s.ending(ctx):
			return outcomeStopped, nil
		default:
			return outcomeFault, err
		}
	}

	reader := bufio.NewReader(s.conn)
	for {
		if s.cfg.ReadTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
				return outcomeFault, faultf("set read deadline: %v", err)
			}
		}

		line, readErr := reader.ReadString('\n')
		if line != "" {
			if s.handleLine(line, transcript) {
				return outcomeBye, nil
			}
		}
		if readErr == nil {
			continue
		}
		if s.ending(ctx) {
			return outcomeStopped, nil
		}
		if errors.Is(readErr, io.EOF) {
			return outcomeEOF, nil
		}
		return outcomeFault, faultf("read: %v", readErr)
	}
}

// ending reports whether the session is being shut down deliberately, in
// which case I/O errors from the closed connection are expected.
func (s *Session) ending(ctx context.Context) bool {
	return s.stopped.Load() || ctx.Err() != nil
}

// handleLine processes one received line and reports whether it was bye.
func (s *Session) handleLine(line string, transcript *Transcript) bool {
	s.lines.Add(1)
	d := s.decoder.Decode(line)

	if transcript != nil {
		if err := transcript.WriteLine(d.Line); err != nil {
			s.logger.Warn("transcript write failed", logging.Error(err))
		}
	}
	if m := s.deps.Metrics; m != nil {
		m.RecordDecodedLine(d.Kind.String(), d.Err != nil)
	}
	if d.Err != nil {
		s.logger.Warn("status line not decoded", logging.Error(d.Err))
	}
	if d.Element != nil {
		s.markedDirty(d.Element, d.Generation)
	}

	if d.Kind == KindOther || s.display.Load() {
		s.echoMu.Lock()
		fmt.Fprintln(s.echo, d.Line)
		s.echoMu.Unlock()
	}

	return d.Line == ByeLine
}

func (s *Session) markedDirty(e plan.Element, generation uint64) {
	s.marked.Add(1)
	category := e.Category().String()
	if m := s.deps.Metrics; m != nil {
		m.RecordDirty(category)
	}
	if s.deps.Hub != nil {
		s.deps.Hub.Publish(notify.DirtyEvent{
			SessionID:  s.id,
			Category:   category,
			Name:       e.Name(),
			Generation: generation,
			At:         time.Now(),
		})
	}
	s.logger.Debug("element marked dirty", logging.Element(category, e.Name()))
}

// Dial connects to a device at addr and returns a session over the
// outbound connection. The caller runs it.
func Dial(ctx context.Context, addr string, cfg SessionConfig, deps Deps) (*Session, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, faultf("dial %s: %v", addr, err)
	}
	return NewSession(conn, cfg, deps), nil
}
