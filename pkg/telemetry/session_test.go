package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/metrics"
	"github.com/dd0wney/posh-debugger/pkg/notify"
)

// safeBuffer is a bytes.Buffer safe for concurrent use.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// device is the remote end of a session's connection.
type device struct {
	conn net.Conn
	r    *bufio.Reader
}

func (d *device) send(t *testing.T, lines ...string) {
	t.Helper()
	for _, line := range lines {
		_, err := d.conn.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}
}

func (d *device) expect(t *testing.T, want ...string) {
	t.Helper()
	require.NoError(t, d.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for _, w := range want {
		line, err := d.r.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, w, strings.TrimRight(line, "\n"))
	}
}

// connPair returns two ends of a loopback TCP connection.
func connPair(t *testing.T) (local, remote net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	remote, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	local, ok := <-accepted
	require.True(t, ok, "accept failed")
	return local, remote
}

type sessionFixture struct {
	session *Session
	device  *device
	echo    *safeBuffer
	deps    Deps
	done    chan error
}

func startSession(t *testing.T, cfg SessionConfig, deps Deps) *sessionFixture {
	t.Helper()
	local, remote := connPair(t)
	t.Cleanup(func() { remote.Close() })

	echo := &safeBuffer{}
	cfg.Echo = echo
	if deps.Registry == nil {
		deps.Registry = testGraph(t)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}

	s := NewSession(local, cfg, deps)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	return &sessionFixture{
		session: s,
		device:  &device{conn: remote, r: bufio.NewReader(remote)},
		echo:    echo,
		deps:    deps,
		done:    done,
	}
}

func (f *sessionFixture) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-f.done:
		return err
	case <-time.After(5 * time.Second):
		f.session.Stop()
		t.Fatal("session did not end")
		return nil
	}
}

func TestSessionStreamsScriptThenDecodes(t *testing.T) {
	hub := notify.NewHub(logging.NewNopLogger(), nil)
	defer hub.Shutdown()
	sub, err := hub.Subscribe(context.Background())
	require.NoError(t, err)

	f := startSession(t, SessionConfig{Script: "testdata/main.cmds", Pacing: time.Millisecond}, Deps{Hub: hub})

	f.device.expect(t, "first", "inc-1", "deep-1", "inc-2", "last")
	f.device.send(t, "T C CE 9", "T R 2 1", "hello robot", "bye")

	require.NoError(t, f.wait(t))
	assert.Equal(t, StateClosed, f.session.State())

	// Decoded kinds are only echoed with the display flag on
	assert.Equal(t, "hello robot\nbye\n", f.echo.String())

	ce, ok := f.deps.Registry.Current().FindCompetenceElement("ChaseBall")
	require.True(t, ok)
	assert.True(t, ce.Dirty())

	select {
	case ev := <-sub.Channel():
		assert.Equal(t, "ChaseBall", ev.Name)
		assert.Equal(t, "CompetenceElement", ev.Category)
		assert.Equal(t, f.session.ID(), ev.SessionID)
		assert.Equal(t, uint64(1), ev.Generation)
	case <-time.After(time.Second):
		t.Fatal("no dirty event published")
	}

	info := f.session.Info()
	assert.EqualValues(t, 4, info.LinesReceived)
	assert.EqualValues(t, 1, info.MarkedDirty)
}

func TestSessionDisplayEchoesDecodedLines(t *testing.T) {
	f := startSession(t, SessionConfig{Display: true}, Deps{})
	f.session.Tables().Apply(Directive{Keyword: KeywordRobotSense, Name: "Near", ID: 2})

	f.device.send(t, "T R 2 1", "T X 1 2 3", "bye")
	require.NoError(t, f.wait(t))

	assert.Equal(t, "T R Near NE\nT X 1 2 3\nbye\n", f.echo.String())
}

func TestSessionToggleDisplay(t *testing.T) {
	f := startSession(t, SessionConfig{}, Deps{})
	defer f.session.Stop()

	assert.False(t, f.session.Display())
	assert.True(t, f.session.ToggleDisplay())
	assert.True(t, f.session.Display())
	assert.False(t, f.session.ToggleDisplay())
}

func TestSessionInject(t *testing.T) {
	f := startSession(t, SessionConfig{}, Deps{})
	defer f.session.Stop()
	ctx := context.Background()

	stats, err := f.session.Inject(ctx, "RSENSE Bumper=4")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Directives)
	assert.Zero(t, stats.Forwarded)
	name, ok := f.session.Tables().RobotSenses.Name(4)
	assert.True(t, ok)
	assert.Equal(t, "Bumper", name)

	stats, err = f.session.Inject(ctx, "RACTION broken")
	assert.ErrorIs(t, err, ErrMalformedDirective)
	assert.Equal(t, 1, stats.DirectiveErrors)

	stats, err = f.session.Inject(ctx, "go 1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Forwarded)
	f.device.expect(t, "go 1")
}

func TestSessionInjectFollowsScriptRules(t *testing.T) {
	f := startSession(t, SessionConfig{Script: "testdata/directives.cmds", Pacing: time.Millisecond}, Deps{})
	defer f.session.Stop()
	ctx := context.Background()
	assert.Eventually(t, func() bool { return f.session.Tables().RobotActions.Len() == 1 },
		time.Second, 5*time.Millisecond, "script directives applied")

	for _, line := range []string{"// a comment", "   ", ""} {
		stats, err := f.session.Inject(ctx, line)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Skipped, "line %q", line)
		assert.Zero(t, stats.Forwarded, "line %q", line)
	}

	// Includes resolve against the session script's directory.
	stats, err := f.session.Inject(ctx, "@included.cmds")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Forwarded)
	assert.Equal(t, 2, stats.Includes)

	_, err = f.session.Inject(ctx, "marker")
	require.NoError(t, err)
	f.device.expect(t, "inc-1", "deep-1", "inc-2", "marker")

	name, ok := f.session.Tables().RobotActions.Name(4)
	assert.True(t, ok)
	assert.Equal(t, "Kick", name)
}

func TestSessionInjectIsPaced(t *testing.T) {
	f := startSession(t, SessionConfig{Pacing: DefaultPacing}, Deps{})
	defer f.session.Stop()
	ctx := context.Background()

	lines := []string{"go 1", "go 2", "go 3"}
	start := time.Now()
	for _, line := range lines {
		_, err := f.session.Inject(ctx, line)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), time.Duration(len(lines)-1)*DefaultPacing)
	f.device.expect(t, lines...)
}

func TestSessionInjectSharesScriptPacing(t *testing.T) {
	f := startSession(t, SessionConfig{Script: "testdata/main.cmds", Pacing: time.Hour}, Deps{})
	defer f.session.Stop()

	f.device.expect(t, "first")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	stats, err := f.session.Inject(ctx, "go 1")
	assert.Error(t, err)
	assert.Zero(t, stats.Forwarded)
}

func TestSessionInjectAfterStop(t *testing.T) {
	f := startSession(t, SessionConfig{Pacing: time.Hour}, Deps{})
	_, err := f.session.Inject(context.Background(), "go 1")
	require.NoError(t, err)
	f.device.expect(t, "go 1")

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Inject(context.Background(), "go 2")
		done <- err
	}()
	f.session.Stop()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Inject did not return after Stop")
	}
	require.NoError(t, f.wait(t))
}

func TestSessionStopUnblocksRead(t *testing.T) {
	f := startSession(t, SessionConfig{}, Deps{})

	assert.Eventually(t, func() bool { return f.session.State() == StateStreaming },
		time.Second, 5*time.Millisecond)

	go f.session.Stop()
	require.NoError(t, f.wait(t))
	assert.Equal(t, StateClosed, f.session.State())

	f.session.Stop()
}

func TestSessionStopDuringPacing(t *testing.T) {
	f := startSession(t, SessionConfig{Script: "testdata/main.cmds", Pacing: time.Hour}, Deps{})

	f.device.expect(t, "first")
	f.session.Stop()
	require.NoError(t, f.wait(t))
}

func TestSessionContextCancel(t *testing.T) {
	local, remote := connPair(t)
	defer remote.Close()

	s := NewSession(local, SessionConfig{Echo: &safeBuffer{}}, Deps{Registry: testGraph(t), Logger: logging.NewNopLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not end the session")
	}
}

func TestSessionPeerDisconnect(t *testing.T) {
	f := startSession(t, SessionConfig{}, Deps{})

	f.device.send(t, "partial line without newline")
	f.device.conn.Close()

	require.NoError(t, f.wait(t))
	assert.Equal(t, "partial line without newline\n", f.echo.String())
}

func TestSessionReadTimeoutIsFault(t *testing.T) {
	f := startSession(t, SessionConfig{ReadTimeout: 50 * time.Millisecond}, Deps{})

	err := f.wait(t)
	assert.ErrorIs(t, err, ErrConnectionFault)
	assert.Equal(t, StateClosed, f.session.State())
}

func TestSessionMissingScriptContinues(t *testing.T) {
	f := startSession(t, SessionConfig{Script: "testdata/missing.cmds"}, Deps{})

	f.device.send(t, "bye")
	require.NoError(t, f.wait(t))
}

func TestSessionRunOnce(t *testing.T) {
	f := startSession(t, SessionConfig{}, Deps{})
	f.device.send(t, "bye")
	require.NoError(t, f.wait(t))

	assert.Error(t, f.session.Run(context.Background()))
}

func TestSessionTranscript(t *testing.T) {
	dir := t.TempDir()
	f := startSession(t, SessionConfig{TranscriptDir: dir}, Deps{})
	f.session.Tables().Apply(Directive{Keyword: KeywordPlanElement, Name: "ChaseBall", ID: 9})

	f.device.send(t, "T E CE 9", " padded ", "bye")
	require.NoError(t, f.wait(t))

	file, err := os.Open(TranscriptPath(dir, f.session.ID()))
	require.NoError(t, err)
	defer file.Close()

	lines, err := ReadTranscript(file)
	require.NoError(t, err)
	assert.Equal(t, []string{"T E CE ChaseBall", "padded", "bye"}, lines)
}

func TestSessionMetrics(t *testing.T) {
	m := metrics.NewRegistry()
	f := startSession(t, SessionConfig{Script: "testdata/directives.cmds"}, Deps{Metrics: m})
	f.session.Tables().Apply(Directive{Keyword: KeywordPlanElement, Name: "ChaseBall", ID: 9})

	f.device.send(t, "T E CE 9", "T R x 1", "bye")
	require.NoError(t, f.wait(t))

	value := func(c interface{ Write(*dto.Metric) error }) float64 {
		var metric dto.Metric
		require.NoError(t, c.Write(&metric))
		return metric.GetCounter().GetValue()
	}
	assert.Equal(t, 1.0, value(m.SessionsTotal.WithLabelValues("bye")))
	assert.Equal(t, 4.0, value(m.ScriptLinesTotal.WithLabelValues("directive")))
	assert.Equal(t, 1.0, value(m.LinesDecodedTotal.WithLabelValues("lifecycle")))
	assert.Equal(t, 1.0, value(m.DecodeErrorsTotal.WithLabelValues("releaser")))
	assert.Equal(t, 1.0, value(m.ElementsMarkedDirty.WithLabelValues("CompetenceElement")))

	var gauge dto.Metric
	require.NoError(t, m.SessionsActive.Write(&gauge))
	assert.Equal(t, 0.0, gauge.GetGauge().GetValue())
}
