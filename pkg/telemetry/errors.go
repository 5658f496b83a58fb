package telemetry

import (
	"errors"
	"fmt"
)

// Sentinel errors. Directive and field errors are line-scoped: they are
// logged and the offending line skipped. Connection faults end a session.
var (
	ErrMalformedDirective      = errors.New("malformed directive")
	ErrMalformedTelemetryField = errors.New("malformed telemetry field")
	ErrConnectionFault         = errors.New("connection fault")
	ErrScriptNotFound          = errors.New("command script not found")
	ErrServerRunning           = errors.New("telemetry server already running")
	ErrTooManySessions         = errors.New("too many telemetry sessions")
)

// LineError describes a failure confined to one script or status line.
type LineError struct {
	Op    string // "directive", "releaser", "lifecycle", "include"
	Line  string
	Cause error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Line, e.Cause)
}

func (e *LineError) Unwrap() error {
	return e.Cause
}

func faultf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConnectionFault, fmt.Sprintf(format, args...))
}
