package telemetry

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/metrics"
)

// Script syntax.
const (
	CommentMarker = "//"
	IncludeMarker = "@"
)

// DefaultPacing is the minimum gap between two forwarded command lines.
// Devices buffer commands on a slow serial link and overrun without it.
const DefaultPacing = 200 * time.Millisecond

// LineSender delivers one command line to the device.
type LineSender interface {
	SendLine(line string) error
}

// LineSenderFunc adapts a function to LineSender.
type LineSenderFunc func(line string) error

func (f LineSenderFunc) SendLine(line string) error { return f(line) }

// DispatchStats counts what a dispatch did with each script line.
type DispatchStats struct {
	Forwarded       int
	Directives      int
	DirectiveErrors int
	Skipped         int
	Includes        int
	MissingIncludes int
}

// Dispatcher streams a command script to a device: comments and blank
// lines are dropped, includes are expanded in place, directives update the
// session tables and everything else is forwarded, paced.
type Dispatcher struct {
	tables  *Tables
	sender  LineSender
	limiter *rate.Limiter
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewDispatcher creates a dispatcher writing to sender. A pacing of zero
// or less disables the inter-line delay.
func NewDispatcher(tables *Tables, sender LineSender, pacing time.Duration, logger logging.Logger, m *metrics.Registry) *Dispatcher {
	limit := rate.Inf
	if pacing > 0 {
		limit = rate.Every(pacing)
	}
	return &Dispatcher{
		tables:  tables,
		sender:  sender,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logging.OrDefault(logger),
		metrics: m,
	}
}

// DispatchFile streams the script at path. A missing top-level script is
// reported as ErrScriptNotFound; a failed send is a connection fault.
func (d *Dispatcher) DispatchFile(ctx context.Context, path string) (DispatchStats, error) {
	var stats DispatchStats
	err := d.dispatchFile(ctx, path, &stats)
	return stats, err
}

// Dispatch streams script lines from r. Relative includes resolve against
// dir.
func (d *Dispatcher) Dispatch(ctx context.Context, r io.Reader, dir string) (DispatchStats, error) {
	var stats DispatchStats
	err := d.dispatch(ctx, r, dir, &stats)
	return stats, err
}

// DispatchLine handles a single line exactly as if it appeared in a script
// in dir. Forwarded lines share the dispatcher's pacing with any script
// being streamed concurrently.
func (d *Dispatcher) DispatchLine(ctx context.Context, line, dir string) (DispatchStats, error) {
	var stats DispatchStats
	err := d.line(ctx, strings.TrimRight(line, "\r\n"), dir, &stats)
	return stats, err
}

func (d *Dispatcher) dispatchFile(ctx context.Context, path string, stats *DispatchStats) error {
	f, err := os.Open(path)
	if err != nil {
		return &LineError{Op: "include", Line: path, Cause: errors.Join(ErrScriptNotFound, err)}
	}
	defer f.Close()
	return d.dispatch(ctx, f, filepath.Dir(path), stats)
}

func (d *Dispatcher) dispatch(ctx context.Context, r io.Reader, dir string, stats *DispatchStats) error {
	reader := bufio.NewReader(r)
	for {
		raw, readErr := reader.ReadString('\n')
		if raw != "" {
			if err := d.line(ctx, strings.TrimRight(raw, "\r\n"), dir, stats); err != nil {
				return err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}

func (d *Dispatcher) line(ctx context.Context, line, dir string, stats *DispatchStats) error {
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, CommentMarker) {
		stats.Skipped++
		d.record("skipped")
		return nil
	}

	if strings.HasPrefix(line, IncludeMarker) {
		stats.Includes++
		d.record("include")
		path := strings.TrimSpace(strings.TrimPrefix(line, IncludeMarker))
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		err := d.dispatchFile(ctx, path, stats)
		if errors.Is(err, ErrScriptNotFound) {
			stats.MissingIncludes++
			d.logger.Warn("include not found, skipped", logging.Path(path), logging.Error(err))
			return nil
		}
		return err
	}

	directive, isDirective, err := ParseDirective(line)
	if isDirective {
		stats.Directives++
		d.record("directive")
		if err != nil {
			stats.DirectiveErrors++
			if d.metrics != nil {
				d.metrics.RecordDirectiveError()
			}
			d.logger.Warn("directive skipped", logging.Error(err))
			return nil
		}
		d.tables.Apply(directive)
		return nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := d.sender.SendLine(line); err != nil {
		return err
	}
	stats.Forwarded++
	d.record("forwarded")
	return nil
}

func (d *Dispatcher) record(kind string) {
	if d.metrics != nil {
		d.metrics.RecordScriptLine(kind)
	}
}
