package telemetry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
)

// TranscriptExt is the file extension of session transcripts.
const TranscriptExt = ".log.sz"

// Transcript appends every status line a session receives to a
// snappy-framed file.
type Transcript struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *snappy.Writer
}

// TranscriptPath returns where a session's transcript lives in dir.
func TranscriptPath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+TranscriptExt)
}

// OpenTranscript creates the transcript file for a session.
func OpenTranscript(dir, sessionID string) (*Transcript, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	path := TranscriptPath(dir, sessionID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create transcript: %w", err)
	}
	return &Transcript{path: path, f: f, w: snappy.NewBufferedWriter(f)}, nil
}

// Path returns the transcript's file path.
func (t *Transcript) Path() string {
	return t.path
}

// WriteLine appends one line.
func (t *Transcript) WriteLine(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := io.WriteString(t.w, line); err != nil {
		return err
	}
	_, err := t.w.Write([]byte{'\n'})
	return err
}

// Close flushes and closes the file.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	werr := t.w.Close()
	ferr := t.f.Close()
	if werr != nil {
		return werr
	}
	return ferr
}

// ReadTranscript decodes a transcript stream back into its lines.
func ReadTranscript(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(snappy.NewReader(r))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
