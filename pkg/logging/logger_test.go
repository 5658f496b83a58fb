package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func decodeEntry(t *testing.T, line []byte) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry %q: %v", line, err)
	}
	return entry
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{Level(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("Level.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{" Error ", ErrorLevel},
		{"invalid", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFieldConstructors(t *testing.T) {
	t.Run("Duration", func(t *testing.T) {
		f := Duration("timeout", 5*time.Second)
		if f.Key != "timeout" || f.Value != "5s" {
			t.Errorf("Duration() = %+v", f)
		}
	})

	t.Run("Error", func(t *testing.T) {
		f := Error(errors.New("test error"))
		if f.Key != "error" || f.Value != "test error" {
			t.Errorf("Error() = %+v", f)
		}
	})

	t.Run("Error_nil", func(t *testing.T) {
		f := Error(nil)
		if f.Key != "error" || f.Value != nil {
			t.Errorf("Error(nil) = %+v", f)
		}
	})

	t.Run("SessionID", func(t *testing.T) {
		f := SessionID("abc")
		if f.Key != "session_id" || f.Value != "abc" {
			t.Errorf("SessionID() = %+v", f)
		}
	})
}

func TestJSONLogger_BasicLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, DebugLevel)

	logger.Info("test message", String("key", "value"))

	entry := decodeEntry(t, buf.Bytes())
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want 'test message'", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want 'value'", entry["key"])
	}
	if entry["time"] == "" || entry["time"] == nil {
		t.Error("time field is empty")
	}
}

func TestJSONLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, WarnLevel)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(lines))
	}
	if got := decodeEntry(t, []byte(lines[0]))["level"]; got != "WARN" {
		t.Errorf("First entry level = %v, want WARN", got)
	}
	if got := decodeEntry(t, []byte(lines[1]))["level"]; got != "ERROR" {
		t.Errorf("Second entry level = %v, want ERROR", got)
	}
}

func TestJSONLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	child := logger.With(Component("telemetry"), SessionID("s-1"))
	child.Info("line decoded", String("kind", "lifecycle"))

	entry := decodeEntry(t, buf.Bytes())
	if entry["component"] != "telemetry" {
		t.Errorf("component = %v, want telemetry", entry["component"])
	}
	if entry["session_id"] != "s-1" {
		t.Errorf("session_id = %v, want s-1", entry["session_id"])
	}
	if entry["kind"] != "lifecycle" {
		t.Errorf("kind = %v, want lifecycle", entry["kind"])
	}
}

func TestJSONLogger_SetLevelSharedWithChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)
	child := logger.With(Component("plan"))

	logger.SetLevel(ErrorLevel)
	if child.GetLevel() != ErrorLevel {
		t.Errorf("child level = %v, want ErrorLevel", child.GetLevel())
	}

	child.Info("suppressed")
	if buf.Len() != 0 {
		t.Error("Expected no output for Info at ErrorLevel")
	}

	child.Error("kept")
	if buf.Len() == 0 {
		t.Error("Expected output for Error at ErrorLevel")
	}
}

func TestGlobalHelperFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefaultLogger(NewJSONLogger(&buf, DebugLevel))
	defer SetDefaultLogger(NewNopLogger())

	Debug("debug msg")
	Info("info msg")
	Warn("warn msg")
	ErrorLog("error msg")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 log entries, got %d", len(lines))
	}
	for i, want := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		if got := decodeEntry(t, []byte(lines[i]))["level"]; got != want {
			t.Errorf("Entry %d level = %v, want %v", i, got, want)
		}
	}
}

func TestOrDefault(t *testing.T) {
	nop := NewNopLogger()
	if OrDefault(nop) != nop {
		t.Error("OrDefault should return the provided logger")
	}
	if OrDefault(nil) == nil {
		t.Error("OrDefault(nil) returned nil")
	}
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	op := StartTimer(logger, "plan loaded", Path("plan.xml"))
	if op.End() < 0 {
		t.Error("negative elapsed time")
	}

	entry := decodeEntry(t, buf.Bytes())
	if entry["path"] != "plan.xml" {
		t.Errorf("path = %v, want plan.xml", entry["path"])
	}
	if _, ok := entry["latency"]; !ok {
		t.Error("latency field missing")
	}
}
