package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "posh.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Config{
		Plan: PlanConfig{
			Path:     "plans/robot.xposh",
			Watch:    true,
			Debounce: 500 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			ListenAddr:    "127.0.0.1:3000",
			Script:        "scripts/start.cmds",
			Pacing:        100 * time.Millisecond,
			ReadTimeout:   30 * time.Second,
			Display:       true,
			TranscriptDir: "transcripts",
			MaxSessions:   4,
		},
		HTTP:   HTTPConfig{ListenAddr: ":9191"},
		Notify: NotifyConfig{Transport: "none"},
		Log:    LogConfig{Level: "debug", Development: true},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEmptyKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "telemetry:\n  listen_adr: \":1\"\n", "listen_adr"},
		{"bad yaml", "plan: [", "parsing config"},
		{"bad duration", "telemetry:\n  pacing: soon\n", "parsing config"},
		{"bad listen address", "telemetry:\n  listen_addr: nowhere\n", "telemetry.listen_addr"},
		{"negative pacing", "telemetry:\n  pacing: -1s\n", "telemetry.pacing"},
		{"unknown transport", "notify:\n  transport: carrier-pigeon\n", "notify.transport"},
		{"bad log level", "log:\n  level: loud\n", "log.level"},
		{"watch without path", "plan:\n  watch: true\n", "plan.path"},
		{"transport without addr", "notify:\n  transport: nng\n", "notify.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestServerConfig(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.ListenAddr = ":4000"
	cfg.Telemetry.MaxSessions = 2
	cfg.Telemetry.Script = "start.cmds"
	cfg.Telemetry.Display = true

	server := cfg.ServerConfig()
	if server.ListenAddr != ":4000" || server.MaxSessions != 2 {
		t.Errorf("server config = %+v", server)
	}
	if server.Session.Script != "start.cmds" || !server.Session.Display {
		t.Errorf("session config = %+v", server.Session)
	}
	if server.Session.Pacing != cfg.Telemetry.Pacing {
		t.Errorf("pacing = %v, want %v", server.Session.Pacing, cfg.Telemetry.Pacing)
	}
}
