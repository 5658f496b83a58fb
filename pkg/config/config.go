// Package config loads the posh-debugger configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/notify"
	"github.com/dd0wney/posh-debugger/pkg/plan/watch"
	"github.com/dd0wney/posh-debugger/pkg/telemetry"
	"github.com/dd0wney/posh-debugger/pkg/validation"
	"gopkg.in/yaml.v3"
)

// Config is the complete process configuration.
type Config struct {
	Plan      PlanConfig      `yaml:"plan"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	HTTP      HTTPConfig      `yaml:"http"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

// PlanConfig selects the plan document and how it is reloaded.
type PlanConfig struct {
	Path                string        `yaml:"path"`
	Watch               bool          `yaml:"watch"`
	Debounce            time.Duration `yaml:"debounce" validate:"gte=0"`
	LegacyReferenceScan bool          `yaml:"legacy_reference_scan"`
}

// TelemetryConfig configures the device-facing TCP server.
type TelemetryConfig struct {
	ListenAddr    string        `yaml:"listen_addr" validate:"required,listenaddr"`
	Script        string        `yaml:"script"`
	Pacing        time.Duration `yaml:"pacing" validate:"gte=0"`
	ReadTimeout   time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout  time.Duration `yaml:"write_timeout" validate:"gte=0"`
	Display       bool          `yaml:"display"`
	TranscriptDir string        `yaml:"transcript_dir"`
	MaxSessions   int           `yaml:"max_sessions" validate:"gte=0"`
}

// HTTPConfig configures the metrics, health and GraphQL listener. An
// empty ListenAddr disables it.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr" validate:"omitempty,listenaddr"`
}

// NotifyConfig selects the dirty-event fan-out transport.
type NotifyConfig struct {
	Transport string `yaml:"transport" validate:"oneof=none nng zmq"`
	Addr      string `yaml:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	session := telemetry.DefaultSessionConfig()
	server := telemetry.DefaultServerConfig()
	return Config{
		Plan: PlanConfig{
			Debounce: watch.DefaultDebounce,
		},
		Telemetry: TelemetryConfig{
			ListenAddr: server.ListenAddr,
			Pacing:     session.Pacing,
		},
		HTTP: HTTPConfig{
			ListenAddr: ":9090",
		},
		Notify: NotifyConfig{
			Transport: "none",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over Default and validates the result. Unknown
// keys are rejected so typos do not silently fall back to defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags first, then the cross-field rules.
func (c Config) Validate() error {
	if err := validation.Struct(&c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cv := validation.NewConfigValidator("config").
		When(c.Plan.Watch, func(cv *validation.ConfigValidator) {
			cv.Required("plan.path", c.Plan.Path)
		}).
		When(c.Notify.Transport != "none", func(cv *validation.ConfigValidator) {
			cv.Required("notify.addr", c.Notify.Addr).
				Custom("notify.transport", func() error {
					if !slices.Contains(notify.Transports(), c.Notify.Transport) {
						return fmt.Errorf("transport %q is not compiled into this binary (available: %v)",
							c.Notify.Transport, notify.Transports())
					}
					return nil
				})
		})

	if err := cv.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ServerConfig converts the telemetry section for telemetry.NewServer.
func (c Config) ServerConfig() telemetry.ServerConfig {
	server := telemetry.DefaultServerConfig()
	server.ListenAddr = c.Telemetry.ListenAddr
	server.MaxSessions = c.Telemetry.MaxSessions
	server.Session = c.SessionConfig()
	return server
}

// SessionConfig converts the per-session part of the telemetry section.
func (c Config) SessionConfig() telemetry.SessionConfig {
	session := telemetry.DefaultSessionConfig()
	session.Script = c.Telemetry.Script
	session.Pacing = c.Telemetry.Pacing
	session.ReadTimeout = c.Telemetry.ReadTimeout
	session.WriteTimeout = c.Telemetry.WriteTimeout
	session.Display = c.Telemetry.Display
	session.TranscriptDir = c.Telemetry.TranscriptDir
	return session
}

// Logger builds the process logger described by the log section.
func (c Config) Logger() logging.Logger {
	level := logging.ParseLevel(c.Log.Level)
	if c.Log.Development {
		return logging.NewConsoleLogger(os.Stderr, level)
	}
	return logging.NewJSONLogger(os.Stderr, level)
}
