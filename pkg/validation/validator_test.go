package validation

import (
	"strings"
	"testing"
)

type testSection struct {
	Addr      string `yaml:"listen_addr" validate:"required,listenaddr"`
	Transport string `yaml:"transport" validate:"oneof=none nng zmq"`
	Sessions  int    `yaml:"max_sessions" validate:"gte=0,lte=64"`
}

type testConfig struct {
	Telemetry testSection `yaml:"telemetry"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name    string
		cfg     testConfig
		wantErr []string
	}{
		{
			name: "valid",
			cfg:  testConfig{Telemetry: testSection{Addr: ":3000", Transport: "none"}},
		},
		{
			name:    "missing address",
			cfg:     testConfig{Telemetry: testSection{Transport: "nng"}},
			wantErr: []string{"telemetry.listen_addr: field is required"},
		},
		{
			name:    "bad address",
			cfg:     testConfig{Telemetry: testSection{Addr: "localhost", Transport: "nng"}},
			wantErr: []string{"telemetry.listen_addr", "not a host:port"},
		},
		{
			name: "several failures",
			cfg:  testConfig{Telemetry: testSection{Addr: ":1", Transport: "smoke", Sessions: 100}},
			wantErr: []string{
				"telemetry.transport: must be one of [none nng zmq]",
				"telemetry.max_sessions: must not exceed 64",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(&tt.cfg)
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not contain %q", err, want)
				}
			}
		})
	}
}

func TestStructNil(t *testing.T) {
	if err := Struct(nil); err == nil {
		t.Error("expected error for nil")
	}
}

func TestValidateListenAddr(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{":3000", true},
		{"127.0.0.1:0", true},
		{"[::1]:8080", true},
		{"", false},
		{"localhost", false},
		{":http", false},
		{":70000", false},
	}

	for _, tt := range tests {
		err := ValidateListenAddr(tt.addr)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateListenAddr(%q) = %v, want valid=%v", tt.addr, err, tt.valid)
		}
	}
}
