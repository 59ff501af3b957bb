package process

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// =============================================================================
// Table-Driven Tests: buildArgs
// =============================================================================

func TestSIPpRunner_buildArgs(t *testing.T) {
	tests := []struct {
		name string
		cfg  SIPpConfig
		want []string
	}{
		{
			name: "uas minimal",
			cfg:  SIPpConfig{Scenario: ScenarioUAS},
			want: []string{"-sn", "uas", "-trace_stat", "-fd", "1", "-trace_counts"},
		},
		{
			name: "uas ignores remote",
			cfg:  SIPpConfig{Scenario: ScenarioUAS, RemoteHost: "10.0.0.2", RemotePort: 5070},
			want: []string{"-sn", "uas", "-trace_stat", "-fd", "1", "-trace_counts"},
		},
		{
			name: "uac full",
			cfg: SIPpConfig{
				Scenario:      ScenarioUAC,
				ListenAddress: "127.0.0.1",
				ListenPort:    5061,
				InitialRate:   20,
				RemoteHost:    "10.0.0.2",
				RemotePort:    5070,
			},
			want: []string{
				"-sn", "uac",
				"-i", "127.0.0.1",
				"-p", "5061",
				"-r", "20",
				"-trace_stat", "-fd", "1", "-trace_counts",
				"10.0.0.2:5070",
			},
		},
		{
			name: "uac default remote port",
			cfg:  SIPpConfig{Scenario: ScenarioUAC, RemoteHost: "example.com"},
			want: []string{"-sn", "uac", "-trace_stat", "-fd", "1", "-trace_counts", "example.com:5060"},
		},
		{
			name: "uac without remote",
			cfg:  SIPpConfig{Scenario: ScenarioUAC},
			want: []string{"-sn", "uac", "-trace_stat", "-fd", "1", "-trace_counts"},
		},
		{
			name: "scenario file",
			cfg:  SIPpConfig{ScenarioFile: "/etc/sipp/register.xml", RemoteHost: "10.0.0.2", RemotePort: 5060},
			want: []string{"-sf", "/etc/sipp/register.xml", "-trace_stat", "-fd", "1", "-trace_counts", "10.0.0.2:5060"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			got := NewSIPpRunner(&cfg).buildArgs()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("buildArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSIPpRunner_StatsFlagsAlwaysPresent(t *testing.T) {
	runner := NewSIPpRunner(&SIPpConfig{Scenario: ScenarioUAC, InitialRate: 5})
	cmd := runner.CommandString()
	if !strings.Contains(cmd, "-trace_stat -fd 1 -trace_counts") {
		t.Errorf("CommandString() = %q, missing statistics flags", cmd)
	}
}

// =============================================================================
// Table-Driven Tests: telemetry file names
// =============================================================================

func TestSIPpRunner_FileNames(t *testing.T) {
	tests := []struct {
		name       string
		cfg        SIPpConfig
		wantBase   string
		wantStats  string
		wantCounts string
	}{
		{
			name:       "built-in",
			cfg:        SIPpConfig{Scenario: ScenarioUAC},
			wantBase:   "uac",
			wantStats:  "uac_20157_.csv",
			wantCounts: "uac_20157_counts.csv",
		},
		{
			name:       "scenario file",
			cfg:        SIPpConfig{ScenarioFile: "scenarios/branch_client.xml"},
			wantBase:   "branch_client",
			wantStats:  "branch_client_20157_.csv",
			wantCounts: "branch_client_20157_counts.csv",
		},
		{
			name:       "work dir",
			cfg:        SIPpConfig{Scenario: ScenarioUAS, WorkDir: "/tmp/run"},
			wantBase:   "uas",
			wantStats:  filepath.Join("/tmp/run", "uas_20157_.csv"),
			wantCounts: filepath.Join("/tmp/run", "uas_20157_counts.csv"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			r := NewSIPpRunner(&cfg)
			if got := r.BaseName(); got != tt.wantBase {
				t.Errorf("BaseName() = %q, want %q", got, tt.wantBase)
			}
			if got := r.StatsFile(20157); got != tt.wantStats {
				t.Errorf("StatsFile() = %q, want %q", got, tt.wantStats)
			}
			if got := r.CountsFile(20157); got != tt.wantCounts {
				t.Errorf("CountsFile() = %q, want %q", got, tt.wantCounts)
			}
		})
	}
}

func TestSIPpConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SIPpConfig
		wantErr error
	}{
		{"uac", SIPpConfig{Scenario: ScenarioUAC}, nil},
		{"uas", SIPpConfig{Scenario: ScenarioUAS}, nil},
		{"file", SIPpConfig{ScenarioFile: "x.xml"}, nil},
		{"empty", SIPpConfig{}, ErrNoScenario},
		{"unknown", SIPpConfig{Scenario: "regexp"}, ErrUnknownScenario},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSIPpRunner_BuildCommand(t *testing.T) {
	cfg := DefaultSIPpConfig(ScenarioUAC)
	cfg.WorkDir = t.TempDir()
	cmd, err := NewSIPpRunner(cfg).BuildCommand()
	if err != nil {
		t.Fatalf("BuildCommand() error = %v", err)
	}
	if cmd.Dir != cfg.WorkDir {
		t.Errorf("cmd.Dir = %q, want %q", cmd.Dir, cfg.WorkDir)
	}
	if cmd.Process != nil {
		t.Error("BuildCommand() must not start the process")
	}

	if _, err := NewSIPpRunner(&SIPpConfig{BinaryPath: "sipp"}).BuildCommand(); !errors.Is(err, ErrNoScenario) {
		t.Errorf("BuildCommand() without scenario error = %v, want ErrNoScenario", err)
	}
}
