// Package instance provides the caller-facing handle for a SIPp load task
// and the registry that creates and tracks them.
//
// An Instance outlives the processes it runs: each Start creates a new
// supervisor.Worker, and rate or stop requests are forwarded to whichever
// worker is current.
package instance

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/randomizedcoder/go-sipp-swarm/internal/process"
)

// ErrInvalidSpec is wrapped by every Spec validation failure.
var ErrInvalidSpec = errors.New("invalid instance spec")

// Spec describes what an instance runs. It is the validated input to
// Registry.NewInstance.
type Spec struct {
	// Name is a human readable label. Defaults to <scenario>-<short id>.
	Name string `json:"name,omitempty" mapstructure:"name"`

	// Scenario is uac, uas or the path of a scenario XML file.
	// Defaults to uac, sending calls to RemoteHost.
	Scenario string `json:"scenario,omitempty" mapstructure:"scenario"`

	// ScenarioDir is prepended to a relative scenario file path.
	ScenarioDir string `json:"scenario_dir,omitempty" mapstructure:"scenario_dir"`

	// InitialRate is the call rate passed at launch. 0 keeps SIPp's default.
	InitialRate int `json:"rate,omitempty" mapstructure:"rate"`

	ListenAddress string `json:"host,omitempty" mapstructure:"host"`
	ListenPort    int    `json:"port,omitempty" mapstructure:"port"`
	RemoteHost    string `json:"remote_host,omitempty" mapstructure:"remote_host"`
	RemotePort    int    `json:"remote_port,omitempty" mapstructure:"remote_port"`

	// Autostart asks the orchestrator to start the instance at boot.
	Autostart bool `json:"autostart,omitempty" mapstructure:"autostart"`
}

// WithDefaults returns a copy with the default scenario and remote port filled in.
func (s Spec) WithDefaults() Spec {
	if s.Scenario == "" {
		s.Scenario = process.ScenarioUAC
	}
	if s.RemotePort == 0 {
		s.RemotePort = process.DefaultRemotePort
	}
	return s
}

// Validate checks ports and rate.
func (s Spec) Validate() error {
	var errs []error
	if s.InitialRate < 0 {
		errs = append(errs, fmt.Errorf("%w: rate must be >= 0, got %d", ErrInvalidSpec, s.InitialRate))
	}
	if s.ListenPort < 0 || s.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("%w: port must be 0-65535, got %d", ErrInvalidSpec, s.ListenPort))
	}
	if s.RemotePort < 0 || s.RemotePort > 65535 {
		errs = append(errs, fmt.Errorf("%w: remote_port must be 0-65535, got %d", ErrInvalidSpec, s.RemotePort))
	}
	if strings.ContainsAny(s.Name, "/\\") {
		errs = append(errs, fmt.Errorf("%w: name must not contain path separators", ErrInvalidSpec))
	}
	return errors.Join(errs...)
}

// IsBuiltin reports whether Scenario names a built-in SIPp scenario.
func (s Spec) IsBuiltin() bool {
	sc := strings.ToLower(s.Scenario)
	return sc == process.ScenarioUAC || sc == process.ScenarioUAS
}

// SIPpConfig converts the spec into launch configuration.
func (s Spec) SIPpConfig(binaryPath, workDir string) *process.SIPpConfig {
	s = s.WithDefaults()
	cfg := &process.SIPpConfig{
		BinaryPath:    binaryPath,
		ListenAddress: s.ListenAddress,
		ListenPort:    s.ListenPort,
		RemoteHost:    s.RemoteHost,
		RemotePort:    s.RemotePort,
		InitialRate:   s.InitialRate,
		WorkDir:       workDir,
	}
	if s.IsBuiltin() {
		cfg.Scenario = strings.ToLower(s.Scenario)
		return cfg
	}
	file := s.Scenario
	if s.ScenarioDir != "" && !filepath.IsAbs(file) {
		file = filepath.Join(s.ScenarioDir, file)
	}
	// sipp runs inside workDir, so relative paths are resolved here.
	if abs, err := filepath.Abs(file); err == nil {
		file = abs
	}
	cfg.ScenarioFile = file
	return cfg
}
