package process

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Built-in scenarios shipped with SIPp.
const (
	ScenarioUAC = "uac"
	ScenarioUAS = "uas"
)

// DefaultRemotePort is the SIP port used when a remote host is given without one.
const DefaultRemotePort = 5060

var (
	// ErrNoScenario is returned when neither a built-in scenario nor a
	// scenario file is configured.
	ErrNoScenario = errors.New("no scenario configured")

	// ErrUnknownScenario is returned for a built-in scenario other than uac or uas.
	ErrUnknownScenario = errors.New("unknown built-in scenario")
)

// SIPpConfig holds configuration for a SIPp process.
type SIPpConfig struct {
	// BinaryPath is the path to the sipp binary.
	BinaryPath string

	// Scenario is a built-in scenario name (uac or uas).
	// Ignored when ScenarioFile is set.
	Scenario string

	// ScenarioFile is the path to a scenario XML file.
	ScenarioFile string

	// ListenAddress is the local IP sipp binds to (-i).
	ListenAddress string

	// ListenPort is the local port sipp binds to (-p). 0 leaves it unset.
	ListenPort int

	// RemoteHost and RemotePort form the trailing target token for
	// client scenarios.
	RemoteHost string
	RemotePort int

	// InitialRate is the call rate passed with -r. 0 leaves it unset.
	InitialRate int

	// WorkDir is where sipp runs and writes its telemetry files.
	WorkDir string
}

// DefaultSIPpConfig returns a SIPpConfig for the given built-in scenario.
func DefaultSIPpConfig(scenario string) *SIPpConfig {
	return &SIPpConfig{
		BinaryPath: "sipp",
		Scenario:   scenario,
		RemotePort: DefaultRemotePort,
	}
}

// Validate checks that the configuration names a usable scenario.
func (c *SIPpConfig) Validate() error {
	if c.ScenarioFile != "" {
		return nil
	}
	switch c.Scenario {
	case "":
		return ErrNoScenario
	case ScenarioUAC, ScenarioUAS:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScenario, c.Scenario)
	}
}

// SIPpRunner implements Runner for SIPp processes.
type SIPpRunner struct {
	config *SIPpConfig
}

// NewSIPpRunner creates a new SIPp runner.
func NewSIPpRunner(cfg *SIPpConfig) *SIPpRunner {
	return &SIPpRunner{config: cfg}
}

// Name returns "sipp".
func (r *SIPpRunner) Name() string {
	return "sipp"
}

// BuildCommand creates an exec.Cmd for SIPp. The process is not bound to a
// context: its lifetime is managed by the supervisor's stop sequence.
func (r *SIPpRunner) BuildCommand() (*exec.Cmd, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	cmd := exec.Command(r.config.BinaryPath, r.buildArgs()...)
	cmd.Dir = r.config.WorkDir
	return cmd, nil
}

// buildArgs constructs the SIPp command-line arguments.
func (r *SIPpRunner) buildArgs() []string {
	var args []string

	if r.config.ScenarioFile != "" {
		args = append(args, "-sf", r.config.ScenarioFile)
	} else {
		args = append(args, "-sn", r.config.Scenario)
	}

	if r.config.ListenAddress != "" {
		args = append(args, "-i", r.config.ListenAddress)
	}
	if r.config.ListenPort > 0 {
		args = append(args, "-p", strconv.Itoa(r.config.ListenPort))
	}
	if r.config.InitialRate > 0 {
		args = append(args, "-r", strconv.Itoa(r.config.InitialRate))
	}

	// Statistics are always on; the supervisor depends on both files.
	args = append(args, "-trace_stat", "-fd", "1", "-trace_counts")

	if target := r.remoteTarget(); target != "" {
		args = append(args, target)
	}

	return args
}

// remoteTarget returns host:port for client scenarios, or "" for uas or
// when no remote host is configured.
func (r *SIPpRunner) remoteTarget() string {
	if r.config.RemoteHost == "" {
		return ""
	}
	if r.config.ScenarioFile == "" && r.config.Scenario == ScenarioUAS {
		return ""
	}
	port := r.config.RemotePort
	if port <= 0 {
		port = DefaultRemotePort
	}
	return r.config.RemoteHost + ":" + strconv.Itoa(port)
}

// BaseName returns the prefix sipp uses for its telemetry files: the
// built-in scenario name, or the scenario file name without directory and
// extension.
func (r *SIPpRunner) BaseName() string {
	if r.config.ScenarioFile == "" {
		return r.config.Scenario
	}
	base := filepath.Base(r.config.ScenarioFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// StatsFile returns <workdir>/<base>_<pid>_.csv.
func (r *SIPpRunner) StatsFile(pid int) string {
	return filepath.Join(r.config.WorkDir, fmt.Sprintf("%s_%d_.csv", r.BaseName(), pid))
}

// CountsFile returns <workdir>/<base>_<pid>_counts.csv.
func (r *SIPpRunner) CountsFile(pid int) string {
	return filepath.Join(r.config.WorkDir, fmt.Sprintf("%s_%d_counts.csv", r.BaseName(), pid))
}

// Config returns the SIPp configuration.
func (r *SIPpRunner) Config() *SIPpConfig {
	return r.config
}

// Args returns the argument list without the binary.
func (r *SIPpRunner) Args() []string {
	return r.buildArgs()
}

// CommandString returns the command that would be executed (for debugging).
func (r *SIPpRunner) CommandString() string {
	return r.config.BinaryPath + " " + strings.Join(r.buildArgs(), " ")
}
