// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/randomizedcoder/go-sipp-swarm/internal/parser"
	"github.com/randomizedcoder/go-sipp-swarm/internal/process"
)

// syscall.RLIMIT_NPROC is not exported on every platform, so process
// limits are read from /proc/self/limits instead.

const (
	// fdsPerInstance covers the SIP socket, the stdin pipe, the two
	// telemetry files and the tail readers.
	fdsPerInstance = 16
	fdOverhead     = 100

	// memPerInstance is a conservative resident size of one sipp process.
	memPerInstance = 32 << 20

	probeTimeout = 5 * time.Second
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool

	// SIPpVersion is the version reported by the binary, or
	// parser.VersionUnknown when the probe failed.
	SIPpVersion parser.Version
}

// Options selects what RunAll verifies.
type Options struct {
	Instances int
	SIPpPath  string
	WorkDir   string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(ctx context.Context, opts Options) *Result {
	result := &Result{
		Checks:      make([]Check, 0, 6),
		Passed:      true,
		SIPpVersion: parser.VersionUnknown,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkFileDescriptors(opts.Instances))
	add(checkProcessLimit(opts.Instances))

	sippCheck, version := checkSIPp(ctx, opts.SIPpPath)
	add(sippCheck)
	result.SIPpVersion = version

	add(checkWorkDir(opts.WorkDir))

	// Warnings only
	add(checkMemory(opts.Instances))
	add(checkEphemeralPorts(opts.Instances))

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(instances int) Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to read limit: %v", err),
		}
	}

	required := instances*fdsPerInstance + fdOverhead
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d instances)", actual, required, instances),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(instances int) Check {
	required := instances + 50

	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses returns the soft "Max processes" limit from the
// contents of /proc/self/limits, 1000000 for unlimited and 0 if absent.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1000000
		}
		var n int
		fmt.Sscanf(fields[2], "%d", &n)
		return n
	}
	return 0
}

// checkSIPp verifies sipp runs and reports a supported version.
func checkSIPp(ctx context.Context, path string) (Check, parser.Version) {
	if !process.Available(path) {
		return Check{
			Name:    "sipp",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s", path),
		}, parser.VersionUnknown
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	v, err := process.ProbeVersion(ctx, path)
	if err != nil {
		return Check{
			Name:    "sipp",
			Passed:  false,
			Message: fmt.Sprintf("version probe failed at %s: %v", path, err),
		}, parser.VersionUnknown
	}

	return Check{
		Name:    "sipp",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, v),
	}, v
}

// checkWorkDir verifies the telemetry directory exists and is writable.
func checkWorkDir(dir string) Check {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    "work_dir",
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}

	f, err := os.CreateTemp(dir, ".sipp-swarm-preflight-*")
	if err != nil {
		return Check{
			Name:    "work_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
		}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	return Check{
		Name:    "work_dir",
		Passed:  true,
		Message: fmt.Sprintf("%s is writable", dir),
	}
}

// checkMemory warns when available memory looks too small for the swarm.
func checkMemory(instances int) Check {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Check{
			Name:    "memory",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to read memory stats: %v", err),
		}
	}

	need := uint64(instances) * memPerInstance
	return Check{
		Name:    "memory",
		Passed:  true,
		Warning: vm.Available < need,
		Message: fmt.Sprintf("%d MiB available (recommend %d MiB for %d instances)",
			vm.Available>>20, need>>20, instances),
	}
}

// checkEphemeralPorts checks if enough ephemeral ports are available.
func checkEphemeralPorts(instances int) Check {
	data, err := os.ReadFile("/proc/sys/net/ipv4/ip_local_port_range")
	if err != nil {
		return Check{
			Name:    "ephemeral_ports",
			Passed:  true,
			Warning: true,
			Message: "unable to read port range (non-Linux?)",
		}
	}

	var low, high int
	fmt.Sscanf(string(data), "%d %d", &low, &high)
	available := high - low

	// Each instance binds a local SIP port plus media and TCP sockets
	recommended := instances * 4

	return Check{
		Name:     "ephemeral_ports",
		Required: recommended,
		Actual:   available,
		Passed:   true,
		Warning:  available < recommended,
		Message:  fmt.Sprintf("%d-%d (%d available, recommend %d)", low, high, available, recommended),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 65536 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case "sipp":
		return "install sipp 3.x (apt install sip-tester) or pass --sipp"
	case "work_dir":
		return "pass a writable --work-dir"
	default:
		return "see documentation"
	}
}
