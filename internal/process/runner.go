// Package process builds the command lines for the external load generator
// and knows where it writes its telemetry.
package process

import (
	"os/exec"
)

// Runner creates executable commands for workers.
// This interface keeps the supervisor process-agnostic.
type Runner interface {
	// BuildCommand returns a ready-to-start command.
	// The command must NOT be started yet.
	BuildCommand() (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string

	// StatsFile returns the path of the statistics file written by the
	// process with the given pid.
	StatsFile(pid int) string

	// CountsFile returns the path of the counts file written by the
	// process with the given pid.
	CountsFile(pid int) string
}
